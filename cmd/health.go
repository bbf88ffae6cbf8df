package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	statusadapter "github.com/symphainy/trafficcop/internal/adapters/render/status"
	"github.com/symphainy/trafficcop/internal/application"
	"github.com/symphainy/trafficcop/internal/domain"
)

func newHealthCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Collect metrics, manage alert thresholds and report health",
	}

	cmd.AddCommand(
		newHealthCollectCmd(app),
		newHealthThresholdCmd(app),
		newHealthAlertsCmd(app),
		newHealthPerfCmd(app),
		newHealthDetailCmd(app),
		newHealthServiceCmd(app),
		newHealthMetricsCmd(app),
	)

	return cmd
}

func newHealthCollectCmd(app *app) *cobra.Command {
	var (
		sessionID  string
		metricType string
		name       string
		value      float64
		dimensions []string
		metadata   map[string]string
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Record one metric sample and evaluate alert thresholds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.execute(cmd, application.CollectMetricsCommand{
				SessionID:  domain.SessionID(sessionID),
				Type:       domain.MetricType(metricType),
				Name:       name,
				Value:      value,
				Dimensions: dimensionIDs(dimensions),
				Metadata:   parseMetadata(metadata),
			})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session the sample belongs to")
	cmd.Flags().StringVar(&metricType, "type", string(domain.MetricPerformance), "performance, resource, error or activity")
	cmd.Flags().StringVar(&name, "name", "", "metric name")
	cmd.Flags().Float64Var(&value, "value", 0, "sample value")
	cmd.Flags().StringSliceVar(&dimensions, "dimension", nil, "dimension the sample describes (repeatable)")
	cmd.Flags().StringToStringVar(&metadata, "meta", nil, "metadata key=value")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("value")

	return cmd
}

func newHealthThresholdCmd(app *app) *cobra.Command {
	var (
		metric     string
		value      float64
		comparator string
		message    string
	)

	cmd := &cobra.Command{
		Use:   "threshold",
		Short: "Add or replace an alert threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.execute(cmd, application.SetAlertThresholdCommand{
				MetricName:     metric,
				ThresholdValue: value,
				Comparator:     domain.Comparator(comparator),
				Message:        message,
			})
		},
	}
	cmd.Flags().StringVar(&metric, "metric", "", "metric name the rule watches")
	cmd.Flags().Float64Var(&value, "value", 0, "threshold value")
	cmd.Flags().StringVar(&comparator, "comparator", string(domain.ComparatorGreaterThan), "greater_than, less_than or equals")
	cmd.Flags().StringVar(&message, "message", "", "alert message")
	_ = cmd.MarkFlagRequired("metric")
	_ = cmd.MarkFlagRequired("value")

	return cmd
}

func newHealthAlertsCmd(app *app) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List raised alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.execute(cmd, application.GetHealthAlertsQuery{SessionID: domain.SessionID(sessionID)})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "only alerts for this session")

	return cmd
}

func newHealthPerfCmd(app *app) *cobra.Command {
	var sessionID, metric string

	cmd := &cobra.Command{
		Use:   "perf",
		Short: "Summarize performance metrics by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.execute(cmd, application.GetPerformanceMetricsQuery{
				SessionID:  domain.SessionID(sessionID),
				MetricName: metric,
			})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "only samples for this session")
	cmd.Flags().StringVar(&metric, "metric", "", "only this metric")

	return cmd
}

func newHealthDetailCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detail <session-id>",
		Short: "Show session health with metrics, alerts and dimension status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.execute(cmd, application.GetSessionHealthDetailedQuery{SessionID: domain.SessionID(args[0])})
		},
	}
}

func newHealthServiceCmd(app *app) *cobra.Command {
	var (
		asJSON bool
		maxOps int
	)

	cmd := &cobra.Command{
		Use:   "service",
		Short: "Report overall service health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			health, err := application.ExecuteAs[application.ServiceHealth](ctx, app.engine, app.caller(), application.GetServiceHealthQuery{})
			if err != nil {
				return err
			}
			metrics, err := application.ExecuteAs[application.ServiceMetrics](ctx, app.engine, app.caller(), application.GetServiceMetricsQuery{})
			if err != nil {
				return err
			}

			report := statusadapter.Report{Health: health, Metrics: metrics}
			if asJSON {
				return writeJSON(cmd, report)
			}

			rendered, err := app.healthRenderer(report, statusadapter.RenderOptions{Now: app.now(), MaxOps: maxOps})
			if err != nil {
				return fmt.Errorf("render health: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.Flags().IntVar(&maxOps, "max-ops", 10, "operations listed in the table; 0 lists all")

	return cmd
}

func newHealthMetricsCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show per-operation call counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.execute(cmd, application.GetServiceMetricsQuery{})
		},
	}
}

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/symphainy/trafficcop/internal/application"
	"github.com/symphainy/trafficcop/internal/domain"
)

func newDimensionCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dimension",
		Short: "Coordinate work across dimensions",
	}

	cmd.AddCommand(
		newDimensionSessionCmd(app),
		newDimensionCoordinateCmd(app),
		newDimensionStatusCmd(app),
		newDimensionMetricsCmd(app),
		newDimensionListCmd(app),
	)

	return cmd
}

func newDimensionSessionCmd(app *app) *cobra.Command {
	var (
		owner        string
		dimensions   []string
		coordination string
		scope        string
		priority     int
		ttl          time.Duration
		metadata     map[string]string
	)

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Create a session spanning two or more dimensions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.execute(cmd, application.CreateCrossDimensionalSessionCommand{
				OwnerUserID:          owner,
				Dimensions:           dimensionIDs(dimensions),
				Metadata:             parseMetadata(metadata),
				CoordinationStrategy: coordination,
				Scope:                domain.Scope(scope),
				Priority:             priority,
				TTL:                  ttl,
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owning user id (defaults to --user)")
	cmd.Flags().StringSliceVar(&dimensions, "dimension", nil, "participating dimension (repeatable, at least two)")
	cmd.Flags().StringVar(&coordination, "coordination", "", "coordination strategy label")
	cmd.Flags().StringVar(&scope, "scope", "", "default scope for writes")
	cmd.Flags().IntVar(&priority, "priority", 0, "session priority")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "session lifetime")
	cmd.Flags().StringToStringVar(&metadata, "meta", nil, "metadata key=value")

	return cmd
}

func newDimensionCoordinateCmd(app *app) *cobra.Command {
	var (
		kind    string
		targets []string
		payload string
	)

	cmd := &cobra.Command{
		Use:   "coordinate <session-id>",
		Short: "Run a coordination action across a session's dimensions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := parseObject(payload)
			if err != nil {
				return fmt.Errorf("parse payload: %w", err)
			}
			return app.execute(cmd, application.CoordinateDimensionsCommand{
				SessionID:        domain.SessionID(args[0]),
				Type:             domain.CoordinationType(kind),
				TargetDimensions: dimensionIDs(targets),
				Payload:          body,
			})
		},
	}
	cmd.Flags().StringVar(&kind, "type", string(domain.CoordinationStateSync), "state_sync, workflow_coordination or resource_sharing")
	cmd.Flags().StringSliceVar(&targets, "target", nil, "target dimension (repeatable, defaults to every session dimension)")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON object passed to the coordination, e.g. {\"keys\":[\"draft\"]}")

	return cmd
}

func newDimensionStatusCmd(app *app) *cobra.Command {
	var dimension string

	cmd := &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show per-dimension activity for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.execute(cmd, application.GetDimensionStatusQuery{
				SessionID: domain.SessionID(args[0]),
				Dimension: domain.DimensionID(dimension),
			})
		},
	}
	cmd.Flags().StringVar(&dimension, "dimension", "", "only this dimension")

	return cmd
}

func newDimensionMetricsCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics <session-id>",
		Short: "Summarize orchestration events for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.execute(cmd, application.GetOrchestrationMetricsQuery{SessionID: domain.SessionID(args[0])})
		},
	}
}

func newDimensionListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered dimensions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.execute(cmd, application.ListDimensionsQuery{})
		},
	}
}

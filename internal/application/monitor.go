package application

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/ports"
)

// Metrics the engine reports about itself. They are service-wide: SessionID
// is empty and the session, when there is one, rides in the metadata.
const (
	MetricOpFailures        = "op.failures"
	MetricConflictsRecorded = "conflicts.recorded"
	MetricConflictsResolved = "conflicts.resolved"
	MetricSyncKeys          = "sync.keys"
	MetricSyncUnconverged   = "sync.unconverged"
)

// OpLatencyMetric names the latency metric, in milliseconds, of one operation.
func OpLatencyMetric(op Op) string {
	return "op." + op.String() + ".latency_ms"
}

type CollectResult struct {
	Metric domain.Metric
	Alerts []domain.Alert
}

// HealthMonitor ingests metrics and raises an alert for every rule a metric
// crosses. It only observes; nothing in the engine waits on it.
type HealthMonitor struct {
	metrics ports.MetricLog
	alerts  ports.AlertLog
	rules   ports.RuleRepository
	clock   ports.Clock
	opts    options
}

func NewHealthMonitor(metrics ports.MetricLog, alerts ports.AlertLog, rules ports.RuleRepository, clock ports.Clock, opts ...Option) *HealthMonitor {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &HealthMonitor{
		metrics: metrics,
		alerts:  alerts,
		rules:   rules,
		clock:   clock,
		opts:    buildOptions(opts),
	}
}

func (m *HealthMonitor) Collect(ctx context.Context, cmd CollectMetricsCommand) (CollectResult, error) {
	metric := domain.Metric{
		ID:         m.opts.newID(),
		SessionID:  cmd.SessionID,
		Type:       cmd.Type,
		Name:       strings.TrimSpace(cmd.Name),
		Value:      cmd.Value,
		Dimensions: domain.NormalizeDimensions(cmd.Dimensions),
		Metadata:   cmd.Metadata,
		RecordedAt: m.clock.Now(),
	}
	if err := metric.Validate(); err != nil {
		return CollectResult{}, err
	}
	if err := m.metrics.AppendMetric(ctx, metric); err != nil {
		return CollectResult{}, fmt.Errorf("append metric: %w", err)
	}

	rules, err := m.rules.List(ctx)
	if err != nil {
		return CollectResult{}, fmt.Errorf("list alert rules: %w", err)
	}

	result := CollectResult{Metric: metric}
	for _, rule := range rules {
		if rule.MetricName != metric.Name || !rule.Matches(metric.Value) {
			continue
		}
		alert := domain.Alert{
			ID:             m.opts.newID(),
			Rule:           rule,
			MetricID:       metric.ID,
			TriggeredValue: metric.Value,
			SessionID:      metric.SessionID,
			RaisedAt:       metric.RecordedAt,
		}
		if err := m.alerts.AppendAlert(ctx, alert); err != nil {
			return CollectResult{}, fmt.Errorf("append alert: %w", err)
		}
		result.Alerts = append(result.Alerts, alert)

		m.opts.logger.WarnContext(ctx, "alert raised",
			slog.String("session_id", string(alert.SessionID)),
			slog.String("metric", metric.Name),
			slog.Float64("value", metric.Value),
			slog.String("comparator", string(rule.Comparator)),
			slog.Float64("threshold", rule.ThresholdValue),
		)
	}
	return result, nil
}

// Emit collects a metric reported by another component. Failures are logged
// and dropped; the component's own operation has already happened.
func (m *HealthMonitor) Emit(ctx context.Context, cmd CollectMetricsCommand) {
	if _, err := m.Collect(context.WithoutCancel(ctx), cmd); err != nil {
		m.opts.logger.WarnContext(ctx, "emit metric",
			slog.String("metric", cmd.Name),
			slog.Any("error", err),
		)
	}
}

// SetAlertThreshold stores a rule, replacing the one with the same metric and
// comparator.
func (m *HealthMonitor) SetAlertThreshold(ctx context.Context, cmd SetAlertThresholdCommand) (domain.AlertRule, error) {
	rule := domain.AlertRule{
		MetricName:     strings.TrimSpace(cmd.MetricName),
		ThresholdValue: cmd.ThresholdValue,
		Comparator:     cmd.Comparator,
		Message:        cmd.Message,
		UpdatedAt:      m.clock.Now(),
	}
	if err := rule.Validate(); err != nil {
		return domain.AlertRule{}, err
	}
	if err := m.rules.Save(ctx, rule); err != nil {
		return domain.AlertRule{}, fmt.Errorf("save alert rule: %w", err)
	}
	return rule, nil
}

func (m *HealthMonitor) Rules(ctx context.Context) ([]domain.AlertRule, error) {
	rules, err := m.rules.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list alert rules: %w", err)
	}
	return rules, nil
}

func (m *HealthMonitor) Alerts(ctx context.Context, sessionID domain.SessionID) ([]domain.Alert, error) {
	alerts, err := m.alerts.ListAlerts(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}

// PerformanceMetrics summarizes metrics per name, sorted by name.
func (m *HealthMonitor) PerformanceMetrics(ctx context.Context, sessionID domain.SessionID, name string) ([]domain.MetricSummary, error) {
	metrics, err := m.metrics.ListMetrics(ctx, ports.MetricFilter{SessionID: sessionID, Name: name})
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}

	byName := map[string]*domain.MetricSummary{}
	for _, metric := range metrics {
		summary, ok := byName[metric.Name]
		if !ok {
			summary = &domain.MetricSummary{Name: metric.Name, Type: metric.Type}
			byName[metric.Name] = summary
		}
		summary.Add(metric)
	}

	out := make([]domain.MetricSummary, 0, len(byName))
	for _, summary := range byName {
		out = append(out, *summary)
	}
	slices.SortFunc(out, func(a, b domain.MetricSummary) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

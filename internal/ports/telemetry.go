package ports

import (
	"context"
	"time"

	"github.com/symphainy/trafficcop/internal/domain"
)

type MetricFilter struct {
	SessionID domain.SessionID
	Name      string
	Since     time.Time
}

func (f MetricFilter) Matches(metric domain.Metric) bool {
	if f.SessionID != "" && metric.SessionID != f.SessionID {
		return false
	}
	if f.Name != "" && metric.Name != f.Name {
		return false
	}
	if !f.Since.IsZero() && metric.RecordedAt.Before(f.Since) {
		return false
	}
	return true
}

// MetricLog, AlertLog and EventLog are append-only; List returns records in
// insertion order.
type MetricLog interface {
	AppendMetric(ctx context.Context, metric domain.Metric) error
	ListMetrics(ctx context.Context, filter MetricFilter) ([]domain.Metric, error)
}

type AlertLog interface {
	AppendAlert(ctx context.Context, alert domain.Alert) error
	ListAlerts(ctx context.Context, sessionID domain.SessionID) ([]domain.Alert, error)
}

type EventLog interface {
	AppendEvent(ctx context.Context, event domain.OrchestrationEvent) error
	ListEvents(ctx context.Context, sessionID domain.SessionID) ([]domain.OrchestrationEvent, error)
}

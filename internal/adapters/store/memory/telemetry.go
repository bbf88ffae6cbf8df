package memory

import (
	"context"
	"sync"

	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/ports"
)

// TelemetryLog keeps metrics, alerts and orchestration events in append order.
type TelemetryLog struct {
	mu      sync.RWMutex
	metrics []domain.Metric
	alerts  []domain.Alert
	events  []domain.OrchestrationEvent
}

var (
	_ ports.MetricLog = (*TelemetryLog)(nil)
	_ ports.AlertLog  = (*TelemetryLog)(nil)
	_ ports.EventLog  = (*TelemetryLog)(nil)
)

func NewTelemetryLog() *TelemetryLog {
	return &TelemetryLog{}
}

func (l *TelemetryLog) AppendMetric(ctx context.Context, metric domain.Metric) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	metric.Dimensions = append([]domain.DimensionID(nil), metric.Dimensions...)
	metric.Metadata = cloneMap(metric.Metadata)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.metrics = append(l.metrics, metric)
	return nil
}

func (l *TelemetryLog) ListMetrics(ctx context.Context, filter ports.MetricFilter) ([]domain.Metric, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Metric, 0, len(l.metrics))
	for _, metric := range l.metrics {
		if filter.Matches(metric) {
			out = append(out, metric)
		}
	}
	return out, nil
}

func (l *TelemetryLog) AppendAlert(ctx context.Context, alert domain.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.alerts = append(l.alerts, alert)
	return nil
}

// ListAlerts returns every alert when sessionID is empty.
func (l *TelemetryLog) ListAlerts(ctx context.Context, sessionID domain.SessionID) ([]domain.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Alert, 0, len(l.alerts))
	for _, alert := range l.alerts {
		if sessionID == "" || alert.SessionID == sessionID {
			out = append(out, alert)
		}
	}
	return out, nil
}

func (l *TelemetryLog) AppendEvent(ctx context.Context, event domain.OrchestrationEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	event.Payload = cloneMap(event.Payload)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *TelemetryLog) ListEvents(ctx context.Context, sessionID domain.SessionID) ([]domain.OrchestrationEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.OrchestrationEvent, 0, len(l.events))
	for _, event := range l.events {
		if sessionID == "" || event.SessionID == sessionID {
			event.Payload = cloneMap(event.Payload)
			out = append(out, event)
		}
	}
	return out, nil
}

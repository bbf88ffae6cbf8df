package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/platform/codec"
	"github.com/symphainy/trafficcop/internal/ports"
)

// TelemetryLog stores metrics, alerts and orchestration events in append-only
// tables ordered by an autoincrement sequence.
type TelemetryLog struct {
	store *Store
}

var (
	_ ports.MetricLog = (*TelemetryLog)(nil)
	_ ports.AlertLog  = (*TelemetryLog)(nil)
	_ ports.EventLog  = (*TelemetryLog)(nil)
)

func (l *TelemetryLog) AppendMetric(ctx context.Context, metric domain.Metric) error {
	if err := l.store.ready(ctx); err != nil {
		return err
	}

	var dimensions []byte
	if len(metric.Dimensions) > 0 {
		names := make([]string, 0, len(metric.Dimensions))
		for _, d := range metric.Dimensions {
			names = append(names, string(d))
		}
		encoded, err := codec.Marshal(names)
		if err != nil {
			return fmt.Errorf("encode metric dimensions: %w", err)
		}
		dimensions = encoded
	}
	metadata, err := encodeMap(metric.Metadata)
	if err != nil {
		return fmt.Errorf("encode metric metadata: %w", err)
	}

	_, err = l.store.sqlDB.ExecContext(ctx, `
		INSERT INTO metrics (id, session_id, type, name, value, dimensions, metadata, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		metric.ID, string(metric.SessionID), string(metric.Type), metric.Name, metric.Value,
		dimensions, metadata, toUnixNano(metric.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("append metric: %w", err)
	}
	return nil
}

func (l *TelemetryLog) ListMetrics(ctx context.Context, filter ports.MetricFilter) ([]domain.Metric, error) {
	if err := l.store.ready(ctx); err != nil {
		return nil, err
	}

	where := []string{"1 = 1"}
	var args []any
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, string(filter.SessionID))
	}
	if filter.Name != "" {
		where = append(where, "name = ?")
		args = append(args, filter.Name)
	}
	if !filter.Since.IsZero() {
		where = append(where, "recorded_at >= ?")
		args = append(args, toUnixNano(filter.Since))
	}

	rows, err := l.store.sqlDB.QueryContext(ctx, `
		SELECT id, session_id, type, name, value, dimensions, metadata, recorded_at
		FROM metrics WHERE `+strings.Join(where, " AND ")+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	var metrics []domain.Metric
	for rows.Next() {
		var (
			metric                domain.Metric
			sessionID, metricType string
			dimensions, metadata  []byte
			recordedAt            int64
		)
		if err := rows.Scan(&metric.ID, &sessionID, &metricType, &metric.Name, &metric.Value, &dimensions, &metadata, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		metric.SessionID = domain.SessionID(sessionID)
		metric.Type = domain.MetricType(metricType)
		metric.RecordedAt = fromUnixNano(recordedAt)
		if len(dimensions) > 0 {
			var names []string
			if err := codec.Unmarshal(dimensions, &names); err != nil {
				return nil, fmt.Errorf("decode metric dimensions: %w", err)
			}
			for _, name := range names {
				metric.Dimensions = append(metric.Dimensions, domain.DimensionID(name))
			}
		}
		if metric.Metadata, err = codec.DecodeMap(metadata); err != nil {
			return nil, err
		}
		metrics = append(metrics, metric)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metrics: %w", err)
	}
	return metrics, nil
}

func (l *TelemetryLog) AppendAlert(ctx context.Context, alert domain.Alert) error {
	if err := l.store.ready(ctx); err != nil {
		return err
	}

	_, err := l.store.sqlDB.ExecContext(ctx, `
		INSERT INTO alerts (id, session_id, metric_id, metric_name, comparator, threshold_value, message, triggered_value, raised_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, string(alert.SessionID), alert.MetricID, alert.Rule.MetricName, string(alert.Rule.Comparator),
		alert.Rule.ThresholdValue, alert.Rule.Message, alert.TriggeredValue, toUnixNano(alert.RaisedAt),
	)
	if err != nil {
		return fmt.Errorf("append alert: %w", err)
	}
	return nil
}

func (l *TelemetryLog) ListAlerts(ctx context.Context, sessionID domain.SessionID) ([]domain.Alert, error) {
	if err := l.store.ready(ctx); err != nil {
		return nil, err
	}

	query := `SELECT id, session_id, metric_id, metric_name, comparator, threshold_value, message, triggered_value, raised_at FROM alerts`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, string(sessionID))
	}
	query += ` ORDER BY seq`

	rows, err := l.store.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var (
			alert        domain.Alert
			session, cmp string
			raisedAt     int64
		)
		if err := rows.Scan(&alert.ID, &session, &alert.MetricID, &alert.Rule.MetricName, &cmp,
			&alert.Rule.ThresholdValue, &alert.Rule.Message, &alert.TriggeredValue, &raisedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alert.SessionID = domain.SessionID(session)
		alert.Rule.Comparator = domain.Comparator(cmp)
		alert.RaisedAt = fromUnixNano(raisedAt)
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}

func (l *TelemetryLog) AppendEvent(ctx context.Context, event domain.OrchestrationEvent) error {
	if err := l.store.ready(ctx); err != nil {
		return err
	}

	payload, err := encodeMap(event.Payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}

	_, err = l.store.sqlDB.ExecContext(ctx, `
		INSERT INTO orchestration_events (id, session_id, dimension, type, action, status, detail, payload, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, string(event.SessionID), string(event.Dimension), event.Type, event.Action,
		string(event.Status), event.Detail, payload, event.Duration.Milliseconds(), toUnixNano(event.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("append orchestration event: %w", err)
	}
	return nil
}

func (l *TelemetryLog) ListEvents(ctx context.Context, sessionID domain.SessionID) ([]domain.OrchestrationEvent, error) {
	if err := l.store.ready(ctx); err != nil {
		return nil, err
	}

	query := `SELECT id, session_id, dimension, type, action, status, detail, payload, duration_ms, recorded_at FROM orchestration_events`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, string(sessionID))
	}
	query += ` ORDER BY seq`

	rows, err := l.store.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orchestration events: %w", err)
	}
	defer rows.Close()

	var events []domain.OrchestrationEvent
	for rows.Next() {
		var (
			event                      domain.OrchestrationEvent
			session, dimension, status string
			payload                    []byte
			durationMS, recordedAt     int64
		)
		if err := rows.Scan(&event.ID, &session, &dimension, &event.Type, &event.Action, &status,
			&event.Detail, &payload, &durationMS, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan orchestration event: %w", err)
		}
		event.SessionID = domain.SessionID(session)
		event.Dimension = domain.DimensionID(dimension)
		event.Status = domain.EventStatus(status)
		event.Duration = time.Duration(durationMS) * time.Millisecond
		event.RecordedAt = fromUnixNano(recordedAt)
		if event.Payload, err = codec.DecodeMap(payload); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orchestration events: %w", err)
	}
	return events, nil
}

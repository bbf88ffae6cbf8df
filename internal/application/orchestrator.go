package application

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/ports"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultCoordinationStrategy is stored on cross-dimensional sessions that do
// not name one.
const DefaultCoordinationStrategy = "synchronized"

type CoordinationResult struct {
	SessionID  domain.SessionID
	Type       domain.CoordinationType
	Dimensions []domain.DimensionID
	Sync       []KeySyncResult
	Events     []domain.OrchestrationEvent
}

// Orchestrator coordinates work that spans dimensions. Dimensions hold no state;
// coordination either goes through the synchronizer or is recorded as events.
type Orchestrator struct {
	sessions *SessionManager
	sync     *Synchronizer
	states   ports.StateStore
	events   ports.EventLog
	dims     *DimensionRegistry
	clock    ports.Clock
	settings Settings
	opts     options

	mu      sync.RWMutex
	actions map[string]ActionFunc
}

func NewOrchestrator(sessions *SessionManager, synchronizer *Synchronizer, states ports.StateStore, events ports.EventLog, dims *DimensionRegistry, settings Settings, clock ports.Clock, opts ...Option) *Orchestrator {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	o := &Orchestrator{
		sessions: sessions,
		sync:     synchronizer,
		states:   states,
		events:   events,
		dims:     dims,
		clock:    clock,
		settings: settings.withDefaults(),
		opts:     buildOptions(opts),
		actions:  map[string]ActionFunc{},
	}
	o.registerBuiltins()
	return o
}

func (o *Orchestrator) CreateSession(ctx context.Context, cmd CreateCrossDimensionalSessionCommand) (domain.Session, error) {
	dimensions := domain.NormalizeDimensions(cmd.Dimensions)
	if len(dimensions) < 2 {
		return domain.Session{}, fmt.Errorf("%w: a cross-dimensional session needs at least two dimensions, got %d", domain.ErrDimensionMismatch, len(dimensions))
	}

	strategy := strings.TrimSpace(cmd.CoordinationStrategy)
	if strategy == "" {
		strategy = DefaultCoordinationStrategy
	}
	metadata := maps.Clone(cmd.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["coordination_strategy"] = strategy
	metadata["cross_dimensional"] = true

	session, err := o.sessions.Create(ctx, CreateSessionCommand{
		OwnerUserID: cmd.OwnerUserID,
		Tenant:      cmd.Tenant,
		Dimensions:  dimensions,
		Scope:       cmd.Scope,
		Priority:    cmd.Priority,
		TTL:         cmd.TTL,
		Metadata:    metadata,
	})
	if err != nil {
		return domain.Session{}, err
	}

	for _, dimension := range dimensions {
		if _, err := o.record(ctx, domain.OrchestrationEvent{
			SessionID: session.ID,
			Dimension: dimension,
			Type:      "session_created",
			Status:    domain.EventRecorded,
			Detail:    strategy,
		}); err != nil {
			return domain.Session{}, err
		}
	}
	return session, nil
}

// Coordinate runs one coordination between dimensions of a session. state_sync
// synchronizes the payload keys from the source dimension to the others; the
// other types record intent per dimension.
func (o *Orchestrator) Coordinate(ctx context.Context, cmd CoordinateDimensionsCommand) (res CoordinationResult, err error) {
	ctx, span := startSpan(ctx, o.opts.tracer, "trafficcop.coordinate_dimensions",
		sessionAttr(cmd.SessionID),
		attribute.String("trafficcop.coordination_type", string(cmd.Type)),
	)
	defer func() { endSpan(span, err) }()

	if !cmd.Type.Valid() {
		return CoordinationResult{}, fmt.Errorf("%w: unknown coordination type %q", domain.ErrInvalidArgument, cmd.Type)
	}
	session, err := o.sessions.Get(ctx, cmd.SessionID)
	if err != nil {
		return CoordinationResult{}, err
	}
	if err := writable(session); err != nil {
		return CoordinationResult{}, err
	}
	targets := domain.NormalizeDimensions(cmd.TargetDimensions)
	if len(targets) == 0 {
		targets = slices.Clone(session.Dimensions)
	}
	for _, dimension := range targets {
		if !session.HasDimension(dimension) {
			return CoordinationResult{}, fmt.Errorf("%w: session %s is not part of dimension %q", domain.ErrDimensionMismatch, session.ID, dimension)
		}
	}

	res = CoordinationResult{SessionID: session.ID, Type: cmd.Type, Dimensions: targets}
	started := o.clock.Now()
	status := domain.EventRecorded
	detail := ""
	if cmd.Type == domain.CoordinationStateSync {
		res.Sync, err = o.syncDimensions(ctx, session, targets, cmd.Payload)
		if err != nil {
			return CoordinationResult{}, err
		}
		status = domain.EventSucceeded
		if !(SyncResult{Keys: res.Sync}).Converged() {
			status = domain.EventFailed
			detail = "not every key converged"
		}
	}

	duration := o.clock.Now().Sub(started)
	for _, dimension := range targets {
		event, err := o.record(ctx, domain.OrchestrationEvent{
			SessionID: session.ID,
			Dimension: dimension,
			Type:      string(cmd.Type),
			Status:    status,
			Detail:    detail,
			Payload:   cmd.Payload,
			Duration:  duration,
		})
		if err != nil {
			return CoordinationResult{}, err
		}
		res.Events = append(res.Events, event)
	}
	return res, nil
}

func (o *Orchestrator) syncDimensions(ctx context.Context, session domain.Session, targets []domain.DimensionID, payload map[string]any) ([]KeySyncResult, error) {
	keys := uniqueKeys(stringList(payload["keys"]))
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: state_sync needs payload keys", domain.ErrInvalidArgument)
	}
	strategy := domain.SyncBidirectional
	if raw, ok := payload["strategy"].(string); ok && raw != "" {
		parsed, err := domain.ParseSyncStrategy(raw)
		if err != nil {
			return nil, err
		}
		strategy = parsed
	}
	var scope domain.Scope
	if raw, ok := payload["scope"].(string); ok && raw != "" {
		parsed, err := domain.ParseScope(raw)
		if err != nil {
			return nil, err
		}
		scope = parsed
	}
	source := targets[0]
	if raw, ok := payload["source_dimension"].(string); ok && raw != "" {
		source = domain.DimensionID(raw)
		if !session.HasDimension(source) {
			return nil, fmt.Errorf("%w: session %s is not part of dimension %q", domain.ErrDimensionMismatch, session.ID, source)
		}
	}
	conflictStrategy, err := o.sync.conflictStrategy(strategy, "")
	if err != nil {
		return nil, err
	}

	results := make([]KeySyncResult, 0, len(keys))
	for _, key := range keys {
		plan := SyncPlan{Key: key, Strategy: strategy, ConflictStrategy: conflictStrategy, SessionID: session.ID}
		plan.Source, err = o.sessions.AddressFor(session, key, scope, source)
		if err != nil {
			return nil, err
		}
		for _, dimension := range targets {
			address, err := o.sessions.AddressFor(session, key, scope, dimension)
			if err != nil {
				return nil, err
			}
			plan.Targets = append(plan.Targets, address)
		}

		result := o.sync.SyncAddresses(ctx, plan)
		if err := o.sessions.Observe(ctx, session.ID, result.Entries...); err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// DimensionStatus summarizes the session's activity per dimension, or for the
// one dimension given.
func (o *Orchestrator) DimensionStatus(ctx context.Context, id domain.SessionID, dimension domain.DimensionID) ([]domain.DimensionStatus, error) {
	session, err := o.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	dimensions := session.Dimensions
	if dimension != "" {
		if !session.HasDimension(dimension) {
			return nil, fmt.Errorf("%w: session %s is not part of dimension %q", domain.ErrDimensionMismatch, session.ID, dimension)
		}
		dimensions = []domain.DimensionID{dimension}
	}

	events, err := o.events.ListEvents(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	out := make([]domain.DimensionStatus, 0, len(dimensions))
	for _, d := range dimensions {
		status := domain.DimensionStatus{SessionID: session.ID, Dimension: d}
		for _, event := range events {
			if event.Dimension != d {
				continue
			}
			status.Events++
			if event.Status == domain.EventFailed {
				status.Failures++
			}
			if !event.RecordedAt.Before(status.LastEventAt) {
				status.LastEventAt = event.RecordedAt
				status.LastStatus = event.Status
			}
		}
		for _, ref := range session.Refs {
			if ref.Address.Dimension == d {
				status.StateCount++
			}
		}
		out = append(out, status)
	}
	return out, nil
}

// Metrics aggregates orchestration events for a session, or for every session
// when id is empty.
func (o *Orchestrator) Metrics(ctx context.Context, id domain.SessionID) (OrchestrationMetrics, error) {
	if id != "" {
		if _, err := o.sessions.Get(ctx, id); err != nil {
			return OrchestrationMetrics{}, err
		}
	}
	events, err := o.events.ListEvents(ctx, id)
	if err != nil {
		return OrchestrationMetrics{}, fmt.Errorf("list events: %w", err)
	}

	metrics := OrchestrationMetrics{
		SessionID:   id,
		TotalEvents: len(events),
		ByType:      map[string]int{},
		ByDimension: map[domain.DimensionID]int{},
	}
	var total time.Duration
	for _, event := range events {
		metrics.ByType[event.Type]++
		if event.Dimension != "" {
			metrics.ByDimension[event.Dimension]++
		}
		if event.Status == domain.EventFailed {
			metrics.Failures++
		}
		total += event.Duration
		if event.RecordedAt.After(metrics.LastEventAt) {
			metrics.LastEventAt = event.RecordedAt
		}
	}
	if len(events) > 0 {
		metrics.AverageDuration = total / time.Duration(len(events))
	}
	return metrics, nil
}

// DefaultEventLimit caps ListSessionEventsQuery when no limit is given.
const DefaultEventLimit = 50

// Events returns the latest limit events recorded for a session, oldest first.
func (o *Orchestrator) Events(ctx context.Context, id domain.SessionID, limit int) ([]domain.OrchestrationEvent, error) {
	if _, err := o.sessions.Get(ctx, id); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: event limit %d", domain.ErrInvalidArgument, limit)
	}
	if limit == 0 {
		limit = DefaultEventLimit
	}

	events, err := o.events.ListEvents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

func (o *Orchestrator) record(ctx context.Context, event domain.OrchestrationEvent) (domain.OrchestrationEvent, error) {
	event.ID = o.opts.newID()
	event.RecordedAt = o.clock.Now()
	if err := o.events.AppendEvent(ctx, event); err != nil {
		return domain.OrchestrationEvent{}, fmt.Errorf("append event: %w", err)
	}

	o.opts.logger.DebugContext(ctx, "orchestration event",
		slog.String("session_id", string(event.SessionID)),
		slog.String("dimension", string(event.Dimension)),
		slog.String("type", event.Type),
		slog.String("status", string(event.Status)),
	)
	return event, nil
}

// stringList accepts the shapes keys arrive in from decoded JSON or YAML.
func stringList(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Split(v, ",")
	default:
		return nil
	}
}

package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/ports"
	"go.opentelemetry.io/otel/attribute"
)

// Dependencies are the ports the engine runs on. Clock may be nil; everything
// else is required. Use ports.AllowAll as the guard when tenant checks happen
// upstream.
type Dependencies struct {
	States    ports.StateStore
	Sessions  ports.SessionRepository
	Conflicts ports.ConflictRepository
	Metrics   ports.MetricLog
	Alerts    ports.AlertLog
	Events    ports.EventLog
	Rules     ports.RuleRepository
	Guard     ports.AccessGuard
	Clock     ports.Clock
}

func (d Dependencies) validate() error {
	var missing []string
	if d.States == nil {
		missing = append(missing, "state store")
	}
	if d.Sessions == nil {
		missing = append(missing, "session repository")
	}
	if d.Conflicts == nil {
		missing = append(missing, "conflict repository")
	}
	if d.Metrics == nil {
		missing = append(missing, "metric log")
	}
	if d.Alerts == nil {
		missing = append(missing, "alert log")
	}
	if d.Events == nil {
		missing = append(missing, "event log")
	}
	if d.Rules == nil {
		missing = append(missing, "rule repository")
	}
	if d.Guard == nil {
		missing = append(missing, "access guard")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: engine requires %s", domain.ErrInvalidArgument, strings.Join(missing, ", "))
	}
	return nil
}

// Engine is the single entry point for every operation. It authorizes the
// caller, dispatches the request to the owning component and tags failures
// with the operation, session and key.
type Engine struct {
	sessions     *SessionManager
	resolver     *ConflictResolver
	sync         *Synchronizer
	orchestrator *Orchestrator
	monitor      *HealthMonitor
	sweeper      *Sweeper
	dims         *DimensionRegistry
	states       ports.StateStore
	guard        ports.AccessGuard
	clock        ports.Clock
	settings     Settings
	opts         options
	stats        *opStats
	startedAt    time.Time
}

func NewEngine(deps Dependencies, settings Settings, opts ...Option) (*Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	settings = settings.withDefaults()
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	clock := deps.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}

	monitor := NewHealthMonitor(deps.Metrics, deps.Alerts, deps.Rules, clock, opts...)
	opts = append(slices.Clone(opts), withEmitter(monitor))

	dims := NewDimensionRegistry(settings.Dimensions...)
	sessions := NewSessionManager(deps.Sessions, deps.States, dims, settings, clock, opts...)
	resolver := NewConflictResolver(deps.States, deps.Conflicts, settings.Retry, clock, opts...)
	synchronizer := NewSynchronizer(sessions, resolver, deps.States, dims, settings, opts...)

	return &Engine{
		sessions:     sessions,
		resolver:     resolver,
		sync:         synchronizer,
		orchestrator: NewOrchestrator(sessions, synchronizer, deps.States, deps.Events, dims, settings, clock, opts...),
		monitor:      monitor,
		sweeper:      NewSweeper(sessions, deps.States, settings, clock, opts...),
		dims:         dims,
		states:       deps.States,
		guard:        deps.Guard,
		clock:        clock,
		settings:     settings,
		opts:         buildOptions(opts),
		stats:        newOpStats(),
		startedAt:    clock.Now(),
	}, nil
}

func (e *Engine) Sessions() *SessionManager      { return e.sessions }
func (e *Engine) Resolver() *ConflictResolver    { return e.resolver }
func (e *Engine) Synchronizer() *Synchronizer    { return e.sync }
func (e *Engine) Orchestrator() *Orchestrator    { return e.orchestrator }
func (e *Engine) Monitor() *HealthMonitor        { return e.monitor }
func (e *Engine) Sweeper() *Sweeper              { return e.sweeper }
func (e *Engine) Dimensions() *DimensionRegistry { return e.dims }
func (e *Engine) Settings() Settings             { return e.settings }

// Execute runs one operation on behalf of caller. Errors leaving Execute are
// *domain.OpError values wrapping the component error.
func (e *Engine) Execute(ctx context.Context, caller domain.Caller, req Request) (result any, err error) {
	op := OpUnknown
	if req != nil {
		op = req.Op()
	}
	var (
		sessionID domain.SessionID
		key       string
	)
	if t, ok := req.(target); ok {
		sessionID, key = t.target()
	}

	ctx, span := startSpan(ctx, e.opts.tracer, "trafficcop."+op.String(),
		attribute.String("trafficcop.op", op.String()),
		sessionAttr(sessionID),
		keyAttr(key),
	)
	started := time.Now()
	defer func() {
		latency := time.Since(started)
		e.stats.record(op, latency, err)
		e.emitOutcome(ctx, op, sessionID, latency, err)
		if err != nil {
			err = &domain.OpError{Op: op.String(), SessionID: sessionID, Key: key, Err: err}
			e.opts.logger.DebugContext(ctx, "operation failed",
				slog.String("op", op.String()),
				slog.String("session_id", string(sessionID)),
				slog.String("key", key),
				slog.Any("error", err),
			)
		}
		endSpan(span, err)
	}()

	if req == nil {
		return nil, fmt.Errorf("%w: nil request", domain.ErrInvalidArgument)
	}
	if err := e.authorize(ctx, caller, op, sessionID); err != nil {
		return nil, err
	}
	return e.dispatch(ctx, caller, req)
}

func (e *Engine) emitOutcome(ctx context.Context, op Op, sessionID domain.SessionID, latency time.Duration, err error) {
	metadata := map[string]any{"op": op.String()}
	if sessionID != "" {
		metadata["session_id"] = string(sessionID)
	}
	e.opts.emitter.Emit(ctx, CollectMetricsCommand{
		Type:     domain.MetricPerformance,
		Name:     OpLatencyMetric(op),
		Value:    float64(latency) / float64(time.Millisecond),
		Metadata: metadata,
	})
	if err == nil {
		return
	}
	failure := maps.Clone(metadata)
	failure["error"] = err.Error()
	e.opts.emitter.Emit(ctx, CollectMetricsCommand{
		Type:     domain.MetricError,
		Name:     MetricOpFailures,
		Value:    1,
		Metadata: failure,
	})
}

// ExecuteAs runs req and asserts the result type.
func ExecuteAs[T any](ctx context.Context, e *Engine, caller domain.Caller, req Request) (T, error) {
	var zero T
	result, err := e.Execute(ctx, caller, req)
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("%s returned %T", req.Op(), result)
	}
	return typed, nil
}

func (e *Engine) authorize(ctx context.Context, caller domain.Caller, op Op, sessionID domain.SessionID) error {
	if e.settings.TenantPolicy == TenantPolicyOff {
		return nil
	}

	err := e.guard.Authorize(ctx, caller, op.String(), sessionID)
	if err == nil {
		return nil
	}
	if e.settings.TenantPolicy == TenantPolicyAdvisory {
		e.opts.logger.WarnContext(ctx, "access guard rejected call, continuing under advisory policy",
			slog.String("op", op.String()),
			slog.String("session_id", string(sessionID)),
			slog.String("user_id", caller.UserID),
			slog.String("tenant", caller.Tenant),
			slog.Any("error", err),
		)
		return nil
	}
	if errors.Is(err, domain.ErrTenantAccessDenied) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrTenantAccessDenied, err)
}

// authorizeTenant admits a tenant-wide read only by a caller of that tenant, or
// by a caller without one.
func (e *Engine) authorizeTenant(ctx context.Context, caller domain.Caller, op Op, tenant string) error {
	if e.settings.TenantPolicy == TenantPolicyOff || caller.Tenant == "" || caller.Tenant == tenant {
		return nil
	}
	if e.settings.TenantPolicy == TenantPolicyAdvisory {
		e.opts.logger.WarnContext(ctx, "cross-tenant read, continuing under advisory policy",
			slog.String("op", op.String()),
			slog.String("tenant", tenant),
			slog.String("caller_tenant", caller.Tenant),
		)
		return nil
	}
	return fmt.Errorf("%w: tenant %q cannot %s for tenant %q", domain.ErrTenantAccessDenied, caller.Tenant, op, tenant)
}

func (e *Engine) dispatch(ctx context.Context, caller domain.Caller, req Request) (any, error) {
	switch r := req.(type) {
	case CreateSessionCommand:
		r.OwnerUserID = firstNonEmpty(r.OwnerUserID, caller.UserID)
		r.Tenant = firstNonEmpty(r.Tenant, caller.Tenant)
		return e.sessions.Create(ctx, r)
	case ValidateSessionQuery:
		return e.sessions.Validate(ctx, r.SessionID)
	case UpdateSessionStateCommand:
		return e.updateState(ctx, r)
	case GetSessionStateQuery:
		return e.sessions.GetState(ctx, r)
	case TerminateSessionCommand:
		return e.sessions.Terminate(ctx, r.SessionID)
	case GetSessionHealthQuery:
		return e.sessions.Health(ctx, r.SessionID)

	case ShareStateCommand:
		return e.sync.Share(ctx, r)
	case ResolveConflictCommand:
		return e.resolveConflict(ctx, r)
	case SynchronizeStatesCommand:
		return e.sync.Synchronize(ctx, r)
	case GetSharedStatesQuery:
		return e.sync.Shared(ctx, r)
	case GetStateConflictsQuery:
		status := r.Status
		if status == "" && !r.All {
			status = domain.ConflictPending
		}
		return e.resolver.List(ctx, status)

	case CreateCrossDimensionalSessionCommand:
		r.OwnerUserID = firstNonEmpty(r.OwnerUserID, caller.UserID)
		r.Tenant = firstNonEmpty(r.Tenant, caller.Tenant)
		return e.orchestrator.CreateSession(ctx, r)
	case CoordinateDimensionsCommand:
		return e.orchestrator.Coordinate(ctx, r)
	case ExecuteWorkflowCommand:
		r.OwnerUserID = firstNonEmpty(r.OwnerUserID, caller.UserID)
		r.Tenant = firstNonEmpty(r.Tenant, caller.Tenant)
		return e.orchestrator.ExecuteWorkflow(ctx, r)
	case GetDimensionStatusQuery:
		return e.orchestrator.DimensionStatus(ctx, r.SessionID, r.Dimension)
	case GetOrchestrationMetricsQuery:
		return e.orchestrator.Metrics(ctx, r.SessionID)

	case CollectMetricsCommand:
		if r.SessionID != "" {
			if _, err := e.sessions.Get(ctx, r.SessionID); err != nil {
				return nil, err
			}
		}
		return e.monitor.Collect(ctx, r)
	case GetSessionHealthDetailedQuery:
		return e.detailedHealth(ctx, r.SessionID)
	case SetAlertThresholdCommand:
		return e.monitor.SetAlertThreshold(ctx, r)
	case GetHealthAlertsQuery:
		return e.monitor.Alerts(ctx, r.SessionID)
	case GetPerformanceMetricsQuery:
		return e.monitor.PerformanceMetrics(ctx, r.SessionID, r.MetricName)

	case GetServiceHealthQuery:
		return e.ServiceHealth(ctx)
	case GetServiceMetricsQuery:
		return e.ServiceMetrics(), nil

	case TransitionSessionCommand:
		return e.sessions.Transition(ctx, r.SessionID, r.To)
	case ExtendSessionCommand:
		return e.sessions.Extend(ctx, r.SessionID, r.TTL)
	case ListSessionsQuery:
		if r.Tenant != "" {
			if err := e.authorizeTenant(ctx, caller, OpListSessions, r.Tenant); err != nil {
				return nil, err
			}
		}
		return e.sessions.List(ctx, ports.SessionFilter{OwnerUserID: r.OwnerUserID, Tenant: r.Tenant, Status: r.Status})
	case DeleteStateCommand:
		if err := e.sessions.DeleteState(ctx, r); err != nil {
			return nil, err
		}
		return StateDeletion{SessionID: r.SessionID, Key: r.Key, Deleted: true}, nil
	case GetStateStatsQuery:
		return e.states.Stats(ctx)
	case ListDimensionsQuery:
		return e.dims.List(), nil
	case RegisterDimensionCommand:
		return e.dims.Register(domain.Dimension{ID: r.ID, DisplayName: r.DisplayName})
	case SweepCommand:
		return e.sweeper.SweepOnce(ctx)
	case GetTenantSummaryQuery:
		tenant := firstNonEmpty(r.Tenant, caller.Tenant)
		if tenant == "" {
			return nil, fmt.Errorf("%w: tenant is required", domain.ErrInvalidArgument)
		}
		if err := e.authorizeTenant(ctx, caller, OpGetTenantSummary, tenant); err != nil {
			return nil, err
		}
		return e.sessions.TenantSummary(ctx, tenant)
	case ListSessionEventsQuery:
		return e.orchestrator.Events(ctx, r.SessionID, r.Limit)

	default:
		return nil, fmt.Errorf("%w: unsupported request %T", domain.ErrInvalidArgument, req)
	}
}

// updateState records a pending conflict when the write loses a version race,
// so the caller can resolve it by id.
func (e *Engine) updateState(ctx context.Context, cmd UpdateSessionStateCommand) (domain.StateEntry, error) {
	entry, err := e.sessions.UpdateState(ctx, cmd)
	if err == nil {
		return entry, nil
	}

	var conflict *domain.VersionConflictError
	if errors.As(err, &conflict) {
		if _, recordErr := e.resolver.RecordVersionConflict(ctx, cmd.SessionID, cmd.Key, conflict); recordErr != nil {
			return domain.StateEntry{}, errors.Join(err, recordErr)
		}
	}
	return domain.StateEntry{}, err
}

func (e *Engine) resolveConflict(ctx context.Context, cmd ResolveConflictCommand) (Resolution, error) {
	strategy := cmd.Strategy
	if strategy == "" {
		strategy = domain.StrategyOverride
	}

	id := cmd.ConflictID
	if id == "" {
		address, err := e.conflictAddress(ctx, cmd)
		if err != nil {
			return Resolution{}, err
		}
		conflict, err := e.resolver.FindPending(ctx, address)
		if err != nil {
			return Resolution{}, err
		}
		id = conflict.ID
	}

	res, err := e.resolver.Resolve(ctx, ResolveRequest{ConflictID: id, Strategy: strategy, SessionID: cmd.SessionID})
	if err != nil {
		return Resolution{}, err
	}
	if cmd.SessionID != "" && res.Written {
		if err := e.sessions.Observe(ctx, cmd.SessionID, res.Entries...); err != nil {
			return Resolution{}, err
		}
	}
	return res, nil
}

func (e *Engine) conflictAddress(ctx context.Context, cmd ResolveConflictCommand) (domain.StateAddress, error) {
	if cmd.SessionID != "" {
		session, err := e.sessions.Get(ctx, cmd.SessionID)
		if err != nil {
			return domain.StateAddress{}, err
		}
		if err := usable(session); err != nil {
			return domain.StateAddress{}, err
		}
		return e.sessions.AddressFor(session, cmd.Key, cmd.Scope, cmd.Dimension)
	}

	scope := cmd.Scope
	if scope == "" {
		scope = domain.ScopeShared
	}
	address := domain.StateAddress{Scope: scope, Dimension: cmd.Dimension, Key: strings.TrimSpace(cmd.Key)}
	if err := address.Validate(); err != nil {
		return domain.StateAddress{}, err
	}
	return address, nil
}

func (e *Engine) detailedHealth(ctx context.Context, id domain.SessionID) (SessionHealthDetailed, error) {
	health, err := e.sessions.Health(ctx, id)
	if err != nil {
		return SessionHealthDetailed{}, err
	}
	metrics, err := e.monitor.PerformanceMetrics(ctx, id, "")
	if err != nil {
		return SessionHealthDetailed{}, err
	}
	alerts, err := e.monitor.Alerts(ctx, id)
	if err != nil {
		return SessionHealthDetailed{}, err
	}
	dimensions, err := e.orchestrator.DimensionStatus(ctx, id, "")
	if err != nil {
		return SessionHealthDetailed{}, err
	}
	return SessionHealthDetailed{
		SessionHealth: health,
		Metrics:       metrics,
		Alerts:        alerts,
		Dimensions:    dimensions,
	}, nil
}

// ServiceHealth is degraded when the recent error rate or the pending conflict
// backlog crosses its threshold.
func (e *Engine) ServiceHealth(ctx context.Context) (ServiceHealth, error) {
	sessions, err := e.sessions.List(ctx, ports.SessionFilter{})
	if err != nil {
		return ServiceHealth{}, err
	}
	pending, err := e.resolver.List(ctx, domain.ConflictPending)
	if err != nil {
		return ServiceHealth{}, err
	}
	stats, err := e.states.Stats(ctx)
	if err != nil {
		return ServiceHealth{}, fmt.Errorf("state stats: %w", err)
	}

	now := e.clock.Now()
	health := ServiceHealth{
		Status:           ServiceHealthy,
		SessionsByStatus: map[domain.SessionStatus]int{},
		PendingConflicts: len(pending),
		ErrorRate:        e.stats.recentErrorRate(),
		State:            stats,
		Uptime:           now.Sub(e.startedAt),
		CheckedAt:        now,
	}
	for _, session := range sessions {
		health.SessionsByStatus[session.Status]++
	}
	if health.ErrorRate > e.settings.ErrorRateThreshold {
		health.Reasons = append(health.Reasons, fmt.Sprintf("error rate %.2f above %.2f", health.ErrorRate, e.settings.ErrorRateThreshold))
	}
	if health.PendingConflicts > e.settings.PendingConflictThreshold {
		health.Reasons = append(health.Reasons, fmt.Sprintf("%d pending conflicts above %d", health.PendingConflicts, e.settings.PendingConflictThreshold))
	}
	if len(health.Reasons) > 0 {
		health.Status = ServiceDegraded
	}
	return health, nil
}

func (e *Engine) ServiceMetrics() ServiceMetrics {
	metrics := e.stats.snapshot()
	metrics.Uptime = e.clock.Now().Sub(e.startedAt)
	return metrics
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

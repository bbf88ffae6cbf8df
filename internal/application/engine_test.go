package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/symphainy/trafficcop/internal/adapters/store/memory"
	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/ports"
	"github.com/symphainy/trafficcop/internal/ports/mocks"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func memoryDependencies(guard ports.AccessGuard, clock ports.Clock) Dependencies {
	telemetry := memory.NewTelemetryLog()
	return Dependencies{
		States:    memory.NewStateStore(clock),
		Sessions:  memory.NewSessionRepository(),
		Conflicts: memory.NewConflictRepository(),
		Metrics:   telemetry,
		Alerts:    telemetry,
		Events:    telemetry,
		Rules:     memory.NewRuleRepository(),
		Guard:     guard,
		Clock:     clock,
	}
}

func TestNewEngineRequiresDependencies(t *testing.T) {
	t.Parallel()

	deps := memoryDependencies(nil, fixedClock{now: testStart})
	deps.States = nil
	_, err := NewEngine(deps, testSettings())
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.ErrorContains(t, err, "state store")
	assert.ErrorContains(t, err, "access guard")

	settings := testSettings()
	settings.PushStrategy = "shrug"
	_, err = NewEngine(memoryDependencies(ports.AllowAll{}, nil), settings)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func tenantGuard(t *testing.T) *mocks.MockAccessGuard {
	guard := mocks.NewMockAccessGuard(t)
	guard.EXPECT().
		Authorize(mockAnyContext(), mock.Anything, mock.Anything, mock.Anything).
		RunAndReturn(func(_ context.Context, caller domain.Caller, _ string, _ domain.SessionID) error {
			if caller.Tenant != "tenant-a" {
				return errors.New("caller belongs to " + caller.Tenant)
			}
			return nil
		}).
		Maybe()
	return guard
}

func TestTenantPolicies(t *testing.T) {
	t.Parallel()
	outsider := domain.Caller{UserID: "user-2", Tenant: "tenant-b"}
	cmd := CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}}

	t.Run("enforce", func(t *testing.T) {
		t.Parallel()
		engine, err := NewEngine(memoryDependencies(tenantGuard(t), nil), testSettings())
		require.NoError(t, err)

		_, err = engine.Execute(context.Background(), outsider, cmd)
		require.ErrorIs(t, err, domain.ErrTenantAccessDenied)
		assert.ErrorContains(t, err, "tenant-b")

		_, err = engine.Execute(context.Background(), domain.Caller{UserID: "user-1", Tenant: "tenant-a"}, cmd)
		require.NoError(t, err)
	})

	t.Run("advisory", func(t *testing.T) {
		t.Parallel()
		settings := testSettings()
		settings.TenantPolicy = TenantPolicyAdvisory
		engine, err := NewEngine(memoryDependencies(tenantGuard(t), nil), settings)
		require.NoError(t, err)

		session, err := ExecuteAs[domain.Session](context.Background(), engine, outsider, cmd)
		require.NoError(t, err)
		assert.Equal(t, "tenant-b", session.Tenant)
	})

	t.Run("off", func(t *testing.T) {
		t.Parallel()
		settings := testSettings()
		settings.TenantPolicy = TenantPolicyOff
		guard := mocks.NewMockAccessGuard(t)
		engine, err := NewEngine(memoryDependencies(guard, nil), settings)
		require.NoError(t, err)

		_, err = engine.Execute(context.Background(), outsider, cmd)
		require.NoError(t, err)
		guard.AssertNotCalled(t, "Authorize", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestGuardSeesOperationAndSession(t *testing.T) {
	t.Parallel()

	guard := mocks.NewMockAccessGuard(t)
	guard.EXPECT().Authorize(mockAnyContext(), mock.Anything, "validate_session", domain.SessionID("s-9")).Return(nil).Once()

	engine, err := NewEngine(memoryDependencies(guard, nil), testSettings())
	require.NoError(t, err)

	validation, err := ExecuteAs[SessionValidation](context.Background(), engine, domain.Caller{}, ValidateSessionQuery{SessionID: "s-9"})
	require.NoError(t, err)
	assert.False(t, validation.Valid)
}

func TestExecuteRejectsNilRequest(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testSettings())

	_, err := f.engine.Execute(context.Background(), f.caller, nil)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	var opErr *domain.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "unknown", opErr.Op)
}

func TestEveryOperationHasARequest(t *testing.T) {
	t.Parallel()

	requests := []Request{
		CreateSessionCommand{},
		ValidateSessionQuery{},
		UpdateSessionStateCommand{},
		GetSessionStateQuery{},
		TerminateSessionCommand{},
		GetSessionHealthQuery{},
		ShareStateCommand{},
		ResolveConflictCommand{},
		SynchronizeStatesCommand{},
		GetSharedStatesQuery{},
		GetStateConflictsQuery{},
		CreateCrossDimensionalSessionCommand{},
		CoordinateDimensionsCommand{},
		ExecuteWorkflowCommand{},
		GetDimensionStatusQuery{},
		GetOrchestrationMetricsQuery{},
		CollectMetricsCommand{},
		GetSessionHealthDetailedQuery{},
		SetAlertThresholdCommand{},
		GetHealthAlertsQuery{},
		GetPerformanceMetricsQuery{},
		GetServiceHealthQuery{},
		GetServiceMetricsQuery{},
		TransitionSessionCommand{},
		ExtendSessionCommand{},
		ListSessionsQuery{},
		DeleteStateCommand{},
		GetStateStatsQuery{},
		ListDimensionsQuery{},
		RegisterDimensionCommand{},
		SweepCommand{},
		GetTenantSummaryQuery{},
		ListSessionEventsQuery{},
	}

	seen := map[Op]bool{}
	for _, req := range requests {
		seen[req.Op()] = true
	}
	for _, op := range Ops() {
		assert.True(t, seen[op], "no request for %s", op)
	}
	assert.Len(t, seen, len(Ops()))
}

func TestExecuteRecordsSpans(t *testing.T) {
	t.Parallel()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	f := newFixture(t, testSettings(), WithTracer(tp.Tracer("test")))
	ctx := context.Background()

	session := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}})
	_, err := f.engine.Execute(ctx, f.caller, GetSessionHealthQuery{SessionID: "missing"})
	require.Error(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 2)

	created := spans[0]
	assert.Equal(t, "trafficcop.create_session", created.Name())
	assert.Equal(t, codes.Unset, created.Status().Code)

	failed := spans[1]
	assert.Equal(t, "trafficcop.get_session_health", failed.Name())
	assert.Equal(t, codes.Error, failed.Status().Code)
	var sawSession bool
	for _, attr := range failed.Attributes() {
		if attr.Key == "trafficcop.session_id" {
			sawSession = attr.Value.AsString() == "missing"
		}
	}
	assert.True(t, sawSession)
	assert.NotEmpty(t, session.ID)
}

func TestServiceHealthDegradesOnErrorRate(t *testing.T) {
	t.Parallel()
	settings := testSettings()
	settings.ErrorRateThreshold = 0.5
	f := newFixture(t, settings)
	ctx := context.Background()

	session := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}})
	health, err := ExecuteAs[ServiceHealth](ctx, f.engine, f.caller, GetServiceHealthQuery{})
	require.NoError(t, err)
	assert.Equal(t, ServiceHealthy, health.Status)
	assert.Equal(t, 1, health.SessionsByStatus[domain.SessionStatusActive])

	for range 4 {
		_, err := f.engine.Execute(ctx, f.caller, UpdateSessionStateCommand{SessionID: "missing", Key: "k", Value: 1})
		require.Error(t, err)
	}

	health, err = f.engine.ServiceHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, ServiceDegraded, health.Status)
	require.Len(t, health.Reasons, 1)
	assert.Contains(t, health.Reasons[0], "error rate")
	assert.InDelta(t, 4.0/6.0, health.ErrorRate, 1e-9)
	assert.NotEmpty(t, session.ID)
}

func TestServiceHealthDegradesOnPendingConflicts(t *testing.T) {
	t.Parallel()
	settings := testSettings()
	settings.PendingConflictThreshold = 1
	f := newFixture(t, settings)
	ctx := context.Background()

	s1 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}})
	s2 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"content"}})
	for _, key := range []string{"a", "b"} {
		f.put(t, s1.ID, key, "left")
		f.put(t, s2.ID, key, "right")
	}
	_, err := f.engine.Execute(ctx, f.caller, SynchronizeStatesCommand{
		SourceSessionID:  s1.ID,
		TargetSessionIDs: []domain.SessionID{s2.ID},
		Keys:             []string{"a", "b"},
		ConflictStrategy: domain.StrategyConflict,
	})
	require.NoError(t, err)

	health, err := f.engine.ServiceHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, ServiceDegraded, health.Status)
	assert.Equal(t, 2, health.PendingConflicts)
	assert.Equal(t, 4, health.State.Total)
}

func TestServiceMetricsCountCalls(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testSettings())
	ctx := context.Background()

	session := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}})
	f.put(t, session.ID, "k", 1)
	f.put(t, session.ID, "k", 2)
	_, err := f.engine.Execute(ctx, f.caller, TerminateSessionCommand{SessionID: "missing"})
	require.Error(t, err)
	f.clock.Advance(time.Minute)

	metrics, err := ExecuteAs[ServiceMetrics](ctx, f.engine, f.caller, GetServiceMetricsQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), metrics.Calls)
	assert.Equal(t, int64(1), metrics.Failures)
	assert.Equal(t, time.Minute, metrics.Uptime)

	byOp := map[string]OpMetric{}
	for _, op := range metrics.Ops {
		byOp[op.Op] = op
	}
	assert.Equal(t, int64(2), byOp["update_session_state"].Calls)
	assert.Equal(t, int64(1), byOp["terminate_session"].Failures)
}

func TestSweepExpiresSessionsAndEvictsTempState(t *testing.T) {
	t.Parallel()
	settings := testSettings()
	settings.TempTTL = time.Hour
	f := newFixture(t, settings)
	ctx := context.Background()

	short := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}, TTL: time.Minute})
	long := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}, TTL: 48 * time.Hour})
	_, err := f.engine.Execute(ctx, f.caller, UpdateSessionStateCommand{SessionID: long.ID, Key: "scratch", Value: 1, Scope: domain.ScopeTemp})
	require.NoError(t, err)
	f.put(t, long.ID, "keep", 1)

	f.clock.Advance(2 * time.Hour)
	report, err := ExecuteAs[SweepReport](ctx, f.engine, f.caller, SweepCommand{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.ExpiredSessions)
	assert.Equal(t, 1, report.EvictedEntries)

	stored, err := f.sessions.GetByID(ctx, short.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusExpired, stored.Status)

	again, err := f.engine.Sweeper().SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.ExpiredSessions)
	assert.Zero(t, again.EvictedEntries)

	stats, err := ExecuteAs[domain.StateStats](ctx, f.engine, f.caller, GetStateStatsQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestSweeperRunStopsWithContext(t *testing.T) {
	t.Parallel()
	settings := testSettings()
	settings.SweepInterval = time.Millisecond
	f := newFixture(t, settings)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, f.engine.Sweeper().Run(ctx))
}

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/symphainy/trafficcop/internal/adapters/store/storetest"
	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/ports"
)

func TestStateStoreContract(t *testing.T) {
	storetest.RunStateStore(t, func(t *testing.T, clock ports.Clock) ports.StateStore {
		return NewStateStore(clock)
	})
}

func TestStateStoreDoesNotAliasCallerValues(t *testing.T) {
	t.Parallel()

	store := NewStateStore(nil)
	address := domain.StateAddress{Scope: domain.ScopeShared, Dimension: "ops", Key: "plan"}
	value := map[string]any{"title": "draft"}

	_, err := store.Put(context.Background(), ports.PutRequest{Address: address, Value: value})
	require.NoError(t, err)
	value["title"] = "mutated"

	got, err := store.Get(context.Background(), address)
	require.NoError(t, err)
	got.Value.(map[string]any)["title"] = "mutated again"

	again, err := store.Get(context.Background(), address)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "draft"}, again.Value)
}

func TestSessionRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	repo := NewSessionRepository()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	session := domain.Session{
		ID:          "s-1",
		OwnerUserID: "u-1",
		Dimensions:  []domain.DimensionID{"ops"},
		Scope:       domain.ScopeShared,
		Status:      domain.SessionStatusActive,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}

	_, err := repo.GetByID(context.Background(), "s-1")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.NoError(t, repo.Save(context.Background(), session))
	got, err := repo.GetByID(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, session, got)

	listed, err := repo.List(context.Background(), ports.SessionFilter{OwnerUserID: "u-2"})
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestConflictRepositoryListsByStatus(t *testing.T) {
	t.Parallel()

	repo := NewConflictRepository()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(context.Background(), domain.Conflict{ID: "c-1", Key: "status", Status: domain.ConflictPending, CreatedAt: now}))
	require.NoError(t, repo.Save(context.Background(), domain.Conflict{ID: "c-2", Key: "status", Status: domain.ConflictResolved, CreatedAt: now.Add(time.Second)}))

	pending, err := repo.List(context.Background(), domain.ConflictPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.ConflictID("c-1"), pending[0].ID)

	all, err := repo.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrConflictNotFound)
}

func TestRuleRepositoryReplacesSameComparator(t *testing.T) {
	t.Parallel()

	repo := NewRuleRepository()
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, domain.AlertRule{MetricName: "latency_ms", ThresholdValue: 500, Comparator: domain.ComparatorGreaterThan}))
	require.NoError(t, repo.Save(ctx, domain.AlertRule{MetricName: "latency_ms", ThresholdValue: 800, Comparator: domain.ComparatorGreaterThan}))
	require.NoError(t, repo.Save(ctx, domain.AlertRule{MetricName: "latency_ms", ThresholdValue: 1, Comparator: domain.ComparatorLessThan}))

	rules, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, 800.0, rules[0].ThresholdValue)

	require.ErrorIs(t, repo.Save(ctx, domain.AlertRule{MetricName: "x", Comparator: "above"}), domain.ErrThresholdConfig)

	require.NoError(t, repo.Delete(ctx, "latency_ms", domain.ComparatorLessThan))
	rules, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestTelemetryLogFiltersBySession(t *testing.T) {
	t.Parallel()

	log := NewTelemetryLog()
	ctx := context.Background()
	require.NoError(t, log.AppendMetric(ctx, domain.Metric{SessionID: "s-1", Name: "latency_ms", Value: 10}))
	require.NoError(t, log.AppendMetric(ctx, domain.Metric{SessionID: "s-2", Name: "latency_ms", Value: 20}))
	require.NoError(t, log.AppendAlert(ctx, domain.Alert{ID: "a-1", SessionID: "s-2"}))
	require.NoError(t, log.AppendEvent(ctx, domain.OrchestrationEvent{ID: "e-1", SessionID: "s-1"}))

	metrics, err := log.ListMetrics(ctx, ports.MetricFilter{SessionID: "s-1"})
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, 10.0, metrics[0].Value)

	alerts, err := log.ListAlerts(ctx, "s-1")
	require.NoError(t, err)
	assert.Empty(t, alerts)

	alerts, err = log.ListAlerts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, alerts, 1)

	events, err := log.ListEvents(ctx, "s-1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

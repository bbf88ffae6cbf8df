package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/symphainy/trafficcop/internal/adapters/store/memory"
	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/ports"
)

func TestStaleWriteIsRecordedAndOverrideKeepsLatestWriter(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testSettings())
	ctx := context.Background()

	s1 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}})
	s2 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}})

	draft := f.put(t, s1.ID, "doc", "draft")
	require.Equal(t, int64(1), draft.Version)
	t1 := f.clock.Advance(time.Minute)
	review := f.put(t, s2.ID, "doc", "review")
	require.Equal(t, int64(2), review.Version)
	f.clock.Advance(time.Minute)

	_, err := f.engine.Execute(ctx, f.caller, UpdateSessionStateCommand{
		SessionID:       s1.ID,
		Key:             "doc",
		Value:           "final",
		ExpectedVersion: 1,
	})
	require.ErrorIs(t, err, domain.ErrVersionConflict)
	assert.True(t, domain.IsRetryable(err))

	var conflictErr *domain.VersionConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.NotEmpty(t, conflictErr.ConflictID)
	assert.Equal(t, int64(2), conflictErr.Current.Version)
	assert.Equal(t, testStart, conflictErr.Attempted.UpdatedAt)

	pending, err := ExecuteAs[[]domain.Conflict](ctx, f.engine, f.caller, GetStateConflictsQuery{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, conflictErr.ConflictID, pending[0].ID)
	assert.Len(t, pending[0].Competing, 2)

	res, err := ExecuteAs[Resolution](ctx, f.engine, f.caller, ResolveConflictCommand{ConflictID: conflictErr.ConflictID, SessionID: s1.ID})
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Equal(t, "review", res.Entry.Value)
	assert.Equal(t, int64(3), res.Entry.Version)
	assert.Equal(t, t1, res.Entry.UpdatedAt)
	assert.Equal(t, domain.ConflictResolved, res.Conflict.Status)

	stored := f.stored(t, review.Address)
	assert.Equal(t, "review", stored.Value)
	assert.Equal(t, int64(3), stored.Version)

	_, err = f.engine.Execute(ctx, f.caller, ResolveConflictCommand{ConflictID: conflictErr.ConflictID})
	require.ErrorIs(t, err, domain.ErrConflictResolved)

	// The session now holds the resolved version and can write on top of it.
	entry, err := ExecuteAs[domain.StateEntry](ctx, f.engine, f.caller, UpdateSessionStateCommand{
		SessionID:       s1.ID,
		Key:             "doc",
		Value:           "final",
		ExpectedVersion: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), entry.Version)
}

func TestResolveByKeyFindsPendingConflict(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testSettings())
	ctx := context.Background()

	s1 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}})
	s2 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}})
	f.put(t, s1.ID, "doc", "draft")
	f.clock.Advance(time.Minute)
	f.put(t, s2.ID, "doc", "review")

	_, err := f.engine.Execute(ctx, f.caller, ResolveConflictCommand{SessionID: s1.ID, Key: "doc"})
	require.ErrorIs(t, err, domain.ErrConflictNotFound)

	f.clock.Advance(time.Minute)
	_, err = f.engine.Execute(ctx, f.caller, UpdateSessionStateCommand{SessionID: s1.ID, Key: "doc", Value: "late", ExpectedVersion: 1})
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	res, err := ExecuteAs[Resolution](ctx, f.engine, f.caller, ResolveConflictCommand{
		SessionID: s1.ID,
		Key:       "doc",
		Strategy:  domain.StrategyPreserve,
	})
	require.NoError(t, err)
	assert.Equal(t, "review", res.Entry.Value)
	assert.False(t, res.Written)
}

func TestRankOverrideIsDeterministic(t *testing.T) {
	t.Parallel()

	address := domain.StateAddress{Scope: domain.ScopeShared, Dimension: "ops", Key: "k"}
	late := domain.StateEntry{Address: address, Value: "late", Version: 1, UpdatedAt: testStart.Add(time.Second)}
	high := domain.StateEntry{Address: address, Value: "high", Version: 2, Priority: 5, UpdatedAt: testStart}
	ownerA := domain.StateEntry{Address: address, Value: "a", Version: 3, Owner: "s-a", UpdatedAt: testStart}
	ownerB := domain.StateEntry{Address: address, Value: "b", Version: 4, Owner: "s-b", UpdatedAt: testStart}

	want := []any{"late", "high", "a", "b"}
	orders := [][]domain.StateEntry{
		{late, high, ownerA, ownerB},
		{ownerB, ownerA, high, late},
		{high, ownerB, late, ownerA},
	}
	for _, order := range orders {
		ranked := rankOverride(order)
		got := make([]any, 0, len(ranked))
		for _, entry := range ranked {
			got = append(got, entry.Value)
		}
		assert.Equal(t, want, got)
	}
}

func newTestResolver(t *testing.T, states ports.StateStore) (*ConflictResolver, *memory.ConflictRepository, *stepClock) {
	t.Helper()
	clock := newStepClock()
	conflicts := memory.NewConflictRepository()
	resolver := NewConflictResolver(states, conflicts, RetryPolicy{MaxAttempts: 5, InitialInterval: time.Millisecond}, clock, WithIDGenerator(sequentialIDs("c")))
	return resolver, conflicts, clock
}

func mustPut(t *testing.T, states ports.StateStore, address domain.StateAddress, value any, updatedAt time.Time) domain.StateEntry {
	t.Helper()
	entry, err := states.Put(context.Background(), ports.PutRequest{Address: address, Value: value, UpdatedAt: updatedAt})
	require.NoError(t, err)
	return entry
}

func TestPreserveKeepsOldestAndIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	states := memory.NewStateStore(newStepClock())
	resolver, _, _ := newTestResolver(t, states)

	a := domain.StateAddress{Scope: domain.ScopeShared, Dimension: "ops", Key: "k"}
	b := domain.StateAddress{Scope: domain.ScopeShared, Dimension: "content", Key: "k"}
	mustPut(t, states, a, "first", testStart)
	mustPut(t, states, a, "second", testStart.Add(time.Minute))
	mustPut(t, states, b, "older", testStart)

	res, err := resolver.Resolve(ctx, ResolveRequest{Addresses: []domain.StateAddress{a, b}, Strategy: domain.StrategyPreserve})
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Equal(t, "older", res.Entry.Value)
	for _, entry := range res.Entries {
		assert.Equal(t, int64(3), entry.Version)
		assert.Equal(t, "older", entry.Value)
	}

	again, err := resolver.Resolve(ctx, ResolveRequest{Addresses: []domain.StateAddress{a, b}, Strategy: domain.StrategyPreserve})
	require.NoError(t, err)
	assert.False(t, again.Written)
	assert.Equal(t, domain.ConflictResolved, again.Conflict.Status)

	for _, address := range []domain.StateAddress{a, b} {
		entry, err := states.Get(ctx, address)
		require.NoError(t, err)
		assert.Equal(t, int64(3), entry.Version)
	}
}

func TestConflictStrategyLeavesStateUntouched(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	states := memory.NewStateStore(newStepClock())
	resolver, conflicts, _ := newTestResolver(t, states)

	a := domain.StateAddress{Scope: domain.ScopeShared, Dimension: "ops", Key: "k"}
	b := domain.StateAddress{Scope: domain.ScopeShared, Dimension: "content", Key: "k"}
	mustPut(t, states, a, "x", testStart)
	mustPut(t, states, b, "y", testStart)

	res, err := resolver.Resolve(ctx, ResolveRequest{Addresses: []domain.StateAddress{a, b}, Strategy: domain.StrategyConflict})
	require.NoError(t, err)
	assert.False(t, res.Written)
	assert.Equal(t, domain.ConflictPending, res.Conflict.Status)
	assert.Len(t, res.Conflict.Competing, 2)

	stored, err := conflicts.List(ctx, domain.ConflictPending)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, res.Conflict.ID, stored[0].ID)

	entry, err := states.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "x", entry.Value)
	assert.Equal(t, int64(1), entry.Version)

	// A pending conflict can later be settled by id.
	settled, err := resolver.Resolve(ctx, ResolveRequest{ConflictID: res.Conflict.ID, Strategy: domain.StrategyOverride})
	require.NoError(t, err)
	assert.True(t, settled.Written)
	assert.Len(t, settled.Entries, 2)
}

func TestMergeCombinesStructuredValues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	states := memory.NewStateStore(newStepClock())
	resolver, _, _ := newTestResolver(t, states)

	a := domain.StateAddress{Scope: domain.ScopeShared, Dimension: "ops", Key: "profile"}
	b := domain.StateAddress{Scope: domain.ScopeShared, Dimension: "content", Key: "profile"}
	mustPut(t, states, a, map[string]any{
		"name":   "old",
		"a":      1,
		"nested": map[string]any{"x": 1},
	}, testStart)
	mustPut(t, states, b, map[string]any{
		"name":   "new",
		"b":      2,
		"nested": map[string]any{"y": 2},
	}, testStart.Add(time.Minute))

	res, err := resolver.Resolve(ctx, ResolveRequest{Addresses: []domain.StateAddress{a, b}, Strategy: domain.StrategyMerge})
	require.NoError(t, err)

	want := map[string]any{
		"name":   "new",
		"a":      1,
		"b":      2,
		"nested": map[string]any{"x": 1, "y": 2},
	}
	assert.Equal(t, want, res.Entry.Value)
	for _, address := range []domain.StateAddress{a, b} {
		entry, err := states.Get(ctx, address)
		require.NoError(t, err)
		assert.Equal(t, want, entry.Value)
		assert.Equal(t, int64(2), entry.Version)
	}
}

func TestMergeRejectsScalarValues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	states := memory.NewStateStore(newStepClock())
	resolver, conflicts, _ := newTestResolver(t, states)

	a := domain.StateAddress{Scope: domain.ScopeShared, Dimension: "ops", Key: "title"}
	b := domain.StateAddress{Scope: domain.ScopeShared, Dimension: "content", Key: "title"}
	mustPut(t, states, a, "plain text", testStart)
	mustPut(t, states, b, map[string]any{"text": "structured"}, testStart)

	_, err := resolver.Resolve(ctx, ResolveRequest{Addresses: []domain.StateAddress{a, b}, Strategy: domain.StrategyMerge})
	require.ErrorIs(t, err, domain.ErrUnmergeableType)

	var unmergeable *domain.UnmergeableError
	require.ErrorAs(t, err, &unmergeable)
	assert.Equal(t, []string{"string"}, unmergeable.Types)
	require.NotEmpty(t, unmergeable.ConflictID)

	conflict, err := conflicts.GetByID(ctx, unmergeable.ConflictID)
	require.NoError(t, err)
	assert.True(t, conflict.Pending())
	assert.NotEmpty(t, conflict.Reason)

	entry, err := states.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "plain text", entry.Value)
}

func TestResolveRejectsUnknownStrategy(t *testing.T) {
	t.Parallel()
	resolver, _, _ := newTestResolver(t, memory.NewStateStore(nil))

	_, err := resolver.Resolve(context.Background(), ResolveRequest{
		Addresses: []domain.StateAddress{{Scope: domain.ScopeShared, Dimension: "ops", Key: "k"}},
		Strategy:  "coinflip",
	})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

// racingStore lets another writer in right before the first compare-and-swap.
type racingStore struct {
	*memory.StateStore
	once sync.Once
	race func()
}

func (s *racingStore) Put(ctx context.Context, req ports.PutRequest) (domain.StateEntry, error) {
	if req.ExpectedVersion != 0 {
		s.once.Do(s.race)
	}
	return s.StateStore.Put(ctx, req)
}

func TestWriteBackRetriesWithConcurrentWriterIncluded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	address := domain.StateAddress{Scope: domain.ScopeShared, Dimension: "ops", Key: "doc"}
	states := &racingStore{StateStore: memory.NewStateStore(newStepClock())}
	states.race = func() {
		_, err := states.StateStore.Put(ctx, ports.PutRequest{Address: address, Value: "intruder", UpdatedAt: testStart.Add(time.Hour)})
		require.NoError(t, err)
	}
	resolver, _, _ := newTestResolver(t, states)

	mustPut(t, states.StateStore, address, "base", testStart)
	attempt := domain.StateEntry{Address: address, Value: "mine", UpdatedAt: testStart.Add(time.Minute)}

	res, err := resolver.Resolve(ctx, ResolveRequest{
		Addresses: []domain.StateAddress{address},
		Competing: []domain.StateEntry{attempt},
		Strategy:  domain.StrategyOverride,
	})
	require.NoError(t, err)
	assert.Equal(t, "intruder", res.Entry.Value)
	assert.Equal(t, int64(3), res.Entry.Version)

	stored, err := states.Get(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, "intruder", stored.Value)
	assert.Equal(t, int64(3), stored.Version)
}

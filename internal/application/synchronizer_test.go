package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/symphainy/trafficcop/internal/domain"
)

func TestBidirectionalSyncConvergesLocalState(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testSettings())
	ctx := context.Background()

	s1 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}, Scope: domain.ScopeLocal})
	s2 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}, Scope: domain.ScopeLocal})
	f.put(t, s1.ID, "note", "mine")
	f.clock.Advance(time.Minute)
	f.put(t, s2.ID, "note", "theirs")

	res, err := ExecuteAs[SyncResult](ctx, f.engine, f.caller, SynchronizeStatesCommand{
		SourceSessionID:  s1.ID,
		TargetSessionIDs: []domain.SessionID{s2.ID},
		Keys:             []string{"note"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SyncBidirectional, res.Strategy)
	require.Len(t, res.Keys, 1)
	assert.Equal(t, OutcomeResolved, res.Keys[0].Outcome)
	assert.Equal(t, "theirs", res.Keys[0].Value)
	assert.Equal(t, int64(2), res.Keys[0].Version)
	assert.True(t, res.Converged())

	for _, id := range []domain.SessionID{s1.ID, s2.ID} {
		entries, err := ExecuteAs[[]domain.StateEntry](ctx, f.engine, f.caller, GetSessionStateQuery{SessionID: id, Key: "note"})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "theirs", entries[0].Value)
		assert.Equal(t, int64(2), entries[0].Version)
	}

	again, err := ExecuteAs[SyncResult](ctx, f.engine, f.caller, SynchronizeStatesCommand{
		SourceSessionID:  s2.ID,
		TargetSessionIDs: []domain.SessionID{s1.ID},
		Keys:             []string{"note"},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, again.Keys[0].Outcome)
	assert.Equal(t, int64(2), again.Keys[0].Version)
}

func TestBidirectionalSyncOverDeletedKeyEndsOnOneVersion(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testSettings())
	ctx := context.Background()

	s1 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}, Scope: domain.ScopeLocal})
	s2 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}, Scope: domain.ScopeLocal})
	for _, value := range []string{"a", "b", "c"} {
		f.put(t, s2.ID, "status", value)
	}
	_, err := f.engine.Execute(ctx, f.caller, DeleteStateCommand{SessionID: s2.ID, Key: "status"})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	f.put(t, s1.ID, "status", "draft")

	res, err := ExecuteAs[SyncResult](ctx, f.engine, f.caller, SynchronizeStatesCommand{
		SourceSessionID:  s1.ID,
		TargetSessionIDs: []domain.SessionID{s2.ID},
		Keys:             []string{"status"},
	})
	require.NoError(t, err)
	require.Len(t, res.Keys, 1)
	assert.Equal(t, OutcomeResolved, res.Keys[0].Outcome)
	assert.True(t, res.Converged())
	assert.Equal(t, int64(4), res.Keys[0].Version)

	for _, id := range []domain.SessionID{s1.ID, s2.ID} {
		entries, err := ExecuteAs[[]domain.StateEntry](ctx, f.engine, f.caller, GetSessionStateQuery{SessionID: id, Key: "status"})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "draft", entries[0].Value)
		assert.Equal(t, int64(4), entries[0].Version, "session %s", id)
	}
}

func TestPushCopiesToAbsentTarget(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testSettings())
	ctx := context.Background()

	s1 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}})
	s2 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"content"}})
	source := f.put(t, s1.ID, "plan", map[string]any{"step": 1})

	res, err := ExecuteAs[SyncResult](ctx, f.engine, f.caller, SynchronizeStatesCommand{
		SourceSessionID:  s1.ID,
		TargetSessionIDs: []domain.SessionID{s2.ID},
		Keys:             []string{"plan", "missing"},
		Strategy:         domain.SyncPush,
	})
	require.NoError(t, err)
	require.Len(t, res.Keys, 2)
	assert.Equal(t, OutcomePropagated, res.Keys[0].Outcome)
	assert.Equal(t, OutcomeMissing, res.Keys[1].Outcome)
	assert.False(t, res.Converged())

	copied := f.stored(t, domain.StateAddress{Scope: domain.ScopeShared, Dimension: "content", Key: "plan"})
	assert.Equal(t, source.Value, copied.Value)
	assert.Equal(t, source.UpdatedAt, copied.UpdatedAt)
	assert.GreaterOrEqual(t, copied.Version, source.Version)
}

func TestPushOverridesDifferingTarget(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testSettings())
	ctx := context.Background()

	s1 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}})
	s2 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"content"}})
	s3 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"insights"}})
	f.put(t, s2.ID, "plan", "stale")
	f.put(t, s3.ID, "plan", "fresh")
	f.clock.Advance(time.Minute)
	f.put(t, s1.ID, "plan", "fresh")

	res, err := ExecuteAs[SyncResult](ctx, f.engine, f.caller, SynchronizeStatesCommand{
		SourceSessionID:  s1.ID,
		TargetSessionIDs: []domain.SessionID{s2.ID, s3.ID},
		Keys:             []string{"plan"},
		Strategy:         domain.SyncPush,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeResolved, res.Keys[0].Outcome)
	assert.Len(t, res.Keys[0].Entries, 2)

	assert.Equal(t, "fresh", f.stored(t, domain.StateAddress{Scope: domain.ScopeShared, Dimension: "content", Key: "plan"}).Value)
	assert.Equal(t, "fresh", f.stored(t, domain.StateAddress{Scope: domain.ScopeShared, Dimension: "insights", Key: "plan"}).Value)
}

func TestPullReplacesSourceValue(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testSettings())
	ctx := context.Background()

	s1 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}})
	s2 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"content"}})
	f.clock.Advance(time.Minute)
	f.put(t, s1.ID, "status", "newer local")
	f.put(t, s2.ID, "status", "remote")
	f.put(t, s2.ID, "status", "remote")

	res, err := ExecuteAs[SyncResult](ctx, f.engine, f.caller, SynchronizeStatesCommand{
		SourceSessionID:  s1.ID,
		TargetSessionIDs: []domain.SessionID{s2.ID},
		Keys:             []string{"status"},
		Strategy:         domain.SyncPull,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomePropagated, res.Keys[0].Outcome)
	assert.Equal(t, "remote", res.Keys[0].Value)
	assert.Equal(t, int64(2), res.Keys[0].Version)

	stored := f.stored(t, domain.StateAddress{Scope: domain.ScopeShared, Dimension: "ops", Key: "status"})
	assert.Equal(t, "remote", stored.Value)
	assert.Equal(t, int64(2), stored.Version)
}

func TestSyncWithConflictStrategyLeavesPendingConflict(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testSettings())
	ctx := context.Background()

	s1 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}})
	s2 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"content"}})
	f.put(t, s1.ID, "title", "left")
	f.put(t, s2.ID, "title", "right")

	res, err := ExecuteAs[SyncResult](ctx, f.engine, f.caller, SynchronizeStatesCommand{
		SourceSessionID:  s1.ID,
		TargetSessionIDs: []domain.SessionID{s2.ID},
		Keys:             []string{"title"},
		ConflictStrategy: domain.StrategyConflict,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, res.Keys[0].Outcome)
	assert.NotEmpty(t, res.Keys[0].ConflictID)
	assert.False(t, res.Converged())

	assert.Equal(t, "left", f.stored(t, domain.StateAddress{Scope: domain.ScopeShared, Dimension: "ops", Key: "title"}).Value)
	assert.Equal(t, "right", f.stored(t, domain.StateAddress{Scope: domain.ScopeShared, Dimension: "content", Key: "title"}).Value)

	conflicts, err := ExecuteAs[[]domain.Conflict](ctx, f.engine, f.caller, GetStateConflictsQuery{})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, res.Keys[0].ConflictID, conflicts[0].ID)
}

func TestSyncRejectsPausedParticipant(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testSettings())
	ctx := context.Background()

	s1 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}})
	s2 := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"content"}})
	_, err := f.engine.Execute(ctx, f.caller, TransitionSessionCommand{SessionID: s2.ID, To: domain.SessionStatusPaused})
	require.NoError(t, err)

	_, err = f.engine.Execute(ctx, f.caller, SynchronizeStatesCommand{
		SourceSessionID:  s1.ID,
		TargetSessionIDs: []domain.SessionID{s2.ID},
		Keys:             []string{"k"},
	})
	require.ErrorIs(t, err, domain.ErrSessionPaused)

	_, err = f.engine.Execute(ctx, f.caller, SynchronizeStatesCommand{SourceSessionID: s1.ID, Keys: []string{"k"}})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestShareWritesEveryNamedDimension(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testSettings())
	ctx := context.Background()
	owner := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}})

	res, err := ExecuteAs[ShareResult](ctx, f.engine, f.caller, ShareStateCommand{
		SessionID:  owner.ID,
		Key:        "banner",
		Value:      "maintenance at noon",
		Dimensions: []domain.DimensionID{"ops", "content"},
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	for _, entry := range res.Entries {
		assert.Equal(t, domain.ScopeShared, entry.Address.Scope)
		assert.Equal(t, owner.ID, entry.Owner)
	}

	_, err = f.engine.Execute(ctx, f.caller, ShareStateCommand{SessionID: owner.ID, Key: "banner", Value: 1, Dimensions: []domain.DimensionID{"billing"}})
	require.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = f.engine.Execute(ctx, f.caller, ShareStateCommand{SessionID: owner.ID, Key: "banner", Value: 1, Scope: domain.ScopeLocal})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestShareWithSessionsIsVisibleToThem(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testSettings())
	ctx := context.Background()
	owner := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}})
	peer := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"content"}})

	_, err := f.engine.Execute(ctx, f.caller, ShareStateCommand{
		SessionID: owner.ID,
		Key:       "handoff",
		Value:     "ready",
		Sessions:  []domain.SessionID{peer.ID},
	})
	require.NoError(t, err)

	entries, err := ExecuteAs[[]domain.StateEntry](ctx, f.engine, f.caller, GetSessionStateQuery{SessionID: peer.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ready", entries[0].Value)
	assert.Equal(t, domain.DimensionID("content"), entries[0].Address.Dimension)
}

func TestSharedStatesExcludeLocalEntries(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testSettings())
	ctx := context.Background()

	private := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}, Scope: domain.ScopeLocal})
	public := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{"ops"}})
	f.put(t, private.ID, "secret", 1)
	f.put(t, public.ID, "notice", 2)

	entries, err := ExecuteAs[[]domain.StateEntry](ctx, f.engine, f.caller, GetSharedStatesQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "notice", entries[0].Address.Key)

	_, err = f.engine.Execute(ctx, f.caller, GetSharedStatesQuery{Scope: domain.ScopeLocal})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestConcurrentSyncsConverge(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testSettings())
	ctx := context.Background()

	dims := []domain.DimensionID{"ops", "content", "insights"}
	sessions := make([]domain.Session, 0, len(dims))
	for i, dim := range dims {
		session := f.session(t, CreateSessionCommand{Dimensions: []domain.DimensionID{dim}})
		f.put(t, session.ID, "doc", fmt.Sprintf("draft-%d", i))
		f.clock.Advance(time.Second)
		sessions = append(sessions, session)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for i := range 6 {
		source := sessions[i%len(sessions)]
		var targets []domain.SessionID
		for _, s := range sessions {
			if s.ID != source.ID {
				targets = append(targets, s.ID)
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ExecuteAs[SyncResult](ctx, f.engine, f.caller, SynchronizeStatesCommand{
				SourceSessionID:  source.ID,
				TargetSessionIDs: targets,
				Keys:             []string{"doc"},
			})
			if err == nil && !res.Converged() {
				err = fmt.Errorf("sync from %s did not converge: %+v", source.ID, res.Keys)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var first domain.StateEntry
	for i, dim := range dims {
		entry := f.stored(t, domain.StateAddress{Scope: domain.ScopeShared, Dimension: dim, Key: "doc"})
		if i == 0 {
			first = entry
			continue
		}
		assert.Equal(t, first.Value, entry.Value)
		assert.Equal(t, first.Version, entry.Version)
	}
	assert.Equal(t, "draft-2", first.Value)
}

// Package storetest holds behavior tests shared by every ports.StateStore implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/ports"
)

// Factory opens an empty store that reads time from clock.
type Factory func(t *testing.T, clock ports.Clock) ports.StateStore

// Clock is a settable clock safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	base   = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	status = domain.StateAddress{Scope: domain.ScopeShared, Dimension: "ops", Key: "status"}
)

func RunStateStore(t *testing.T, open Factory) {
	t.Run("put assigns increasing versions", func(t *testing.T) {
		t.Parallel()
		testVersionsIncrease(t, open)
	})
	t.Run("compare and swap rejects stale versions", func(t *testing.T) {
		t.Parallel()
		testCompareAndSwap(t, open)
	})
	t.Run("version absent guards creation", func(t *testing.T) {
		t.Parallel()
		testVersionAbsent(t, open)
	})
	t.Run("delete keeps the version sequence", func(t *testing.T) {
		t.Parallel()
		testDeleteKeepsSequence(t, open)
	})
	t.Run("min version raises the stored version", func(t *testing.T) {
		t.Parallel()
		testMinVersion(t, open)
	})
	t.Run("list filters and orders entries", func(t *testing.T) {
		t.Parallel()
		testList(t, open)
	})
	t.Run("evict temp removes only stale temp entries", func(t *testing.T) {
		t.Parallel()
		testEvictTemp(t, open)
	})
	t.Run("concurrent writers to one key are serialized", func(t *testing.T) {
		t.Parallel()
		testConcurrentWriters(t, open)
	})
	t.Run("structured values round trip", func(t *testing.T) {
		t.Parallel()
		testStructuredValues(t, open)
	})
	t.Run("stats counts live entries", func(t *testing.T) {
		t.Parallel()
		testStats(t, open)
	})
	t.Run("write times keep sub-millisecond order", func(t *testing.T) {
		t.Parallel()
		testWriteTimePrecision(t, open)
	})
}

func testVersionsIncrease(t *testing.T, open Factory) {
	clock := NewClock(base)
	store := open(t, clock)
	ctx := context.Background()

	var last int64
	for i, value := range []string{"draft", "review", "approved"} {
		clock.Advance(time.Second)
		entry, err := store.Put(ctx, ports.PutRequest{Address: status, Value: value, Owner: "s-1", Priority: i})
		require.NoError(t, err)
		assert.Greater(t, entry.Version, last)
		assert.Equal(t, clock.Now(), entry.UpdatedAt)
		last = entry.Version
	}

	got, err := store.Get(ctx, status)
	require.NoError(t, err)
	assert.Equal(t, "approved", got.Value)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, 2, got.Priority)
	assert.Equal(t, domain.SessionID("s-1"), got.Owner)
}

func testCompareAndSwap(t *testing.T, open Factory) {
	clock := NewClock(base)
	store := open(t, clock)
	ctx := context.Background()

	_, err := store.Put(ctx, ports.PutRequest{Address: status, Value: "draft", Owner: "s-1"})
	require.NoError(t, err)
	_, err = store.Put(ctx, ports.PutRequest{Address: status, Value: "review", Owner: "s-2"})
	require.NoError(t, err)

	_, err = store.Put(ctx, ports.PutRequest{Address: status, Value: "final", Owner: "s-1", ExpectedVersion: 1})
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	var conflict *domain.VersionConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, int64(1), conflict.Expected)
	assert.Equal(t, int64(2), conflict.Current.Version)
	assert.Equal(t, "review", conflict.Current.Value)
	assert.Equal(t, "final", conflict.Attempted.Value)
	assert.False(t, conflict.Attempted.Accepted())

	got, err := store.Get(ctx, status)
	require.NoError(t, err)
	assert.Equal(t, "review", got.Value)

	updated, err := store.Put(ctx, ports.PutRequest{Address: status, Value: "final", Owner: "s-1", ExpectedVersion: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated.Version)
}

func testVersionAbsent(t *testing.T, open Factory) {
	store := open(t, NewClock(base))
	ctx := context.Background()

	_, err := store.Put(ctx, ports.PutRequest{Address: status, Value: "draft", ExpectedVersion: domain.VersionAbsent})
	require.NoError(t, err)

	_, err = store.Put(ctx, ports.PutRequest{Address: status, Value: "again", ExpectedVersion: domain.VersionAbsent})
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	_, err = store.Put(ctx, ports.PutRequest{Address: status, Value: "x", ExpectedVersion: -7})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func testDeleteKeepsSequence(t *testing.T, open Factory) {
	store := open(t, NewClock(base))
	ctx := context.Background()

	for _, value := range []string{"a", "b"} {
		_, err := store.Put(ctx, ports.PutRequest{Address: status, Value: value})
		require.NoError(t, err)
	}

	require.NoError(t, store.Delete(ctx, status))
	require.NoError(t, store.Delete(ctx, status))

	_, err := store.Get(ctx, status)
	require.ErrorIs(t, err, domain.ErrStateNotFound)

	entry, err := store.Put(ctx, ports.PutRequest{Address: status, Value: "c", ExpectedVersion: domain.VersionAbsent})
	require.NoError(t, err)
	assert.Equal(t, int64(3), entry.Version)
}

func testMinVersion(t *testing.T, open Factory) {
	store := open(t, NewClock(base))
	ctx := context.Background()

	entry, err := store.Put(ctx, ports.PutRequest{Address: status, Value: "a", MinVersion: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(7), entry.Version)

	entry, err = store.Put(ctx, ports.PutRequest{Address: status, Value: "b", MinVersion: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(8), entry.Version)
}

func testList(t *testing.T, open Factory) {
	store := open(t, NewClock(base))
	ctx := context.Background()

	addresses := []domain.StateAddress{
		{Scope: domain.ScopeShared, Dimension: "ops", Key: "b"},
		{Scope: domain.ScopeGlobal, Dimension: "ops", Key: "a"},
		{Scope: domain.ScopeShared, Dimension: "content", Key: "a"},
		{Scope: domain.ScopeShared, Dimension: "ops", Key: "a"},
	}
	for i, address := range addresses {
		_, err := store.Put(ctx, ports.PutRequest{Address: address, Value: fmt.Sprintf("v%d", i), Owner: domain.SessionID(fmt.Sprintf("s-%d", i%2))})
		require.NoError(t, err)
	}
	require.NoError(t, store.Delete(ctx, addresses[1]))

	all, err := store.List(ctx, ports.StateFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, addresses[2], all[0].Address)
	assert.Equal(t, addresses[3], all[1].Address)
	assert.Equal(t, addresses[0], all[2].Address)

	ops, err := store.List(ctx, ports.StateFilter{Scope: domain.ScopeShared, Dimension: "ops"})
	require.NoError(t, err)
	require.Len(t, ops, 2)

	owned, err := store.List(ctx, ports.StateFilter{Owner: "s-0"})
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, addresses[2], owned[0].Address)
	assert.Equal(t, addresses[0], owned[1].Address)

	byKey, err := store.List(ctx, ports.StateFilter{Key: "a"})
	require.NoError(t, err)
	assert.Len(t, byKey, 2)
}

func testEvictTemp(t *testing.T, open Factory) {
	clock := NewClock(base)
	store := open(t, clock)
	ctx := context.Background()

	stale := domain.StateAddress{Scope: domain.ScopeTemp, Dimension: "ops", Key: "scratch"}
	fresh := domain.StateAddress{Scope: domain.ScopeTemp, Dimension: "ops", Key: "recent"}
	durable := domain.StateAddress{Scope: domain.ScopeShared, Dimension: "ops", Key: "scratch"}

	_, err := store.Put(ctx, ports.PutRequest{Address: stale, Value: "old"})
	require.NoError(t, err)
	_, err = store.Put(ctx, ports.PutRequest{Address: durable, Value: "old"})
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	_, err = store.Put(ctx, ports.PutRequest{Address: fresh, Value: "new"})
	require.NoError(t, err)

	evicted, err := store.EvictTemp(ctx, clock.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)

	_, err = store.Get(ctx, stale)
	require.ErrorIs(t, err, domain.ErrStateNotFound)
	_, err = store.Get(ctx, fresh)
	require.NoError(t, err)
	_, err = store.Get(ctx, durable)
	require.NoError(t, err)
}

func testConcurrentWriters(t *testing.T, open Factory) {
	store := open(t, NewClock(base))
	ctx := context.Background()

	const writers = 16
	versions := make(chan int64, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, err := store.Put(ctx, ports.PutRequest{Address: status, Value: fmt.Sprintf("w%d", i)})
			if assert.NoError(t, err) {
				versions <- entry.Version
			}
		}(i)
	}
	wg.Wait()
	close(versions)

	seen := map[int64]bool{}
	for v := range versions {
		assert.False(t, seen[v], "version %d assigned twice", v)
		seen[v] = true
	}
	assert.Len(t, seen, writers)

	got, err := store.Get(ctx, status)
	require.NoError(t, err)
	assert.Equal(t, int64(writers), got.Version)
}

func testStructuredValues(t *testing.T, open Factory) {
	store := open(t, NewClock(base))
	ctx := context.Background()

	value := map[string]any{"title": "Q3 plan", "owner": map[string]any{"team": "ops"}}
	metadata := map[string]any{"source": "pillar"}
	updatedAt := base.Add(-time.Minute)

	_, err := store.Put(ctx, ports.PutRequest{Address: status, Value: value, Metadata: metadata, UpdatedAt: updatedAt})
	require.NoError(t, err)

	got, err := store.Get(ctx, status)
	require.NoError(t, err)
	assert.Equal(t, value, got.Value)
	assert.Equal(t, metadata, got.Metadata)
	assert.Equal(t, updatedAt, got.UpdatedAt)
}

func testStats(t *testing.T, open Factory) {
	clock := NewClock(base)
	store := open(t, clock)
	ctx := context.Background()

	_, err := store.Put(ctx, ports.PutRequest{Address: status, Value: "a"})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = store.Put(ctx, ports.PutRequest{Address: domain.StateAddress{Scope: domain.ScopeTemp, Dimension: "content", Key: "x"}, Value: "b"})
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByScope[domain.ScopeTemp])
	assert.Equal(t, 1, stats.ByDimension["ops"])
	assert.Equal(t, base, stats.OldestWrite)
	assert.Equal(t, base.Add(time.Minute), stats.NewestWrite)
}

func testWriteTimePrecision(t *testing.T, open Factory) {
	clock := NewClock(base.Add(250 * time.Microsecond))
	store := open(t, clock)
	ctx := context.Background()
	first := domain.StateAddress{Scope: domain.ScopeShared, Dimension: "ops", Key: "first"}

	early, err := store.Put(ctx, ports.PutRequest{Address: first, Value: "draft", Owner: "s-1"})
	require.NoError(t, err)
	clock.Advance(500 * time.Microsecond)
	late, err := store.Put(ctx, ports.PutRequest{Address: status, Value: "review", Owner: "s-2"})
	require.NoError(t, err)

	storedEarly, err := store.Get(ctx, first)
	require.NoError(t, err)
	storedLate, err := store.Get(ctx, status)
	require.NoError(t, err)

	assert.True(t, storedEarly.UpdatedAt.Equal(early.UpdatedAt), "stored %s, returned %s", storedEarly.UpdatedAt, early.UpdatedAt)
	assert.True(t, storedLate.UpdatedAt.Equal(late.UpdatedAt), "stored %s, returned %s", storedLate.UpdatedAt, late.UpdatedAt)
	assert.True(t, storedLate.UpdatedAt.After(storedEarly.UpdatedAt))
}

// Package memory holds in-process implementations of every storage port. Values
// are deep-copied on the way in and out so callers never alias stored data.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/platform/keylock"
	"github.com/symphainy/trafficcop/internal/ports"
)

type stateRecord struct {
	entry   domain.StateEntry
	deleted bool
}

type StateStore struct {
	clock ports.Clock
	locks *keylock.Locker

	mu      sync.RWMutex
	records map[domain.StateAddress]stateRecord
}

var _ ports.StateStore = (*StateStore)(nil)

func NewStateStore(clock ports.Clock) *StateStore {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &StateStore{
		clock:   clock,
		locks:   keylock.New(keylock.DefaultShards),
		records: map[domain.StateAddress]stateRecord{},
	}
}

func (s *StateStore) Put(ctx context.Context, req ports.PutRequest) (domain.StateEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.StateEntry{}, err
	}
	if err := req.Address.Validate(); err != nil {
		return domain.StateEntry{}, err
	}

	unlock := s.locks.Lock(req.Address.String())
	defer unlock()

	rec, ok := s.load(req.Address)
	live := ok && !rec.deleted
	now := s.clock.Now()
	if err := req.Check(rec.entry, live, now); err != nil {
		return domain.StateEntry{}, err
	}

	entry := req.Entry(req.NextVersion(rec.entry.Version), now)
	entry = cloneEntry(entry)

	s.mu.Lock()
	s.records[req.Address] = stateRecord{entry: entry}
	s.mu.Unlock()

	return cloneEntry(entry), nil
}

func (s *StateStore) Get(ctx context.Context, address domain.StateAddress) (domain.StateEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.StateEntry{}, err
	}

	rec, ok := s.load(address)
	if !ok || rec.deleted {
		return domain.StateEntry{}, domain.ErrStateNotFound
	}
	return cloneEntry(rec.entry), nil
}

func (s *StateStore) List(ctx context.Context, filter ports.StateFilter) ([]domain.StateEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	entries := make([]domain.StateEntry, 0, len(s.records))
	for _, rec := range s.records {
		if rec.deleted || !filter.Matches(rec.entry) {
			continue
		}
		entries = append(entries, cloneEntry(rec.entry))
	}
	s.mu.RUnlock()

	sortEntries(entries)
	return entries, nil
}

// Delete keeps a tombstone with the last version so a later put continues the
// version sequence.
func (s *StateStore) Delete(ctx context.Context, address domain.StateAddress) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.locks.Lock(address.String())
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[address]
	if !ok || rec.deleted {
		return nil
	}
	s.records[address] = stateRecord{
		entry:   domain.StateEntry{Address: address, Version: rec.entry.Version, UpdatedAt: s.clock.Now()},
		deleted: true,
	}
	return nil
}

func (s *StateStore) EvictTemp(ctx context.Context, updatedBefore time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	candidates, err := s.List(ctx, ports.StateFilter{Scope: domain.ScopeTemp})
	if err != nil {
		return 0, err
	}

	evicted := 0
	for _, candidate := range candidates {
		if !candidate.UpdatedAt.Before(updatedBefore) {
			continue
		}
		if s.evictIfStale(candidate.Address, updatedBefore) {
			evicted++
		}
	}
	return evicted, nil
}

func (s *StateStore) Stats(ctx context.Context) (domain.StateStats, error) {
	entries, err := s.List(ctx, ports.StateFilter{})
	if err != nil {
		return domain.StateStats{}, err
	}
	return buildStats(entries), nil
}

func (s *StateStore) evictIfStale(address domain.StateAddress, updatedBefore time.Time) bool {
	unlock := s.locks.Lock(address.String())
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[address]
	if !ok || rec.deleted || !rec.entry.UpdatedAt.Before(updatedBefore) {
		return false
	}
	s.records[address] = stateRecord{
		entry:   domain.StateEntry{Address: address, Version: rec.entry.Version, UpdatedAt: s.clock.Now()},
		deleted: true,
	}
	return true
}

func (s *StateStore) load(address domain.StateAddress) (stateRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[address]
	return rec, ok
}

func sortEntries(entries []domain.StateEntry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Address, entries[j].Address
		if a.Scope != b.Scope {
			return a.Scope < b.Scope
		}
		if a.Dimension != b.Dimension {
			return a.Dimension < b.Dimension
		}
		return a.Key < b.Key
	})
}

func buildStats(entries []domain.StateEntry) domain.StateStats {
	stats := domain.StateStats{
		Total:       len(entries),
		ByScope:     map[domain.Scope]int{},
		ByDimension: map[domain.DimensionID]int{},
	}
	for _, entry := range entries {
		stats.ByScope[entry.Address.Scope]++
		stats.ByDimension[entry.Address.Dimension]++
		if stats.OldestWrite.IsZero() || entry.UpdatedAt.Before(stats.OldestWrite) {
			stats.OldestWrite = entry.UpdatedAt
		}
		if entry.UpdatedAt.After(stats.NewestWrite) {
			stats.NewestWrite = entry.UpdatedAt
		}
	}
	return stats
}

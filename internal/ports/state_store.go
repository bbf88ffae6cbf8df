package ports

import (
	"context"
	"fmt"
	"time"

	"github.com/symphainy/trafficcop/internal/domain"
)

// PutRequest describes one write. ExpectedVersion 0 writes unconditionally,
// domain.VersionAbsent requires that no live entry exists, and any positive value
// must equal the stored version. The stored version becomes max(current+1, MinVersion).
type PutRequest struct {
	Address         domain.StateAddress
	Value           any
	Priority        int
	Owner           domain.SessionID
	Metadata        map[string]any
	ExpectedVersion int64
	MinVersion      int64
	UpdatedAt       time.Time
}

type StateFilter struct {
	Scope     domain.Scope
	Dimension domain.DimensionID
	Key       string
	Owner     domain.SessionID
}

func (f StateFilter) Matches(entry domain.StateEntry) bool {
	if f.Scope != "" && entry.Address.Scope != f.Scope {
		return false
	}
	if f.Dimension != "" && entry.Address.Dimension != f.Dimension {
		return false
	}
	if f.Key != "" && entry.Address.Key != f.Key {
		return false
	}
	if f.Owner != "" && entry.Owner != f.Owner {
		return false
	}
	return true
}

// StateStore is the only owner of state entries. Writes to one address are
// serialized; writes to distinct addresses may proceed concurrently.
type StateStore interface {
	Put(ctx context.Context, req PutRequest) (domain.StateEntry, error)
	Get(ctx context.Context, address domain.StateAddress) (domain.StateEntry, error)
	List(ctx context.Context, filter StateFilter) ([]domain.StateEntry, error)
	Delete(ctx context.Context, address domain.StateAddress) error
	EvictTemp(ctx context.Context, updatedBefore time.Time) (int, error)
	Stats(ctx context.Context) (domain.StateStats, error)
}

// Check validates the request's expected version against what is stored.
// live is false when the address has never been written or was deleted.
func (r PutRequest) Check(current domain.StateEntry, live bool, now time.Time) error {
	switch {
	case r.ExpectedVersion == 0:
		return nil
	case r.ExpectedVersion == domain.VersionAbsent && !live:
		return nil
	case r.ExpectedVersion > 0 && live && current.Version == r.ExpectedVersion:
		return nil
	case r.ExpectedVersion < domain.VersionAbsent:
		return fmt.Errorf("%w: expected version %d", domain.ErrInvalidArgument, r.ExpectedVersion)
	}

	conflict := &domain.VersionConflictError{
		Address:   r.Address,
		Expected:  r.ExpectedVersion,
		Attempted: r.Entry(0, now),
	}
	if live {
		conflict.Current = current
	}
	return conflict
}

// NextVersion returns the version the write is stored under, given the last
// version ever stored at the address (including deleted entries).
func (r PutRequest) NextVersion(stored int64) int64 {
	return max(stored+1, r.MinVersion, 1)
}

func (r PutRequest) Entry(version int64, now time.Time) domain.StateEntry {
	updatedAt := r.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	return domain.StateEntry{
		Address:   r.Address,
		Value:     r.Value,
		Version:   version,
		Priority:  r.Priority,
		Owner:     r.Owner,
		Metadata:  r.Metadata,
		UpdatedAt: updatedAt.UTC(),
	}
}

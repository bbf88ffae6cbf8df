package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/platform/codec"
	"github.com/symphainy/trafficcop/internal/ports"
)

const stateColumns = `scope, dimension, key, value, version, priority, owner_session_id, metadata, updated_at`

type StateStore struct {
	store *Store
}

var _ ports.StateStore = (*StateStore)(nil)

func (s *StateStore) Put(ctx context.Context, req ports.PutRequest) (domain.StateEntry, error) {
	if err := s.store.ready(ctx); err != nil {
		return domain.StateEntry{}, err
	}
	if err := req.Address.Validate(); err != nil {
		return domain.StateEntry{}, err
	}

	unlock := s.store.locks.Lock(req.Address.String())
	defer unlock()

	tx, err := s.store.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StateEntry{}, fmt.Errorf("begin put: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, deleted, found, err := selectEntry(ctx, tx, req.Address)
	if err != nil {
		return domain.StateEntry{}, err
	}

	now := s.store.clock.Now()
	if err := req.Check(current, found && !deleted, now); err != nil {
		return domain.StateEntry{}, err
	}

	entry := req.Entry(req.NextVersion(current.Version), now)
	value, err := codec.Marshal(entry.Value)
	if err != nil {
		return domain.StateEntry{}, fmt.Errorf("encode state value: %w", err)
	}
	metadata, err := encodeMap(entry.Metadata)
	if err != nil {
		return domain.StateEntry{}, fmt.Errorf("encode state metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO state_entries (`+stateColumns+`, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT (scope, dimension, key) DO UPDATE SET
			value = excluded.value,
			version = excluded.version,
			priority = excluded.priority,
			owner_session_id = excluded.owner_session_id,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at,
			deleted = 0`,
		string(entry.Address.Scope), string(entry.Address.Dimension), entry.Address.Key,
		value, entry.Version, entry.Priority, string(entry.Owner), metadata, toUnixNano(entry.UpdatedAt),
	)
	if err != nil {
		return domain.StateEntry{}, fmt.Errorf("write state entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.StateEntry{}, fmt.Errorf("commit put: %w", err)
	}

	return entry, nil
}

func (s *StateStore) Get(ctx context.Context, address domain.StateAddress) (domain.StateEntry, error) {
	if err := s.store.ready(ctx); err != nil {
		return domain.StateEntry{}, err
	}

	entry, deleted, found, err := selectEntry(ctx, s.store.sqlDB, address)
	if err != nil {
		return domain.StateEntry{}, err
	}
	if !found || deleted {
		return domain.StateEntry{}, domain.ErrStateNotFound
	}
	return entry, nil
}

func (s *StateStore) List(ctx context.Context, filter ports.StateFilter) ([]domain.StateEntry, error) {
	if err := s.store.ready(ctx); err != nil {
		return nil, err
	}

	where := []string{"deleted = 0"}
	var args []any
	if filter.Scope != "" {
		where = append(where, "scope = ?")
		args = append(args, string(filter.Scope))
	}
	if filter.Dimension != "" {
		where = append(where, "dimension = ?")
		args = append(args, string(filter.Dimension))
	}
	if filter.Key != "" {
		where = append(where, "key = ?")
		args = append(args, filter.Key)
	}
	if filter.Owner != "" {
		where = append(where, "owner_session_id = ?")
		args = append(args, string(filter.Owner))
	}

	rows, err := s.store.sqlDB.QueryContext(ctx,
		`SELECT `+stateColumns+` FROM state_entries WHERE `+strings.Join(where, " AND ")+` ORDER BY scope, dimension, key`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list state entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.StateEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state entries: %w", err)
	}
	return entries, nil
}

// Delete keeps the row as a tombstone so the version sequence survives.
func (s *StateStore) Delete(ctx context.Context, address domain.StateAddress) error {
	if err := s.store.ready(ctx); err != nil {
		return err
	}

	unlock := s.store.locks.Lock(address.String())
	defer unlock()

	_, err := s.store.sqlDB.ExecContext(ctx, `
		UPDATE state_entries
		SET deleted = 1, value = NULL, metadata = NULL, updated_at = ?
		WHERE scope = ? AND dimension = ? AND key = ? AND deleted = 0`,
		toUnixNano(s.store.clock.Now()), string(address.Scope), string(address.Dimension), address.Key,
	)
	if err != nil {
		return fmt.Errorf("delete state entry: %w", err)
	}
	return nil
}

func (s *StateStore) EvictTemp(ctx context.Context, updatedBefore time.Time) (int, error) {
	if err := s.store.ready(ctx); err != nil {
		return 0, err
	}

	result, err := s.store.sqlDB.ExecContext(ctx, `
		UPDATE state_entries
		SET deleted = 1, value = NULL, metadata = NULL, updated_at = ?
		WHERE scope = ? AND deleted = 0 AND updated_at < ?`,
		toUnixNano(s.store.clock.Now()), string(domain.ScopeTemp), toUnixNano(updatedBefore),
	)
	if err != nil {
		return 0, fmt.Errorf("evict temp state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count evicted state: %w", err)
	}
	return int(affected), nil
}

func (s *StateStore) Stats(ctx context.Context) (domain.StateStats, error) {
	if err := s.store.ready(ctx); err != nil {
		return domain.StateStats{}, err
	}

	rows, err := s.store.sqlDB.QueryContext(ctx, `
		SELECT scope, dimension, COUNT(*), MIN(updated_at), MAX(updated_at)
		FROM state_entries WHERE deleted = 0
		GROUP BY scope, dimension`)
	if err != nil {
		return domain.StateStats{}, fmt.Errorf("query state stats: %w", err)
	}
	defer rows.Close()

	stats := domain.StateStats{ByScope: map[domain.Scope]int{}, ByDimension: map[domain.DimensionID]int{}}
	for rows.Next() {
		var (
			scope, dimension string
			count            int
			oldest, newest   int64
		)
		if err := rows.Scan(&scope, &dimension, &count, &oldest, &newest); err != nil {
			return domain.StateStats{}, fmt.Errorf("scan state stats: %w", err)
		}
		stats.Total += count
		stats.ByScope[domain.Scope(scope)] += count
		stats.ByDimension[domain.DimensionID(dimension)] += count
		if o := fromUnixNano(oldest); stats.OldestWrite.IsZero() || o.Before(stats.OldestWrite) {
			stats.OldestWrite = o
		}
		if n := fromUnixNano(newest); n.After(stats.NewestWrite) {
			stats.NewestWrite = n
		}
	}
	if err := rows.Err(); err != nil {
		return domain.StateStats{}, fmt.Errorf("iterate state stats: %w", err)
	}
	return stats, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// selectEntry returns the row at address including tombstones. A tombstone
// carries only its address and last version.
func selectEntry(ctx context.Context, q queryer, address domain.StateAddress) (domain.StateEntry, bool, bool, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+stateColumns+`, deleted FROM state_entries WHERE scope = ? AND dimension = ? AND key = ?`,
		string(address.Scope), string(address.Dimension), address.Key,
	)

	var deleted int
	entry, err := scanEntry(row, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StateEntry{}, false, false, nil
	}
	if err != nil {
		return domain.StateEntry{}, false, false, err
	}
	return entry, deleted != 0, true, nil
}

func scanEntry(row scanner, extra ...any) (domain.StateEntry, error) {
	var (
		scope, dimension, key, owner string
		value, metadata              []byte
		version                      int64
		priority                     int
		updatedAt                    int64
	)
	dest := append([]any{&scope, &dimension, &key, &value, &version, &priority, &owner, &metadata, &updatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StateEntry{}, err
		}
		return domain.StateEntry{}, fmt.Errorf("scan state entry: %w", err)
	}

	decodedValue, err := codec.DecodeValue(value)
	if err != nil {
		return domain.StateEntry{}, err
	}
	decodedMetadata, err := codec.DecodeMap(metadata)
	if err != nil {
		return domain.StateEntry{}, err
	}

	return domain.StateEntry{
		Address:   domain.StateAddress{Scope: domain.Scope(scope), Dimension: domain.DimensionID(dimension), Key: key},
		Value:     decodedValue,
		Version:   version,
		Priority:  priority,
		Owner:     domain.SessionID(owner),
		Metadata:  decodedMetadata,
		UpdatedAt: fromUnixNano(updatedAt),
	}, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/platform/codec"
	"github.com/symphainy/trafficcop/internal/ports"
)

const conflictColumns = `id, key, status, strategy, session_id, body, created_at, resolved_at`

type ConflictRepository struct {
	store *Store
}

var _ ports.ConflictRepository = (*ConflictRepository)(nil)

func (r *ConflictRepository) GetByID(ctx context.Context, id domain.ConflictID) (domain.Conflict, error) {
	if err := r.store.ready(ctx); err != nil {
		return domain.Conflict{}, err
	}

	row := r.store.sqlDB.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE id = ?`, string(id))
	conflict, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Conflict{}, domain.ErrConflictNotFound
	}
	return conflict, err
}

func (r *ConflictRepository) List(ctx context.Context, status domain.ConflictStatus) ([]domain.Conflict, error) {
	if err := r.store.ready(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + conflictColumns + ` FROM conflicts`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.store.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []domain.Conflict
	for rows.Next() {
		conflict, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, conflict)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conflicts: %w", err)
	}
	return conflicts, nil
}

func (r *ConflictRepository) Save(ctx context.Context, conflict domain.Conflict) error {
	if err := r.store.ready(ctx); err != nil {
		return err
	}

	record := conflictRecord{
		Reason:        conflict.Reason,
		ResolvedValue: conflict.ResolvedValue,
	}
	for _, address := range conflict.Addresses {
		record.Addresses = append(record.Addresses, toAddressRecord(address))
	}
	for _, entry := range conflict.Competing {
		record.Competing = append(record.Competing, toEntryRecord(entry))
	}
	if conflict.ResolvedEntry != nil {
		resolved := toEntryRecord(*conflict.ResolvedEntry)
		record.ResolvedEntry = &resolved
	}
	body, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode conflict: %w", err)
	}

	_, err = r.store.sqlDB.ExecContext(ctx, `
		INSERT INTO conflicts (`+conflictColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			key = excluded.key,
			status = excluded.status,
			strategy = excluded.strategy,
			session_id = excluded.session_id,
			body = excluded.body,
			resolved_at = excluded.resolved_at`,
		string(conflict.ID), conflict.Key, string(conflict.Status), string(conflict.Strategy),
		string(conflict.SessionID), body, toUnixNano(conflict.CreatedAt), toUnixNano(conflict.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("save conflict: %w", err)
	}
	return nil
}

func scanConflict(row scanner) (domain.Conflict, error) {
	var (
		id, key, status, strategy, sessionID string
		body                                 []byte
		createdAt, resolvedAt                int64
	)
	if err := row.Scan(&id, &key, &status, &strategy, &sessionID, &body, &createdAt, &resolvedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Conflict{}, err
		}
		return domain.Conflict{}, fmt.Errorf("scan conflict: %w", err)
	}

	var record conflictRecord
	if err := codec.Unmarshal(body, &record); err != nil {
		return domain.Conflict{}, fmt.Errorf("decode conflict: %w", err)
	}

	conflict := domain.Conflict{
		ID:            domain.ConflictID(id),
		Key:           key,
		Strategy:      domain.ConflictStrategy(strategy),
		SessionID:     domain.SessionID(sessionID),
		Status:        domain.ConflictStatus(status),
		Reason:        record.Reason,
		ResolvedValue: record.ResolvedValue,
		CreatedAt:     fromUnixNano(createdAt),
		ResolvedAt:    fromUnixNano(resolvedAt),
	}
	for _, address := range record.Addresses {
		conflict.Addresses = append(conflict.Addresses, fromAddressRecord(address))
	}
	for _, entry := range record.Competing {
		conflict.Competing = append(conflict.Competing, fromEntryRecord(entry))
	}
	if record.ResolvedEntry != nil {
		resolved := fromEntryRecord(*record.ResolvedEntry)
		conflict.ResolvedEntry = &resolved
	}
	return conflict, nil
}

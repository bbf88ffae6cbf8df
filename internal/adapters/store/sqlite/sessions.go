package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/platform/codec"
	"github.com/symphainy/trafficcop/internal/ports"
)

const sessionColumns = `id, owner_user_id, tenant, dimensions, scope, priority, metadata, refs, status, created_at, updated_at, expires_at`

type SessionRepository struct {
	store *Store
}

var _ ports.SessionRepository = (*SessionRepository)(nil)

func (r *SessionRepository) GetByID(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	if err := r.store.ready(ctx); err != nil {
		return domain.Session{}, err
	}

	row := r.store.sqlDB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, string(id))
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, err
}

func (r *SessionRepository) List(ctx context.Context, filter ports.SessionFilter) ([]domain.Session, error) {
	if err := r.store.ready(ctx); err != nil {
		return nil, err
	}

	where := []string{"1 = 1"}
	var args []any
	if filter.OwnerUserID != "" {
		where = append(where, "owner_user_id = ?")
		args = append(args, filter.OwnerUserID)
	}
	if filter.Tenant != "" {
		where = append(where, "tenant = ?")
		args = append(args, filter.Tenant)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	rows, err := r.store.sqlDB.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at, id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) Save(ctx context.Context, session domain.Session) error {
	if err := r.store.ready(ctx); err != nil {
		return err
	}
	if err := session.Validate(); err != nil {
		return err
	}

	dimensions := make([]string, 0, len(session.Dimensions))
	for _, d := range session.Dimensions {
		dimensions = append(dimensions, string(d))
	}
	encodedDimensions, err := codec.Marshal(dimensions)
	if err != nil {
		return fmt.Errorf("encode session dimensions: %w", err)
	}
	metadata, err := encodeMap(session.Metadata)
	if err != nil {
		return fmt.Errorf("encode session metadata: %w", err)
	}
	var refs []byte
	if len(session.Refs) > 0 {
		records := make(map[string]refRecord, len(session.Refs))
		for k, ref := range session.Refs {
			records[k] = refRecord{Address: toAddressRecord(ref.Address), Version: ref.Version, ObservedAt: toUnixNano(ref.ObservedAt)}
		}
		if refs, err = codec.Marshal(records); err != nil {
			return fmt.Errorf("encode session refs: %w", err)
		}
	}

	_, err = r.store.sqlDB.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner_user_id = excluded.owner_user_id,
			tenant = excluded.tenant,
			dimensions = excluded.dimensions,
			scope = excluded.scope,
			priority = excluded.priority,
			metadata = excluded.metadata,
			refs = excluded.refs,
			status = excluded.status,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at`,
		string(session.ID), session.OwnerUserID, session.Tenant, encodedDimensions, string(session.Scope),
		session.Priority, metadata, refs, string(session.Status),
		toUnixNano(session.CreatedAt), toUnixNano(session.UpdatedAt), toUnixNano(session.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func scanSession(row scanner) (domain.Session, error) {
	var (
		id, owner, tenant, scope, status string
		dimensions, metadata, refs       []byte
		priority                         int
		createdAt, updatedAt, expiresAt  int64
	)
	if err := row.Scan(&id, &owner, &tenant, &dimensions, &scope, &priority, &metadata, &refs, &status, &createdAt, &updatedAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Session{}, err
		}
		return domain.Session{}, fmt.Errorf("scan session: %w", err)
	}

	session := domain.Session{
		ID:          domain.SessionID(id),
		OwnerUserID: owner,
		Tenant:      tenant,
		Scope:       domain.Scope(scope),
		Priority:    priority,
		Status:      domain.SessionStatus(status),
		CreatedAt:   fromUnixNano(createdAt),
		UpdatedAt:   fromUnixNano(updatedAt),
		ExpiresAt:   fromUnixNano(expiresAt),
	}

	if len(dimensions) > 0 {
		var names []string
		if err := codec.Unmarshal(dimensions, &names); err != nil {
			return domain.Session{}, fmt.Errorf("decode session dimensions: %w", err)
		}
		for _, name := range names {
			session.Dimensions = append(session.Dimensions, domain.DimensionID(name))
		}
	}

	decodedMetadata, err := codec.DecodeMap(metadata)
	if err != nil {
		return domain.Session{}, err
	}
	session.Metadata = decodedMetadata

	if len(refs) > 0 {
		var records map[string]refRecord
		if err := codec.Unmarshal(refs, &records); err != nil {
			return domain.Session{}, fmt.Errorf("decode session refs: %w", err)
		}
		session.Refs = make(map[string]domain.StateRef, len(records))
		for k, rec := range records {
			session.Refs[k] = domain.StateRef{Address: fromAddressRecord(rec.Address), Version: rec.Version, ObservedAt: fromUnixNano(rec.ObservedAt)}
		}
	}

	return session, nil
}

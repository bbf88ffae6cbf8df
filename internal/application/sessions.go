package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/platform/keylock"
	"github.com/symphainy/trafficcop/internal/ports"
)

// SessionManager owns session records. It never holds state values: a session
// only keeps references (address, version, observed time) to entries it wrote
// or read.
type SessionManager struct {
	sessions ports.SessionRepository
	states   ports.StateStore
	dims     *DimensionRegistry
	clock    ports.Clock
	locks    *keylock.Locker
	settings Settings
	opts     options
}

func NewSessionManager(sessions ports.SessionRepository, states ports.StateStore, dims *DimensionRegistry, settings Settings, clock ports.Clock, opts ...Option) *SessionManager {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &SessionManager{
		sessions: sessions,
		states:   states,
		dims:     dims,
		clock:    clock,
		locks:    keylock.New(0),
		settings: settings.withDefaults(),
		opts:     buildOptions(opts),
	}
}

func (m *SessionManager) Create(ctx context.Context, cmd CreateSessionCommand) (domain.Session, error) {
	now := m.clock.Now()

	scope := cmd.Scope
	if scope == "" {
		scope = domain.ScopeShared
	}
	dimensions := domain.NormalizeDimensions(cmd.Dimensions)
	if m.dims != nil {
		if err := m.dims.Require(dimensions...); err != nil {
			return domain.Session{}, err
		}
	}

	expiresAt := cmd.ExpiresAt
	switch {
	case !expiresAt.IsZero():
		expiresAt = expiresAt.UTC()
	case cmd.TTL > 0:
		expiresAt = now.Add(cmd.TTL)
	case cmd.TTL < 0:
		return domain.Session{}, fmt.Errorf("%w: session ttl must be positive", domain.ErrInvalidArgument)
	default:
		expiresAt = now.Add(m.settings.SessionTTL)
	}

	session := domain.Session{
		ID:          domain.SessionID(m.opts.newID()),
		OwnerUserID: strings.TrimSpace(cmd.OwnerUserID),
		Tenant:      strings.TrimSpace(cmd.Tenant),
		Dimensions:  dimensions,
		Scope:       scope,
		Priority:    cmd.Priority,
		Metadata:    cmd.Metadata,
		Refs:        map[string]domain.StateRef{},
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   expiresAt,
		Status:      domain.SessionStatusCreated,
	}
	if err := session.Transition(domain.SessionStatusActive, now); err != nil {
		return domain.Session{}, err
	}
	if err := session.Validate(); err != nil {
		return domain.Session{}, err
	}
	if err := m.sessions.Save(ctx, session); err != nil {
		return domain.Session{}, fmt.Errorf("save session: %w", err)
	}

	m.opts.logger.DebugContext(ctx, "session created",
		slog.String("session_id", string(session.ID)),
		slog.Time("expires_at", session.ExpiresAt),
	)
	return session, nil
}

// Get returns the session, marking it expired first when its deadline passed.
func (m *SessionManager) Get(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	unlock := m.locks.Lock(string(id))
	defer unlock()

	return m.fetch(ctx, id)
}

func (m *SessionManager) Validate(ctx context.Context, id domain.SessionID) (SessionValidation, error) {
	session, err := m.Get(ctx, id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return SessionValidation{SessionID: id, Reason: "session not found"}, nil
	}
	if err != nil {
		return SessionValidation{}, err
	}

	validation := SessionValidation{
		SessionID: id,
		Valid:     !session.Status.Terminal(),
		Status:    session.Status,
		ExpiresAt: session.ExpiresAt,
	}
	if !validation.Valid {
		validation.Reason = "session " + string(session.Status)
	}
	return validation, nil
}

// UpdateState writes one key through the session. A version conflict keeps the
// attempted entry, dated at the time the session observed the version it
// expected, so that resolution compares writers by when they last agreed.
func (m *SessionManager) UpdateState(ctx context.Context, cmd UpdateSessionStateCommand) (domain.StateEntry, error) {
	unlock := m.locks.Lock(string(cmd.SessionID))
	defer unlock()

	session, err := m.fetch(ctx, cmd.SessionID)
	if err != nil {
		return domain.StateEntry{}, err
	}
	if err := writable(session); err != nil {
		return domain.StateEntry{}, err
	}
	address, err := m.AddressFor(session, cmd.Key, cmd.Scope, cmd.Dimension)
	if err != nil {
		return domain.StateEntry{}, err
	}

	priority := cmd.Priority
	if priority == 0 {
		priority = session.Priority
	}
	entry, err := m.states.Put(ctx, ports.PutRequest{
		Address:         address,
		Value:           cmd.Value,
		Priority:        priority,
		Owner:           session.ID,
		Metadata:        cmd.Metadata,
		ExpectedVersion: cmd.ExpectedVersion,
	})
	if err != nil {
		var conflict *domain.VersionConflictError
		if errors.As(err, &conflict) {
			if ref, ok := session.Refs[address.String()]; ok && ref.Version == conflict.Expected {
				conflict.Attempted.UpdatedAt = ref.ObservedAt
			}
		}
		m.opts.logger.WarnContext(ctx, "state write rejected",
			append(addressLogAttrs(address), slog.String("session_id", string(session.ID)), slog.Any("error", err))...)
		return domain.StateEntry{}, fmt.Errorf("put state: %w", err)
	}

	// Date the ref at the stored write so a later writer of the same key
	// always ranks above it.
	session.Observe(entry, entry.UpdatedAt)
	if err := m.sessions.Save(ctx, session); err != nil {
		return domain.StateEntry{}, fmt.Errorf("save session: %w", err)
	}
	return entry, nil
}

// GetState reads one key, or every live entry the session references when key
// is empty. Reading a key records the observed version on the session.
func (m *SessionManager) GetState(ctx context.Context, q GetSessionStateQuery) ([]domain.StateEntry, error) {
	unlock := m.locks.Lock(string(q.SessionID))
	defer unlock()

	session, err := m.fetch(ctx, q.SessionID)
	if err != nil {
		return nil, err
	}
	if err := usable(session); err != nil {
		return nil, err
	}

	if q.Key != "" {
		address, err := m.AddressFor(session, q.Key, q.Scope, q.Dimension)
		if err != nil {
			return nil, err
		}
		entry, err := m.states.Get(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("get state: %w", err)
		}
		session.Observe(entry, m.clock.Now())
		if err := m.sessions.Save(ctx, session); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
		return []domain.StateEntry{entry}, nil
	}

	entries := make([]domain.StateEntry, 0, len(session.Refs))
	for _, ref := range sortedRefs(session.Refs) {
		entry, err := m.states.Get(ctx, ref.Address)
		if errors.Is(err, domain.ErrStateNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get state: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (m *SessionManager) DeleteState(ctx context.Context, cmd DeleteStateCommand) error {
	unlock := m.locks.Lock(string(cmd.SessionID))
	defer unlock()

	session, err := m.fetch(ctx, cmd.SessionID)
	if err != nil {
		return err
	}
	if err := writable(session); err != nil {
		return err
	}
	address, err := m.AddressFor(session, cmd.Key, cmd.Scope, cmd.Dimension)
	if err != nil {
		return err
	}
	if err := m.states.Delete(ctx, address); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}

	session.Forget(address, m.clock.Now())
	if err := m.sessions.Save(ctx, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Terminate ends the session and releases the temp entries it owns. State in
// other scopes outlives the session. Terminating twice is a no-op.
func (m *SessionManager) Terminate(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	unlock := m.locks.Lock(string(id))
	defer unlock()

	session, err := m.fetch(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status == domain.SessionStatusTerminated {
		return session, nil
	}

	owned, err := m.states.List(ctx, ports.StateFilter{Scope: domain.ScopeTemp, Owner: id})
	if err != nil {
		return domain.Session{}, fmt.Errorf("list temp state: %w", err)
	}
	now := m.clock.Now()
	for _, entry := range owned {
		if err := m.states.Delete(ctx, entry.Address); err != nil {
			return domain.Session{}, fmt.Errorf("release temp state: %w", err)
		}
		session.Forget(entry.Address, now)
	}

	session.Terminate(now)
	if err := m.sessions.Save(ctx, session); err != nil {
		return domain.Session{}, fmt.Errorf("save session: %w", err)
	}

	m.opts.logger.InfoContext(ctx, "session terminated",
		slog.String("session_id", string(id)),
		slog.Int("released_entries", len(owned)),
	)
	return session, nil
}

func (m *SessionManager) Health(ctx context.Context, id domain.SessionID) (SessionHealth, error) {
	session, err := m.Get(ctx, id)
	if err != nil {
		return SessionHealth{}, err
	}
	return m.health(session), nil
}

func (m *SessionManager) health(session domain.Session) SessionHealth {
	return SessionHealth{
		SessionID:    session.ID,
		Status:       session.Status,
		StateCount:   len(session.Refs),
		Age:          m.clock.Now().Sub(session.CreatedAt),
		LastActivity: session.UpdatedAt,
		ExpiresAt:    session.ExpiresAt,
	}
}

// Transition moves the session along its lifecycle. Terminated is routed to
// Terminate so that temp state is released.
func (m *SessionManager) Transition(ctx context.Context, id domain.SessionID, to domain.SessionStatus) (domain.Session, error) {
	if to == domain.SessionStatusTerminated {
		return m.Terminate(ctx, id)
	}
	if to == domain.SessionStatusExpired || !to.Valid() {
		return domain.Session{}, fmt.Errorf("%w: cannot transition to %q", domain.ErrInvalidArgument, to)
	}

	unlock := m.locks.Lock(string(id))
	defer unlock()

	session, err := m.fetch(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status == domain.SessionStatusExpired {
		return domain.Session{}, domain.ErrSessionExpired
	}
	if err := session.Transition(to, m.clock.Now()); err != nil {
		return domain.Session{}, err
	}
	if err := m.sessions.Save(ctx, session); err != nil {
		return domain.Session{}, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

// Extend moves the session deadline to now+ttl.
func (m *SessionManager) Extend(ctx context.Context, id domain.SessionID, ttl time.Duration) (domain.Session, error) {
	if ttl <= 0 {
		return domain.Session{}, fmt.Errorf("%w: session ttl must be positive", domain.ErrInvalidArgument)
	}

	unlock := m.locks.Lock(string(id))
	defer unlock()

	session, err := m.fetch(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	if err := usable(session); err != nil {
		return domain.Session{}, err
	}

	now := m.clock.Now()
	session.ExpiresAt = now.Add(ttl)
	session.UpdatedAt = now
	if err := m.sessions.Save(ctx, session); err != nil {
		return domain.Session{}, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

func (m *SessionManager) List(ctx context.Context, filter ports.SessionFilter) ([]domain.Session, error) {
	sessions, err := m.sessions.List(ctx, ports.SessionFilter{OwnerUserID: filter.OwnerUserID, Tenant: filter.Tenant})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	now := m.clock.Now()
	out := make([]domain.Session, 0, len(sessions))
	for _, session := range sessions {
		if session.Status != domain.SessionStatusExpired && session.IsExpiredAt(now) {
			session, err = m.Get(ctx, session.ID)
			if err != nil {
				return nil, err
			}
		}
		if filter.Matches(session) {
			out = append(out, session)
		}
	}
	return out, nil
}

// TenantSummary counts a tenant's sessions by status and dimension. A closed
// session lasted until its last update; a live one is still running.
func (m *SessionManager) TenantSummary(ctx context.Context, tenant string) (TenantSummary, error) {
	sessions, err := m.List(ctx, ports.SessionFilter{Tenant: tenant})
	if err != nil {
		return TenantSummary{}, err
	}

	summary := TenantSummary{
		Tenant:      tenant,
		Total:       len(sessions),
		ByStatus:    map[domain.SessionStatus]int{},
		ByDimension: map[domain.DimensionID]int{},
	}
	now := m.clock.Now()
	var total time.Duration
	for _, session := range sessions {
		summary.ByStatus[session.Status]++
		for _, dimension := range session.Dimensions {
			summary.ByDimension[dimension]++
		}
		end := now
		if session.Status.Terminal() {
			end = session.UpdatedAt
		} else {
			summary.Live++
		}
		total += end.Sub(session.CreatedAt)
	}
	if len(sessions) > 0 {
		summary.AverageDuration = total / time.Duration(len(sessions))
	}
	return summary, nil
}

// AttachDimension adds a dimension to a live session.
func (m *SessionManager) AttachDimension(ctx context.Context, id domain.SessionID, dimension domain.DimensionID) (domain.Session, error) {
	if m.dims != nil {
		if err := m.dims.Require(dimension); err != nil {
			return domain.Session{}, err
		}
	}

	unlock := m.locks.Lock(string(id))
	defer unlock()

	session, err := m.fetch(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	if err := usable(session); err != nil {
		return domain.Session{}, err
	}
	if session.HasDimension(dimension) {
		return session, nil
	}

	session.Dimensions = append(session.Dimensions, dimension)
	session.UpdatedAt = m.clock.Now()
	if err := m.sessions.Save(ctx, session); err != nil {
		return domain.Session{}, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

// Observe records entries written on the session's behalf by another component.
func (m *SessionManager) Observe(ctx context.Context, id domain.SessionID, entries ...domain.StateEntry) error {
	if len(entries) == 0 {
		return nil
	}

	unlock := m.locks.Lock(string(id))
	defer unlock()

	session, err := m.sessions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get session by id: %w", err)
	}
	now := m.clock.Now()
	for _, entry := range entries {
		session.Observe(entry, now)
	}
	if err := m.sessions.Save(ctx, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// SweepExpired marks every session whose deadline passed and returns how many
// changed.
func (m *SessionManager) SweepExpired(ctx context.Context) (int, error) {
	sessions, err := m.sessions.List(ctx, ports.SessionFilter{})
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}

	now := m.clock.Now()
	expired := 0
	for _, session := range sessions {
		if session.Status == domain.SessionStatusExpired || !session.IsExpiredAt(now) {
			continue
		}
		if _, err := m.Get(ctx, session.ID); err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// AddressFor maps a key to the address the session reads and writes. Scope and
// dimension default to the session's scope and primary dimension; local keys
// are qualified with the session id so that they stay private.
func (m *SessionManager) AddressFor(session domain.Session, key string, scope domain.Scope, dimension domain.DimensionID) (domain.StateAddress, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.StateAddress{}, fmt.Errorf("%w: state key is required", domain.ErrInvalidArgument)
	}
	if scope == "" {
		scope = session.Scope
	}
	if dimension == "" {
		dimension = session.PrimaryDimension()
	} else if !session.HasDimension(dimension) {
		return domain.StateAddress{}, fmt.Errorf("%w: session %s is not part of dimension %q", domain.ErrDimensionMismatch, session.ID, dimension)
	}
	if scope == domain.ScopeLocal {
		key = string(session.ID) + "/" + key
	}

	address := domain.StateAddress{Scope: scope, Dimension: dimension, Key: key}
	if err := address.Validate(); err != nil {
		return domain.StateAddress{}, err
	}
	return address, nil
}

// fetch loads a session and applies lazy expiry. The caller holds the session lock.
func (m *SessionManager) fetch(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	session, err := m.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.Session{}, fmt.Errorf("get session %s: %w", id, err)
		}
		return domain.Session{}, fmt.Errorf("get session by id: %w", err)
	}

	now := m.clock.Now()
	if session.Status != domain.SessionStatusExpired && session.IsExpiredAt(now) {
		session.MarkExpired(now)
		if err := m.sessions.Save(ctx, session); err != nil {
			return domain.Session{}, fmt.Errorf("save session: %w", err)
		}
		m.opts.logger.InfoContext(ctx, "session expired", slog.String("session_id", string(id)))
	}
	return session, nil
}

func usable(session domain.Session) error {
	switch {
	case session.Status == domain.SessionStatusExpired:
		return fmt.Errorf("session %s: %w", session.ID, domain.ErrSessionExpired)
	case session.Status.Terminal():
		return fmt.Errorf("session %s is %s: %w", session.ID, session.Status, domain.ErrSessionClosed)
	default:
		return nil
	}
}

func writable(session domain.Session) error {
	if err := usable(session); err != nil {
		return err
	}
	if session.Status == domain.SessionStatusPaused {
		return fmt.Errorf("session %s: %w", session.ID, domain.ErrSessionPaused)
	}
	return nil
}

func sortedRefs(refs map[string]domain.StateRef) []domain.StateRef {
	out := make([]domain.StateRef, 0, len(refs))
	for _, key := range slices.Sorted(maps.Keys(refs)) {
		out = append(out, refs[key])
	}
	return out
}

package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/ports"
)

type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]domain.Session
}

var _ ports.SessionRepository = (*SessionRepository)(nil)

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: map[domain.SessionID]domain.Session{}}
}

func (r *SessionRepository) GetByID(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (r *SessionRepository) List(ctx context.Context, filter ports.SessionFilter) ([]domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	sessions := make([]domain.Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		if filter.Matches(session) {
			sessions = append(sessions, cloneSession(session))
		}
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
	return sessions, nil
}

func (r *SessionRepository) Save(ctx context.Context, session domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := session.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[session.ID] = cloneSession(session)
	return nil
}

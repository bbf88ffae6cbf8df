package ports

import (
	"context"

	"github.com/symphainy/trafficcop/internal/domain"
)

type SessionFilter struct {
	OwnerUserID string
	Tenant      string
	Status      domain.SessionStatus
}

func (f SessionFilter) Matches(session domain.Session) bool {
	if f.OwnerUserID != "" && session.OwnerUserID != f.OwnerUserID {
		return false
	}
	if f.Tenant != "" && session.Tenant != f.Tenant {
		return false
	}
	if f.Status != "" && session.Status != f.Status {
		return false
	}
	return true
}

type SessionRepository interface {
	GetByID(ctx context.Context, id domain.SessionID) (domain.Session, error)
	List(ctx context.Context, filter SessionFilter) ([]domain.Session, error)
	Save(ctx context.Context, session domain.Session) error
}

package ports

import (
	"context"

	"github.com/symphainy/trafficcop/internal/domain"
)

type ConflictRepository interface {
	GetByID(ctx context.Context, id domain.ConflictID) (domain.Conflict, error)
	List(ctx context.Context, status domain.ConflictStatus) ([]domain.Conflict, error)
	Save(ctx context.Context, conflict domain.Conflict) error
}

package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/ports"
)

type ConflictRepository struct {
	mu        sync.RWMutex
	conflicts map[domain.ConflictID]domain.Conflict
}

var _ ports.ConflictRepository = (*ConflictRepository)(nil)

func NewConflictRepository() *ConflictRepository {
	return &ConflictRepository{conflicts: map[domain.ConflictID]domain.Conflict{}}
}

func (r *ConflictRepository) GetByID(ctx context.Context, id domain.ConflictID) (domain.Conflict, error) {
	if err := ctx.Err(); err != nil {
		return domain.Conflict{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	conflict, ok := r.conflicts[id]
	if !ok {
		return domain.Conflict{}, domain.ErrConflictNotFound
	}
	return cloneConflict(conflict), nil
}

// List returns conflicts with the given status, or all of them when status is empty.
func (r *ConflictRepository) List(ctx context.Context, status domain.ConflictStatus) ([]domain.Conflict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	conflicts := make([]domain.Conflict, 0, len(r.conflicts))
	for _, conflict := range r.conflicts {
		if status != "" && conflict.Status != status {
			continue
		}
		conflicts = append(conflicts, cloneConflict(conflict))
	}
	r.mu.RUnlock()

	sort.Slice(conflicts, func(i, j int) bool {
		if !conflicts[i].CreatedAt.Equal(conflicts[j].CreatedAt) {
			return conflicts[i].CreatedAt.Before(conflicts[j].CreatedAt)
		}
		return conflicts[i].ID < conflicts[j].ID
	})
	return conflicts, nil
}

func (r *ConflictRepository) Save(ctx context.Context, conflict domain.Conflict) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.conflicts[conflict.ID] = cloneConflict(conflict)
	return nil
}

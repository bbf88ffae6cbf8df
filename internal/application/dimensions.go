package application

import (
	"fmt"
	"strings"
	"sync"

	"github.com/symphainy/trafficcop/internal/domain"
)

// DefaultDimensions seeds the registry when no dimensions are configured.
var DefaultDimensions = []domain.DimensionID{"content", "insights", "operations", "outcomes"}

// DimensionRegistry is the set of dimensions sessions may join. Dimensions
// carry no state of their own.
type DimensionRegistry struct {
	mu    sync.RWMutex
	byID  map[domain.DimensionID]domain.Dimension
	order []domain.DimensionID
}

func NewDimensionRegistry(ids ...domain.DimensionID) *DimensionRegistry {
	r := &DimensionRegistry{byID: map[domain.DimensionID]domain.Dimension{}}
	for _, id := range domain.NormalizeDimensions(ids) {
		_, _ = r.Register(domain.NewDimension(id))
	}
	return r
}

// Register adds a dimension or renames an existing one.
func (r *DimensionRegistry) Register(dimension domain.Dimension) (domain.Dimension, error) {
	dimension.ID = domain.DimensionID(strings.TrimSpace(string(dimension.ID)))
	if dimension.ID == "" {
		return domain.Dimension{}, fmt.Errorf("%w: dimension id is required", domain.ErrInvalidArgument)
	}
	if strings.ContainsRune(string(dimension.ID), '/') {
		return domain.Dimension{}, fmt.Errorf("%w: dimension id %q contains '/'", domain.ErrInvalidArgument, dimension.ID)
	}
	if strings.TrimSpace(dimension.DisplayName) == "" {
		dimension.DisplayName = domain.NewDimension(dimension.ID).DisplayName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[dimension.ID]; !ok {
		r.order = append(r.order, dimension.ID)
	}
	r.byID[dimension.ID] = dimension
	return dimension, nil
}

func (r *DimensionRegistry) Get(id domain.DimensionID) (domain.Dimension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dimension, ok := r.byID[id]
	return dimension, ok
}

// List returns dimensions in registration order.
func (r *DimensionRegistry) List() []domain.Dimension {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Dimension, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Require fails with ErrDimensionMismatch on the first unknown dimension.
func (r *DimensionRegistry) Require(ids ...domain.DimensionID) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range ids {
		if _, ok := r.byID[id]; !ok {
			return fmt.Errorf("%w: unknown dimension %q", domain.ErrDimensionMismatch, id)
		}
	}
	return nil
}

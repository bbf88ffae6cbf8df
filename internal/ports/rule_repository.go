package ports

import (
	"context"

	"github.com/symphainy/trafficcop/internal/domain"
)

// RuleRepository keeps at most one rule per (metric name, comparator).
type RuleRepository interface {
	List(ctx context.Context) ([]domain.AlertRule, error)
	Save(ctx context.Context, rule domain.AlertRule) error
	Delete(ctx context.Context, metricName string, comparator domain.Comparator) error
}

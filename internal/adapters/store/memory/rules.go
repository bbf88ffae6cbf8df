package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/ports"
)

type ruleKey struct {
	metric     string
	comparator domain.Comparator
}

type RuleRepository struct {
	mu    sync.RWMutex
	rules map[ruleKey]domain.AlertRule
}

var _ ports.RuleRepository = (*RuleRepository)(nil)

func NewRuleRepository() *RuleRepository {
	return &RuleRepository{rules: map[ruleKey]domain.AlertRule{}}
}

func (r *RuleRepository) List(ctx context.Context) ([]domain.AlertRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	rules := make([]domain.AlertRule, 0, len(r.rules))
	for _, rule := range r.rules {
		rules = append(rules, rule)
	}
	r.mu.RUnlock()

	sort.Slice(rules, func(i, j int) bool {
		if rules[i].MetricName != rules[j].MetricName {
			return rules[i].MetricName < rules[j].MetricName
		}
		return rules[i].Comparator < rules[j].Comparator
	})
	return rules, nil
}

func (r *RuleRepository) Save(ctx context.Context, rule domain.AlertRule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[ruleKey{metric: rule.MetricName, comparator: rule.Comparator}] = rule
	return nil
}

func (r *RuleRepository) Delete(ctx context.Context, metricName string, comparator domain.Comparator) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rules, ruleKey{metric: metricName, comparator: comparator})
	return nil
}

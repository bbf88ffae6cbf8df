// Package toml persists alert rules in a TOML file so thresholds survive restarts
// and can be edited by hand.
package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/symphainy/trafficcop/internal/domain"
	"github.com/symphainy/trafficcop/internal/ports"
)

const (
	rulesFileMode   = 0o600
	rulesDirMode    = 0o700
	tempFilePattern = ".rules-*.toml.tmp"
)

type RuleRepository struct {
	rulesPath string
	mu        *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.RuleRepository = (*RuleRepository)(nil)

// NewRuleRepository opens the rules file at path. The file is created on the
// first Save; a missing file reads as an empty rule set.
func NewRuleRepository(path string) (*RuleRepository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("rules path is empty")
	}
	rulesPath, err := normalizeRulesPath(path)
	if err != nil {
		return nil, err
	}

	return &RuleRepository{rulesPath: rulesPath, mu: lockForPath(rulesPath)}, nil
}

func (r *RuleRepository) Path() string {
	return r.rulesPath
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

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	encoded := toSchema(rule)
	updated := false
	for i := range file.Rules {
		if file.Rules[i].MetricName == encoded.MetricName && file.Rules[i].Comparator == encoded.Comparator {
			file.Rules[i] = encoded
			updated = true
			break
		}
	}
	if !updated {
		file.Rules = append(file.Rules, encoded)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return r.writeSchema(file)
}

func (r *RuleRepository) Delete(ctx context.Context, metricName string, comparator domain.Comparator) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	kept := file.Rules[:0]
	for _, entry := range file.Rules {
		if entry.MetricName == metricName && entry.Comparator == string(comparator) {
			continue
		}
		kept = append(kept, entry)
	}
	if len(kept) == len(file.Rules) {
		return nil
	}
	file.Rules = kept

	return r.writeSchema(file)
}

func (r *RuleRepository) List(ctx context.Context) ([]domain.AlertRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	rules := make([]domain.AlertRule, 0, len(file.Rules))
	for _, entry := range file.Rules {
		rule := fromSchema(entry)
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rules file %s: %w", r.rulesPath, err)
		}
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].MetricName != rules[j].MetricName {
			return rules[i].MetricName < rules[j].MetricName
		}
		return rules[i].Comparator < rules[j].Comparator
	})

	return rules, nil
}

func (r *RuleRepository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.rulesPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{Version: currentSchemaVersion}, nil
		}
		return fileSchema{}, fmt.Errorf("read rules file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode rules file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func normalizeRulesPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve rules path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func (r *RuleRepository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.rulesPath), rulesDirMode); err != nil {
		return fmt.Errorf("create rules directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode rules file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.rulesPath), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp rules file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp rules file: %w", err)
	}
	if err := tempFile.Chmod(rulesFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp rules file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp rules file: %w", err)
	}

	if err := os.Rename(tempName, r.rulesPath); err != nil {
		return fmt.Errorf("replace rules file: %w", err)
	}
	cleanup = false

	return nil
}

func toSchema(rule domain.AlertRule) ruleSchema {
	return ruleSchema{
		MetricName:     rule.MetricName,
		Comparator:     string(rule.Comparator),
		ThresholdValue: rule.ThresholdValue,
		Message:        rule.Message,
		UpdatedAt:      formatTime(rule.UpdatedAt),
	}
}

func fromSchema(rule ruleSchema) domain.AlertRule {
	return domain.AlertRule{
		MetricName:     rule.MetricName,
		Comparator:     domain.Comparator(rule.Comparator),
		ThresholdValue: rule.ThresholdValue,
		Message:        rule.Message,
		UpdatedAt:      parseTime(rule.UpdatedAt),
	}
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed.UTC()
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.UTC().Format(time.RFC3339)
}

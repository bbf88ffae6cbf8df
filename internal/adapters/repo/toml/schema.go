package toml

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version int          `toml:"version"`
	Rules   []ruleSchema `toml:"rules"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported rules schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type ruleSchema struct {
	MetricName     string  `toml:"metric_name"`
	Comparator     string  `toml:"comparator"`
	ThresholdValue float64 `toml:"threshold_value"`
	Message        string  `toml:"message,omitempty"`
	UpdatedAt      string  `toml:"updated_at,omitempty"`
}

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configName    = "config"
	configType    = "toml"
	configDir     = ".trafficcop"
	storePathKey  = "store.path"
	rulesPathKey  = "rules.path"
	defaultDBFile = "trafficcop.db"
	defaultRules  = "rules.toml"

	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config holds engine tuning. Environment variables win over the config file.
type Config struct {
	Store                    string        `env:"STORE" envDefault:"sqlite"`
	DBPath                   string        `env:"DB_PATH"`
	RulesPath                string        `env:"RULES_PATH"`
	SessionTTL               time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	TempTTL                  time.Duration `env:"TEMP_TTL"`
	SweepInterval            time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	PushConflictStrategy     string        `env:"PUSH_CONFLICT_STRATEGY" envDefault:"override"`
	PullConflictStrategy     string        `env:"PULL_CONFLICT_STRATEGY" envDefault:"override"`
	TenantPolicy             string        `env:"TENANT_POLICY" envDefault:"enforce"`
	Dimensions               []string      `env:"DIMENSIONS" envDefault:"content,insights,operations,outcomes" envSeparator:","`
	SyncMaxAttempts          uint          `env:"SYNC_MAX_ATTEMPTS" envDefault:"8"`
	RetryInitialInterval     time.Duration `env:"RETRY_INITIAL_INTERVAL" envDefault:"10ms"`
	WorkflowParallelism      int           `env:"WORKFLOW_PARALLELISM" envDefault:"8"`
	PendingConflictThreshold int           `env:"PENDING_CONFLICT_THRESHOLD" envDefault:"25"`
	ErrorRateThreshold       float64       `env:"ERROR_RATE_THRESHOLD" envDefault:"0.1"`
	LogLevel                 string        `env:"LOG_LEVEL" envDefault:"warn"`
}

// Load reads the environment, then fills unset file paths from
// ~/.trafficcop/config.toml (keys store.path and rules.path) or their defaults.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	if v == nil {
		v = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("resolve home directory: %w", err)
	}

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(filepath.Join(homeDir, configDir))
	v.SetDefault(storePathKey, filepath.Join(homeDir, configDir, defaultDBFile))
	v.SetDefault(rulesPathKey, filepath.Join(homeDir, configDir, defaultRules))

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	if cfg.DBPath == "" {
		cfg.DBPath = v.GetString(storePathKey)
	}
	if cfg.RulesPath == "" {
		cfg.RulesPath = v.GetString(rulesPathKey)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.Store == StoreSQLite && strings.TrimSpace(c.DBPath) == "" {
		return errors.New("sqlite store requires a database path")
	}
	for _, s := range []string{c.PushConflictStrategy, c.PullConflictStrategy} {
		switch s {
		case "merge", "override", "preserve", "conflict":
		default:
			return fmt.Errorf("unknown conflict strategy %q", s)
		}
	}
	switch c.TenantPolicy {
	case "enforce", "advisory", "off":
	default:
		return fmt.Errorf("unknown tenant policy %q", c.TenantPolicy)
	}
	if c.SessionTTL <= 0 {
		return errors.New("session ttl must be positive")
	}
	if c.TempTTL < 0 {
		return errors.New("temp ttl must not be negative")
	}
	if len(c.Dimensions) == 0 {
		return errors.New("at least one dimension must be registered")
	}
	return nil
}

func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

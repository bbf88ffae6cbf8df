package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, filepath.Join(home, ".trafficcop", "trafficcop.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join(home, ".trafficcop", "rules.toml"), cfg.RulesPath)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Zero(t, cfg.TempTTL, "unset temp ttl follows the session ttl")
	assert.Equal(t, []string{"content", "insights", "operations", "outcomes"}, cfg.Dimensions)
	assert.Equal(t, "enforce", cfg.TenantPolicy)
	assert.Equal(t, uint(8), cfg.SyncMaxAttempts)
}

func TestLoadReadsConfigFileAndEnvOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".trafficcop"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".trafficcop", "config.toml"), []byte(`
[store]
path = "/tmp/from-file.db"

[rules]
path = "/tmp/rules-from-file.toml"
`), 0o644))
	t.Setenv("TRAFFICCOP_RULES_PATH", "/tmp/rules-from-env.toml")
	t.Setenv("TRAFFICCOP_SESSION_TTL", "1h")
	t.Setenv("TRAFFICCOP_DIMENSIONS", "ops,finance")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "/tmp/from-file.db", cfg.DBPath)
	assert.Equal(t, "/tmp/rules-from-env.toml", cfg.RulesPath)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, []string{"ops", "finance"}, cfg.Dimensions)
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TRAFFICCOP_TENANT_POLICY", "sometimes")

	_, err := Load(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tenant policy")
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Store:                StoreMemory,
		PushConflictStrategy: "override",
		PullConflictStrategy: "newest",
		TenantPolicy:         "off",
		SessionTTL:           time.Hour,
		Dimensions:           []string{"ops"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newest")
}

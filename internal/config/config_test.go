package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"TAXI_MODE", "TAXI_DRIVER", "TAXI_DSN", "TAXI_DATA", "TAXI_PORT", "TAXI_PRIORITY_POLICY", "TAXI_LOG_LEVEL"} {
		os.Unsetenv(key)
	}

	cfg := &Config{}
	cfg.FromEnv()

	assert.Equal(t, "dev", cfg.Mode)
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "tree", cfg.Policy)
}

func TestValidateResolvesDefaultSqliteDSN(t *testing.T) {
	dataDir := t.TempDir()
	cfg := &Config{Mode: "dev", Driver: "sqlite", Data: dataDir, Policy: "tree"}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, filepath.Join(dataDir, "taxi_dev.db"), cfg.DSN)
}

func TestValidateRequiresDSNForPostgres(t *testing.T) {
	cfg := &Config{Mode: "dev", Driver: "postgres"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TAXI_DSN")
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := &Config{Mode: "dev", Driver: "mysql"}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidateRejectsUnknownPolicy(t *testing.T) {
	cfg := &Config{Mode: "dev", Driver: "sqlite", Data: t.TempDir(), Policy: "whimsy"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "priority policy")
}

func TestValidateCoercesUnknownModeToDev(t *testing.T) {
	cfg := &Config{Mode: "staging", Driver: "sqlite", Data: t.TempDir(), Policy: "tree"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "dev", cfg.Mode)
}

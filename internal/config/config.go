// Package config is the dispatcher's configuration layer, modeled on
// internal/profile.Profile from the teacher repo: a flat struct
// populated by FromEnv (bound to viper/cobra flags in cmd/taxi) and
// checked by Validate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/erinaldi/taxi/internal/task"
)

// Config is the configuration needed to start `taxi serve` or run
// `taxi init-pool` (spec.md §6's initialization entry point, plus the
// ambient HTTP/store wiring this expansion adds).
type Config struct {
	Mode     string // "dev", "prod"
	Driver   string // "sqlite" or "postgres"
	DSN      string
	Data     string // data directory, used to derive a default sqlite DSN
	Addr     string
	Policy   string // priority assignment policy, see task.PriorityPolicy
	LogLevel string
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables, to be
// overridden by any cobra flags/viper bindings set in cmd/taxi.
func (c *Config) FromEnv() {
	c.Mode = getEnvOrDefault("TAXI_MODE", "dev")
	c.Driver = getEnvOrDefault("TAXI_DRIVER", "sqlite")
	c.DSN = getEnvOrDefault("TAXI_DSN", "")
	c.Data = getEnvOrDefault("TAXI_DATA", "./data")
	c.Addr = fmt.Sprintf(":%d", getEnvOrDefaultInt("TAXI_PORT", 8080))
	c.Policy = getEnvOrDefault("TAXI_PRIORITY_POLICY", string(task.PolicyTree))
	c.LogLevel = getEnvOrDefault("TAXI_LOG_LEVEL", "info")
}

// Validate checks Mode and Driver, and resolves a default sqlite DSN
// under Data when none was supplied.
func (c *Config) Validate() error {
	if c.Mode != "dev" && c.Mode != "prod" {
		c.Mode = "dev"
	}

	switch c.Driver {
	case "sqlite":
		if c.DSN == "" {
			dataDir, err := resolveDataDir(c.Data)
			if err != nil {
				return errors.Wrap(err, "resolve data directory")
			}
			c.Data = dataDir
			c.DSN = filepath.Join(dataDir, fmt.Sprintf("taxi_%s.db", c.Mode))
		}
	case "postgres":
		if c.DSN == "" {
			return errors.New("config: TAXI_DSN is required when TAXI_DRIVER=postgres")
		}
	default:
		return errors.Errorf("config: unknown driver %q (want sqlite or postgres)", c.Driver)
	}

	switch task.PriorityPolicy(c.Policy) {
	case task.PolicyTree, task.PolicyTrunk, task.PolicyAnarchy:
	default:
		return errors.Errorf("config: unknown priority policy %q", c.Policy)
	}

	return nil
}

func resolveDataDir(dataDir string) (string, error) {
	if !filepath.IsAbs(dataDir) {
		abs, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = abs
	}
	dataDir = strings.TrimRight(dataDir, "\\/")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create data directory %s", dataDir)
	}
	return dataDir, nil
}

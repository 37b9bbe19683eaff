/*
Package config loads server configuration.

PURPOSE:
  Central place for everything tunable at deploy time: HTTP port,
  database location, scheduler cadence, log level. Values come from a
  YAML file with environment variable overrides, so the same binary
  runs in dev (flags or a local file) and in containers (env only).

PRECEDENCE (lowest to highest):
  1. Built-in defaults
  2. YAML file (if present)
  3. Environment variables (BILLING_ prefix)
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all server configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port int `yaml:"port"`

	// DBPath is the SQLite database path. ":memory:" for ephemeral.
	DBPath string `yaml:"db_path"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// Scheduler controls the daily interest and overdue jobs.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// CORSOrigins lists allowed browser origins.
	CORSOrigins []string `yaml:"cors_origins"`
}

// SchedulerConfig controls the background batch jobs.
type SchedulerConfig struct {
	// Enabled turns the scheduler on. Disable when running behind an
	// external cron that calls the admin endpoints instead.
	Enabled bool `yaml:"enabled"`

	// CheckInterval is how often the scheduler wakes up. The jobs
	// themselves are idempotent per day, so a short interval is safe.
	CheckInterval time.Duration `yaml:"check_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:     8080,
		DBPath:   "billing.db",
		LogLevel: "info",
		Scheduler: SchedulerConfig{
			Enabled:       true,
			CheckInterval: 1 * time.Hour,
		},
		CORSOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
	}
}

// Load reads configuration from the given YAML file (optional, pass ""
// to skip) and applies environment overrides on top of defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.Scheduler.Enabled && c.Scheduler.CheckInterval < time.Minute {
		return fmt.Errorf("scheduler check_interval must be at least 1m, got %v", c.Scheduler.CheckInterval)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BILLING_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("BILLING_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("BILLING_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BILLING_SCHEDULER_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Scheduler.Enabled = enabled
		}
	}
	if v := os.Getenv("BILLING_SCHEDULER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scheduler.CheckInterval = d
		}
	}
}

// Package config loads and watches the botrunner YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tannerhat/botjobs/pkg/engine"
	"github.com/tannerhat/botjobs/pkg/security"
)

// Config is the root botrunner configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Store   StoreConfig   `yaml:"store"`
	Trigger TriggerConfig `yaml:"trigger"`
	HTTP    HTTPConfig    `yaml:"http"`
}

// EngineConfig holds the processing tunables. Durations are whole
// seconds in the file.
type EngineConfig struct {
	BatchLimit    int `yaml:"batch_limit"`
	StalenessSec  int `yaml:"staleness_sec"`
	MaxAttempts   int `yaml:"max_attempts"`
	JobTimeoutSec int `yaml:"job_timeout_sec"`
	Concurrency   int `yaml:"concurrency"`
}

// StoreConfig selects and connects the job store backend.
type StoreConfig struct {
	// Driver is one of "sqlite", "postgres", "redis".
	Driver string `yaml:"driver"`
	// DSN is the database path (sqlite) or connection string (postgres).
	DSN string `yaml:"dsn"`
	// RedisAddr is the host:port of the Redis backend.
	RedisAddr string `yaml:"redis_addr"`
}

// TriggerConfig controls the in-process cadence trigger.
type TriggerConfig struct {
	Enabled bool `yaml:"enabled"`
	// Cron is a standard 5-field cron expression, e.g. "* * * * *".
	Cron string `yaml:"cron"`
}

// HTTPConfig controls the on-demand HTTP trigger surface.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			BatchLimit:    100,
			StalenessSec:  300,
			MaxAttempts:   3,
			JobTimeoutSec: 30,
			Concurrency:   10,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "botjobs.db",
		},
		Trigger: TriggerConfig{
			Enabled: true,
			Cron:    "* * * * *",
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Addr:    ":8090",
		},
	}
}

// Load reads and validates a configuration file. Missing fields fall
// back to Default() values.
func Load(path string) (Config, error) {
	cfg := Default()

	content, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks ranges and backend selection.
func (c Config) Validate() error {
	if c.Engine.BatchLimit < 1 || c.Engine.BatchLimit > security.MaxBatchLimit {
		return fmt.Errorf("config: batch_limit %d out of range [1, %d]", c.Engine.BatchLimit, security.MaxBatchLimit)
	}
	if c.Engine.MaxAttempts < 1 || c.Engine.MaxAttempts > security.MaxAttempts {
		return fmt.Errorf("config: max_attempts %d out of range [1, %d]", c.Engine.MaxAttempts, security.MaxAttempts)
	}
	if c.Engine.Concurrency < 1 || c.Engine.Concurrency > security.MaxConcurrency {
		return fmt.Errorf("config: concurrency %d out of range [1, %d]", c.Engine.Concurrency, security.MaxConcurrency)
	}
	if c.Engine.StalenessSec < 1 {
		return fmt.Errorf("config: staleness_sec must be positive")
	}
	if c.Engine.JobTimeoutSec < 1 {
		return fmt.Errorf("config: job_timeout_sec must be positive")
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("config: store.dsn required for driver %q", c.Store.Driver)
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("config: store.redis_addr required for driver redis")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}

	if c.Trigger.Enabled && c.Trigger.Cron == "" {
		return fmt.Errorf("config: trigger.cron required when trigger is enabled")
	}
	return nil
}

// Staleness returns the staleness threshold as a duration.
func (c EngineConfig) Staleness() time.Duration {
	return time.Duration(c.StalenessSec) * time.Second
}

// JobTimeout returns the per-job time budget as a duration.
func (c EngineConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSec) * time.Second
}

// EngineOptions converts the engine section into engine options.
func (c EngineConfig) EngineOptions() []engine.Option {
	return []engine.Option{
		engine.BatchLimit(c.BatchLimit),
		engine.Staleness(c.Staleness()),
		engine.MaxAttempts(c.MaxAttempts),
		engine.JobTimeout(c.JobTimeout()),
		engine.Concurrency(c.Concurrency),
	}
}

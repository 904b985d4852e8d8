package engine

import (
	"time"

	"github.com/tannerhat/botjobs/pkg/security"
)

// Config holds engine configuration. All values are tunables, not
// constants buried in logic.
type Config struct {
	// BatchLimit bounds the number of jobs claimed per run.
	// Default: 100
	BatchLimit int

	// Staleness is how long an in-flight claim may go without
	// completing before a later run may reclaim it.
	// Default: 5 minutes
	Staleness time.Duration

	// MaxAttempts is the attempt budget per job; a job claimed beyond
	// it is forced failed instead of re-queued indefinitely.
	// Default: 3
	MaxAttempts int

	// JobTimeout is the per-job execution time budget.
	// Default: 30 seconds
	JobTimeout time.Duration

	// Concurrency bounds parallel job execution within a run.
	// Default: 10
	Concurrency int

	// StorageRetry configures backoff for transient faults on terminal
	// status writes.
	StorageRetry *RetryConfig
}

// DefaultConfig returns engine defaults suitable for a once-a-minute
// trigger cadence.
func DefaultConfig() Config {
	return Config{
		BatchLimit:  100,
		Staleness:   5 * time.Minute,
		MaxAttempts: 3,
		JobTimeout:  30 * time.Second,
		Concurrency: 10,
	}
}

// Option configures an Engine.
type Option interface {
	Apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) Apply(c *Config) { f(c) }

// BatchLimit sets the per-run claim limit.
// Values are clamped to [1, security.MaxBatchLimit].
func BatchLimit(n int) Option {
	return optionFunc(func(c *Config) {
		c.BatchLimit = security.ClampBatchLimit(n)
	})
}

// Staleness sets the in-flight claim staleness threshold.
func Staleness(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d > 0 {
			c.Staleness = d
		}
	})
}

// MaxAttempts sets the per-job attempt budget.
// Values are clamped to [1, security.MaxAttempts].
func MaxAttempts(n int) Option {
	return optionFunc(func(c *Config) {
		c.MaxAttempts = security.ClampAttempts(n)
	})
}

// JobTimeout sets the per-job execution time budget.
func JobTimeout(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d > 0 {
			c.JobTimeout = d
		}
	})
}

// Concurrency sets the parallel execution bound within a run.
// Values are clamped to [1, security.MaxConcurrency].
func Concurrency(n int) Option {
	return optionFunc(func(c *Config) {
		c.Concurrency = security.ClampConcurrency(n)
	})
}

// StorageRetry overrides the backoff configuration for terminal writes.
func StorageRetry(cfg RetryConfig) Option {
	return optionFunc(func(c *Config) {
		c.StorageRetry = &cfg
	})
}

// Package botjobs provides a bot job engine: bounded batches of
// pending jobs are claimed atomically, executed in isolation, and
// driven to a terminal status, with stale claims from crashed runs
// reclaimed automatically.
//
// This is the main package users should import. It re-exports the
// public types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	// Create storage and engine
//	db, _ := gorm.Open(sqlite.Open("bots.db"), &gorm.Config{})
//	store := botjobs.NewGormStore(db)
//	store.Migrate(context.Background())
//
//	reg := botjobs.NewRegistry()
//	botjobs.Register(reg, "send-digest", func(ctx context.Context, args DigestArgs) error {
//	    return sendDigest(ctx, args)
//	})
//
//	eng := botjobs.NewEngine(store, reg)
//
//	// Enqueue work
//	botjobs.Enqueue(ctx, store, "send-digest", DigestArgs{User: "u1"})
//
//	// Process one batch (safe to call on any cadence, even overlapping)
//	result, _ := eng.RunOnce(ctx)
//	fmt.Println(result.Processed, result.Failed)
package botjobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/tannerhat/botjobs/pkg/core"
	"github.com/tannerhat/botjobs/pkg/engine"
	"github.com/tannerhat/botjobs/pkg/registry"
	"github.com/tannerhat/botjobs/pkg/security"
	"github.com/tannerhat/botjobs/pkg/storage"
	"github.com/tannerhat/botjobs/pkg/trigger"
)

// Type aliases so callers only need this package.
type (
	// Job represents a unit of automated work.
	Job = core.Job

	// JobStatus represents the current state of a job.
	JobStatus = core.JobStatus

	// Store defines the persistence layer for jobs.
	Store = core.Store

	// Event is the interface for all engine events.
	Event = core.Event

	// JobClaimed is emitted when a run claims a job.
	JobClaimed = core.JobClaimed

	// JobCompleted is emitted when a job completes successfully.
	JobCompleted = core.JobCompleted

	// JobFailed is emitted when a job is marked failed.
	JobFailed = core.JobFailed

	// RunFinished is emitted at the end of each engine run.
	RunFinished = core.RunFinished

	// UnknownKindError is the failure recorded for jobs whose kind has
	// no registered action.
	UnknownKindError = core.UnknownKindError

	// MaxAttemptsError is the failure recorded for jobs that exhausted
	// their attempt budget.
	MaxAttemptsError = core.MaxAttemptsError

	// Engine claims and executes batches of jobs.
	Engine = engine.Engine

	// Result reports the outcome of a single engine run.
	Result = engine.Result

	// Option configures an Engine.
	Option = engine.Option

	// RetryConfig configures retries for terminal storage writes.
	RetryConfig = engine.RetryConfig

	// Registry maps job kinds to their actions.
	Registry = registry.Registry

	// ActionFunc is the type-erased form of a registered action.
	ActionFunc = registry.ActionFunc

	// Trigger invokes an engine on a cron cadence.
	Trigger = trigger.Trigger

	// GormStore implements Store using GORM.
	GormStore = storage.GormStore

	// RedisStore implements Store using Redis.
	RedisStore = storage.RedisStore

	// PoolOption configures the SQL connection pool.
	PoolOption = storage.PoolOption
)

// Status constants
const (
	StatusPending   = core.StatusPending
	StatusInFlight  = core.StatusInFlight
	StatusCompleted = core.StatusCompleted
	StatusFailed    = core.StatusFailed
)

// Security limits
const (
	MaxKindLength         = security.MaxKindLength
	MaxPayloadSize        = security.MaxPayloadSize
	MaxAttemptsLimit      = security.MaxAttempts
	MaxConcurrencyLimit   = security.MaxConcurrency
	MaxBatchLimit         = security.MaxBatchLimit
	MaxErrorMessageLength = security.MaxErrorMessageLength
)

// Error variables
var (
	ErrInvalidKind     = core.ErrInvalidKind
	ErrKindTooLong     = core.ErrKindTooLong
	ErrPayloadTooLarge = core.ErrPayloadTooLarge
	ErrJobNotFound     = core.ErrJobNotFound
	ErrClaimLost       = core.ErrClaimLost
	ErrEngineRunning   = core.ErrEngineRunning
)

// NewEngine creates an engine over the given store and registry.
func NewEngine(s Store, reg *Registry, opts ...Option) *Engine {
	return engine.New(s, reg, opts...)
}

// NewRegistry creates an empty action registry.
func NewRegistry() *Registry {
	return registry.New()
}

// Register binds a typed action to a job kind. The payload is decoded
// from JSON into T before the action runs.
func Register[T any](r *Registry, kind string, fn func(ctx context.Context, args T) error) {
	registry.Register(r, kind, fn)
}

// NewGormStore creates a GORM-backed job store.
func NewGormStore(db *gorm.DB) *GormStore {
	return storage.NewGormStore(db)
}

// NewGormStoreWithPool creates a GORM-backed job store with connection
// pool tuning applied.
func NewGormStoreWithPool(db *gorm.DB, opts ...PoolOption) (*GormStore, error) {
	return storage.NewGormStoreWithPool(db, opts...)
}

// NewRedisStore creates a Redis-backed job store.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return storage.NewRedisStore(rdb)
}

// Connection pool options for NewGormStoreWithPool.

// MaxOpenConns sets the maximum number of open SQL connections.
func MaxOpenConns(n int) PoolOption { return storage.MaxOpenConns(n) }

// MaxIdleConns sets the maximum number of idle SQL connections.
func MaxIdleConns(n int) PoolOption { return storage.MaxIdleConns(n) }

// ConnMaxLifetime sets the maximum lifetime of an SQL connection.
func ConnMaxLifetime(d time.Duration) PoolOption { return storage.ConnMaxLifetime(d) }

// ConnMaxIdleTime sets how long an SQL connection may sit idle.
func ConnMaxIdleTime(d time.Duration) PoolOption { return storage.ConnMaxIdleTime(d) }

// NewTrigger creates a cron trigger driving the given engine.
func NewTrigger(eng *Engine, spec string) *Trigger {
	return trigger.New(eng, spec)
}

// Engine options.

// BatchLimit bounds how many jobs a single run may claim.
func BatchLimit(n int) Option { return engine.BatchLimit(n) }

// Staleness sets how old an in-flight claim must be before it is
// considered abandoned and reclaimable.
func Staleness(d time.Duration) Option { return engine.Staleness(d) }

// MaxAttempts sets the per-job attempt budget.
func MaxAttempts(n int) Option { return engine.MaxAttempts(n) }

// JobTimeout sets the per-job execution time budget.
func JobTimeout(d time.Duration) Option { return engine.JobTimeout(d) }

// Concurrency sets how many claimed jobs execute at once within a run.
func Concurrency(n int) Option { return engine.Concurrency(n) }

// StorageRetry configures retries for terminal storage writes.
func StorageRetry(cfg RetryConfig) Option { return engine.StorageRetry(cfg) }

// ValidateKind validates a job kind.
func ValidateKind(kind string) error {
	return security.ValidateKind(kind)
}

// SanitizeErrorMessage truncates and sanitizes failure reasons for storage.
func SanitizeErrorMessage(msg string) string {
	return security.SanitizeErrorMessage(msg)
}

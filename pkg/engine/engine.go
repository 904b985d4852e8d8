package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tannerhat/botjobs/pkg/core"
	"github.com/tannerhat/botjobs/pkg/registry"
)

// Result is the aggregate outcome of one processing run. Processed and
// Failed always sum to the number of jobs claimed in that run.
type Result struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Engine drains pending bot jobs: it claims a bounded batch, executes
// each job in isolation, and records terminal outcomes. RunOnce is safe
// to invoke concurrently; overlapping runs never double-process a job.
type Engine struct {
	store    core.Store
	registry *registry.Registry
	config   Config
	logger   *slog.Logger

	mu         sync.RWMutex
	onComplete []func(context.Context, *core.Job)
	onFail     []func(context.Context, *core.Job, error)
	eventSubs  []chan core.Event
}

// New creates an Engine over the given store and action registry.
func New(store core.Store, reg *registry.Registry, opts ...Option) *Engine {
	config := DefaultConfig()
	for _, opt := range opts {
		opt.Apply(&config)
	}
	if config.StorageRetry == nil {
		defaultCfg := DefaultRetryConfig()
		config.StorageRetry = &defaultCfg
	}

	return &Engine{
		store:    store,
		registry: reg,
		config:   config,
		logger:   slog.Default(),
	}
}

// SetLogger replaces the engine's logger. Must be called before RunOnce.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Store returns the underlying job store.
func (e *Engine) Store() core.Store {
	return e.store
}

// Registry returns the action registry.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// RunOnce performs one full processing pass: claim a batch, execute it,
// and report the aggregate. An empty batch is a normal outcome. A store
// fault on the claim aborts the run with an error; jobs already claimed
// stay in_flight for staleness recovery on a later run.
func (e *Engine) RunOnce(ctx context.Context) (Result, error) {
	start := time.Now()
	claimant := uuid.New().String()

	batch, err := e.store.ClaimBatch(ctx, claimant, e.config.BatchLimit, e.config.Staleness, start)
	if err != nil {
		return Result{}, fmt.Errorf("botjobs: claim batch: %w", err)
	}

	for _, job := range batch {
		e.Emit(&core.JobClaimed{Job: job, Timestamp: start})
	}

	var processed, failed atomic.Int64

	// Claimed jobs are independent units; execute them concurrently
	// but wait for every outcome before aggregating.
	g := new(errgroup.Group)
	g.SetLimit(e.config.Concurrency)
	for _, job := range batch {
		job := job
		g.Go(func() error {
			if e.executeOne(ctx, claimant, job) {
				processed.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait() // per-job failures never surface here

	result := Result{
		Processed: int(processed.Load()),
		Failed:    int(failed.Load()),
	}

	e.Emit(&core.RunFinished{
		Claimed:   len(batch),
		Processed: result.Processed,
		Failed:    result.Failed,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	})

	if len(batch) > 0 {
		e.logger.Info("run finished",
			"claimed", len(batch),
			"processed", result.Processed,
			"failed", result.Failed,
			"duration", time.Since(start))
	}

	return result, nil
}

// OnJobComplete registers a callback for when a job completes successfully.
func (e *Engine) OnJobComplete(fn func(context.Context, *core.Job)) {
	e.mu.Lock()
	e.onComplete = append(e.onComplete, fn)
	e.mu.Unlock()
}

// OnJobFail registers a callback for when a job reaches the failed status.
func (e *Engine) OnJobFail(fn func(context.Context, *core.Job, error)) {
	e.mu.Lock()
	e.onFail = append(e.onFail, fn)
	e.mu.Unlock()
}

// Events returns a channel for receiving engine events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (e *Engine) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	e.mu.Lock()
	e.eventSubs = append(e.eventSubs, ch)
	e.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
// The channel is not closed; after Unsubscribe returns, no further
// events will be sent to it.
func (e *Engine) Unsubscribe(ch <-chan core.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, sub := range e.eventSubs {
		if sub == ch {
			e.eventSubs = append(e.eventSubs[:i], e.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit sends an event to all subscribers, dropping for slow consumers.
func (e *Engine) Emit(ev core.Event) {
	e.mu.RLock()
	subs := make([]chan core.Event, len(e.eventSubs))
	copy(subs, e.eventSubs)
	e.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			// Drop if full - this prevents blocking on slow consumers
		}
	}
}

func (e *Engine) callCompleteHooks(ctx context.Context, job *core.Job) {
	e.mu.RLock()
	hooks := make([]func(context.Context, *core.Job), len(e.onComplete))
	copy(hooks, e.onComplete)
	e.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job)
	}
}

func (e *Engine) callFailHooks(ctx context.Context, job *core.Job, err error) {
	e.mu.RLock()
	hooks := make([]func(context.Context, *core.Job, error), len(e.onFail))
	copy(hooks, e.onFail)
	e.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job, err)
	}
}

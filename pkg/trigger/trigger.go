// Package trigger invokes the engine's processing entry point on a
// fixed cadence.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/tannerhat/botjobs/pkg/core"
	"github.com/tannerhat/botjobs/pkg/engine"
)

// Runner is the processing entry point the trigger drives. The engine
// guarantees overlap safety, so the trigger never serializes firings.
type Runner interface {
	RunOnce(ctx context.Context) (engine.Result, error)
}

// Trigger fires Runner.RunOnce on a cron cadence. The expression uses
// the standard 5-field format and also accepts descriptors such as
// "@every 1m".
type Trigger struct {
	runner  Runner
	spec    string
	logger  *slog.Logger
	running atomic.Bool
}

// New creates a Trigger for the given runner and cron expression.
func New(runner Runner, spec string) *Trigger {
	return &Trigger{
		runner: runner,
		spec:   spec,
		logger: slog.Default(),
	}
}

// SetLogger replaces the trigger's logger. Must be called before Start.
func (t *Trigger) SetLogger(logger *slog.Logger) {
	if logger != nil {
		t.logger = logger
	}
}

// Start begins firing on the cadence and blocks until the context is
// cancelled. Run-level failures are logged and the cadence continues;
// a run that finds no work is silent.
func (t *Trigger) Start(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		return core.ErrEngineRunning
	}
	defer t.running.Store(false)

	c := cron.New()
	_, err := c.AddFunc(t.spec, func() {
		result, err := t.runner.RunOnce(ctx)
		if err != nil {
			t.logger.Error("trigger run failed", "error", err)
			return
		}
		if result.Processed+result.Failed > 0 {
			t.logger.Debug("trigger run finished",
				"processed", result.Processed,
				"failed", result.Failed)
		}
	})
	if err != nil {
		return fmt.Errorf("botjobs: invalid cron expression %q: %w", t.spec, err)
	}

	c.Start()
	<-ctx.Done()

	// Wait for in-progress firings before returning.
	<-c.Stop().Done()
	return ctx.Err()
}

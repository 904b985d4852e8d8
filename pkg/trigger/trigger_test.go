package trigger

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tannerhat/botjobs/pkg/core"
	"github.com/tannerhat/botjobs/pkg/engine"
)

// countingRunner records invocations.
type countingRunner struct {
	runs atomic.Int64
	err  error
}

func (r *countingRunner) RunOnce(ctx context.Context) (engine.Result, error) {
	r.runs.Add(1)
	return engine.Result{Processed: 1}, r.err
}

func TestStart_FiresOnCadence(t *testing.T) {
	runner := &countingRunner{}
	trig := New(runner, "@every 20ms")

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	err := trig.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, runner.runs.Load(), int64(2), "should fire repeatedly")
}

func TestStart_RunFailureKeepsCadence(t *testing.T) {
	runner := &countingRunner{err: errors.New("store unreachable")}
	trig := New(runner, "@every 20ms")

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, trig.Start(ctx), context.DeadlineExceeded)
	assert.GreaterOrEqual(t, runner.runs.Load(), int64(2), "failures must not stop the cadence")
}

func TestStart_InvalidExpression(t *testing.T) {
	trig := New(&countingRunner{}, "not a cron spec")

	err := trig.Start(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, context.Canceled)
}

func TestStart_DoubleStartRejected(t *testing.T) {
	runner := &countingRunner{}
	trig := New(runner, "@every 1h")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	go func() {
		close(started)
		_ = trig.Start(ctx)
	}()
	<-started
	time.Sleep(50 * time.Millisecond)

	assert.ErrorIs(t, trig.Start(ctx), core.ErrEngineRunning)
}

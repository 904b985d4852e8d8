package botjobs_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	botjobs "github.com/tannerhat/botjobs"
)

var integrationTestCounter int

func setupIntegrationStore(t *testing.T) *botjobs.GormStore {
	t.Helper()

	integrationTestCounter++
	dbPath := fmt.Sprintf("/tmp/botjobs_integration_test_%d_%d.db", os.Getpid(), integrationTestCounter)
	t.Cleanup(func() {
		os.Remove(dbPath)
	})

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// SQLite serializes writers anyway; one connection avoids busy errors
	// in the overlapping-run tests.
	sqlDB.SetMaxOpenConns(1)

	store := botjobs.NewGormStore(db)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestIntegration_FullLifecycle(t *testing.T) {
	store := setupIntegrationStore(t)
	ctx := context.Background()

	type digestArgs struct {
		User string `json:"user"`
	}

	var mu sync.Mutex
	var delivered []string

	reg := botjobs.NewRegistry()
	botjobs.Register(reg, "send-digest", func(ctx context.Context, args digestArgs) error {
		mu.Lock()
		delivered = append(delivered, args.User)
		mu.Unlock()
		return nil
	})
	botjobs.Register(reg, "flaky", func(ctx context.Context, _ struct{}) error {
		return errors.New("upstream unavailable")
	})

	okID, err := botjobs.Enqueue(ctx, store, "send-digest", digestArgs{User: "u1"})
	require.NoError(t, err)
	badID, err := botjobs.Enqueue(ctx, store, "flaky", struct{}{})
	require.NoError(t, err)
	unknownID, err := botjobs.Enqueue(ctx, store, "no-such-kind", nil)
	require.NoError(t, err)
	laterID, err := botjobs.Enqueue(ctx, store, "send-digest", digestArgs{User: "u2"}, botjobs.Delay(time.Hour))
	require.NoError(t, err)

	eng := botjobs.NewEngine(store, reg)
	result, err := eng.RunOnce(ctx)
	require.NoError(t, err)

	// The delayed job stays out of the batch.
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, []string{"u1"}, delivered)

	okJob, err := store.GetJob(ctx, okID)
	require.NoError(t, err)
	assert.Equal(t, botjobs.StatusCompleted, okJob.Status)
	require.NotNil(t, okJob.CompletedAt)
	assert.Empty(t, okJob.LastError)

	badJob, err := store.GetJob(ctx, badID)
	require.NoError(t, err)
	assert.Equal(t, botjobs.StatusFailed, badJob.Status)
	assert.Contains(t, badJob.LastError, "upstream unavailable")

	unknownJob, err := store.GetJob(ctx, unknownID)
	require.NoError(t, err)
	assert.Equal(t, botjobs.StatusFailed, unknownJob.Status)
	assert.Equal(t, `unknown kind "no-such-kind"`, unknownJob.LastError)

	laterJob, err := store.GetJob(ctx, laterID)
	require.NoError(t, err)
	assert.Equal(t, botjobs.StatusPending, laterJob.Status)

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[botjobs.StatusPending])
	assert.Equal(t, int64(1), counts[botjobs.StatusCompleted])
	assert.Equal(t, int64(2), counts[botjobs.StatusFailed])
}

func TestIntegration_BatchLimitDrainsOverRuns(t *testing.T) {
	store := setupIntegrationStore(t)
	ctx := context.Background()

	var executed atomic.Int32
	reg := botjobs.NewRegistry()
	reg.RegisterFunc("tick", func(ctx context.Context, _ []byte) error {
		executed.Add(1)
		return nil
	})

	for i := 0; i < 5; i++ {
		_, err := botjobs.Enqueue(ctx, store, "tick", nil)
		require.NoError(t, err)
	}

	eng := botjobs.NewEngine(store, reg, botjobs.BatchLimit(3))

	first, err := eng.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Processed+first.Failed)

	second, err := eng.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Processed+second.Failed)

	third, err := eng.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, third.Processed+third.Failed)

	assert.Equal(t, int32(5), executed.Load())
}

func TestIntegration_OverlappingRunsNeverDoubleProcess(t *testing.T) {
	store := setupIntegrationStore(t)
	ctx := context.Background()

	const jobCount = 12

	var perJob sync.Map
	reg := botjobs.NewRegistry()
	botjobs.Register(reg, "count", func(ctx context.Context, id string) error {
		v, _ := perJob.LoadOrStore(id, new(atomic.Int32))
		v.(*atomic.Int32).Add(1)
		time.Sleep(5 * time.Millisecond)
		return nil
	})

	for i := 0; i < jobCount; i++ {
		_, err := botjobs.Enqueue(ctx, store, "count", fmt.Sprintf("job-%d", i))
		require.NoError(t, err)
	}

	eng := botjobs.NewEngine(store, reg, botjobs.BatchLimit(jobCount))

	var wg sync.WaitGroup
	var total atomic.Int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := eng.RunOnce(ctx)
			assert.NoError(t, err)
			total.Add(int32(result.Processed + result.Failed))
		}()
	}
	wg.Wait()

	// Every job lands in exactly one run's tally.
	assert.Equal(t, int32(jobCount), total.Load())
	perJob.Range(func(_, v any) bool {
		assert.Equal(t, int32(1), v.(*atomic.Int32).Load())
		return true
	})

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(jobCount), counts[botjobs.StatusCompleted])
}

func TestIntegration_StaleClaimRecovered(t *testing.T) {
	store := setupIntegrationStore(t)
	ctx := context.Background()

	// Simulate a job orphaned by a crashed run: in_flight with an old
	// claim timestamp from a claimant that will never report back.
	staleAt := time.Now().Add(-time.Hour)
	orphan := &botjobs.Job{
		Kind:      "rescue-me",
		Status:    botjobs.StatusInFlight,
		Attempts:  1,
		ClaimedAt: &staleAt,
		ClaimedBy: "dead-run",
	}
	require.NoError(t, store.Enqueue(ctx, orphan))

	var executed atomic.Int32
	reg := botjobs.NewRegistry()
	reg.RegisterFunc("rescue-me", func(ctx context.Context, _ []byte) error {
		executed.Add(1)
		return nil
	})

	eng := botjobs.NewEngine(store, reg, botjobs.Staleness(5*time.Minute))
	result, err := eng.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, int32(1), executed.Load())

	job, err := store.GetJob(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, botjobs.StatusCompleted, job.Status)
	assert.Equal(t, 2, job.Attempts)
	assert.NotEqual(t, "dead-run", job.ClaimedBy)
}

func TestIntegration_PanicIsolatedToJob(t *testing.T) {
	store := setupIntegrationStore(t)
	ctx := context.Background()

	reg := botjobs.NewRegistry()
	reg.RegisterFunc("explode", func(ctx context.Context, _ []byte) error {
		panic("boom")
	})
	reg.RegisterFunc("fine", func(ctx context.Context, _ []byte) error {
		return nil
	})

	panicID, err := botjobs.Enqueue(ctx, store, "explode", nil)
	require.NoError(t, err)
	_, err = botjobs.Enqueue(ctx, store, "fine", nil)
	require.NoError(t, err)

	eng := botjobs.NewEngine(store, reg)
	result, err := eng.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Failed)

	job, err := store.GetJob(ctx, panicID)
	require.NoError(t, err)
	assert.Equal(t, botjobs.StatusFailed, job.Status)
	assert.Contains(t, job.LastError, "panic: boom")
}

func TestIntegration_EventsObserveRun(t *testing.T) {
	store := setupIntegrationStore(t)
	ctx := context.Background()

	reg := botjobs.NewRegistry()
	reg.RegisterFunc("tick", func(ctx context.Context, _ []byte) error { return nil })

	_, err := botjobs.Enqueue(ctx, store, "tick", nil)
	require.NoError(t, err)

	eng := botjobs.NewEngine(store, reg)
	events := eng.Events()
	defer eng.Unsubscribe(events)

	_, err = eng.RunOnce(ctx)
	require.NoError(t, err)

	var sawClaimed, sawCompleted bool
	var finished *botjobs.RunFinished
	deadline := time.After(2 * time.Second)
	for finished == nil {
		select {
		case ev := <-events:
			switch e := ev.(type) {
			case *botjobs.JobClaimed:
				sawClaimed = true
			case *botjobs.JobCompleted:
				sawCompleted = true
			case *botjobs.RunFinished:
				finished = e
			}
		case <-deadline:
			t.Fatal("timed out waiting for RunFinished event")
		}
	}

	assert.True(t, sawClaimed)
	assert.True(t, sawCompleted)
	assert.Equal(t, 1, finished.Claimed)
	assert.Equal(t, 1, finished.Processed)
	assert.Equal(t, 0, finished.Failed)
}

func TestIntegration_CronTriggerDrivesEngine(t *testing.T) {
	store := setupIntegrationStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var executed atomic.Int32
	reg := botjobs.NewRegistry()
	reg.RegisterFunc("tick", func(ctx context.Context, _ []byte) error {
		executed.Add(1)
		return nil
	})

	_, err := botjobs.Enqueue(ctx, store, "tick", nil)
	require.NoError(t, err)

	eng := botjobs.NewEngine(store, reg)
	trig := botjobs.NewTrigger(eng, "@every 20ms")

	done := make(chan error, 1)
	go func() {
		done <- trig.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		return executed.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not stop after cancel")
	}
}

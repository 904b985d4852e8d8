package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tannerhat/botjobs/pkg/core"
)

// executeOne runs a single claimed job and writes its terminal status.
// Returns true when the job reached completed. Every failure mode —
// unknown kind, exhausted attempt budget, action error, panic, timeout —
// is captured here and never propagates to sibling jobs.
func (e *Engine) executeOne(ctx context.Context, claimant string, job *core.Job) bool {
	start := time.Now()

	actionErr := e.runAction(ctx, job)
	if actionErr == nil {
		if err := e.completeWithRetry(ctx, job.ID, claimant); err != nil {
			if errors.Is(err, core.ErrClaimLost) {
				// A stale reclaim took the job; its outcome belongs to
				// the new claimant. Still ours to count: the action ran
				// here and succeeded.
				e.logger.Warn("claim lost before completion", "job_id", job.ID)
			} else {
				e.logger.Error("failed to mark job completed", "job_id", job.ID, "error", err)
			}
			return true
		}
		e.callCompleteHooks(ctx, job)
		e.Emit(&core.JobCompleted{Job: job, Duration: time.Since(start), Timestamp: time.Now()})
		return true
	}

	e.failWithRetry(ctx, job.ID, claimant, actionErr.Error())
	e.callFailHooks(ctx, job, actionErr)
	e.Emit(&core.JobFailed{Job: job, Error: actionErr, Timestamp: time.Now()})
	e.logger.Debug("job failed", "job_id", job.ID, "kind", job.Kind, "error", actionErr)
	return false
}

// runAction resolves and invokes the job's action capability under the
// configured time budget, converting panics to errors.
func (e *Engine) runAction(ctx context.Context, job *core.Job) (err error) {
	// Attempt budget is checked post-claim: a job re-claimed past its
	// budget is forced failed instead of looping forever.
	if job.Attempts > e.config.MaxAttempts {
		return &core.MaxAttemptsError{Attempts: job.Attempts, Max: e.config.MaxAttempts}
	}

	action, err := e.registry.Lookup(job.Kind)
	if err != nil {
		return err
	}

	execCtx, cancel := context.WithTimeout(ctx, e.config.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := action(execCtx, job.Payload); err != nil {
		return err
	}
	if execCtx.Err() != nil {
		return fmt.Errorf("job exceeded time budget %v: %w", e.config.JobTimeout, execCtx.Err())
	}
	return nil
}

// completeWithRetry marks a job complete with retry on transient failures.
func (e *Engine) completeWithRetry(ctx context.Context, jobID, claimant string) error {
	return retryWithBackoff(ctx, *e.config.StorageRetry, func() error {
		return e.store.Complete(ctx, jobID, claimant, time.Now())
	})
}

// failWithRetry marks a job as failed with retry on transient storage failures.
func (e *Engine) failWithRetry(ctx context.Context, jobID, claimant string, reason string) {
	err := retryWithBackoff(ctx, *e.config.StorageRetry, func() error {
		return e.store.Fail(ctx, jobID, claimant, reason, time.Now())
	})
	if err != nil {
		e.logger.Error("failed to mark job as failed after retries", "job_id", jobID, "error", err)
	}
}

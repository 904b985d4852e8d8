package core

import (
	"context"
	"time"
)

// Store defines the persistence layer for bot jobs. It is the only
// component with write access to job state; every status transition
// goes through it.
//
// ClaimBatch is the correctness-critical operation: two concurrent
// calls must never both transition the same job to in_flight.
type Store interface {
	// Migrate creates the necessary backing structures.
	Migrate(ctx context.Context) error

	// Enqueue adds a new pending job.
	Enqueue(ctx context.Context, job *Job) error

	// ClaimBatch atomically claims up to limit eligible jobs for the
	// given claimant, oldest first. Eligible means pending (and past
	// NotBefore), or in_flight with a claim older than staleness
	// (recovers jobs orphaned by a crashed or timed-out run). Each
	// claimed job has its status set to in_flight, ClaimedAt set to
	// now, ClaimedBy set to claimant, and Attempts incremented. An
	// empty batch is a normal outcome, not an error.
	ClaimBatch(ctx context.Context, claimant string, limit int, staleness time.Duration, now time.Time) ([]*Job, error)

	// Complete marks an in-flight job completed. Returns ErrClaimLost
	// if the claimant no longer holds the claim (a stale reclaim won
	// the race or the job already reached a terminal state).
	Complete(ctx context.Context, jobID, claimant string, now time.Time) error

	// Fail marks an in-flight job failed with the given reason.
	// Returns ErrClaimLost under the same conditions as Complete.
	Fail(ctx context.Context, jobID, claimant string, reason string, now time.Time) error

	// GetJob retrieves a job by ID, or nil if absent.
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// GetJobsByStatus retrieves up to limit jobs in the given status.
	GetJobsByStatus(ctx context.Context, status JobStatus, limit int) ([]*Job, error)

	// CountByStatus returns job counts keyed by status.
	CountByStatus(ctx context.Context) (map[JobStatus]int64, error)
}

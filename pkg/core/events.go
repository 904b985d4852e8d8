package core

import "time"

// Event is the interface for all engine events.
type Event interface {
	eventMarker()
}

// JobClaimed is emitted when a run claims a job.
type JobClaimed struct {
	Job       *Job
	Timestamp time.Time
}

func (*JobClaimed) eventMarker() {}

// JobCompleted is emitted when a job's action succeeds.
type JobCompleted struct {
	Job       *Job
	Duration  time.Duration
	Timestamp time.Time
}

func (*JobCompleted) eventMarker() {}

// JobFailed is emitted when a job reaches the failed status.
type JobFailed struct {
	Job       *Job
	Error     error
	Timestamp time.Time
}

func (*JobFailed) eventMarker() {}

// RunFinished is emitted after a full processing pass, whether or not
// any jobs were claimed.
type RunFinished struct {
	Claimed   int
	Processed int
	Failed    int
	Duration  time.Duration
	Timestamp time.Time
}

func (*RunFinished) eventMarker() {}

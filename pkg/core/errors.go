package core

import (
	"errors"
	"fmt"
)

// Validation errors
var (
	ErrInvalidKind      = errors.New("botjobs: invalid job kind (must be alphanumeric, start with letter)")
	ErrKindTooLong      = errors.New("botjobs: job kind too long")
	ErrPayloadTooLarge  = errors.New("botjobs: job payload exceeds size limit")
	ErrJobNotFound      = errors.New("botjobs: job not found")
	ErrClaimLost        = errors.New("botjobs: claim no longer held for this job")
	ErrEngineRunning    = errors.New("botjobs: trigger already running")
)

// UnknownKindError marks a job whose kind has no registered action.
// It is a per-job failure reason, never a run-level error.
type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown kind %q", e.Kind)
}

// MaxAttemptsError marks a job that exhausted its attempt budget
// without completing.
type MaxAttemptsError struct {
	Attempts int
	Max      int
}

func (e *MaxAttemptsError) Error() string {
	return fmt.Sprintf("max attempts exceeded (%d of %d)", e.Attempts, e.Max)
}

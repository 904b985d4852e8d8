package core

import (
	"time"
)

// JobStatus represents the current state of a bot job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusInFlight  JobStatus = "in_flight" // Claimed by a run, not yet terminal
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Terminal reports whether s is a terminal status. Terminal jobs are
// immutable and never re-claimed.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is a queued unit of automated work: an action to be taken on
// behalf of a non-human session participant.
type Job struct {
	ID      string    `gorm:"primaryKey;size:36"`
	Kind    string    `gorm:"index;size:255;not null"`
	Payload []byte    `gorm:"type:bytes"`
	Status  JobStatus `gorm:"index;size:20;default:'pending'"`

	// Attempts counts claim attempts, incremented at claim time.
	Attempts int `gorm:"default:0"`

	// NotBefore, when set, keeps the job out of claim selection until
	// the given time.
	NotBefore *time.Time `gorm:"index"`

	// ClaimedAt and CompletedAt bound the in-flight window. An
	// in-flight job whose ClaimedAt is older than the staleness
	// threshold is reclaimable.
	ClaimedAt   *time.Time `gorm:"index"`
	CompletedAt *time.Time

	// ClaimedBy is the token of the run holding the claim. Terminal
	// writes are guarded on it so a run that lost its claim to a stale
	// reclaim cannot clobber the new claimant's job.
	ClaimedBy string `gorm:"index;size:36"`

	// LastError holds the sanitized failure reason; set only when the
	// job is failed.
	LastError string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"index;autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tannerhat/botjobs/pkg/core"
	"github.com/tannerhat/botjobs/pkg/security"
)

// eligibleCond is the claim eligibility predicate: pending jobs past
// their NotBefore time, plus in-flight jobs whose claim has gone stale.
const eligibleCond = `(status = ? AND (not_before IS NULL OR not_before <= ?)) OR (status = ? AND claimed_at < ?)`

// GormStore implements core.Store using GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed job store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB returns the underlying *gorm.DB.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// IsSQLite reports whether the store is backed by SQLite.
func (s *GormStore) IsSQLite() bool {
	return s.db != nil && s.db.Dialector.Name() == "sqlite"
}

// Migrate creates the necessary tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Job{})
}

// Enqueue adds a new pending job.
func (s *GormStore) Enqueue(ctx context.Context, job *core.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = core.StatusPending
	}
	return s.db.WithContext(ctx).Create(job).Error
}

// ClaimBatch selects up to limit eligible jobs oldest-first and claims
// each with a conditional update. The per-job update re-checks
// eligibility, so a job selected by a concurrent overlapping call is
// silently skipped here: exactly one claimant wins each job.
func (s *GormStore) ClaimBatch(ctx context.Context, claimant string, limit int, staleness time.Duration, now time.Time) ([]*core.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	staleBefore := now.Add(-staleness)

	var candidates []*core.Job
	err := s.db.WithContext(ctx).
		Where(eligibleCond, core.StatusPending, now, core.StatusInFlight, staleBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	claimed := make([]*core.Job, 0, len(candidates))
	for _, job := range candidates {
		result := s.db.WithContext(ctx).
			Model(&core.Job{}).
			Where("id = ?", job.ID).
			Where(eligibleCond, core.StatusPending, now, core.StatusInFlight, staleBefore).
			Updates(map[string]any{
				"status":     core.StatusInFlight,
				"claimed_at": now,
				"claimed_by": claimant,
				"attempts":   gorm.Expr("attempts + 1"),
			})
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			// Lost to a concurrent claimant between select and update.
			continue
		}

		claimedAt := now
		job.Status = core.StatusInFlight
		job.ClaimedAt = &claimedAt
		job.ClaimedBy = claimant
		job.Attempts++
		claimed = append(claimed, job)
	}
	return claimed, nil
}

// Complete marks a job as successfully completed. The update is guarded
// on the claimant still holding the claim.
func (s *GormStore) Complete(ctx context.Context, jobID, claimant string, now time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND status = ? AND claimed_by = ?", jobID, core.StatusInFlight, claimant).
		Updates(map[string]any{
			"status":       core.StatusCompleted,
			"completed_at": now,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrClaimLost
	}
	return nil
}

// Fail marks a job as failed. The failure reason is sanitized before
// storage; the update is guarded on the claimant still holding the claim.
func (s *GormStore) Fail(ctx context.Context, jobID, claimant string, reason string, now time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND status = ? AND claimed_by = ?", jobID, core.StatusInFlight, claimant).
		Updates(map[string]any{
			"status":       core.StatusFailed,
			"completed_at": now,
			"last_error":   security.SanitizeErrorMessage(reason),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrClaimLost
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *GormStore) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJobsByStatus retrieves jobs by status, oldest first.
func (s *GormStore) GetJobsByStatus(ctx context.Context, status core.JobStatus, limit int) ([]*core.Job, error) {
	var jobList []*core.Job
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobList).Error
	return jobList, err
}

// CountByStatus returns job counts keyed by status.
func (s *GormStore) CountByStatus(ctx context.Context) (map[core.JobStatus]int64, error) {
	type row struct {
		Status core.JobStatus
		N      int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[core.JobStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

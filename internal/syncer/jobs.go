package syncer

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vesseldocs/drivesync/internal/entities"
)

// ErrJobNotFound is returned when a job id does not exist.
var ErrJobNotFound = errors.New("sync job not found")

// Jobs persists sync job rows and their progress counters.
type Jobs struct {
	db *gorm.DB
}

// NewJobs creates a job store.
func NewJobs(db *gorm.DB) *Jobs {
	return &Jobs{db: db}
}

// Create inserts a pending job for a connection.
func (j *Jobs) Create(connectionID string) (*entities.SyncJob, error) {
	job := &entities.SyncJob{
		ID:           uuid.NewString(),
		ConnectionID: connectionID,
		Status:       entities.JobStatusPending,
	}
	if err := j.db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create sync job: %w", err)
	}
	return job, nil
}

// Get retrieves a job by id.
func (j *Jobs) Get(id string) (*entities.SyncJob, error) {
	var job entities.SyncJob
	err := j.db.Where("id = ?", id).First(&job).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync job: %w", err)
	}
	return &job, nil
}

// MarkRunning transitions a job to running and stamps its start time.
func (j *Jobs) MarkRunning(id string) error {
	now := time.Now()
	return j.db.Model(&entities.SyncJob{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": entities.JobStatusRunning, "started_at": now}).Error
}

// IncrementDiscovered bumps the total-found counter as enumeration
// emits files. Uses a SQL-side increment so concurrent updates never
// lose counts.
func (j *Jobs) IncrementDiscovered(id string, n int) error {
	return j.db.Model(&entities.SyncJob{}).
		Where("id = ?", id).
		Update("total_files_found", gorm.Expr("total_files_found + ?", n)).Error
}

// IncrementOutcome bumps one outcome counter for a finished file.
func (j *Jobs) IncrementOutcome(id string, status entities.RecordStatus) error {
	var column string
	switch status {
	case entities.RecordStatusSucceeded:
		column = "files_succeeded"
	case entities.RecordStatusFailed:
		column = "files_failed"
	case entities.RecordStatusSkipped:
		column = "files_skipped"
	default:
		return fmt.Errorf("status %q is not a file outcome", status)
	}

	return j.db.Model(&entities.SyncJob{}).
		Where("id = ?", id).
		Update(column, gorm.Expr(column+" + 1")).Error
}

// Complete transitions a job to its terminal status. jobErr is recorded
// only for failed jobs.
func (j *Jobs) Complete(id string, status entities.JobStatus, jobErr string) error {
	now := time.Now()
	updates := map[string]any{
		"status":       status,
		"completed_at": now,
	}
	if jobErr != "" {
		updates["error"] = jobErr
	}
	return j.db.Model(&entities.SyncJob{}).Where("id = ?", id).Updates(updates).Error
}

// FailPending fails a connection's queued-but-unstarted jobs. Used for
// cancellation before any worker has picked the job up; the eventual
// pickup sees a terminal job and does nothing. Returns how many rows
// were updated.
func (j *Jobs) FailPending(connectionID, reason string) (int64, error) {
	now := time.Now()
	result := j.db.Model(&entities.SyncJob{}).
		Where("connection_id = ? AND status = ?", connectionID, entities.JobStatusPending).
		Updates(map[string]any{
			"status":       entities.JobStatusFailed,
			"error":        reason,
			"completed_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to fail pending jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// HasRunning reports whether a connection has a job still pending or running.
func (j *Jobs) HasRunning(connectionID string) (bool, error) {
	var count int64
	err := j.db.Model(&entities.SyncJob{}).
		Where("connection_id = ? AND status IN ?", connectionID,
			[]entities.JobStatus{entities.JobStatusPending, entities.JobStatusRunning}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check running jobs: %w", err)
	}
	return count > 0, nil
}

// ListByConnection returns a connection's jobs, newest first.
func (j *Jobs) ListByConnection(connectionID string, limit int) ([]entities.SyncJob, error) {
	query := j.db.Where("connection_id = ?", connectionID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var jobs []entities.SyncJob
	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list sync jobs: %w", err)
	}
	return jobs, nil
}

// FailStale marks non-terminal jobs older than the cutoff as failed.
// Covers jobs orphaned by a crash or restart. Returns how many rows
// were updated.
func (j *Jobs) FailStale(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	now := time.Now()

	result := j.db.Model(&entities.SyncJob{}).
		Where("status IN ? AND updated_at < ?",
			[]entities.JobStatus{entities.JobStatusPending, entities.JobStatusRunning}, cutoff).
		Updates(map[string]any{
			"status":       entities.JobStatusFailed,
			"error":        "job abandoned: no progress before cutoff",
			"completed_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to fail stale jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

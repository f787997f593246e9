package entities

import (
	"time"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// SyncJob tracks one batch traversal-and-transfer run. Counters are
// updated with atomic SQL increments so concurrent workers never lose
// updates; completed means no per-file work remains outstanding, even if
// some files failed.
type SyncJob struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ConnectionID string `gorm:"size:36;not null;index" json:"connection_id"`

	Status JobStatus `gorm:"size:20;not null;default:pending" json:"status"`

	TotalFilesFound int `gorm:"not null;default:0" json:"total_files_found"`
	FilesSucceeded  int `gorm:"not null;default:0" json:"files_succeeded"`
	FilesFailed     int `gorm:"not null;default:0" json:"files_failed"`
	FilesSkipped    int `gorm:"not null;default:0" json:"files_skipped"`

	// Error describes why the job as a whole failed (enumeration or
	// credential errors only; per-file failures live on sync records).
	Error string `gorm:"type:text" json:"error,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (SyncJob) TableName() string {
	return "sync_jobs"
}

// Terminal reports whether the job has reached a final state.
func (j *SyncJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

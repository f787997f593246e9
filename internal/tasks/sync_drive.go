package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"
)

// JobExecutor runs a persisted sync job to completion.
type JobExecutor interface {
	Run(ctx context.Context, jobID string) error
}

// SyncDriveTask executes one sync job off the queue. The job row itself
// carries all state; the task payload is just the id.
type SyncDriveTask struct {
	JobID string `json:"job_id"`
}

// Config returns the queue configuration for drive sync tasks.
// Single attempt: a failed run already marked the job failed, and
// replaying a traversal against a half-updated job would double counters.
func (t SyncDriveTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "sync_drive",
		MaxAttempts: 1,
		Timeout:     2 * time.Hour,
		Retention: &backlite.Retention{
			Duration:   72 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// SyncDriveProcessor creates a processor function for SyncDriveTask.
func SyncDriveProcessor(executor JobExecutor) backlite.QueueProcessor[SyncDriveTask] {
	return func(ctx context.Context, task SyncDriveTask) error {
		if executor == nil {
			return fmt.Errorf("job executor not configured")
		}
		if err := executor.Run(ctx, task.JobID); err != nil {
			return fmt.Errorf("run sync job %s: %w", task.JobID, err)
		}
		return nil
	}
}

// NewSyncDriveQueue creates a backlite queue for drive sync tasks.
func NewSyncDriveQueue(executor JobExecutor) backlite.Queue {
	return backlite.NewQueue(SyncDriveProcessor(executor))
}

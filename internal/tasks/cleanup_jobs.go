package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

// StaleJobFailer marks abandoned sync jobs as failed.
type StaleJobFailer interface {
	FailStale(olderThan time.Duration) (int64, error)
}

// CleanupStaleJobsTask fails sync jobs that stopped making progress,
// typically after a crash or unclean shutdown.
type CleanupStaleJobsTask struct {
	MaxAgeMinutes int `json:"max_age_minutes"`
}

// Config returns the queue configuration for stale job cleanup tasks.
func (t CleanupStaleJobsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "cleanup_stale_jobs",
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// CleanupStaleJobsProcessor creates a processor function for
// CleanupStaleJobsTask.
func CleanupStaleJobsProcessor(failer StaleJobFailer) backlite.QueueProcessor[CleanupStaleJobsTask] {
	return func(ctx context.Context, task CleanupStaleJobsTask) error {
		if failer == nil {
			return fmt.Errorf("stale job failer not configured")
		}

		maxAge := task.MaxAgeMinutes
		if maxAge <= 0 {
			maxAge = 30
		}

		failed, err := failer.FailStale(time.Duration(maxAge) * time.Minute)
		if err != nil {
			return fmt.Errorf("cleanup stale jobs: %w", err)
		}
		if failed > 0 {
			log.Printf("[tasks] marked %d stale sync jobs as failed", failed)
		}
		return nil
	}
}

// NewCleanupStaleJobsQueue creates a backlite queue for stale job cleanup.
func NewCleanupStaleJobsQueue(failer StaleJobFailer) backlite.Queue {
	return backlite.NewQueue(CleanupStaleJobsProcessor(failer))
}

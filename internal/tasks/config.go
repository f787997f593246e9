package tasks

import "time"

// Config controls the task queue runtime.
type Config struct {
	// Workers is the number of concurrent queue workers.
	Workers int

	// ReleaseAfter is how long a claimed task may run before it is
	// released back to the queue.
	ReleaseAfter time.Duration

	// CleanupInterval is how often completed tasks past retention are
	// purged.
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults for a single-node deployment.
func DefaultConfig() Config {
	return Config{
		Workers:         2,
		ReleaseAfter:    2 * time.Hour,
		CleanupInterval: time.Hour,
	}
}

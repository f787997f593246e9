// Package scheduler triggers periodic re-syncs of connected drives.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vesseldocs/drivesync/internal/connections"
	"github.com/vesseldocs/drivesync/internal/syncer"
)

// Config controls the re-sync schedule.
type Config struct {
	Enabled  bool
	Schedule string // standard 5-field cron expression
}

// DriveSyncScheduler re-syncs every sync-enabled connection on a cron
// schedule. Connections with a job already running are skipped; the
// next tick picks them up.
type DriveSyncScheduler struct {
	registry     *connections.Registry
	orchestrator *syncer.Orchestrator
	config       Config

	cron      *cron.Cron
	entryID   cron.EntryID
	mu        sync.RWMutex
	isRunning bool
}

// NewDriveSyncScheduler creates a scheduler instance.
func NewDriveSyncScheduler(registry *connections.Registry, orchestrator *syncer.Orchestrator, cfg Config) *DriveSyncScheduler {
	return &DriveSyncScheduler{
		registry:     registry,
		orchestrator: orchestrator,
		config:       cfg,
		cron:         cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Start begins the scheduler if scheduled sync is enabled.
func (s *DriveSyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if !s.config.Enabled {
		log.Printf("Drive sync scheduler: disabled")
		return nil
	}

	entryID, err := s.cron.AddFunc(s.config.Schedule, func() {
		s.runAll()
	})
	if err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", s.config.Schedule, err)
	}
	s.entryID = entryID

	s.cron.Start()
	s.isRunning = true

	log.Printf("Drive sync scheduler: started with schedule '%s'", s.config.Schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop gracefully stops the scheduler, waiting for an in-flight tick.
func (s *DriveSyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.isRunning = false

	log.Printf("Drive sync scheduler: stopped")
}

// IsRunning returns whether the scheduler is active.
func (s *DriveSyncScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRunTime returns when the next scheduled sync will occur.
func (s *DriveSyncScheduler) NextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}

	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

// runAll starts a job for every eligible connection.
func (s *DriveSyncScheduler) runAll() {
	conns, err := s.registry.ListSyncEnabled()
	if err != nil {
		log.Printf("Drive sync scheduler: failed to list connections: %v", err)
		return
	}
	if len(conns) == 0 {
		return
	}

	started := 0
	for _, conn := range conns {
		// Saved selection only; a connection that never chose folders
		// has not opted into full-drive scheduled syncs.
		if len(conn.FolderPaths()) == 0 {
			continue
		}

		_, err := s.orchestrator.Start(conn.ID, nil)
		if errors.Is(err, syncer.ErrSyncInProgress) {
			log.Printf("Drive sync scheduler: connection %s skipped (sync already running)", conn.ID)
			continue
		}
		if err != nil {
			log.Printf("Drive sync scheduler: connection %s failed to start: %v", conn.ID, err)
			continue
		}
		started++
	}

	if started > 0 {
		log.Printf("Drive sync scheduler: started %d sync jobs", started)
	}
}

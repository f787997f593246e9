package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/vesseldocs/drivesync/internal/connections"
	"github.com/vesseldocs/drivesync/internal/docmeta"
	"github.com/vesseldocs/drivesync/internal/entities"
	"github.com/vesseldocs/drivesync/internal/graph"
	"github.com/vesseldocs/drivesync/internal/ingest"
	"github.com/vesseldocs/drivesync/internal/storage"
)

// ErrSyncInProgress is returned when a connection already has an
// active job; at most one job runs per connection at a time.
var ErrSyncInProgress = errors.New("sync already in progress for connection")

// JobRunner executes a created job. The default runner spawns a
// goroutine; deployments with a task queue plug in an enqueue instead.
type JobRunner func(jobID string)

// Orchestrator coordinates sync jobs: folder traversal feeding a
// bounded worker pool, with per-file failure isolation.
type Orchestrator struct {
	registry      *connections.Registry
	jobs          *Jobs
	store         *Store
	clientFactory storage.ClientFactory
	extract       docmeta.Extractor
	sink          ingest.Sink
	workers       int

	runner JobRunner

	mu      sync.Mutex
	cancels map[string]context.CancelFunc // connection id -> running job cancel
}

// NewOrchestrator builds a sync orchestrator. workers bounds concurrent
// file transfers per job.
func NewOrchestrator(
	registry *connections.Registry,
	jobs *Jobs,
	store *Store,
	clientFactory storage.ClientFactory,
	extract docmeta.Extractor,
	sink ingest.Sink,
	workers int,
) *Orchestrator {
	if workers <= 0 {
		workers = 4
	}
	o := &Orchestrator{
		registry:      registry,
		jobs:          jobs,
		store:         store,
		clientFactory: clientFactory,
		extract:       extract,
		sink:          sink,
		workers:       workers,
		cancels:       make(map[string]context.CancelFunc),
	}
	o.runner = func(jobID string) {
		go func() {
			if err := o.Run(context.Background(), jobID); err != nil {
				log.Printf("[syncer] job %s: %v", jobID, err)
			}
		}()
	}
	return o
}

// SetRunner replaces the default goroutine runner, e.g. with a task
// queue enqueue. Must be called before Start.
func (o *Orchestrator) SetRunner(runner JobRunner) {
	o.runner = runner
}

// Start creates a job for a connection and hands it to the runner.
// folders overrides the connection's saved selection when non-empty,
// and the new selection is persisted for scheduled re-syncs.
func (o *Orchestrator) Start(connectionID string, folders []string) (*entities.SyncJob, error) {
	conn, err := o.registry.Get(connectionID)
	if err != nil {
		return nil, err
	}
	if !conn.Active {
		return nil, connections.ErrConnectionInactive
	}

	running, err := o.jobs.HasRunning(connectionID)
	if err != nil {
		return nil, err
	}
	if running {
		return nil, ErrSyncInProgress
	}

	if len(folders) > 0 {
		if err := o.registry.SetSelectedFolders(connectionID, folders); err != nil {
			return nil, err
		}
	}

	job, err := o.jobs.Create(connectionID)
	if err != nil {
		return nil, err
	}

	o.runner(job.ID)
	return job, nil
}

// Cancel requests cancellation of a connection's active job. A running
// job is canceled cooperatively: in-flight file transfers finish and
// queued work is abandoned. A job still waiting for a worker has no
// cancel func yet, so its row is failed directly.
func (o *Orchestrator) Cancel(connectionID string) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[connectionID]
	o.mu.Unlock()

	if ok {
		cancel()
		return true
	}

	failed, err := o.jobs.FailPending(connectionID, "canceled")
	if err != nil {
		log.Printf("[syncer] failed to cancel queued jobs for connection %s: %v", connectionID, err)
		return false
	}
	return failed > 0
}

// Run executes a job to completion. Safe to invoke from a goroutine or
// a task queue worker; only one Run per connection makes progress at a
// time, enforced by the cancel registry.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	job, err := o.jobs.Get(jobID)
	if err != nil {
		return err
	}
	if job.Terminal() {
		return nil
	}

	conn, err := o.registry.Get(job.ConnectionID)
	if err != nil {
		return o.failJob(jobID, fmt.Sprintf("connection unavailable: %v", err))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	if _, exists := o.cancels[conn.ID]; exists {
		o.mu.Unlock()
		return o.failJob(jobID, "another job is already running for this connection")
	}
	o.cancels[conn.ID] = cancel
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.cancels, conn.ID)
		o.mu.Unlock()
	}()

	client, err := o.clientFactory(conn)
	if err != nil {
		return o.failJob(jobID, fmt.Sprintf("failed to build drive client: %v", err))
	}

	if err := o.jobs.MarkRunning(jobID); err != nil {
		return err
	}
	log.Printf("[syncer] job %s started for connection %s", jobID, conn.ID)

	roots := conn.FolderPaths()
	if len(roots) == 0 {
		roots = []string{"/"}
	}

	err = o.runJob(ctx, jobID, conn, client, roots)
	if err != nil {
		if ctx.Err() != nil {
			return o.failJob(jobID, "canceled")
		}
		return o.failJob(jobID, err.Error())
	}

	if err := o.jobs.Complete(jobID, entities.JobStatusCompleted, ""); err != nil {
		return err
	}
	if err := o.registry.TouchLastSync(conn.ID); err != nil {
		log.Printf("[syncer] job %s: failed to stamp last sync: %v", jobID, err)
	}

	final, err := o.jobs.Get(jobID)
	if err == nil {
		log.Printf("[syncer] job %s completed: %d found, %d succeeded, %d failed, %d skipped",
			jobID, final.TotalFilesFound, final.FilesSucceeded, final.FilesFailed, final.FilesSkipped)
	}
	return nil
}

// runJob walks the selected roots and processes discovered files with a
// bounded worker pool. Enumeration errors on a root are isolated; the
// job only fails when credentials are bad or every root fails.
func (o *Orchestrator) runJob(ctx context.Context, jobID string, conn *entities.Connection, client storage.Client, roots []string) error {
	files := make(chan storage.FileInfo)
	var enumErr error

	var workerWG sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			for file := range files {
				o.processFile(ctx, jobID, conn, client, file)
			}
		}()
	}

	failedRoots := 0
	for _, root := range roots {
		if ctx.Err() != nil {
			break
		}
		if err := o.enumerate(ctx, jobID, client, root, files); err != nil {
			if graph.IsUnauthorized(err) || ctx.Err() != nil {
				enumErr = err
				break
			}
			// A missing or unreadable root poisons only its own subtree.
			log.Printf("[syncer] job %s: folder %q enumeration failed: %v", jobID, root, err)
			failedRoots++
			continue
		}
	}
	close(files)
	workerWG.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if enumErr != nil {
		return fmt.Errorf("enumeration aborted: %w", enumErr)
	}
	if failedRoots == len(roots) {
		return fmt.Errorf("all %d selected folders failed to enumerate", len(roots))
	}
	return nil
}

// enumerate walks a folder subtree depth-first, sending files to the
// worker channel and recursing into subfolders.
func (o *Orchestrator) enumerate(ctx context.Context, jobID string, client storage.Client, path string, files chan<- storage.FileInfo) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	entries, err := client.List(ctx, path)
	if err != nil {
		return err
	}

	found := 0
	for _, entry := range entries {
		if entry.IsDir {
			continue
		}
		found++
	}
	if found > 0 {
		if err := o.jobs.IncrementDiscovered(jobID, found); err != nil {
			return err
		}
	}

	for _, entry := range entries {
		if entry.IsDir {
			if err := o.enumerate(ctx, jobID, client, entry.Path, files); err != nil {
				if graph.IsUnauthorized(err) || ctx.Err() != nil {
					return err
				}
				// Subfolder errors poison only their subtree.
				log.Printf("[syncer] job %s: subfolder %q enumeration failed: %v", jobID, entry.Path, err)
			}
			continue
		}
		select {
		case files <- entry:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// processFile runs the full per-file pipeline. Every outcome updates
// the file's sync record and exactly one job counter; failures never
// propagate past this function.
func (o *Orchestrator) processFile(ctx context.Context, jobID string, conn *entities.Connection, client storage.Client, file storage.FileInfo) {
	existing, err := o.store.Get(conn.ID, file.ID)
	if err != nil {
		log.Printf("[syncer] job %s: record lookup for %q failed: %v", jobID, file.Path, err)
		o.recordOutcome(jobID, conn, file, entities.RecordStatusFailed, "", err.Error())
		return
	}

	// Unchanged files that already made it through are skipped, whether
	// the last run ingested them or skipped them again; failed or changed
	// files go through the full pipeline.
	ingested := existing != nil &&
		(existing.Status == entities.RecordStatusSucceeded ||
			existing.Status == entities.RecordStatusSkipped)
	if ingested &&
		existing.Fingerprint == file.Fingerprint &&
		file.Fingerprint != "" {
		o.recordOutcome(jobID, conn, file, entities.RecordStatusSkipped, existing.DocID, "")
		return
	}

	o.markInProgress(jobID, conn, file)

	docID, err := o.transfer(ctx, conn, client, file)
	if err != nil {
		log.Printf("[syncer] job %s: file %q failed: %v", jobID, file.Path, err)
		o.recordOutcome(jobID, conn, file, entities.RecordStatusFailed, "", err.Error())
		return
	}

	o.recordOutcome(jobID, conn, file, entities.RecordStatusSucceeded, docID, "")
}

// transfer downloads a file and submits it to the ingest sink.
func (o *Orchestrator) transfer(ctx context.Context, conn *entities.Connection, client storage.Client, file storage.FileInfo) (string, error) {
	body, err := client.Download(ctx, file.ID)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	content, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		return "", fmt.Errorf("download read failed: %w", err)
	}

	meta := o.extract(file.Path)

	docID, err := o.sink.Ingest(ctx, content, ingest.Document{
		TenantID:    conn.TenantID,
		Filename:    file.Name,
		RemotePath:  file.Path,
		SystemPath:  meta.SystemPath,
		Directories: meta.Directories,
		DocType:     meta.DocType,
		SystemTag:   meta.SystemTag,
		MimeType:    file.MimeType,
	})
	if err != nil {
		return "", fmt.Errorf("ingest failed: %w", err)
	}
	return docID, nil
}

func (o *Orchestrator) markInProgress(jobID string, conn *entities.Connection, file storage.FileInfo) {
	rec := o.buildRecord(conn, file, entities.RecordStatusInProgress, "", "")
	if err := o.store.Upsert(rec); err != nil {
		log.Printf("[syncer] job %s: failed to mark %q in progress: %v", jobID, file.Path, err)
	}
}

// recordOutcome persists the file's final record and bumps the matching
// job counter.
func (o *Orchestrator) recordOutcome(jobID string, conn *entities.Connection, file storage.FileInfo, status entities.RecordStatus, docID, errMsg string) {
	rec := o.buildRecord(conn, file, status, docID, errMsg)
	if err := o.store.Upsert(rec); err != nil {
		log.Printf("[syncer] job %s: failed to record outcome for %q: %v", jobID, file.Path, err)
	}
	if err := o.jobs.IncrementOutcome(jobID, status); err != nil {
		log.Printf("[syncer] job %s: failed to bump counter for %q: %v", jobID, file.Path, err)
	}
}

func (o *Orchestrator) buildRecord(conn *entities.Connection, file storage.FileInfo, status entities.RecordStatus, docID, errMsg string) *entities.SyncRecord {
	meta := o.extract(file.Path)
	return &entities.SyncRecord{
		ConnectionID: conn.ID,
		RemoteItemID: file.ID,
		RemotePath:   file.Path,
		FileName:     file.Name,
		FileSize:     file.Size,
		Fingerprint:  file.Fingerprint,
		Status:       status,
		DocID:        docID,
		DocType:      meta.DocType,
		SystemTag:    meta.SystemTag,
		SystemPath:   meta.SystemPath,
		Error:        errMsg,
	}
}

func (o *Orchestrator) failJob(jobID, reason string) error {
	if err := o.jobs.Complete(jobID, entities.JobStatusFailed, reason); err != nil {
		return err
	}
	log.Printf("[syncer] job %s failed: %s", jobID, reason)
	return nil
}

package syncer

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vesseldocs/drivesync/internal/connections"
	"github.com/vesseldocs/drivesync/internal/crypto"
	"github.com/vesseldocs/drivesync/internal/docmeta"
	"github.com/vesseldocs/drivesync/internal/entities"
	"github.com/vesseldocs/drivesync/internal/graph"
	"github.com/vesseldocs/drivesync/internal/ingest"
	"github.com/vesseldocs/drivesync/internal/storage"
)

// fakeDrive is an in-memory storage.Client backed by a path -> children map.
type fakeDrive struct {
	mu          sync.Mutex
	folders     map[string][]storage.FileInfo
	content     map[string][]byte
	listErr     map[string]error
	downloadErr map[string]error
	listCalls   int
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{
		folders:     make(map[string][]storage.FileInfo),
		content:     make(map[string][]byte),
		listErr:     make(map[string]error),
		downloadErr: make(map[string]error),
	}
}

func (f *fakeDrive) addFile(folder, id, name, path, fingerprint string, content []byte) {
	f.folders[folder] = append(f.folders[folder], storage.FileInfo{
		ID: id, Name: name, Path: path, Fingerprint: fingerprint, Size: int64(len(content)),
	})
	f.content[id] = content
}

func (f *fakeDrive) addFolder(parent, id, name, path string) {
	f.folders[parent] = append(f.folders[parent], storage.FileInfo{
		ID: id, Name: name, Path: path, IsDir: true,
	})
}

func (f *fakeDrive) List(ctx context.Context, path string) ([]storage.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if err, ok := f.listErr[path]; ok {
		return nil, err
	}
	return f.folders[path], nil
}

func (f *fakeDrive) Download(ctx context.Context, itemID string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.downloadErr[itemID]; ok {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(f.content[itemID])), nil
}

func (f *fakeDrive) CheckProvisioned(ctx context.Context) error { return nil }

// fakeSink records ingested documents.
type fakeSink struct {
	mu      sync.Mutex
	docs    []ingest.Document
	rejects map[string]error // filename -> error
}

func newFakeSink() *fakeSink {
	return &fakeSink{rejects: make(map[string]error)}
}

func (s *fakeSink) Ingest(ctx context.Context, content []byte, doc ingest.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.rejects[doc.Filename]; ok {
		return "", err
	}
	s.docs = append(s.docs, doc)
	return "doc-" + doc.Filename, nil
}

func (s *fakeSink) ingested() []ingest.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ingest.Document(nil), s.docs...)
}

type testEnv struct {
	db       *gorm.DB
	registry *connections.Registry
	jobs     *Jobs
	store    *Store
	drive    *fakeDrive
	sink     *fakeSink
	orch     *Orchestrator
	conn     *entities.Connection
}

func setupOrchestrator(t *testing.T) (*testEnv, func()) {
	db, cleanup := setupTestDB(t)

	key := make([]byte, crypto.KeySize)
	encryptor, err := crypto.NewEncryptor(key)
	require.NoError(t, err)

	registry := connections.NewRegistry(db, encryptor)
	conn, err := registry.Activate("tenant-1", "captain@vessel.example", connections.Credentials{
		AccessToken:  "access",
		RefreshToken: "refresh",
	})
	require.NoError(t, err)

	drive := newFakeDrive()
	sink := newFakeSink()
	jobs := NewJobs(db)
	store := NewStore(db)

	orch := NewOrchestrator(
		registry, jobs, store,
		func(c *entities.Connection) (storage.Client, error) { return drive, nil },
		docmeta.Extract, sink, 3,
	)
	// Run jobs synchronously from the tests
	orch.SetRunner(func(jobID string) {})

	env := &testEnv{
		db: db, registry: registry, jobs: jobs, store: store,
		drive: drive, sink: sink, orch: orch, conn: conn,
	}
	return env, cleanup
}

func (e *testEnv) startAndRun(t *testing.T, folders []string) *entities.SyncJob {
	job, err := e.orch.Start(e.conn.ID, folders)
	require.NoError(t, err)
	require.NoError(t, e.orch.Run(context.Background(), job.ID))

	final, err := e.jobs.Get(job.ID)
	require.NoError(t, err)
	return final
}

func populateDrive(drive *fakeDrive) {
	drive.addFolder("/", "dir-manuals", "04_Manuals", "/04_Manuals")
	drive.addFile("/", "f-readme", "readme.txt", "/readme.txt", "v1", []byte("hello"))
	drive.addFile("/04_Manuals", "f-radar", "radar.pdf", "/04_Manuals/radar.pdf", "v1", []byte("radar manual"))
	drive.addFolder("/04_Manuals", "dir-hvac", "HVAC", "/04_Manuals/HVAC")
	drive.addFile("/04_Manuals/HVAC", "f-chiller", "chiller.pdf", "/04_Manuals/HVAC/chiller.pdf", "v1", []byte("chiller"))
}

func TestOrchestrator_FullSync(t *testing.T) {
	env, cleanup := setupOrchestrator(t)
	defer cleanup()
	populateDrive(env.drive)

	job := env.startAndRun(t, nil)

	assert.Equal(t, entities.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.TotalFilesFound)
	assert.Equal(t, 3, job.FilesSucceeded)
	assert.Equal(t, 0, job.FilesFailed)
	assert.Equal(t, 0, job.FilesSkipped)
	assert.NotNil(t, job.CompletedAt)

	docs := env.sink.ingested()
	require.Len(t, docs, 3)

	byName := make(map[string]ingest.Document)
	for _, d := range docs {
		byName[d.Filename] = d
	}
	assert.Equal(t, "manual", byName["radar.pdf"].DocType)
	assert.Equal(t, "hvac", byName["chiller.pdf"].SystemTag)
	assert.Equal(t, "tenant-1", byName["readme.txt"].TenantID)

	rec, err := env.store.Get(env.conn.ID, "f-radar")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, entities.RecordStatusSucceeded, rec.Status)
	assert.Equal(t, "doc-radar.pdf", rec.DocID)
	assert.Equal(t, "v1", rec.Fingerprint)

	// Completion stamps the connection's last sync time
	conn, err := env.registry.Get(env.conn.ID)
	require.NoError(t, err)
	assert.NotNil(t, conn.LastSyncAt)
}

func TestOrchestrator_SecondRunSkipsUnchanged(t *testing.T) {
	env, cleanup := setupOrchestrator(t)
	defer cleanup()
	populateDrive(env.drive)

	env.startAndRun(t, nil)
	second := env.startAndRun(t, nil)

	assert.Equal(t, entities.JobStatusCompleted, second.Status)
	assert.Equal(t, 3, second.TotalFilesFound)
	assert.Equal(t, 0, second.FilesSucceeded)
	assert.Equal(t, 3, second.FilesSkipped)

	// Nothing re-ingested
	assert.Len(t, env.sink.ingested(), 3)

	// Skipped records keep their doc id
	rec, err := env.store.Get(env.conn.ID, "f-radar")
	require.NoError(t, err)
	assert.Equal(t, entities.RecordStatusSkipped, rec.Status)
	assert.Equal(t, "doc-radar.pdf", rec.DocID)
}

func TestOrchestrator_RepeatedRunsStaySkipped(t *testing.T) {
	env, cleanup := setupOrchestrator(t)
	defer cleanup()
	populateDrive(env.drive)

	env.startAndRun(t, nil)
	env.startAndRun(t, nil)
	third := env.startAndRun(t, nil)

	// A skipped record stays skip-eligible: unchanged trees must be
	// cheap on every run, not every other run
	assert.Equal(t, entities.JobStatusCompleted, third.Status)
	assert.Equal(t, 0, third.FilesSucceeded)
	assert.Equal(t, 3, third.FilesSkipped)
	assert.Len(t, env.sink.ingested(), 3)

	rec, err := env.store.Get(env.conn.ID, "f-radar")
	require.NoError(t, err)
	assert.Equal(t, entities.RecordStatusSkipped, rec.Status)
	assert.Equal(t, "doc-radar.pdf", rec.DocID)
}

func TestOrchestrator_ChangedFingerprintReingested(t *testing.T) {
	env, cleanup := setupOrchestrator(t)
	defer cleanup()
	populateDrive(env.drive)

	env.startAndRun(t, nil)

	// Remote file changed: new eTag
	env.drive.mu.Lock()
	for i, f := range env.drive.folders["/04_Manuals"] {
		if f.ID == "f-radar" {
			env.drive.folders["/04_Manuals"][i].Fingerprint = "v2"
		}
	}
	env.drive.mu.Unlock()

	second := env.startAndRun(t, nil)

	assert.Equal(t, 1, second.FilesSucceeded)
	assert.Equal(t, 2, second.FilesSkipped)

	rec, err := env.store.Get(env.conn.ID, "f-radar")
	require.NoError(t, err)
	assert.Equal(t, entities.RecordStatusSucceeded, rec.Status)
	assert.Equal(t, "v2", rec.Fingerprint)
}

func TestOrchestrator_FailureIsolation(t *testing.T) {
	env, cleanup := setupOrchestrator(t)
	defer cleanup()
	populateDrive(env.drive)
	env.drive.downloadErr["f-radar"] = &graph.Error{Kind: graph.KindUnavailable, StatusCode: http.StatusBadGateway, Message: "upstream error"}

	job := env.startAndRun(t, nil)

	// One bad file never fails the job
	assert.Equal(t, entities.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.FilesSucceeded)
	assert.Equal(t, 1, job.FilesFailed)

	rec, err := env.store.Get(env.conn.ID, "f-radar")
	require.NoError(t, err)
	assert.Equal(t, entities.RecordStatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "download failed")
}

func TestOrchestrator_FailedFileRetriedNextRun(t *testing.T) {
	env, cleanup := setupOrchestrator(t)
	defer cleanup()
	populateDrive(env.drive)
	env.drive.downloadErr["f-radar"] = &graph.Error{Kind: graph.KindUnavailable, Message: "transient"}

	env.startAndRun(t, nil)

	// Failure resolved; fingerprint unchanged but failed files retry
	env.drive.mu.Lock()
	delete(env.drive.downloadErr, "f-radar")
	env.drive.mu.Unlock()

	second := env.startAndRun(t, nil)

	assert.Equal(t, 1, second.FilesSucceeded)
	assert.Equal(t, 2, second.FilesSkipped)

	rec, err := env.store.Get(env.conn.ID, "f-radar")
	require.NoError(t, err)
	assert.Equal(t, entities.RecordStatusSucceeded, rec.Status)
}

func TestOrchestrator_IngestRejectionRecorded(t *testing.T) {
	env, cleanup := setupOrchestrator(t)
	defer cleanup()
	populateDrive(env.drive)
	env.sink.rejects["chiller.pdf"] = &ingest.RejectedError{StatusCode: 422, Message: "unsupported format"}

	job := env.startAndRun(t, nil)

	assert.Equal(t, entities.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.FilesFailed)

	rec, err := env.store.Get(env.conn.ID, "f-chiller")
	require.NoError(t, err)
	assert.Equal(t, entities.RecordStatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "rejected")
}

func TestOrchestrator_MissingRootIsolated(t *testing.T) {
	env, cleanup := setupOrchestrator(t)
	defer cleanup()
	populateDrive(env.drive)
	env.drive.listErr["/05_Drawings"] = &graph.Error{Kind: graph.KindNotFound, StatusCode: http.StatusNotFound, Message: "itemNotFound"}

	job := env.startAndRun(t, []string{"/04_Manuals", "/05_Drawings"})

	// The missing root poisons only its own subtree
	assert.Equal(t, entities.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.FilesSucceeded)
}

func TestOrchestrator_AllRootsFailingFailsJob(t *testing.T) {
	env, cleanup := setupOrchestrator(t)
	defer cleanup()
	env.drive.listErr["/05_Drawings"] = &graph.Error{Kind: graph.KindNotFound, Message: "itemNotFound"}

	job := env.startAndRun(t, []string{"/05_Drawings"})

	assert.Equal(t, entities.JobStatusFailed, job.Status)
	assert.NotEmpty(t, job.Error)
}

func TestOrchestrator_UnauthorizedFailsJob(t *testing.T) {
	env, cleanup := setupOrchestrator(t)
	defer cleanup()
	env.drive.listErr["/"] = &graph.Error{Kind: graph.KindUnauthorized, StatusCode: http.StatusUnauthorized, Message: "InvalidAuthenticationToken"}

	job := env.startAndRun(t, nil)

	assert.Equal(t, entities.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "enumeration aborted")
}

func TestOrchestrator_StartConflict(t *testing.T) {
	env, cleanup := setupOrchestrator(t)
	defer cleanup()
	populateDrive(env.drive)

	_, err := env.orch.Start(env.conn.ID, nil)
	require.NoError(t, err)

	// First job is still pending; a second start must be refused
	_, err = env.orch.Start(env.conn.ID, nil)
	assert.ErrorIs(t, err, ErrSyncInProgress)
}

func TestOrchestrator_StartInactiveConnection(t *testing.T) {
	env, cleanup := setupOrchestrator(t)
	defer cleanup()
	require.NoError(t, env.registry.Disconnect(env.conn.ID))

	_, err := env.orch.Start(env.conn.ID, nil)
	assert.ErrorIs(t, err, connections.ErrConnectionInactive)
}

func TestOrchestrator_CanceledContextFailsJobAsCanceled(t *testing.T) {
	env, cleanup := setupOrchestrator(t)
	defer cleanup()
	populateDrive(env.drive)

	job, err := env.orch.Start(env.conn.ID, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, env.orch.Run(ctx, job.ID))

	got, err := env.jobs.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusFailed, got.Status)
	assert.Equal(t, "canceled", got.Error)
}

func TestOrchestrator_FolderSelectionPersisted(t *testing.T) {
	env, cleanup := setupOrchestrator(t)
	defer cleanup()
	populateDrive(env.drive)

	env.startAndRun(t, []string{"/04_Manuals"})

	conn, err := env.registry.Get(env.conn.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/04_Manuals"}, conn.FolderPaths())
}

func TestOrchestrator_CancelWithoutRunningJob(t *testing.T) {
	env, cleanup := setupOrchestrator(t)
	defer cleanup()

	assert.False(t, env.orch.Cancel(env.conn.ID))
}

func TestOrchestrator_CancelQueuedJob(t *testing.T) {
	env, cleanup := setupOrchestrator(t)
	defer cleanup()
	populateDrive(env.drive)

	job, err := env.orch.Start(env.conn.ID, nil)
	require.NoError(t, err)

	// No worker has picked the job up; cancel must still land
	assert.True(t, env.orch.Cancel(env.conn.ID))

	got, err := env.jobs.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusFailed, got.Status)
	assert.Equal(t, "canceled", got.Error)

	// A late pickup of the terminal job does nothing
	require.NoError(t, env.orch.Run(context.Background(), job.ID))
	assert.Empty(t, env.sink.ingested())
}

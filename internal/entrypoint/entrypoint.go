// Package entrypoint wires the application together and runs the HTTP
// server with graceful shutdown.
package entrypoint

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vesseldocs/drivesync/internal/config"
	"github.com/vesseldocs/drivesync/internal/connections"
	"github.com/vesseldocs/drivesync/internal/crypto"
	"github.com/vesseldocs/drivesync/internal/database"
	"github.com/vesseldocs/drivesync/internal/docmeta"
	"github.com/vesseldocs/drivesync/internal/entities"
	"github.com/vesseldocs/drivesync/internal/graph"
	http_controllers "github.com/vesseldocs/drivesync/internal/http"
	"github.com/vesseldocs/drivesync/internal/ingest"
	"github.com/vesseldocs/drivesync/internal/oauth2"
	"github.com/vesseldocs/drivesync/internal/scheduler"
	"github.com/vesseldocs/drivesync/internal/storage"
	"github.com/vesseldocs/drivesync/internal/syncer"
	"github.com/vesseldocs/drivesync/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// Serve runs the HTTP server until SIGINT/SIGTERM, then drains with the
// configured timeout.
func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		fmt.Printf("Starting server at %s:%d\n", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop background workers before the listener so in-flight jobs can
	// record their state.
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}

	log.Println("Server exiting")
}

// Run builds the full application and serves it.
func Run(cfg *config.Config, version string) {
	log.Printf("Starting DriveSync v%s", version)

	if cfg.OAuth2.ClientID == "" || cfg.OAuth2.ClientSecret == "" {
		log.Printf("WARNING: MS_CLIENT_ID / MS_CLIENT_SECRET are not set. The OAuth connect flow will fail until they are configured.")
	}
	if cfg.Ingest.URL == "" {
		log.Printf("WARNING: INGEST_URL is not set. Sync jobs will fail at the ingest step.")
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	key, err := crypto.ResolveKey(cfg.Encryption.Key, cfg.Encryption.KeyFile)
	if err != nil {
		log.Fatalf("Failed to resolve token encryption key: %v", err)
	}
	encryptor, err := crypto.NewEncryptorFromBase64(key)
	if err != nil {
		log.Fatalf("Failed to initialize token encryption: %v", err)
	}

	registry := connections.NewRegistry(db.DB, encryptor)

	provider := oauth2.NewMicrosoftProvider(oauth2.ProviderConfig{
		ClientID:     cfg.OAuth2.ClientID,
		ClientSecret: cfg.OAuth2.ClientSecret,
		Authority:    cfg.OAuth2.Authority,
	})
	states := oauth2.NewStateStore()

	// Every drive client shares the connection's token source so token
	// refreshes are serialized per connection.
	tokenSources := connections.NewTokenSourceCache(registry, provider, cfg.OAuth2.RefreshMargin)
	clientFactory := storage.ClientFactory(func(conn *entities.Connection) (storage.Client, error) {
		return graph.NewClient(tokenSources.For(conn.ID), graph.Options{
			Timeout:           cfg.Graph.Timeout,
			DownloadTimeout:   cfg.Graph.DownloadTimeout,
			RequestsPerSecond: cfg.Graph.RequestsPerSecond,
			MaxRetries:        cfg.Graph.MaxRetries,
		}), nil
	})

	sink := ingest.NewHTTPSink(cfg.Ingest.URL, cfg.Ingest.TenantSalt, cfg.Ingest.Timeout)

	store := syncer.NewStore(db.DB)
	jobs := syncer.NewJobs(db.DB)
	orchestrator := syncer.NewOrchestrator(
		registry, jobs, store,
		clientFactory, docmeta.Extract, sink,
		cfg.Sync.Workers,
	)

	// Recover jobs orphaned by a previous unclean shutdown.
	if failed, err := jobs.FailStale(cfg.Sync.StaleJobAge); err != nil {
		log.Printf("WARNING: Failed to clean up stale jobs: %v", err)
	} else if failed > 0 {
		log.Printf("Marked %d stale sync jobs as failed", failed)
	}

	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled {
		taskClient, err = tasks.NewClient(cfg.Database.Path, tasks.Config{
			Workers:         cfg.Tasks.Workers,
			ReleaseAfter:    cfg.Tasks.ReleaseAfter,
			CleanupInterval: cfg.Tasks.CleanupInterval,
		})
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		taskClient.Register(
			tasks.NewSyncDriveQueue(orchestrator),
			tasks.NewCleanupStaleJobsQueue(jobs),
		)

		// Jobs enqueue instead of running in-process so they survive
		// restarts and respect the worker limit.
		orchestrator.SetRunner(func(jobID string) {
			if _, err := taskClient.Add(tasks.SyncDriveTask{JobID: jobID}).Save(); err != nil {
				log.Printf("Failed to enqueue sync job %s: %v", jobID, err)
			}
		})

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)

		if _, err := taskClient.Add(tasks.CleanupStaleJobsTask{
			MaxAgeMinutes: int(cfg.Sync.StaleJobAge.Minutes()),
		}).Save(); err != nil {
			log.Printf("Failed to schedule stale job cleanup: %v", err)
		}
	}

	driveScheduler := scheduler.NewDriveSyncScheduler(registry, orchestrator, scheduler.Config{
		Enabled:  cfg.Scheduler.Enabled,
		Schedule: cfg.Scheduler.Schedule,
	})
	schedulerCtx, schedulerCancel := context.WithCancel(context.Background())
	if err := driveScheduler.Start(schedulerCtx); err != nil {
		log.Fatalf("Failed to start sync scheduler: %v", err)
	}

	router := http_controllers.NewRouter(http_controllers.RouterConfig{
		Database:      db,
		Version:       version,
		Registry:      registry,
		Provider:      provider,
		States:        states,
		ClientFactory: clientFactory,
		Extractor:     docmeta.Extract,
		RedirectURL:   cfg.OAuth2.RedirectURL,
		Orchestrator:  orchestrator,
		Jobs:          jobs,
		Store:         store,
	})

	onShutdown := func(ctx context.Context) {
		schedulerCancel()
		driveScheduler.Stop()
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	}

	Serve(router, cfg, onShutdown)
}

package config

import (
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Encryption
		OAuth2
		Graph
		Sync
		Ingest
		Tasks
		Scheduler
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path string
	}
	Encryption struct {
		Key     string // base64-encoded 32-byte key; generated if empty
		KeyFile string // fallback key file path
	}
	OAuth2 struct {
		ClientID      string
		ClientSecret  string
		Authority     string // Microsoft identity tenant ("common" or a tenant id)
		RedirectURL   string
		RefreshMargin time.Duration // refresh tokens expiring within this duration
	}
	Graph struct {
		Timeout           time.Duration // per list/metadata request
		DownloadTimeout   time.Duration // per file download
		RequestsPerSecond float64       // rate limit toward the Graph API
		MaxRetries        int           // bounded retries for transient errors
	}
	Sync struct {
		Workers     int           // concurrent file transfers per job
		StaleJobAge time.Duration // running jobs older than this are failed by cleanup
	}
	Ingest struct {
		URL        string // digest service base URL
		TenantSalt string // shared secret for the tenant signature header
		Timeout    time.Duration
	}
	Tasks struct {
		Enabled           bool
		Workers           int
		ReleaseAfter      time.Duration
		CleanupInterval   time.Duration
		RetentionDuration time.Duration
	}
	Scheduler struct {
		Enabled  bool
		Schedule string // cron format: "0 */6 * * *" = every 6 hours
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("port", 8200)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 5)
	v.SetDefault("database_path", "./drivesync.db")

	v.SetDefault("token_encryption_key", "")
	v.SetDefault("token_encryption_key_file", "")

	// OAuth2 defaults
	v.SetDefault("ms_client_id", "")
	v.SetDefault("ms_client_secret", "")
	v.SetDefault("ms_authority", "common")
	v.SetDefault("oauth_redirect_url", "http://localhost:8200/api/v1/auth/callback")
	v.SetDefault("oauth_refresh_margin", "5m")

	// Graph API defaults
	v.SetDefault("graph_timeout", "30s")
	v.SetDefault("graph_download_timeout", "5m")
	v.SetDefault("graph_requests_per_second", 8.0)
	v.SetDefault("graph_max_retries", 3)

	// Sync defaults
	v.SetDefault("sync_workers", 4)
	v.SetDefault("sync_stale_job_age", "30m")

	// Ingest sink defaults
	v.SetDefault("ingest_url", "")
	v.SetDefault("ingest_tenant_salt", "")
	v.SetDefault("ingest_timeout", "2m")

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_release_after", "2h")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("task_retention_duration", "72h")

	// Scheduler defaults
	v.SetDefault("scheduled_sync_enabled", false)
	v.SetDefault("scheduled_sync_schedule", "0 */6 * * *")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Encryption: Encryption{
			Key:     v.GetString("TOKEN_ENCRYPTION_KEY"),
			KeyFile: v.GetString("TOKEN_ENCRYPTION_KEY_FILE"),
		},
		OAuth2: OAuth2{
			ClientID:      v.GetString("MS_CLIENT_ID"),
			ClientSecret:  v.GetString("MS_CLIENT_SECRET"),
			Authority:     v.GetString("MS_AUTHORITY"),
			RedirectURL:   v.GetString("OAUTH_REDIRECT_URL"),
			RefreshMargin: v.GetDuration("OAUTH_REFRESH_MARGIN"),
		},
		Graph: Graph{
			Timeout:           v.GetDuration("GRAPH_TIMEOUT"),
			DownloadTimeout:   v.GetDuration("GRAPH_DOWNLOAD_TIMEOUT"),
			RequestsPerSecond: v.GetFloat64("GRAPH_REQUESTS_PER_SECOND"),
			MaxRetries:        v.GetInt("GRAPH_MAX_RETRIES"),
		},
		Sync: Sync{
			Workers:     v.GetInt("SYNC_WORKERS"),
			StaleJobAge: v.GetDuration("SYNC_STALE_JOB_AGE"),
		},
		Ingest: Ingest{
			URL:        v.GetString("INGEST_URL"),
			TenantSalt: v.GetString("INGEST_TENANT_SALT"),
			Timeout:    v.GetDuration("INGEST_TIMEOUT"),
		},
		Tasks: Tasks{
			Enabled:           v.GetBool("TASKS_ENABLED"),
			Workers:           v.GetInt("TASK_WORKERS"),
			ReleaseAfter:      v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval:   v.GetDuration("TASK_CLEANUP_INTERVAL"),
			RetentionDuration: v.GetDuration("TASK_RETENTION_DURATION"),
		},
		Scheduler: Scheduler{
			Enabled:  v.GetBool("SCHEDULED_SYNC_ENABLED"),
			Schedule: v.GetString("SCHEDULED_SYNC_SCHEDULE"),
		},
	}
}

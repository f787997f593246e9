// Package http wires the JSON API: OAuth connect flow, drive browsing
// and sync job control.
package http

import (
	"github.com/gin-gonic/gin"

	"github.com/vesseldocs/drivesync/internal/connections"
	"github.com/vesseldocs/drivesync/internal/database"
	"github.com/vesseldocs/drivesync/internal/docmeta"
	"github.com/vesseldocs/drivesync/internal/oauth2"
	"github.com/vesseldocs/drivesync/internal/storage"
	"github.com/vesseldocs/drivesync/internal/syncer"
)

// RouterConfig receives all router dependencies, improving testability
// and reducing parameter count.
type RouterConfig struct {
	Database *database.Database
	Version  string

	Registry      *connections.Registry
	Provider      oauth2.Provider
	States        *oauth2.StateStore
	ClientFactory storage.ClientFactory
	Extractor     docmeta.Extractor
	RedirectURL   string

	Orchestrator *syncer.Orchestrator
	Jobs         *syncer.Jobs
	Store        *syncer.Store
}

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	health := NewHealthController(cfg.Database, cfg.Version)
	auth := NewAuthController(cfg.Registry, cfg.Provider, cfg.States, cfg.ClientFactory, cfg.RedirectURL)
	files := NewFilesController(cfg.Registry, cfg.ClientFactory, cfg.Extractor)
	sync := NewSyncController(cfg.Registry, cfg.Orchestrator, cfg.Jobs, cfg.Store)

	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/connect", auth.Connect)
		v1.GET("/auth/callback", auth.Callback)
		v1.GET("/auth/status", auth.Status)
		v1.POST("/auth/disconnect", auth.Disconnect)

		v1.GET("/files/browse", files.Browse)
		v1.GET("/files/metadata", files.MetadataPreview)

		v1.POST("/sync/start", sync.Start)
		v1.GET("/sync/jobs/:id", sync.Status)
		v1.POST("/sync/cancel", sync.Cancel)
		v1.GET("/sync/history", sync.History)
		v1.GET("/sync/files", sync.Files)
	}

	return router
}

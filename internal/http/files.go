package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vesseldocs/drivesync/internal/connections"
	"github.com/vesseldocs/drivesync/internal/docmeta"
	"github.com/vesseldocs/drivesync/internal/graph"
	"github.com/vesseldocs/drivesync/internal/storage"
)

// FilesController exposes drive browsing so tenants can pick folders
// before starting a sync.
type FilesController struct {
	registry      *connections.Registry
	clientFactory storage.ClientFactory
	extract       docmeta.Extractor
}

func NewFilesController(registry *connections.Registry, clientFactory storage.ClientFactory, extract docmeta.Extractor) *FilesController {
	return &FilesController{
		registry:      registry,
		clientFactory: clientFactory,
		extract:       extract,
	}
}

type browseEntry struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	IsDir      bool   `json:"is_dir"`
	Size       int64  `json:"size,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
	ModifiedAt string `json:"modified_at,omitempty"`
}

// Browse lists the children of a folder on the tenant's connected
// drive. path defaults to the drive root.
func (f *FilesController) Browse(c *gin.Context) {
	tenantID, ok := requireTenantID(c)
	if !ok {
		return
	}

	conn, err := f.registry.GetActive(tenantID)
	if errors.Is(err, connections.ErrConnectionNotFound) {
		respondNotFound(c, "connection")
		return
	}
	if err != nil {
		respondInternalError(c, err, "get active connection")
		return
	}

	client, err := f.clientFactory(conn)
	if err != nil {
		respondInternalError(c, err, "build drive client")
		return
	}

	path := c.Query("path")
	files, err := client.List(c.Request.Context(), path)
	if err != nil {
		f.respondListError(c, err)
		return
	}

	entries := make([]browseEntry, 0, len(files))
	for _, file := range files {
		entry := browseEntry{
			ID:       file.ID,
			Name:     file.Name,
			Path:     file.Path,
			IsDir:    file.IsDir,
			Size:     file.Size,
			MimeType: file.MimeType,
		}
		if !file.ModifiedAt.IsZero() {
			entry.ModifiedAt = file.ModifiedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
		entries = append(entries, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"path":    path,
		"entries": entries,
	})
}

// MetadataPreview shows how a path would classify without syncing it.
func (f *FilesController) MetadataPreview(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		respondBadRequest(c, "path is required")
		return
	}
	c.JSON(http.StatusOK, f.extract(path))
}

func (f *FilesController) respondListError(c *gin.Context, err error) {
	switch {
	case graph.IsInvalid(err):
		respondBadRequest(c, "invalid path")
	case graph.IsNotFound(err):
		respondNotFound(c, "folder")
	case graph.IsUnauthorized(err):
		respondError(c, http.StatusUnauthorized, "drive credentials rejected, reconnect required")
	default:
		respondInternalError(c, err, "list folder")
	}
}

// Package storage defines the contract for remote drive providers.
package storage

import (
	"context"
	"io"
	"time"

	"github.com/vesseldocs/drivesync/internal/entities"
)

// FileInfo describes a single remote item returned by List.
type FileInfo struct {
	ID          string
	Name        string
	Path        string // drive-relative path including the file name
	IsDir       bool
	Size        int64
	Fingerprint string // provider content version tag (eTag)
	ModifiedAt  time.Time
	MimeType    string
}

// Client lists and downloads files from a remote drive.
type Client interface {
	// List returns the immediate children of a folder. path "" or "/"
	// means the drive root.
	List(ctx context.Context, path string) ([]FileInfo, error)

	// Download streams the content of a file by item id. The caller
	// must close the returned reader.
	Download(ctx context.Context, itemID string) (io.ReadCloser, error)

	// CheckProvisioned verifies the account's drive is reachable.
	CheckProvisioned(ctx context.Context) error
}

// ClientFactory builds a drive client bound to a connection's credentials.
type ClientFactory func(conn *entities.Connection) (Client, error)

package entities

import (
	"time"
)

type RecordStatus string

const (
	RecordStatusPending    RecordStatus = "pending"
	RecordStatusInProgress RecordStatus = "in_progress"
	RecordStatusSucceeded  RecordStatus = "succeeded"
	RecordStatusFailed     RecordStatus = "failed"
	RecordStatusSkipped    RecordStatus = "skipped_unchanged"
)

// SyncRecord is the durable sync history of one remote file for one
// connection. Unique per (connection, remote item); updated in place on
// every rediscovery, never deleted when the remote file disappears.
type SyncRecord struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ConnectionID string `gorm:"size:36;not null;index;uniqueIndex:idx_connection_item" json:"connection_id"`
	RemoteItemID string `gorm:"size:255;not null;uniqueIndex:idx_connection_item" json:"remote_item_id"`

	RemotePath string `gorm:"type:text;not null" json:"remote_path"`
	FileName   string `gorm:"size:512;not null" json:"file_name"`
	FileSize   int64  `json:"file_size"`

	// Fingerprint is the remote eTag observed at the last sync attempt.
	// A changed fingerprint triggers re-ingest on the next job.
	Fingerprint string `gorm:"size:255" json:"fingerprint"`

	Status RecordStatus `gorm:"size:32;not null;default:pending" json:"status"`

	// DocID references the downstream document once ingested.
	DocID string `gorm:"size:255" json:"doc_id,omitempty"`

	// Metadata derived from the folder hierarchy.
	DocType    string `gorm:"size:64" json:"doc_type,omitempty"`
	SystemTag  string `gorm:"size:64" json:"system_tag,omitempty"`
	SystemPath string `gorm:"size:512" json:"system_path,omitempty"`

	// Error holds the failure reason for the last failed attempt.
	Error string `gorm:"type:text" json:"error,omitempty"`
}

func (SyncRecord) TableName() string {
	return "sync_records"
}

// Package syncer implements the sync engine: durable per-file sync
// state, job bookkeeping and the orchestrator that walks a drive and
// feeds changed files into the ingest pipeline.
package syncer

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vesseldocs/drivesync/internal/entities"
)

// Store persists per-file sync records keyed by (connection, remote item).
type Store struct {
	db *gorm.DB
}

// NewStore creates a sync record store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Get returns the record for a remote item, or nil when the file has
// never been seen for this connection.
func (s *Store) Get(connectionID, remoteItemID string) (*entities.SyncRecord, error) {
	var rec entities.SyncRecord
	err := s.db.Where("connection_id = ? AND remote_item_id = ?", connectionID, remoteItemID).
		First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync record: %w", err)
	}
	return &rec, nil
}

// Upsert creates or updates the record for (connection, remote item).
// The composite key fields identify the row; everything else is replaced.
func (s *Store) Upsert(rec *entities.SyncRecord) error {
	var existing entities.SyncRecord
	err := s.db.Where("connection_id = ? AND remote_item_id = ?", rec.ConnectionID, rec.RemoteItemID).
		First(&existing).Error

	if err == gorm.ErrRecordNotFound {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if err := s.db.Create(rec).Error; err != nil {
			return fmt.Errorf("failed to create sync record: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up sync record: %w", err)
	}

	rec.ID = existing.ID
	rec.CreatedAt = existing.CreatedAt
	if err := s.db.Save(rec).Error; err != nil {
		return fmt.Errorf("failed to update sync record: %w", err)
	}
	return nil
}

// ListByConnection returns records for a connection, newest first,
// optionally filtered by status. limit <= 0 means no limit.
func (s *Store) ListByConnection(connectionID string, status entities.RecordStatus, limit int) ([]entities.SyncRecord, error) {
	query := s.db.Where("connection_id = ?", connectionID).Order("updated_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var recs []entities.SyncRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list sync records: %w", err)
	}
	return recs, nil
}

// CountByStatus tallies a connection's records per status.
func (s *Store) CountByStatus(connectionID string) (map[entities.RecordStatus]int64, error) {
	type row struct {
		Status entities.RecordStatus
		N      int64
	}
	var rows []row
	err := s.db.Model(&entities.SyncRecord{}).
		Select("status, COUNT(*) as n").
		Where("connection_id = ?", connectionID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count sync records: %w", err)
	}

	counts := make(map[entities.RecordStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

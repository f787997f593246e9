// Package connections manages the tenant → OneDrive connection registry:
// encrypted credential storage, the single-active-connection invariant,
// and access-token refresh.
package connections

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vesseldocs/drivesync/internal/crypto"
	"github.com/vesseldocs/drivesync/internal/entities"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectionInactive = errors.New("connection is not active")
)

// Credentials holds decrypted token material. Never persisted.
type Credentials struct {
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time
}

// Registry handles connection persistence with token encryption at rest.
type Registry struct {
	db        *gorm.DB
	encryptor *crypto.Encryptor
}

// NewRegistry creates a connection registry.
func NewRegistry(db *gorm.DB, encryptor *crypto.Encryptor) *Registry {
	return &Registry{db: db, encryptor: encryptor}
}

// Activate creates or updates the connection for (tenant, principal) and
// makes it the tenant's single active connection, deactivating all
// siblings in the same transaction. Prior connections are retained for
// audit, never deleted.
func (r *Registry) Activate(tenantID, userPrincipalName string, creds Credentials) (*entities.Connection, error) {
	encAccess, err := r.encryptor.Encrypt(creds.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encRefresh, err := r.encryptor.Encrypt(creds.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	var conn entities.Connection

	err = r.db.Transaction(func(tx *gorm.DB) error {
		// Deactivate all prior connections for the tenant first so the
		// single-active invariant holds even mid-transaction.
		if err := tx.Model(&entities.Connection{}).
			Where("tenant_id = ? AND active = ?", tenantID, true).
			Update("active", false).Error; err != nil {
			return err
		}

		result := tx.Where("tenant_id = ? AND user_principal_name = ?", tenantID, userPrincipalName).
			First(&conn)

		if result.Error == gorm.ErrRecordNotFound {
			conn = entities.Connection{
				ID:                uuid.NewString(),
				TenantID:          tenantID,
				UserPrincipalName: userPrincipalName,
				AccessToken:       encAccess,
				RefreshToken:      encRefresh,
				TokenExpiresAt:    creds.TokenExpiresAt,
				Active:            true,
				SyncEnabled:       true,
			}
			return tx.Create(&conn).Error
		} else if result.Error != nil {
			return result.Error
		}

		conn.AccessToken = encAccess
		conn.RefreshToken = encRefresh
		conn.TokenExpiresAt = creds.TokenExpiresAt
		conn.Active = true
		conn.SyncEnabled = true
		return tx.Save(&conn).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to activate connection: %w", err)
	}

	return &conn, nil
}

// Get retrieves a connection by id.
func (r *Registry) Get(id string) (*entities.Connection, error) {
	var conn entities.Connection
	err := r.db.Where("id = ?", id).First(&conn).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return &conn, nil
}

// GetActive returns the tenant's active connection, or ErrConnectionNotFound.
func (r *Registry) GetActive(tenantID string) (*entities.Connection, error) {
	var conn entities.Connection
	err := r.db.Where("tenant_id = ? AND active = ?", tenantID, true).First(&conn).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active connection: %w", err)
	}
	return &conn, nil
}

// Disconnect deactivates a connection and disables scheduled sync for it.
// The row is kept for audit.
func (r *Registry) Disconnect(id string) error {
	result := r.db.Model(&entities.Connection{}).
		Where("id = ?", id).
		Updates(map[string]any{"active": false, "sync_enabled": false})
	if result.Error != nil {
		return fmt.Errorf("failed to disconnect: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

// GetCredentials decrypts the stored token material for a connection.
func (r *Registry) GetCredentials(id string) (*Credentials, error) {
	conn, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	accessToken, err := r.encryptor.Decrypt(conn.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	refreshToken, err := r.encryptor.Decrypt(conn.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	return &Credentials{
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		TokenExpiresAt: conn.TokenExpiresAt,
	}, nil
}

// UpdateTokens persists refreshed token material.
func (r *Registry) UpdateTokens(id string, creds Credentials) error {
	encAccess, err := r.encryptor.Encrypt(creds.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}

	updates := map[string]any{
		"access_token":     encAccess,
		"token_expires_at": creds.TokenExpiresAt,
	}

	// Only replace the refresh token when the provider rotated it.
	if creds.RefreshToken != "" {
		encRefresh, err := r.encryptor.Encrypt(creds.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
		updates["refresh_token"] = encRefresh
	}

	result := r.db.Model(&entities.Connection{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update tokens: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

// SetSelectedFolders records the root folder paths chosen for sync.
func (r *Registry) SetSelectedFolders(id string, paths []string) error {
	conn := entities.Connection{}
	if err := conn.SetFolderPaths(paths); err != nil {
		return fmt.Errorf("failed to encode folder paths: %w", err)
	}

	result := r.db.Model(&entities.Connection{}).
		Where("id = ?", id).
		Update("selected_folders", conn.SelectedFolders)
	if result.Error != nil {
		return fmt.Errorf("failed to save selected folders: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

// TouchLastSync stamps a connection's last completed sync time.
func (r *Registry) TouchLastSync(id string) error {
	now := time.Now()
	return r.db.Model(&entities.Connection{}).
		Where("id = ?", id).
		Update("last_sync_at", now).Error
}

// ListSyncEnabled returns active connections eligible for scheduled sync.
func (r *Registry) ListSyncEnabled() ([]entities.Connection, error) {
	var conns []entities.Connection
	err := r.db.Where("active = ? AND sync_enabled = ?", true, true).Find(&conns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return conns, nil
}

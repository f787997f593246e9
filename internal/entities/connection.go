package entities

import (
	"encoding/json"
	"time"
)

// Connection is an authorized link between a tenant and one OneDrive account.
// Tokens are stored encrypted (base64-encoded AES-256-GCM ciphertext); the
// connections registry is the only component that sees plaintext.
type Connection struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// TenantID identifies the tenant this connection belongs to.
	// At most one connection per tenant has Active=true.
	TenantID string `gorm:"size:255;not null;index;uniqueIndex:idx_tenant_principal" json:"tenant_id"`

	// UserPrincipalName is the Microsoft account email behind the connection.
	UserPrincipalName string `gorm:"size:255;not null;uniqueIndex:idx_tenant_principal" json:"user_principal_name"`

	AccessToken    string    `gorm:"type:text;not null" json:"-"`
	RefreshToken   string    `gorm:"type:text" json:"-"`
	TokenExpiresAt time.Time `json:"token_expires_at"`

	Active      bool `gorm:"not null;default:false" json:"active"`
	SyncEnabled bool `gorm:"not null;default:true" json:"sync_enabled"`

	// SelectedFolders is a JSON array of root folder paths chosen for sync.
	SelectedFolders string `gorm:"type:text" json:"-"`

	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}

func (Connection) TableName() string {
	return "connections"
}

// FolderPaths decodes the stored folder selection.
func (c *Connection) FolderPaths() []string {
	if c.SelectedFolders == "" {
		return nil
	}
	var paths []string
	if err := json.Unmarshal([]byte(c.SelectedFolders), &paths); err != nil {
		return nil
	}
	return paths
}

// SetFolderPaths encodes the folder selection for storage.
func (c *Connection) SetFolderPaths(paths []string) error {
	data, err := json.Marshal(paths)
	if err != nil {
		return err
	}
	c.SelectedFolders = string(data)
	return nil
}

// TokenExpired reports whether the access token is expired or expiring
// within the given margin.
func (c *Connection) TokenExpired(margin time.Duration) bool {
	return time.Now().Add(margin).After(c.TokenExpiresAt)
}

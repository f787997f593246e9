package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vesseldocs/drivesync/internal/connections"
	"github.com/vesseldocs/drivesync/internal/oauth2"
	"github.com/vesseldocs/drivesync/internal/storage"
)

// AuthController implements the OAuth connect flow: issuing the
// authorization URL, handling the provider callback and reporting
// connection status.
type AuthController struct {
	registry      *connections.Registry
	provider      oauth2.Provider
	states        *oauth2.StateStore
	clientFactory storage.ClientFactory
	redirectURL   string
}

func NewAuthController(
	registry *connections.Registry,
	provider oauth2.Provider,
	states *oauth2.StateStore,
	clientFactory storage.ClientFactory,
	redirectURL string,
) *AuthController {
	return &AuthController{
		registry:      registry,
		provider:      provider,
		states:        states,
		clientFactory: clientFactory,
		redirectURL:   redirectURL,
	}
}

// Connect issues the authorization URL a tenant should be redirected
// to. The generated state is bound to the tenant until the callback.
func (a *AuthController) Connect(c *gin.Context) {
	tenantID, ok := requireTenantID(c)
	if !ok {
		return
	}

	authURL, state, err := a.provider.BuildAuthURL(a.redirectURL)
	if err != nil {
		respondInternalError(c, err, "build auth url")
		return
	}
	a.states.Put(state, tenantID)

	c.JSON(http.StatusOK, gin.H{
		"auth_url": authURL,
		"state":    state,
	})
}

// Callback handles the provider redirect: validates state, exchanges
// the code, resolves the account identity and activates the connection.
func (a *AuthController) Callback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		respondError(c, http.StatusBadGateway, "authorization failed: "+c.Query("error_description"))
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		respondBadRequest(c, "code and state are required")
		return
	}

	tenantID, err := a.states.Consume(state)
	if err != nil {
		respondBadRequest(c, "invalid or expired state")
		return
	}

	tokens, err := a.provider.ExchangeCode(c.Request.Context(), code, a.redirectURL)
	if err != nil {
		respondError(c, http.StatusBadGateway, "code exchange failed")
		return
	}

	account, err := a.provider.GetAccountInfo(c.Request.Context(), tokens.AccessToken)
	if err != nil {
		respondError(c, http.StatusBadGateway, "failed to resolve account identity")
		return
	}

	conn, err := a.registry.Activate(tenantID, account.UserPrincipalName, connections.Credentials{
		AccessToken:    tokens.AccessToken,
		RefreshToken:   tokens.RefreshToken,
		TokenExpiresAt: tokens.ExpiresAt(),
	})
	if err != nil {
		respondInternalError(c, err, "activate connection")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"connection_id":       conn.ID,
		"user_principal_name": conn.UserPrincipalName,
		"connected":           true,
	})
}

// Status reports whether a tenant has an active connection and whether
// the account's drive is provisioned.
func (a *AuthController) Status(c *gin.Context) {
	tenantID, ok := requireTenantID(c)
	if !ok {
		return
	}

	conn, err := a.registry.GetActive(tenantID)
	if errors.Is(err, connections.ErrConnectionNotFound) {
		c.JSON(http.StatusOK, gin.H{"connected": false})
		return
	}
	if err != nil {
		respondInternalError(c, err, "get active connection")
		return
	}

	resp := gin.H{
		"connected":           true,
		"connection_id":       conn.ID,
		"user_principal_name": conn.UserPrincipalName,
		"sync_enabled":        conn.SyncEnabled,
		"selected_folders":    conn.FolderPaths(),
	}
	if conn.LastSyncAt != nil {
		resp["last_sync_at"] = conn.LastSyncAt
	}

	// Drive provisioning matters for first-time users; lack of it is
	// the most common reason a fresh connection cannot sync.
	if a.clientFactory != nil {
		if client, err := a.clientFactory(conn); err == nil {
			resp["drive_provisioned"] = client.CheckProvisioned(c.Request.Context()) == nil
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Disconnect deactivates the tenant's active connection.
func (a *AuthController) Disconnect(c *gin.Context) {
	tenantID, ok := requireTenantID(c)
	if !ok {
		return
	}

	conn, err := a.registry.GetActive(tenantID)
	if errors.Is(err, connections.ErrConnectionNotFound) {
		respondNotFound(c, "connection")
		return
	}
	if err != nil {
		respondInternalError(c, err, "get active connection")
		return
	}

	if err := a.registry.Disconnect(conn.ID); err != nil {
		respondInternalError(c, err, "disconnect")
		return
	}

	c.JSON(http.StatusOK, gin.H{"disconnected": true})
}

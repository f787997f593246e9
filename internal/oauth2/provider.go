// Package oauth2 implements the authorization-code flow against the
// Microsoft identity platform. Token persistence lives in the connections
// registry; this package only talks to the identity endpoints.
package oauth2

import (
	"context"
	"time"
)

// ProviderConfig contains the configuration needed for OAuth2 authorization.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	Authority    string // tenant segment of the authorize/token URLs
	Scopes       []string
}

// TokenResponse contains tokens returned from the identity platform.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int // seconds until expiry
	Scope        string
}

// ExpiresAt calculates the absolute expiry time from ExpiresIn.
func (t *TokenResponse) ExpiresAt() time.Time {
	if t.ExpiresIn <= 0 {
		// Graph access tokens always expire; assume the common default
		// when the response omits expires_in.
		return time.Now().Add(time.Hour)
	}
	return time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
}

// AccountInfo identifies the authenticated user.
type AccountInfo struct {
	UserPrincipalName string
	DisplayName       string
}

// Provider defines the interface for the OAuth2 identity provider.
type Provider interface {
	// BuildAuthURL constructs the authorization URL for the OAuth2 flow.
	// Returns the auth URL and the generated state parameter.
	BuildAuthURL(redirectURL string) (authURL, state string, err error)

	// ExchangeCode exchanges an authorization code for tokens.
	ExchangeCode(ctx context.Context, code, redirectURL string) (*TokenResponse, error)

	// RefreshToken exchanges a refresh token for a new access token.
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)

	// GetAccountInfo retrieves the account identity for the authenticated user.
	GetAccountInfo(ctx context.Context, accessToken string) (*AccountInfo, error)
}

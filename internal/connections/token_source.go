package connections

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/vesseldocs/drivesync/internal/oauth2"
)

// TokenSource provides a valid access token for a connection, refreshing
// through the identity provider when the cached token is close to expiry.
// Refreshed tokens are written back to the registry so restarts pick up
// the newest refresh token.
type TokenSource struct {
	mu           sync.Mutex
	registry     *Registry
	provider     oauth2.Provider
	connectionID string
	margin       time.Duration

	accessToken string
	expiresAt   time.Time
}

// NewTokenSource creates a token source for a connection. margin is how
// long before expiry a token is considered stale.
func NewTokenSource(registry *Registry, provider oauth2.Provider, connectionID string, margin time.Duration) *TokenSource {
	if margin <= 0 {
		margin = 5 * time.Minute
	}
	return &TokenSource{
		registry:     registry,
		provider:     provider,
		connectionID: connectionID,
		margin:       margin,
	}
}

// TokenSourceCache hands out one TokenSource per connection so every
// client for a connection serializes refreshes on the same mutex.
// Unshared sources racing on a refresh can persist a stale rotated
// refresh token and strand the connection until re-auth.
type TokenSourceCache struct {
	registry *Registry
	provider oauth2.Provider
	margin   time.Duration

	mu      sync.Mutex
	sources map[string]*TokenSource
}

// NewTokenSourceCache creates an empty cache.
func NewTokenSourceCache(registry *Registry, provider oauth2.Provider, margin time.Duration) *TokenSourceCache {
	return &TokenSourceCache{
		registry: registry,
		provider: provider,
		margin:   margin,
		sources:  make(map[string]*TokenSource),
	}
}

// For returns the connection's shared token source, creating it on
// first use.
func (c *TokenSourceCache) For(connectionID string) *TokenSource {
	c.mu.Lock()
	defer c.mu.Unlock()

	source, ok := c.sources[connectionID]
	if !ok {
		source = NewTokenSource(c.registry, c.provider, connectionID, c.margin)
		c.sources[connectionID] = source
	}
	return source
}

// Token returns a valid access token, refreshing it first when needed.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != "" && time.Until(s.expiresAt) > s.margin {
		return s.accessToken, nil
	}

	creds, err := s.registry.GetCredentials(s.connectionID)
	if err != nil {
		return "", fmt.Errorf("failed to load credentials: %w", err)
	}

	if time.Until(creds.TokenExpiresAt) > s.margin {
		s.accessToken = creds.AccessToken
		s.expiresAt = creds.TokenExpiresAt
		return s.accessToken, nil
	}

	return s.refreshLocked(ctx, creds.RefreshToken)
}

// refreshLocked exchanges the refresh token and persists the result.
// Caller must hold the lock.
func (s *TokenSource) refreshLocked(ctx context.Context, refreshToken string) (string, error) {
	log.Printf("[connections] refreshing access token for connection %s", s.connectionID)

	resp, err := s.provider.RefreshToken(ctx, refreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}

	expiresAt := resp.ExpiresAt()
	err = s.registry.UpdateTokens(s.connectionID, Credentials{
		AccessToken:    resp.AccessToken,
		RefreshToken:   resp.RefreshToken,
		TokenExpiresAt: expiresAt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	s.accessToken = resp.AccessToken
	s.expiresAt = expiresAt
	return s.accessToken, nil
}

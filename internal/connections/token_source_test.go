package connections

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesseldocs/drivesync/internal/oauth2"
)

// fakeProvider counts refresh calls and returns a canned token.
type fakeProvider struct {
	refreshCalls int
	refreshErr   error
}

func (f *fakeProvider) BuildAuthURL(redirectURL string) (string, string, error) {
	return "https://example.com/authorize", "state", nil
}

func (f *fakeProvider) ExchangeCode(ctx context.Context, code, redirectURL string) (*oauth2.TokenResponse, error) {
	return nil, nil
}

func (f *fakeProvider) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.TokenResponse, error) {
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &oauth2.TokenResponse{
		AccessToken:  "refreshed-access",
		RefreshToken: "rotated-refresh",
		ExpiresIn:    3600,
	}, nil
}

func (f *fakeProvider) GetAccountInfo(ctx context.Context, accessToken string) (*oauth2.AccountInfo, error) {
	return &oauth2.AccountInfo{UserPrincipalName: "captain@vessel.example"}, nil
}

func TestTokenSource_ValidTokenNotRefreshed(t *testing.T) {
	registry, _, cleanup := setupTestRegistry(t)
	defer cleanup()

	conn, err := registry.Activate("tenant-1", "captain@vessel.example", testCreds())
	require.NoError(t, err)

	provider := &fakeProvider{}
	source := NewTokenSource(registry, provider, conn.ID, 5*time.Minute)

	token, err := source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-token", token)
	assert.Equal(t, 0, provider.refreshCalls)
}

func TestTokenSource_ExpiringTokenRefreshedAndPersisted(t *testing.T) {
	registry, _, cleanup := setupTestRegistry(t)
	defer cleanup()

	creds := testCreds()
	creds.TokenExpiresAt = time.Now().Add(time.Minute) // inside refresh margin
	conn, err := registry.Activate("tenant-1", "captain@vessel.example", creds)
	require.NoError(t, err)

	provider := &fakeProvider{}
	source := NewTokenSource(registry, provider, conn.ID, 5*time.Minute)

	token, err := source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access", token)
	assert.Equal(t, 1, provider.refreshCalls)

	// Rotated tokens are persisted for future restarts
	saved, err := registry.GetCredentials(conn.ID)
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access", saved.AccessToken)
	assert.Equal(t, "rotated-refresh", saved.RefreshToken)
}

func TestTokenSource_CachedTokenReused(t *testing.T) {
	registry, _, cleanup := setupTestRegistry(t)
	defer cleanup()

	creds := testCreds()
	creds.TokenExpiresAt = time.Now().Add(time.Minute)
	conn, err := registry.Activate("tenant-1", "captain@vessel.example", creds)
	require.NoError(t, err)

	provider := &fakeProvider{}
	source := NewTokenSource(registry, provider, conn.ID, 5*time.Minute)

	_, err = source.Token(context.Background())
	require.NoError(t, err)
	_, err = source.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, provider.refreshCalls, "second call must hit the cache")
}

func TestTokenSourceCache_OneSourcePerConnection(t *testing.T) {
	registry, _, cleanup := setupTestRegistry(t)
	defer cleanup()

	conn, err := registry.Activate("tenant-1", "captain@vessel.example", testCreds())
	require.NoError(t, err)
	other, err := registry.Activate("tenant-2", "chief@vessel.example", testCreds())
	require.NoError(t, err)

	cache := NewTokenSourceCache(registry, &fakeProvider{}, 5*time.Minute)

	assert.Same(t, cache.For(conn.ID), cache.For(conn.ID))
	assert.NotSame(t, cache.For(conn.ID), cache.For(other.ID))
}

func TestTokenSourceCache_ConcurrentRefreshHappensOnce(t *testing.T) {
	registry, _, cleanup := setupTestRegistry(t)
	defer cleanup()

	creds := testCreds()
	creds.TokenExpiresAt = time.Now().Add(time.Minute)
	conn, err := registry.Activate("tenant-1", "captain@vessel.example", creds)
	require.NoError(t, err)

	provider := &fakeProvider{}
	cache := NewTokenSourceCache(registry, provider, 5*time.Minute)

	// Concurrent clients for one connection share a source; the first
	// refresh wins and the rest hit the cache
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := cache.For(conn.ID).Token(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "refreshed-access", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, provider.refreshCalls)

	saved, err := registry.GetCredentials(conn.ID)
	require.NoError(t, err)
	assert.Equal(t, "rotated-refresh", saved.RefreshToken)
}

func TestTokenSource_RefreshFailureSurfaced(t *testing.T) {
	registry, _, cleanup := setupTestRegistry(t)
	defer cleanup()

	creds := testCreds()
	creds.TokenExpiresAt = time.Now().Add(-time.Minute)
	conn, err := registry.Activate("tenant-1", "captain@vessel.example", creds)
	require.NoError(t, err)

	provider := &fakeProvider{refreshErr: oauth2.ErrNoRefreshToken}
	source := NewTokenSource(registry, provider, conn.ID, 5*time.Minute)

	_, err = source.Token(context.Background())
	assert.Error(t, err)
}

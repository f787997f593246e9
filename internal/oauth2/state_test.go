package oauth2

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStore_PutAndConsume(t *testing.T) {
	store := NewStateStore()
	store.Put("state-1", "tenant-1")

	tenantID, err := store.Consume("state-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tenantID)
}

func TestStateStore_ConsumeIsOneShot(t *testing.T) {
	store := NewStateStore()
	store.Put("state-1", "tenant-1")

	_, err := store.Consume("state-1")
	require.NoError(t, err)

	_, err = store.Consume("state-1")
	assert.ErrorIs(t, err, ErrStateExpired)
}

func TestStateStore_UnknownState(t *testing.T) {
	store := NewStateStore()

	_, err := store.Consume("never-issued")
	assert.ErrorIs(t, err, ErrStateExpired)
}

func TestStateStore_ExpiredState(t *testing.T) {
	store := NewStateStore()
	store.ttl = -time.Second
	store.Put("state-1", "tenant-1")

	_, err := store.Consume("state-1")
	assert.ErrorIs(t, err, ErrStateExpired)
}

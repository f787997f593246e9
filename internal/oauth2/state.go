package oauth2

import (
	"sync"
	"time"
)

const defaultStateTTL = 10 * time.Minute

type pendingAuth struct {
	tenantID  string
	expiresAt time.Time
}

// StateStore tracks issued state parameters between the connect request
// and the provider callback, binding each state to the tenant that
// initiated the flow.
type StateStore struct {
	mu      sync.Mutex
	pending map[string]pendingAuth
	ttl     time.Duration
}

// NewStateStore creates a state store with the default TTL.
func NewStateStore() *StateStore {
	return &StateStore{
		pending: make(map[string]pendingAuth),
		ttl:     defaultStateTTL,
	}
}

// Put registers a state issued for a tenant.
func (s *StateStore) Put(state, tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prune()
	s.pending[state] = pendingAuth{
		tenantID:  tenantID,
		expiresAt: time.Now().Add(s.ttl),
	}
}

// Consume validates and removes a state, returning the tenant it was
// issued for. A state can be consumed at most once.
func (s *StateStore) Consume(state string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[state]
	if !ok {
		return "", ErrStateExpired
	}
	delete(s.pending, state)

	if time.Now().After(p.expiresAt) {
		return "", ErrStateExpired
	}
	return p.tenantID, nil
}

// prune drops expired entries; caller must hold the lock.
func (s *StateStore) prune() {
	now := time.Now()
	for state, p := range s.pending {
		if now.After(p.expiresAt) {
			delete(s.pending, state)
		}
	}
}

package renewal

import (
	"context"
	"sync"
	"time"

	"github.com/certflow/certflow/core/certorder"
)

// DefaultSessionTTL is how long a half-finished manual renewal stays
// resumable before the session store may evict it.
const DefaultSessionTTL = time.Hour

// Session is the state of a manual renewal between its two phases. It is
// fully serializable: the ACME engine is reconstructed from the account key
// and order URL, so sessions can live in an external store across process
// restarts.
type Session struct {
	OrderID       string                `json:"order_id"`
	OrderURL      string                `json:"order_url"`
	AccountKeyPEM []byte                `json:"account_key_pem"`
	Challenges    []certorder.Challenge `json:"challenges"`
	CreatedAt     time.Time             `json:"created_at"`
}

// SessionStore persists manual renewal sessions and arbitrates the
// per-order renewal guard. One implementation is in-process
// (NewMemoryStore); deployments with several workers use a shared backend.
type SessionStore interface {
	// Put stores or replaces the session for its order.
	Put(ctx context.Context, s Session) error

	// Get returns the session for the order or ErrSessionNotFound.
	Get(ctx context.Context, orderID string) (Session, error)

	// Delete removes the session for the order. Deleting a missing session
	// is not an error.
	Delete(ctx context.Context, orderID string) error

	// Acquire takes the per-order renewal guard. It returns false when
	// another renewal already holds it.
	Acquire(ctx context.Context, orderID string) (bool, error)

	// Release frees the per-order renewal guard.
	Release(ctx context.Context, orderID string) error
}

// MemoryStore is an in-process SessionStore with lazy TTL eviction. An
// expired session frees its renewal guard the next time it is observed.
type MemoryStore struct {
	ttl time.Duration

	mu         sync.Mutex
	sessions   map[string]memorySession
	inProgress map[string]struct{}
}

type memorySession struct {
	session   Session
	expiresAt time.Time
}

// NewMemoryStore creates an in-process session store. A non-positive ttl
// falls back to DefaultSessionTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemoryStore{
		ttl:        ttl,
		sessions:   make(map[string]memorySession),
		inProgress: make(map[string]struct{}),
	}
}

func (m *MemoryStore) Put(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.OrderID] = memorySession{session: s, expiresAt: time.Now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, orderID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[orderID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if time.Now().After(entry.expiresAt) {
		m.evictLocked(orderID)
		return Session{}, ErrSessionNotFound
	}
	return entry.session, nil
}

func (m *MemoryStore) Delete(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, orderID)
	return nil
}

func (m *MemoryStore) Acquire(_ context.Context, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.sessions[orderID]; ok && time.Now().After(entry.expiresAt) {
		m.evictLocked(orderID)
	}
	if _, held := m.inProgress[orderID]; held {
		return false, nil
	}
	m.inProgress[orderID] = struct{}{}
	return true, nil
}

func (m *MemoryStore) Release(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inProgress, orderID)
	return nil
}

// evictLocked drops an expired session together with the renewal guard its
// owner still holds, so an abandoned manual renewal cannot block the order
// forever. Callers hold m.mu.
func (m *MemoryStore) evictLocked(orderID string) {
	delete(m.sessions, orderID)
	delete(m.inProgress, orderID)
}

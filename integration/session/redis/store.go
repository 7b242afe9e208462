package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/certflow/certflow/core/renewal"
)

const (
	defaultKeyPrefix = "certflow:renewal:"

	// DefaultLockTTL caps how long a crashed worker can hold the per-order
	// renewal guard before it expires on its own.
	DefaultLockTTL = 15 * time.Minute
)

// StoreOption configures the session store.
type StoreOption func(*Store)

// WithKeyPrefix namespaces all keys, for sharing one Redis database
// between environments.
func WithKeyPrefix(prefix string) StoreOption {
	return func(s *Store) { s.prefix = prefix }
}

// WithSessionTTL overrides how long manual renewal sessions stay resumable.
func WithSessionTTL(ttl time.Duration) StoreOption {
	return func(s *Store) { s.sessionTTL = ttl }
}

// WithLockTTL overrides the expiry of the per-order renewal guard.
func WithLockTTL(ttl time.Duration) StoreOption {
	return func(s *Store) { s.lockTTL = ttl }
}

// Store implements renewal.SessionStore on Redis. Sessions are JSON values
// with a TTL; the renewal guard is a SET NX lock keyed by order ID.
type Store struct {
	client     *goredis.Client
	prefix     string
	sessionTTL time.Duration
	lockTTL    time.Duration
}

// NewStore wraps a connected Redis client in a renewal session store.
func NewStore(client *goredis.Client, opts ...StoreOption) *Store {
	s := &Store{
		client:     client,
		prefix:     defaultKeyPrefix,
		sessionTTL: renewal.DefaultSessionTTL,
		lockTTL:    DefaultLockTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Put(ctx context.Context, sess renewal.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal renewal session: %w", err)
	}
	return s.client.Set(ctx, s.sessionKey(sess.OrderID), payload, s.sessionTTL).Err()
}

func (s *Store) Get(ctx context.Context, orderID string) (renewal.Session, error) {
	payload, err := s.client.Get(ctx, s.sessionKey(orderID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return renewal.Session{}, renewal.ErrSessionNotFound
	}
	if err != nil {
		return renewal.Session{}, err
	}
	var sess renewal.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return renewal.Session{}, fmt.Errorf("unmarshal renewal session: %w", err)
	}
	return sess, nil
}

func (s *Store) Delete(ctx context.Context, orderID string) error {
	return s.client.Del(ctx, s.sessionKey(orderID)).Err()
}

func (s *Store) Acquire(ctx context.Context, orderID string) (bool, error) {
	return s.client.SetNX(ctx, s.lockKey(orderID), "1", s.lockTTL).Result()
}

func (s *Store) Release(ctx context.Context, orderID string) error {
	return s.client.Del(ctx, s.lockKey(orderID)).Err()
}

func (s *Store) sessionKey(orderID string) string { return s.prefix + "session:" + orderID }
func (s *Store) lockKey(orderID string) string    { return s.prefix + "lock:" + orderID }

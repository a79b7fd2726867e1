// Package redisstore keeps session payloads in Redis and answers liveness
// questions for session reconciliation.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"store-sessions/internal/models"
	"store-sessions/internal/sessions"
)

const DefaultPrefix = "session:"

var _ sessions.Store = (*Store)(nil)

type Store struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
	now        func() time.Time
}

type Option func(*Store)

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithDefaultTTL sets the lifetime of sessions created without ExpiresAt.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Store) { s.defaultTTL = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID
}

// Create stores sess until its ExpiresAt. A zero ExpiresAt uses the default
// TTL when one is configured.
func (s *Store) Create(ctx context.Context, sess models.StoredSession) error {
	if sess.SessionID == "" || sess.UserID == "" {
		return fmt.Errorf("session: missing sessionId or userId")
	}
	if sess.ExpiresAt.IsZero() && s.defaultTTL > 0 {
		sess.ExpiresAt = s.now().Add(s.defaultTTL)
	}

	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("session: expiresAt must be in the future")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}
	return s.client.Set(ctx, s.key(sess.SessionID), data, ttl).Err()
}

// Get returns nil without error when the session is unknown or expired.
func (s *Store) Get(ctx context.Context, sessionID string) (*models.StoredSession, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sess models.StoredSession
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	if sess.IsExpired(s.now()) {
		_ = s.client.Del(ctx, s.key(sessionID)).Err()
		return nil, nil
	}
	return &sess, nil
}

func (s *Store) IsLive(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("session: exists %s: %w", sessionID, err)
	}
	return n > 0, nil
}

// Destroy removes the session. Unknown ids are not an error.
func (s *Store) Destroy(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("session: delete %s: %w", sessionID, err)
	}
	return nil
}

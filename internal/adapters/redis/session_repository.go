// Package redis provides Redis-backed session persistence and event delivery
// for the identity broker.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/target/storefront/internal/domain/auth"
	apperrors "github.com/target/storefront/internal/errors"
	"github.com/target/storefront/internal/ports"
)

const defaultSessionPrefix = "storefront:session:"

// ErrNotFound is returned when no session is stored for a client.
var ErrNotFound = apperrors.NotFound("session not found")

// SessionRepository stores one provider session per browser client. Keys
// expire with the session.
type SessionRepository struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ ports.SessionRepository = (*SessionRepository)(nil)

// SessionRepositoryOptions configures a SessionRepository.
type SessionRepositoryOptions struct {
	Prefix string
	Now    func() time.Time
}

// NewSessionRepository creates a Redis session repository.
func NewSessionRepository(client redis.UniversalClient, opts SessionRepositoryOptions) *SessionRepository {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultSessionPrefix
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &SessionRepository{client: client, prefix: prefix, now: now}
}

// Save writes sess for clientID with a TTL matching its expiry.
func (s *SessionRepository) Save(ctx context.Context, clientID string, sess domainauth.Session) error {
	if clientID == "" {
		return errors.New("client ID cannot be empty")
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return errors.New("session is expired")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err = s.client.Set(ctx, s.prefix+clientID, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Get returns the session for clientID or ErrNotFound.
func (s *SessionRepository) Get(ctx context.Context, clientID string) (domainauth.Session, error) {
	if clientID == "" {
		return domainauth.Session{}, ErrNotFound
	}
	data, err := s.client.Get(ctx, s.prefix+clientID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, ErrNotFound
		}
		return domainauth.Session{}, fmt.Errorf("redis get session: %w", err)
	}

	var sess domainauth.Session
	if err = json.Unmarshal(data, &sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	// TTL granularity can leave a key alive slightly past expiry.
	if sess.Expired(s.now()) {
		if delErr := s.Delete(ctx, clientID); delErr != nil {
			return domainauth.Session{}, fmt.Errorf("cleanup expired session: %w", delErr)
		}
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

// Delete removes the session for clientID. Missing keys are not an error.
func (s *SessionRepository) Delete(ctx context.Context, clientID string) error {
	if clientID == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.prefix+clientID).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	return nil
}

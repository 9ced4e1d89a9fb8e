// Package core holds repository contracts and small services built directly on them.
package core

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations.
// This follows the hexagonal architecture pattern where the core defines interfaces
// and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists checks if a key exists in the cache.
	Exists(ctx context.Context, key string) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// FlagService stores per-user client flags such as the forced password change
// that follows first-run admin provisioning.
type FlagService struct {
	cache CacheRepository
	ttl   time.Duration
}

// FlagServiceOptions bundles dependencies for NewFlagService.
type FlagServiceOptions struct {
	Cache CacheRepository
	// TTL bounds how long a flag survives; zero keeps it until cleared.
	TTL time.Duration
}

// NewFlagService creates a new FlagService.
func NewFlagService(opts FlagServiceOptions) *FlagService {
	return &FlagService{cache: opts.Cache, ttl: opts.TTL}
}

// RequirePasswordChange marks userID as needing a password change.
func (s *FlagService) RequirePasswordChange(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	return s.cache.Set(ctx, passwordChangeKey(userID), []byte("1"), s.ttl)
}

// PasswordChangeRequired reports whether the flag is set for userID.
func (s *FlagService) PasswordChangeRequired(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	return s.cache.Exists(ctx, passwordChangeKey(userID))
}

// ClearPasswordChange removes the flag for userID.
func (s *FlagService) ClearPasswordChange(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	_, err := s.cache.Delete(ctx, passwordChangeKey(userID))
	return err
}

func passwordChangeKey(userID string) string {
	return "flags:require_password_change:" + userID
}

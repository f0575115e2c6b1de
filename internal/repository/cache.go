package repository

import (
	"context"
	"strconv"
	"time"
)

// =============================================================================
// Cache Interface
// =============================================================================

// Cache defines the interface for caching operations.
// Implemented in memory for single-node deployments and on Redis when shared.
type Cache interface {
	// Get retrieves a value by key.
	// Returns ErrCacheMiss if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with an optional TTL.
	// If ttl is 0, the value doesn't expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes values by key. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Exists checks if a key exists.
	Exists(ctx context.Context, key string) (bool, error)
}

// CacheError represents a cache error type.
type CacheError string

const (
	// ErrCacheMiss indicates the key was not found in cache.
	ErrCacheMiss CacheError = "cache miss"

	// ErrCacheUnavailable indicates the cache is unavailable.
	ErrCacheUnavailable CacheError = "cache unavailable"
)

func (e CacheError) Error() string {
	return string(e)
}

// =============================================================================
// Common Cache Keys
// =============================================================================

// CacheKeys provides cache key generation.
var CacheKeys = cacheKeys{}

type cacheKeys struct{}

// TokenUser returns the cache key mapping a token to its user ID.
// keyHash is the SHA-256 of the token key; raw keys are never used as cache keys.
func (cacheKeys) TokenUser(keyHash string) string {
	return "cache:token:" + keyHash
}

// UserToken returns the cache key recording which token hash a user's mapping lives under.
func (cacheKeys) UserToken(userID int64) string {
	return "cache:user:token:" + strconv.FormatInt(userID, 10)
}

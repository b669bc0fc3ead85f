package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss indicates the key is absent or expired.
var ErrCacheMiss = errors.New("cache: key not found")

// Store is a key/value store with per-key TTL expiry, atomic counters
// and explicit deletion. Callers treat every operation as best-effort:
// a failure degrades to a miss or a dropped write, never a hard error
// on the serving path.
type Store interface {
	// Get returns the payload for key, or ErrCacheMiss if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores payload under key with the given TTL. TTL must be
	// positive; entries never live forever.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// DeletePattern removes all keys matching a glob pattern and
	// returns how many were deleted.
	DeletePattern(ctx context.Context, pattern string) (int, error)

	// Increment atomically adds amount to the integer at key and
	// returns the new value.
	Increment(ctx context.Context, key string, amount int64) (int64, error)

	// Expire sets a TTL on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}

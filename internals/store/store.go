package store

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned when a key is absent or already expired. Callers
// treat it as "session already resolved", never as a retryable failure.
var ErrKeyNotFound = errors.New("store: key not found")

// Store is the shared TTL key-value store. It is the single source of truth
// for whether an ephemeral session still exists; per-key operations are the
// only atomicity boundary available to callers.
type Store interface {
	// Get returns the string value for key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) (string, error)

	// GetJSON unmarshals the value for key into out, or returns ErrKeyNotFound.
	GetJSON(ctx context.Context, key string, out any) error

	// SetEX writes a string value with an absolute TTL, overwriting any
	// previous value and TTL.
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error

	// SetJSONEX marshals value and writes it with an absolute TTL.
	SetJSONEX(ctx context.Context, key string, value any, ttl time.Duration) error

	// Del removes keys. Deleting an absent key is not an error.
	Del(ctx context.Context, keys ...string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// IncrEX atomically increments the counter at key and resets its TTL,
	// returning the post-increment value.
	IncrEX(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

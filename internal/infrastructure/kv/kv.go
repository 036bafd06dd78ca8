package kv

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by Get when a key is absent or has expired.
var ErrKeyNotFound = errors.New("kv: key not found")

// Store is the minimal contract the auth core requires from a key/value
// store with per-key TTL. The store's own expiry mechanism is the sole
// authority for when a key disappears.
type Store interface {
	// SetWithTTL writes value under key, replacing any existing entry and
	// resetting its TTL.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the value for key, or ErrKeyNotFound if absent or expired.
	Get(ctx context.Context, key string) (string, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// SetNX writes value only if key does not already exist. Returns true
	// when the write happened. Used as a short-lived per-key lock.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Expire resets the TTL of an existing key. Returns false if the key
	// does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

package store

import (
	"context"
	"time"
)

// Store is the keyed state interface shared by the rate limiter and the
// OAuth2 subsystem. Implementations must be safe for concurrent use.
type Store interface {
	// Get retrieves the value for a key. The boolean reports whether the
	// key exists and has not expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value for a key. A zero expiresAt means the entry does
	// not expire. An existing entry is overwritten.
	Set(ctx context.Context, key string, value []byte, expiresAt time.Time) error

	// Delete removes the entry for a key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Consume atomically reads and deletes the entry for a key. The boolean
	// reports whether the entry existed (and had not expired). At most one
	// concurrent caller observes true for a given entry.
	Consume(ctx context.Context, key string) ([]byte, bool, error)

	// IncrWindow performs an atomic fixed-window admission check for a key.
	// If no counter exists for the key, or its window has expired, the
	// counter is reset to count=1 expiring at now+window and the request is
	// admitted. Otherwise the counter is incremented and the request
	// admitted only if the new count does not exceed max; a rejected
	// attempt leaves the recorded count unchanged, so the counter never
	// grows past max within one window.
	IncrWindow(ctx context.Context, key string, max int64, window time.Duration) (WindowResult, error)

	// Sweep removes expired entries and counters, returning how many were
	// deleted.
	Sweep(ctx context.Context) (int, error)

	// Close releases resources held by the store.
	Close() error
}

// WindowResult is the outcome of an IncrWindow admission check.
type WindowResult struct {
	// Allowed reports whether the request was admitted.
	Allowed bool

	// Count is the recorded count for the key's current window.
	Count int64

	// ExpiresAt is when the current window resets.
	ExpiresAt time.Time
}

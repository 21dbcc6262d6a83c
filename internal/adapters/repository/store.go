// Package repository holds the expiring key-value stores behind network
// test results and feedback submissions.
package repository

import (
	"context"
	"time"
)

// Store is a keyed store whose entries disappear after a per-entry TTL.
// An expired entry is never returned, even before it is swept.
type Store[V any] interface {
	// Put writes value under key, replacing any previous entry. The entry
	// expires ttl after the write; ttl <= 0 selects the store default.
	Put(ctx context.Context, key string, value V, ttl time.Duration) error

	// Get returns the live value for key, or ErrNotFound when the key is
	// absent or expired. The two cases are indistinguishable.
	Get(ctx context.Context, key string) (V, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string)

	// Len returns the number of entries held, including expired entries
	// that have not been swept yet.
	Len(ctx context.Context) int

	// Sweep removes every expired entry and returns how many were removed.
	Sweep(ctx context.Context) int

	// Close stops background maintenance.
	Close() error
}

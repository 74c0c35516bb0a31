// Package kv provides string-valued key-value storage with SQLite
// persistence and an in-memory option. Used as the remote-config cache.
package kv

import "time"

// Bucket is the interface for key-value storage operations.
type Bucket interface {
	// Name returns the bucket name.
	Name() string

	// Store saves a value with the given key. A positive ttl sets
	// automatic expiry.
	Store(key, value string, ttl time.Duration) error

	// Get retrieves a value by key. The second return is false if the
	// key doesn't exist or has expired.
	Get(key string) (string, bool, error)

	// Delete removes a key from the bucket. Returns true if the key existed.
	Delete(key string) (bool, error)

	// Clear removes all keys from the bucket.
	Clear() error
}

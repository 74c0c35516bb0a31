package kv

import (
	"sync"
	"time"
)

// entry is a stored value with its expiry. A zero expiry never expires.
type entry struct {
	value     string
	expiresAt time.Time
}

// MemoryBucket keeps values in memory. Used in tests and anywhere a
// process-local cache is enough.
type MemoryBucket struct {
	mu      sync.RWMutex
	name    string
	entries map[string]entry
}

// NewMemoryBucket creates an empty in-memory bucket.
func NewMemoryBucket(name string) *MemoryBucket {
	return &MemoryBucket{
		name:    name,
		entries: make(map[string]entry),
	}
}

// Name returns the bucket name.
func (b *MemoryBucket) Name() string { return b.name }

// Store saves value under key, with expiry when ttl is positive.
func (b *MemoryBucket) Store(key, value string, ttl time.Duration) error {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}

	b.mu.Lock()
	b.entries[key] = e
	b.mu.Unlock()
	return nil
}

// Get returns the value for key; expired entries are removed on read.
func (b *MemoryBucket) Get(key string) (string, bool, error) {
	b.mu.RLock()
	e, ok := b.entries[key]
	b.mu.RUnlock()

	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		b.mu.Lock()
		delete(b.entries, key)
		b.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

// Delete removes key, reporting whether it existed.
func (b *MemoryBucket) Delete(key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.entries[key]
	delete(b.entries, key)
	return ok, nil
}

// Clear removes every key in the bucket.
func (b *MemoryBucket) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = make(map[string]entry)
	return nil
}

// Package intermediate implements the sub-task result cache (Tier 3).
// Entries are keyed by the composite workflow cache key rather than raw
// prompt text, so equivalent sub-tasks across different top-level prompts
// collapse onto one entry.
package intermediate

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Entry is a stored sub-task result.
type Entry struct {
	Result   string            `json:"result"`
	Metadata map[string]string `json:"metadata,omitempty"`
	StoredAt int64             `json:"stored_at"`
}

// Store is the backend contract for intermediate entries. Implementations
// handle TTL expiry themselves; Get must not return expired entries.
type Store interface {
	// Get returns the entry for key, or nil when absent or expired.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set unconditionally overwrites the entry for key.
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error

	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// DeleteByPrefix removes every key with the given prefix and returns the
	// number of removed entries.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)

	// Len returns the current entry count.
	Len(ctx context.Context) (int, error)
}

// MemoryStore implements Store in-process on top of go-cache, which handles
// TTL expiry and periodic cleanup.
type MemoryStore struct {
	c *gocache.Cache
}

// NewMemoryStore creates an in-process store with the given default TTL.
func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	return &MemoryStore{
		c: gocache.New(defaultTTL, 10*time.Minute),
	}
}

// Get returns the entry for key, or nil when absent or expired.
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, nil
	}
	entry, ok := v.(*Entry)
	if !ok {
		return nil, nil
	}
	return entry, nil
}

// Set unconditionally overwrites the entry for key.
func (s *MemoryStore) Set(_ context.Context, key string, entry *Entry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	s.c.Set(key, entry, ttl)
	return nil
}

// Delete removes key and reports whether it existed.
func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	_, existed := s.c.Get(key)
	s.c.Delete(key)
	return existed, nil
}

// DeleteByPrefix removes every key with the given prefix.
func (s *MemoryStore) DeleteByPrefix(_ context.Context, prefix string) (int, error) {
	removed := 0
	for key := range s.c.Items() {
		if strings.HasPrefix(key, prefix) {
			s.c.Delete(key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the current entry count.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	return s.c.ItemCount(), nil
}

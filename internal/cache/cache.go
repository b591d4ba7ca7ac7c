// Package cache provides the invalidation-on-write read cache for list results.
//
// Invalidation is deliberately conservative: any write touching an
// organization's records purges every cached result for that organization by
// key prefix, trading staleness precision for simplicity.
package cache

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Store is the read cache consumed by the board service. Keys are built as
// "<orgID>:<signature>" so PurgeByPrefix can drop an organization wholesale.
type Store interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	PurgeByPrefix(prefix string)
}

// MemoryStore implements Store on top of patrickmn/go-cache.
type MemoryStore struct {
	c *gocache.Cache
}

// NewMemoryStore creates a memory-backed cache. defaultTTL applies when Set is
// called with a non-positive ttl.
func NewMemoryStore(defaultTTL, cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		c: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Get returns the cached value for key if present and not expired.
func (m *MemoryStore) Get(key string) (any, bool) {
	return m.c.Get(key)
}

// Set stores value under key with the given ttl.
func (m *MemoryStore) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.c.Set(key, value, ttl)
}

// PurgeByPrefix removes every entry whose key starts with prefix.
// go-cache has no native prefix scan, so this walks the item snapshot; entry
// counts are bounded by list-query variety per organization, which keeps the
// walk cheap in practice.
func (m *MemoryStore) PurgeByPrefix(prefix string) {
	for key := range m.c.Items() {
		if strings.HasPrefix(key, prefix) {
			m.c.Delete(key)
		}
	}
}

// ItemCount reports the number of live entries, expired included until sweep.
func (m *MemoryStore) ItemCount() int {
	return m.c.ItemCount()
}

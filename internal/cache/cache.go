// Package cache provides small LRU response caches for the expensive read
// endpoints: orbit paths and pair risk analyses. Keys carry the catalog
// revision, so a TLE ingest silently invalidates every entry computed from
// the superseded element sets; stale generations just age out of the LRU
// instead of needing an explicit cutover.
package cache

import (
	"fmt"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a typed LRU with hit/miss accounting. Safe for concurrent use.
type Cache[V any] struct {
	name string
	lru  *lru.Cache[string, V]

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache holding at most size entries.
func New[V any](name string, size int) (*Cache[V], error) {
	inner, err := lru.New[string, V](size)
	if err != nil {
		return nil, fmt.Errorf("creating %s cache: %w", name, err)
	}
	return &Cache[V]{name: name, lru: inner}, nil
}

// Get returns the cached value for key, if present.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Add stores a value, evicting the least recently used entry when full.
func (c *Cache[V]) Add(key string, v V) {
	c.lru.Add(key, v)
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.lru.Purge()
}

// Stats is a point-in-time accounting snapshot.
type Stats struct {
	Name   string `json:"name"`
	Len    int    `json:"len"`
	Hits   int64  `json:"hits"`
	Misses int64  `json:"misses"`
}

// Stats returns the current counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Name:   c.name,
		Len:    c.lru.Len(),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}

// Key joins parts into a cache key. Always include the catalog revision so
// superseded element sets cannot serve stale responses.
func Key(parts ...any) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, "%v", p)
	}
	return b.String()
}

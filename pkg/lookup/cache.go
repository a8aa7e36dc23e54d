package lookup

import (
	"context"
	"sync"

	"mercator-hq/meridian/pkg/dsl/ast"
	"mercator-hq/meridian/pkg/rules/eval"
)

// cacheName labels CachingProvider statistics.
const cacheName = "lookup"

type cacheKey struct {
	table, key string
}

type cacheEntry struct {
	value ast.Value
	found bool
}

// CachingProvider is a read-through cache in front of another provider.
// Hits and misses are both cached; errors are not.
type CachingProvider struct {
	inner    Provider
	capacity int
	observer eval.CacheObserver

	mu      sync.RWMutex
	entries map[cacheKey]cacheEntry
}

// NewCachingProvider wraps inner with a cache of at most capacity entries.
// observer may be nil.
func NewCachingProvider(inner Provider, capacity int, observer eval.CacheObserver) *CachingProvider {
	if capacity <= 0 {
		capacity = 1024
	}
	return &CachingProvider{
		inner:    inner,
		capacity: capacity,
		observer: observer,
		entries:  make(map[cacheKey]cacheEntry),
	}
}

// Lookup implements eval.LookupProvider.
func (c *CachingProvider) Lookup(ctx context.Context, table, key string) (ast.Value, bool, error) {
	k := cacheKey{table: table, key: key}
	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()
	if ok {
		c.record(true)
		return e.value, e.found, nil
	}
	c.record(false)

	v, found, err := c.inner.Lookup(ctx, table, key)
	if err != nil {
		return ast.Null(), false, err
	}

	c.mu.Lock()
	if len(c.entries) >= c.capacity {
		// Evict an arbitrary entry.
		for old := range c.entries {
			delete(c.entries, old)
			break
		}
	}
	c.entries[k] = cacheEntry{value: v, found: found}
	size := len(c.entries)
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.UpdateSize(cacheName, size)
	}
	return v, found, nil
}

func (c *CachingProvider) record(hit bool) {
	if c.observer == nil {
		return
	}
	if hit {
		c.observer.RecordHit(cacheName)
	} else {
		c.observer.RecordMiss(cacheName)
	}
}

// Len returns the number of cached entries.
func (c *CachingProvider) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Invalidate empties the cache.
func (c *CachingProvider) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[cacheKey]cacheEntry)
	c.mu.Unlock()
	if c.observer != nil {
		c.observer.UpdateSize(cacheName, 0)
	}
}

// Close closes the wrapped provider.
func (c *CachingProvider) Close() error {
	return c.inner.Close()
}

package eval

import (
	"regexp"
	"sync"

	"github.com/golang/groupcache/lru"
)

// DefaultPatternCacheSize bounds the regex cache when no size is configured.
const DefaultPatternCacheSize = 1024

// CacheObserver receives cache statistics. The metrics collector implements it.
type CacheObserver interface {
	RecordHit(cache string)
	RecordMiss(cache string)
	UpdateSize(cache string, size int)
}

type patternEntry struct {
	re  *regexp.Regexp
	err error
}

// PatternCache memoises compiled regular expressions, including patterns that
// failed to compile. It keeps at most its limit of patterns and evicts the
// least recently used one beyond that. It is safe for concurrent use.
type PatternCache struct {
	mu sync.Mutex

	// entries maps pattern source to *patternEntry. Compilation happens
	// outside mu.
	entries *lru.Cache

	// observer is told about hits and misses. It may be nil.
	observer CacheObserver
}

// NewPatternCache creates an empty cache holding up to
// DefaultPatternCacheSize patterns. observer may be nil.
func NewPatternCache(observer CacheObserver) *PatternCache {
	return &PatternCache{
		entries:  lru.New(DefaultPatternCacheSize),
		observer: observer,
	}
}

// WithLimit changes the maximum number of cached patterns. A limit of zero or
// less keeps the current one.
func (c *PatternCache) WithLimit(limit int) *PatternCache {
	if limit <= 0 {
		return c
	}
	c.mu.Lock()
	c.entries.MaxEntries = limit
	for c.entries.Len() > limit {
		c.entries.RemoveOldest()
	}
	c.mu.Unlock()
	return c
}

// Compile returns the compiled form of pattern.
func (c *PatternCache) Compile(pattern string) (*regexp.Regexp, error) {
	c.mu.Lock()
	cached, ok := c.entries.Get(pattern)
	c.mu.Unlock()
	if ok {
		c.hit()
		entry := cached.(patternEntry)
		return entry.re, entry.err
	}
	c.miss()

	re, err := regexp.Compile(pattern)
	entry := patternEntry{re: re, err: err}

	c.mu.Lock()
	if existing, ok := c.entries.Get(pattern); ok {
		entry = existing.(patternEntry)
	} else {
		c.entries.Add(pattern, entry)
	}
	size := c.entries.Len()
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.UpdateSize("pattern", size)
	}
	return entry.re, entry.err
}

// Len returns the number of cached patterns.
func (c *PatternCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Limit returns the maximum number of cached patterns.
func (c *PatternCache) Limit() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.MaxEntries
}

func (c *PatternCache) hit() {
	if c.observer != nil {
		c.observer.RecordHit("pattern")
	}
}

func (c *PatternCache) miss() {
	if c.observer != nil {
		c.observer.RecordMiss("pattern")
	}
}

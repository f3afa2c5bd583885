// ABOUTME: In-memory render cache used by the HTTP server, keyed by sha256 of the DOT text plus the format.
// ABOUTME: Entries expire after a TTL and the oldest entry is evicted once the cache is full.
package render

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// RenderFunc is the signature of the DOT rendering function the cache wraps.
type RenderFunc func(ctx context.Context, dotText string, format string) ([]byte, error)

type cacheEntry struct {
	data      []byte
	createdAt time.Time
}

// RenderCache memoises a RenderFunc. It is safe for concurrent use. Errors are
// never cached.
type RenderCache struct {
	renderFn   RenderFunc
	ttl        time.Duration
	maxEntries int
	entries    map[string]*cacheEntry
	hits       int64
	misses     int64
	mu         sync.RWMutex
}

// NewRenderCache wraps renderFn. Entries live for ttl; maxEntries <= 0 means
// unbounded.
func NewRenderCache(renderFn RenderFunc, ttl time.Duration, maxEntries int) *RenderCache {
	return &RenderCache{
		renderFn:   renderFn,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*cacheEntry),
	}
}

// RenderDOTSource returns the cached render of dotText in format, rendering on
// a miss or after expiry.
func (c *RenderCache) RenderDOTSource(ctx context.Context, dotText string, format string) ([]byte, error) {
	key := cacheKey(dotText, format)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Since(entry.createdAt) < c.ttl {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return entry.data, nil
	}

	data, err := c.renderFn(ctx, dotText, format)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.misses++
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = &cacheEntry{data: data, createdAt: time.Now()}
	return data, nil
}

// evictOldest drops the entry created first. Callers hold the write lock.
func (c *RenderCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.createdAt.Before(oldest) {
			oldestKey, oldest = k, e.createdAt
		}
	}
	delete(c.entries, oldestKey)
}

// Sweep removes expired entries and returns how many were dropped.
func (c *RenderCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if time.Since(e.createdAt) >= c.ttl {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Stats returns the hit and miss counts since creation.
func (c *RenderCache) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Len returns the number of entries currently in the cache (including expired ones).
func (c *RenderCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func cacheKey(dotText string, format string) string {
	return fmt.Sprintf("%x:%s", sha256.Sum256([]byte(dotText)), format)
}

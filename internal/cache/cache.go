// Package cache is the explicit segment-output cache. Entries are keyed by
// (character, duration, script content hash) and never expire on their own —
// the owner clears the cache explicitly.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
)

// Entry is a reusable prior output.
type Entry struct {
	OutputPath      string
	DurationSeconds float64
}

// Cache is a concurrency-safe map of segment outputs.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// Key derives the cache key for a segment. Duration is part of the key:
// segments of an uneven split can share the parent script verbatim while
// rendering different lengths, and those outputs are not interchangeable.
func Key(characterID string, durationSeconds float64, script string) string {
	sum := sha256.Sum256([]byte(script))
	return characterID + ":" + strconv.FormatFloat(durationSeconds, 'g', -1, 64) + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached entry and true on a hit.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Set stores an entry.
func (c *Cache) Set(key string, e Entry) {
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
}

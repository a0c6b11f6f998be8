// ABOUTME: Thread-safe TTL cache for tool results keyed by tool id and canonical params
// ABOUTME: Expired entries are evicted lazily on lookup; there is no background sweeper

package tools

import (
	"encoding/json"
	"sync"
	"time"
)

type cacheEntry struct {
	value     json.RawMessage
	expiresAt time.Time
}

// Cache stores serialized tool results. Stored values are never mutated.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewCache creates an empty cache. now may be nil to use time.Now.
func NewCache(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		now:     now,
	}
}

// Get returns the live value for key. An expired entry is removed.
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().Before(entry.expiresAt) {
		return entry.value, true
	}

	c.mu.Lock()
	// Another caller may have stored a fresh value since the read lock was released.
	if current, ok := c.entries[key]; ok && !c.now().Before(current.expiresAt) {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return nil, false
}

// Set stores value under key until now+ttl.
func (c *Cache) Set(key string, value json.RawMessage, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expiresAt: c.now().Add(ttl)}
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

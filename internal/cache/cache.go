// Package cache is a small in-memory TTL map used by the domain loaders.
// Entries expire lazily on read; there is no background eviction goroutine.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Key identifies a cached collection. The closed set of keys lives with
// the package that owns the cached data (internal/school), so that
// invalidation cannot drift from the loaders that populate it.
type Key string

type entry struct {
	value     any
	storedAt  time.Time
	expiresAt time.Time
}

type Stats struct {
	Size    int
	MaxSize int
	Keys    []Key
}

type Cache struct {
	mu      sync.RWMutex
	entries map[Key]entry
	maxSize int
	now     func() time.Time
}

func New(maxSize int) *Cache {
	return &Cache{
		entries: make(map[Key]entry),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// NewWithClock is New with an injectable clock, for tests.
func NewWithClock(maxSize int, now func() time.Time) *Cache {
	c := New(maxSize)
	c.now = now
	return c
}

// Get returns the cached value for key, or (nil, false) when absent or
// past its TTL. An expired entry is deleted on read.
func (c *Cache) Get(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}

	log.Debug().Str("key", string(key)).Dur("age", c.now().Sub(e.storedAt)).Msg("cache hit")
	return e.value, true
}

// Set stores value under key for ttl. When the cache is full the oldest
// entry is evicted first. Last writer wins on concurrent sets.
func (c *Cache) Set(key Key, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	now := c.now()
	c.entries[key] = entry{
		value:     value,
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}
}

func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidatePrefix removes every entry whose key starts with prefix.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(string(key), prefix) {
			delete(c.entries, key)
		}
	}
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]entry)
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]Key, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return Stats{Size: len(c.entries), MaxSize: c.maxSize, Keys: keys}
}

// evictOldest drops the entry with the oldest storedAt. Caller holds the lock.
func (c *Cache) evictOldest() {
	var oldestKey Key
	var oldestTime time.Time
	first := true
	for key, e := range c.entries {
		if first || e.storedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.storedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

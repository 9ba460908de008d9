package nlp

import (
	"sync"
	"time"
)

type cacheEntry struct {
	value     Candidate
	expiresAt time.Time
}

// ResultCache memoizes parse results per (user, normalized text). Expired
// entries are evicted when read; Sweep removes the rest.
type ResultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

// NewResultCache returns a cache whose entries live for ttl.
func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func cacheKey(userID, text string) string {
	return userID + "\x00" + Normalize(text)
}

// Get returns the cached candidate for userID and text.
func (c *ResultCache) Get(userID, text string) (Candidate, bool) {
	key := cacheKey(userID, text)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Candidate{}, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return Candidate{}, false
	}
	return e.value, true
}

// Set stores value for userID and text.
func (c *ResultCache) Set(userID, text string, value Candidate) {
	if c.ttl <= 0 {
		return
	}
	key := cacheKey(userID, text)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Sweep drops expired entries and returns how many were removed.
func (c *ResultCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

package collections

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// cacheKey derives a stable key from request components.
func cacheKey(parts ...string) string {
	h := sha1.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(h[:])
}

type cachedResponse struct {
	raw        []byte
	insertedAt time.Time
}

// responseCache is a bounded TTL cache for raw upstream response bodies.
// Expiry is lazy (checked on read). When full, the oldest inserted entry is
// evicted, insertion order standing in for recency.
type responseCache struct {
	mu         sync.Mutex
	entries    map[string]cachedResponse
	order      []string
	ttl        time.Duration
	maxEntries int
}

func newResponseCache(ttl time.Duration, maxEntries int) *responseCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 200
	}
	return &responseCache{
		entries:    make(map[string]cachedResponse),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// get returns a copy of the cached body so callers can never mutate the
// stored bytes.
func (c *responseCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Since(entry.insertedAt) >= c.ttl {
		c.removeLocked(key)
		return nil, false
	}
	return append([]byte(nil), entry.raw...), true
}

func (c *responseCache) set(key string, raw []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := cachedResponse{raw: append([]byte(nil), raw...), insertedAt: time.Now()}
	if _, ok := c.entries[key]; ok {
		c.entries[key] = stored
		return
	}
	if len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		c.removeLocked(c.order[0])
	}
	c.entries[key] = stored
	c.order = append(c.order, key)
}

func (c *responseCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *responseCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cachedResponse)
	c.order = nil
}

func (c *responseCache) removeLocked(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

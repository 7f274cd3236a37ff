package deviceresolver

import (
	"sync"
	"time"
)

// MaxCachedUsers bounds the device cache, evicting the least-recently-used
// entry once full — the same bounded-collection-with-replacement shape as
// a DHT k-bucket, sized instead to the spec's ~500-entry ceiling.
const MaxCachedUsers = 500

// DefaultTTL is how long a cached device list is trusted before a lookup
// is treated as a cache miss again.
const DefaultTTL = 24 * time.Hour

type cacheEntry struct {
	devices []uint16
	expires time.Time
}

// deviceCache is a mutex-protected, TTL-bounded, size-bounded map of user
// id to that user's known device list. Move-to-end-on-touch plus
// evict-the-front-on-overflow gives it LRU eviction without a heap.
type deviceCache struct {
	mu    sync.Mutex
	order []string
	byKey map[string]cacheEntry
}

func newDeviceCache() *deviceCache {
	return &deviceCache{byKey: make(map[string]cacheEntry)}
}

func (c *deviceCache) get(user string) ([]uint16, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.byKey[user]
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	c.touchLocked(user)
	return entry.devices, true
}

func (c *deviceCache) set(user string, devices []uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byKey[user]; !exists && len(c.byKey) >= MaxCachedUsers {
		c.evictOldestLocked()
	}
	c.byKey[user] = cacheEntry{devices: devices, expires: time.Now().Add(DefaultTTL)}
	c.touchLocked(user)
}

func (c *deviceCache) touchLocked(user string) {
	for i, k := range c.order {
		if k == user {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, user)
}

func (c *deviceCache) evictOldestLocked() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.byKey, oldest)
}

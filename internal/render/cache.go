package render

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheEntries bounds the cache when no size is configured.
const DefaultCacheEntries = 256

// Cache is a concurrent-safe LRU of encoded figures keyed by state and
// variable. Concurrent misses for the same key share one build.
type Cache struct {
	mu         sync.Mutex
	entries    map[string][]byte
	order      []string // LRU order: front=oldest, back=newest
	maxEntries int
	group      singleflight.Group
	hits       atomic.Int64
	misses     atomic.Int64
}

// CacheStats contains cache performance statistics.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewCache creates a Cache holding at most maxEntries figures.
func NewCache(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	return &Cache{
		entries:    make(map[string][]byte),
		maxEntries: maxEntries,
	}
}

func cacheKey(state, variable string) string {
	return state + "\x00" + variable
}

// Get returns the cached figure for (state, variable), calling build on a
// miss. Errors are not cached. hit reports whether build was skipped.
func (c *Cache) Get(state, variable string, build func() ([]byte, error)) (data []byte, hit bool, err error) {
	key := cacheKey(state, variable)
	if data, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return data, true, nil
	}
	c.misses.Add(1)

	v, err, _ := c.group.Do(key, func() (any, error) {
		if data, ok := c.lookup(key); ok {
			return data, nil
		}
		data, err := build()
		if err != nil {
			return nil, err
		}
		c.put(key, data)
		return data, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), false, nil
}

func (c *Cache) lookup(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.removeFromOrder(key)
	c.order = append(c.order, key)
	return data, true
}

func (c *Cache) put(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = data
		c.removeFromOrder(key)
		c.order = append(c.order, key)
		return
	}

	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = data
	c.order = append(c.order, key)
}

// Stats returns cache performance statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	entries := len(c.entries)
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Entries:    entries,
		MaxEntries: c.maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
	}
}

func (c *Cache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

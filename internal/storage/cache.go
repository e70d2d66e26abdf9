package storage

import (
	"encoding/json"
	"time"

	"rabbitrss/internal/kv"
	"rabbitrss/internal/logger"
	"rabbitrss/internal/model"
)

// Cache key prefix and default entry lifetime.
const (
	cachePrefix = "rss-cache-"
	// DefaultCacheTTL is how long a fetched snapshot stays valid.
	DefaultCacheTTL = 5 * time.Minute
)

// Cache is a short-lived store of fetched feed snapshots, keyed by feed URL.
// Expired entries are treated as absent and purged on the next Get. There is
// no capacity bound; the TTL is the only eviction.
type Cache struct {
	kv  kv.Store
	ttl time.Duration
	now func() time.Time
}

// NewCache creates a cache over the given backend. A non-positive ttl uses
// DefaultCacheTTL.
func NewCache(backend kv.Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		kv:  backend,
		ttl: ttl,
		now: time.Now,
	}
}

// Set stores a timestamped snapshot for url.
func (c *Cache) Set(url string, feed model.Feed) error {
	entry := model.CacheEntry{
		Data:      feed,
		Timestamp: c.now().UnixMilli(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.kv.Set(cachePrefix+url, string(data))
}

// Get returns the snapshot for url if one exists and is younger than the TTL.
// A stale entry is evicted and reported as a miss.
func (c *Cache) Get(url string) (model.Feed, bool) {
	raw, ok, err := c.kv.Get(cachePrefix + url)
	if err != nil {
		logger.Warnf("cache read for %s failed: %v", url, err)
		return model.Feed{}, false
	}
	if !ok {
		return model.Feed{}, false
	}
	var entry model.CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		logger.Warnf("cache entry for %s is corrupt, dropping: %v", url, err)
		_ = c.kv.Delete(cachePrefix + url)
		return model.Feed{}, false
	}
	age := c.now().UnixMilli() - entry.Timestamp
	if age > c.ttl.Milliseconds() {
		_ = c.kv.Delete(cachePrefix + url)
		return model.Feed{}, false
	}
	return entry.Data, true
}

// Clear removes the entry for url unconditionally.
func (c *Cache) Clear(url string) error {
	return c.kv.Delete(cachePrefix + url)
}

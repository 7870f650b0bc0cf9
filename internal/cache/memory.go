package cache

import (
	"sync"
	"time"
)

// Entry represents a cached item with expiration
type Entry[V any] struct {
	Value      V
	Expiration time.Time
}

// IsExpired checks if the cache entry has expired at the given instant
func (e *Entry[V]) IsExpired(now time.Time) bool {
	return now.After(e.Expiration)
}

// MemoryCache is a TTL cache safe for concurrent use
type MemoryCache[V any] struct {
	items map[string]*Entry[V]
	mutex sync.RWMutex
	ttl   time.Duration
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache creates a cache and starts its periodic cleanup. Call Stop
// when the cache is no longer needed.
func NewMemoryCache[V any](ttl, cleanupInterval time.Duration) *MemoryCache[V] {
	c := &MemoryCache[V]{
		items: make(map[string]*Entry[V]),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go c.cleanupExpired(cleanupInterval)
	}

	return c
}

// Set stores a value in the cache
func (c *MemoryCache[V]) Set(key string, value V) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = &Entry[V]{
		Value:      value,
		Expiration: c.now().Add(c.ttl),
	}
}

// Get retrieves a value from the cache
func (c *MemoryCache[V]) Get(key string) (V, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.items[key]
	if !exists || entry.IsExpired(c.now()) {
		var zero V
		return zero, false
	}

	return entry.Value, true
}

// Delete removes a value from the cache
func (c *MemoryCache[V]) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.items, key)
}

// Clear removes all items from the cache
func (c *MemoryCache[V]) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]*Entry[V])
}

// Size returns the number of items in the cache, expired or not
func (c *MemoryCache[V]) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.items)
}

// Stop ends the cleanup goroutine
func (c *MemoryCache[V]) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Purge removes expired entries and returns how many were dropped
func (c *MemoryCache[V]) Purge() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.items {
		if entry.IsExpired(now) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

func (c *MemoryCache[V]) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Purge()
		case <-c.stop:
			return
		}
	}
}

// Cover is an image served for a track's cover reference
type Cover struct {
	Data        []byte
	ContentType string
}

// CoverCache keeps recently served cover images in memory
type CoverCache struct {
	*MemoryCache[Cover]
}

// NewCoverCache creates a cover cache. Covers are immutable once stored, so
// entries only expire to bound memory.
func NewCoverCache() *CoverCache {
	return &CoverCache{
		MemoryCache: NewMemoryCache[Cover](15*time.Minute, 5*time.Minute),
	}
}

// SetCover caches an image under its stored name
func (cc *CoverCache) SetCover(name string, cover Cover) {
	cc.Set(name, cover)
}

// GetCover retrieves a cached image
func (cc *CoverCache) GetCover(name string) (Cover, bool) {
	return cc.Get(name)
}

// EvictCover drops a cached image once its track is gone
func (cc *CoverCache) EvictCover(name string) {
	cc.Delete(name)
}

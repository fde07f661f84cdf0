package catalog

import (
	"sync"
	"time"

	"pharmapos/m/domain"
)

type cacheEntry struct {
	product   domain.Product
	expiresAt time.Time
}

// Cache is a TTL cache for product rows. It is an explicit dependency of
// the Service, scoped to the service's lifetime, and is invalidated
// after every product mutation.
type Cache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[int64]cacheEntry
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{ttl: ttl, items: make(map[int64]cacheEntry)}
}

func (c *Cache) Get(id int64) (domain.Product, bool) {
	c.mu.RLock()
	entry, ok := c.items[id]
	c.mu.RUnlock()
	if !ok {
		return domain.Product{}, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.items, id)
		c.mu.Unlock()
		return domain.Product{}, false
	}
	return entry.product, true
}

func (c *Cache) Set(p domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[p.ID] = cacheEntry{product: p, expiresAt: time.Now().Add(c.ttl)}
}

func (c *Cache) Invalidate(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
}

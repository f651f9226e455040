package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"nav-relay-service/internal/domain"
)

type geocodeEntry struct {
	address  string
	dest     domain.Destination
	storedAt time.Time
}

// MemoryGeocodeCache is the default in-process geocode cache: LRU with TTL
// expiry, mirroring RouteCache. It never returns an error.
type MemoryGeocodeCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	order    *list.List
	items    map[string]*list.Element
}

func NewMemoryGeocodeCache(capacity int, ttl time.Duration) *MemoryGeocodeCache {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryGeocodeCache{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get returns the cached resolution for address, or nil past the TTL.
func (c *MemoryGeocodeCache) Get(_ context.Context, address string) (*domain.Destination, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[address]
	if !ok {
		return nil, nil
	}

	entry := el.Value.(*geocodeEntry)
	if c.now().Sub(entry.storedAt) >= c.ttl {
		c.order.Remove(el)
		delete(c.items, address)
		return nil, nil
	}

	c.order.MoveToFront(el)
	dest := entry.dest
	return &dest, nil
}

// Put stores a resolution, evicting the least recently used entry at capacity.
func (c *MemoryGeocodeCache) Put(_ context.Context, address string, d domain.Destination) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[address]; ok {
		entry := el.Value.(*geocodeEntry)
		entry.dest = d
		entry.storedAt = c.now()
		c.order.MoveToFront(el)
		return nil
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*geocodeEntry).address)
		}
	}

	c.items[address] = c.order.PushFront(&geocodeEntry{
		address:  address,
		dest:     d,
		storedAt: c.now(),
	})
	return nil
}

package cache

import (
	"container/list"
	"sync"
	"time"

	"nav-relay-service/internal/domain"
)

// routeKey treats coordinate pairs as exact floating values. Exact-match
// caching has a low hit rate for continuously moving origins; that is
// acceptable because the cache serves repeated reroute checks against a
// recently fetched route, not broad reuse.
type routeKey struct {
	Origin      domain.Coordinates
	Destination domain.Coordinates
}

type routeEntry struct {
	key      routeKey
	route    *domain.Route
	storedAt time.Time
}

// RouteCache memoizes computed routes with TTL expiry and LRU eviction.
// Reads promote entries; expired entries are evicted on read. Safe for
// concurrent use.
type RouteCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	order    *list.List // front = most recently used
	items    map[routeKey]*list.Element
}

func NewRouteCache(capacity int, ttl time.Duration) *RouteCache {
	if capacity < 1 {
		capacity = 1
	}
	return &RouteCache{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		order:    list.New(),
		items:    make(map[routeKey]*list.Element),
	}
}

// Get returns the cached route for the pair if present and younger than the
// TTL. An expired entry is removed and not resurrected.
func (c *RouteCache) Get(origin, destination domain.Coordinates) (*domain.Route, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[routeKey{origin, destination}]
	if !ok {
		return nil, false
	}

	entry := el.Value.(*routeEntry)
	if c.now().Sub(entry.storedAt) >= c.ttl {
		c.order.Remove(el)
		delete(c.items, entry.key)
		return nil, false
	}

	c.order.MoveToFront(el)
	return entry.route, true
}

// Put stores a route for the pair, evicting the least recently used entry
// when the cache is at capacity.
func (c *RouteCache) Put(origin, destination domain.Coordinates, route *domain.Route) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := routeKey{origin, destination}
	if el, ok := c.items[key]; ok {
		entry := el.Value.(*routeEntry)
		entry.route = route
		entry.storedAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*routeEntry).key)
		}
	}

	c.items[key] = c.order.PushFront(&routeEntry{
		key:      key,
		route:    route,
		storedAt: c.now(),
	})
}

// Len reports the number of cached entries, including not-yet-evicted
// expired ones.
func (c *RouteCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

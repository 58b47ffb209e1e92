// Package tlru provides a fixed-capacity LRU cache with per-entry expiry
// timestamps.
//
// Eviction is fully deterministic: an entry leaves the cache either because
// it is the least recently used one at capacity, or because its deadline has
// passed at lookup time. Nothing here depends on garbage collector timing,
// which matters when the cached values feed security decisions.
package tlru

import (
	"container/list"
	"sync"
	"time"
)

type entry[K comparable, V any] struct {
	key      K
	value    V
	deadline time.Time
}

// Cache is a bounded LRU with TTL semantics. Safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List // front = most recently used
	items    map[K]*list.Element

	// Now is the clock used for deadlines. Defaults to time.Now,
	// overridable so tests control expiry exactly.
	Now func() time.Time
}

// New creates a cache holding at most capacity entries, each valid for ttl
// after insertion. Panics if capacity or ttl are non-positive; both are
// startup configuration, not runtime input.
func New[K comparable, V any](capacity int, ttl time.Duration) *Cache[K, V] {
	if capacity <= 0 {
		panic("tlru: capacity must be positive")
	}
	if ttl <= 0 {
		panic("tlru: ttl must be positive")
	}
	return &Cache[K, V]{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[K]*list.Element, capacity),
		Now:      time.Now,
	}
}

// Get returns the value for key if present and unexpired, marking it most
// recently used. Expired entries are removed on the spot.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}

	ent := el.Value.(*entry[K, V])
	if !c.Now().Before(ent.deadline) {
		c.removeElement(el)
		return zero, false
	}

	c.order.MoveToFront(el)
	return ent.value, true
}

// Set inserts or replaces the value for key, resetting its deadline. When
// the cache is at capacity the least recently used entry is evicted.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := c.Now().Add(c.ttl)

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry[K, V])
		ent.value = value
		ent.deadline = deadline
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}

	el := c.order.PushFront(&entry[K, V]{key: key, value: value, deadline: deadline})
	c.items[key] = el
}

// Delete removes key if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Len reports the number of entries currently held, including any that have
// expired but not yet been touched.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache[K, V]) removeElement(el *list.Element) {
	ent := el.Value.(*entry[K, V])
	c.order.Remove(el)
	delete(c.items, ent.key)
}

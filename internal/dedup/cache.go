package dedup

import (
	"container/list"
	"sync"
)

// Entry is one cached (key, payload) pair.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Cache is a bounded insertion-ordered cache. When full, inserting a new key
// evicts the oldest entry. Reads never change the order. Re-inserting a key
// that is already present replaces its payload in place.
type Cache[K comparable, V any] struct {
	mu       sync.RWMutex
	capacity int
	order    *list.List
	index    map[K]*list.Element
}

// NewCache creates a cache holding at most capacity entries (min 1).
func NewCache[K comparable, V any](capacity int) *Cache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache[K, V]{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[K]*list.Element, capacity),
	}
}

// Insert adds key with payload, evicting the oldest entry first when the
// cache is at capacity. It returns the evicted entry, if any.
func (c *Cache[K, V]) Insert(key K, value V) (evicted Entry[K, V], ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, exists := c.index[key]; exists {
		el.Value = Entry[K, V]{Key: key, Value: value}
		return evicted, false
	}
	if c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		evicted = c.order.Remove(oldest).(Entry[K, V])
		delete(c.index, evicted.Key)
		ok = true
	}
	c.index[key] = c.order.PushBack(Entry[K, V]{Key: key, Value: value})
	return evicted, ok
}

// Range calls fn for each entry from oldest to newest until fn returns false.
func (c *Cache[K, V]) Range(fn func(key K, value V) bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(Entry[K, V])
		if !fn(e.Key, e.Value) {
			return
		}
	}
}

// Entries returns a snapshot of the cache, oldest first.
func (c *Cache[K, V]) Entries() []Entry[K, V] {
	out := make([]Entry[K, V], 0, c.Len())
	c.Range(func(k K, v V) bool {
		out = append(out, Entry[K, V]{Key: k, Value: v})
		return true
	})
	return out
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

// Cap returns the cache capacity.
func (c *Cache[K, V]) Cap() int { return c.capacity }

// Clear drops every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	clear(c.index)
}

// Reset replaces the contents with entries, oldest first.
func (c *Cache[K, V]) Reset(entries []Entry[K, V]) {
	c.Clear()
	for _, e := range entries {
		c.Insert(e.Key, e.Value)
	}
}

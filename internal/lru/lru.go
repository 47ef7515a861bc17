// Package lru provides a fixed-capacity key-value cache with strict
// least-recently-used eviction, used to bound memory held by the
// time-series caches.
package lru

import (
	"container/list"
	"fmt"
	"sync"
)

// Cache is a bounded key-value store. Once its capacity is exceeded the
// least recently touched entry is evicted; both Get and Set count as
// touches, Has and Len do not. It is safe for concurrent use.
type Cache[K comparable, V any] struct {
	cap int
	ll  *list.List
	m   map[K]*list.Element
	mu  sync.Mutex
}

type entry[K comparable, V any] struct {
	key K
	val V
}

// New creates a cache with a fixed capacity. A capacity below one is a
// configuration error, reported at construction so it can never surface as
// a runtime eviction bug.
func New[K comparable, V any](capacity int) (*Cache[K, V], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("lru: capacity must be at least 1, got %d", capacity)
	}
	return &Cache[K, V]{
		cap: capacity,
		ll:  list.New(),
		m:   make(map[K]*list.Element),
	}, nil
}

// Must is a New wrapper for capacities known correct at compile time.
func Must[K comparable, V any](c *Cache[K, V], err error) *Cache[K, V] {
	if err != nil {
		panic(err)
	}
	return c
}

// Get returns the value for key if present, marking it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, ok := c.m[key]; ok {
		c.ll.MoveToFront(ele)
		return ele.Value.(*entry[K, V]).val, true
	}
	var zero V
	return zero, false
}

// Set inserts or overwrites the value for key, marking it most recently
// used. The least recently used entry is evicted if the cache grew past
// capacity.
func (c *Cache[K, V]) Set(key K, val V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, ok := c.m[key]; ok {
		c.ll.MoveToFront(ele)
		ele.Value.(*entry[K, V]).val = val
		return
	}
	ele := c.ll.PushFront(&entry[K, V]{key: key, val: val})
	c.m[key] = ele
	if c.ll.Len() > c.cap {
		c.evict()
	}
}

// Delete removes key, reporting whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ele, ok := c.m[key]
	if !ok {
		return false
	}
	c.ll.Remove(ele)
	delete(c.m, key)
	return true
}

// Has reports presence without touching recency order.
func (c *Cache[K, V]) Has(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.m[key]
	return ok
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Clear drops every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.m = make(map[K]*list.Element)
}

func (c *Cache[K, V]) evict() {
	ele := c.ll.Back()
	if ele == nil {
		return
	}
	c.ll.Remove(ele)
	delete(c.m, ele.Value.(*entry[K, V]).key)
}

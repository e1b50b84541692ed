// Package cache provides the fixed-capacity LRU used for fetched pages and
// for memoized extraction results.
package cache

import (
	"errors"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrInvalidCapacity is returned by New for a non-positive capacity.
var ErrInvalidCapacity = errors.New("cache capacity must be positive")

// Stats are cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Len       int   `json:"len"`
	Capacity  int   `json:"capacity"`
}

// LRU is a thread-safe least-recently-used cache. It never holds more than
// its capacity; inserting a new key into a full cache evicts exactly one
// entry, the least recently used.
type LRU[K comparable, V any] struct {
	inner     *lru.Cache[K, V]
	capacity  int
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New returns an empty cache with the given capacity.
func New[K comparable, V any](capacity int) (*LRU[K, V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	c := &LRU[K, V]{capacity: capacity}
	inner, err := lru.NewWithEvict[K, V](capacity, func(K, V) {
		c.evictions.Add(1)
	})
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	c.inner = inner
	return c, nil
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	v, ok := c.inner.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Peek returns the value for key without touching recency or counters.
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	return c.inner.Peek(key)
}

// Put inserts or updates key. Updating an existing key refreshes its recency
// and never evicts.
func (c *LRU[K, V]) Put(key K, value V) {
	c.inner.Add(key, value)
}

// Len returns the number of entries.
func (c *LRU[K, V]) Len() int {
	return c.inner.Len()
}

// Cap returns the capacity.
func (c *LRU[K, V]) Cap() int {
	return c.capacity
}

// Keys returns the keys from least to most recently used.
func (c *LRU[K, V]) Keys() []K {
	return c.inner.Keys()
}

// Stats returns a snapshot of the counters.
func (c *LRU[K, V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Len:       c.inner.Len(),
		Capacity:  c.capacity,
	}
}

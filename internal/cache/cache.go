// Package cache provides a concurrency-safe TTL memo cache with an
// at-most-one-in-flight guarantee per key: the first caller for a key
// starts the underlying fetch and every concurrent caller for the same
// key joins that fetch instead of duplicating it.
package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weatherscope/probability-engine/internal/metrics"
)

type entry[V any] struct {
	value   V
	expires time.Time
}

// Cache memoizes successful fetch results for a short TTL. Failures are
// never cached; a failed key is re-fetched on the next lookup.
type Cache[V any] struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]entry[V]

	group singleflight.Group
}

// New creates a Cache with the given TTL. A TTL <= 0 disables
// memoization but keeps the in-flight de-duplication.
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		ttl:     ttl,
		entries: make(map[string]entry[V]),
	}
}

// Do returns the cached value for key, or runs fn to produce it. All
// concurrent callers for the same key share one execution of fn.
func (c *Cache[V]) Do(key string, fn func() (V, error)) (V, error) {
	if v, ok := c.get(key); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return v, nil
	}

	res, err, shared := c.group.Do(key, func() (interface{}, error) {
		// Re-check under the flight: another caller may have populated
		// the entry between our miss and acquiring the flight.
		if v, ok := c.get(key); ok {
			return v, nil
		}

		v, err := fn()
		if err != nil {
			return v, err
		}

		if c.ttl > 0 {
			c.mu.Lock()
			c.entries[key] = entry[V]{value: v, expires: time.Now().Add(c.ttl)}
			c.mu.Unlock()
		}
		return v, nil
	})

	if shared {
		metrics.CacheLookups.WithLabelValues("joined").Inc()
	} else {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

func (c *Cache[V]) get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expires) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Sweep removes expired entries and returns how many were evicted.
func (c *Cache[V]) Sweep() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of entries currently held, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

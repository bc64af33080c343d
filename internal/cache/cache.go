// Package cache implements a bounded-freshness key/value store.
//
// Entries carry their own TTL and are treated as absent once they reach it:
// expiry is checked on every read and swept periodically by Run. The cache is
// content-agnostic; callers build their own keys (e.g. "geo:" + ip).
package cache

import (
	"context"
	"sync"
	"time"

	"travelguard/antifraud/internal/metrics"
)

type entry[V any] struct {
	value      V
	insertedAt time.Time
	ttl        time.Duration
}

func (e *entry[V]) expired(now time.Time) bool {
	return now.Sub(e.insertedAt) >= e.ttl
}

// Cache is a TTL cache safe for concurrent use.
type Cache[V any] struct {
	name       string
	defaultTTL time.Duration
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*entry[V]
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source. Tests use it to step past TTLs.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a cache whose entries default to ttl. The name labels metrics.
func New[V any](name string, ttl time.Duration, opts ...Option) *Cache[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{
		name:       name,
		defaultTTL: ttl,
		now:        o.now,
		entries:    make(map[string]*entry[V]),
	}
}

// TTL returns the default entry lifetime.
func (c *Cache[V]) TTL() time.Duration { return c.defaultTTL }

// Get returns the value for key while it is fresh. An expired entry is
// deleted and reported as absent.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		metrics.CacheRequestsTotal.WithLabelValues(c.name, "miss").Inc()
		return zero, false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		metrics.CacheRequestsTotal.WithLabelValues(c.name, "expired").Inc()
		return zero, false
	}
	metrics.CacheRequestsTotal.WithLabelValues(c.name, "hit").Inc()
	return e.value, true
}

// Set stores value under key. A non-positive ttl uses the cache default.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	c.entries[key] = &entry[V]{value: value, insertedAt: c.now(), ttl: ttl}
	c.mu.Unlock()
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Cleanup removes every expired entry and returns how many were dropped.
func (c *Cache[V]) Cleanup() int {
	now := c.now()
	c.mu.Lock()
	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		metrics.CacheEvictionsTotal.WithLabelValues(c.name).Add(float64(removed))
	}
	return removed
}

// Len returns the number of stored entries, fresh or not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Run sweeps expired entries every interval until ctx is done.
func (c *Cache[V]) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}

// Counter is a TTL cache of occurrence counts.
type Counter struct {
	*Cache[int]
}

// NewCounter creates a counter whose windows last ttl.
func NewCounter(name string, ttl time.Duration, opts ...Option) *Counter {
	return &Counter{Cache: New[int](name, ttl, opts...)}
}

// Incr bumps the count for key and returns the count seen before this call.
// The window opens on the first increment and is not extended by later ones,
// so a key counts sightings within ttl of its first sighting. A non-positive
// ttl uses the counter default.
func (c *Counter) Incr(key string, ttl time.Duration) int {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.expired(now) {
		c.entries[key] = &entry[int]{value: 1, insertedAt: now, ttl: ttl}
		return 0
	}
	prev := e.value
	e.value++
	return prev
}

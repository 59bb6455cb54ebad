package cache

import (
	"context"
	"sync"
	"time"

	"ledgerid/pkg/platform/sentinel"
)

type cachedSnapshot struct {
	snap     Snapshot
	storedAt time.Time
}

// InMemoryCache keeps snapshots in process memory with TTL expiration.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cachedSnapshot
	ttl     time.Duration
	metrics *Metrics
	now     func() time.Time
}

// NewInMemoryCache creates a cache; metrics may be nil.
func NewInMemoryCache(ttl time.Duration, metrics *Metrics) *InMemoryCache {
	return &InMemoryCache{
		entries: make(map[string]cachedSnapshot),
		ttl:     ttl,
		metrics: metrics,
		now:     time.Now,
	}
}

func (c *InMemoryCache) Get(_ context.Context, ns Namespace, key string) (*Snapshot, error) {
	c.mu.RLock()
	cached, ok := c.entries[cacheKey(ns, key)]
	c.mu.RUnlock()

	if !ok || c.now().Sub(cached.storedAt) >= c.ttl {
		c.metrics.observe(ns, false)
		return nil, sentinel.ErrNotFound
	}
	c.metrics.observe(ns, true)
	snap := cached.snap
	return &snap, nil
}

// Set stores snap. A nil snapshot is a no-op.
func (c *InMemoryCache) Set(_ context.Context, ns Namespace, snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(ns, snap.Key)] = cachedSnapshot{snap: *snap, storedAt: c.now()}
	return nil
}

func (c *InMemoryCache) Invalidate(_ context.Context, ns Namespace, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(ns, key))
	return nil
}

func cacheKey(ns Namespace, key string) string {
	return "ledgerid:" + string(ns) + ":" + key
}

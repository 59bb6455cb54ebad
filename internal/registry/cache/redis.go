package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ledgerid/pkg/platform/sentinel"
)

// RedisCache shares snapshots between instances. Expiry is delegated to
// Redis key TTLs.
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *Metrics
}

// NewRedisCache creates a Redis-backed cache; metrics may be nil.
func NewRedisCache(client *redis.Client, ttl time.Duration, metrics *Metrics) *RedisCache {
	return &RedisCache{
		client:  client,
		ttl:     ttl,
		metrics: metrics,
	}
}

func (c *RedisCache) Get(ctx context.Context, ns Namespace, key string) (*Snapshot, error) {
	data, err := c.client.Get(ctx, cacheKey(ns, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.observe(ns, false)
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, sentinel.Unavailable("read cached snapshot", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.metrics.observe(ns, false)
		return nil, fmt.Errorf("decode cached snapshot: %w", err)
	}
	c.metrics.observe(ns, true)
	return &snap, nil
}

func (c *RedisCache) Set(ctx context.Context, ns Namespace, snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(ns, snap.Key), data, c.ttl).Err(); err != nil {
		return sentinel.Unavailable("write cached snapshot", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, ns Namespace, key string) error {
	if err := c.client.Del(ctx, cacheKey(ns, key)).Err(); err != nil {
		return sentinel.Unavailable("delete cached snapshot", err)
	}
	return nil
}

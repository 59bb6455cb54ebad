//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ledgerid/internal/registry/cache"
	"ledgerid/pkg/platform/sentinel"
	"ledgerid/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *cache.RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.cache = cache.NewRedisCache(s.redis.Client, 5*time.Minute, nil)
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushPrefix(context.Background(), "ledgerid:"))
}

func (s *RedisCacheSuite) TestSnapshotRoundTrip() {
	ctx := context.Background()
	updated := time.Date(2026, 2, 3, 4, 5, 6, 7, time.UTC)
	snap := &cache.Snapshot{
		Key:            "credential-hash",
		Envelope:       []byte(`{"mode":"plain","message":{}}`),
		CreatedAt:      updated.Add(-time.Hour),
		UpdatedAt:      updated,
		SequenceNumber: 9,
	}

	s.Require().NoError(s.cache.Set(ctx, cache.NamespaceVC, snap))

	got, err := s.cache.Get(ctx, cache.NamespaceVC, "credential-hash")
	s.Require().NoError(err)
	s.Equal(snap.Envelope, got.Envelope)
	s.True(got.UpdatedAt.Equal(updated))
	s.True(got.CreatedAt.Equal(snap.CreatedAt))
	s.Equal(uint64(9), got.SequenceNumber)
}

func (s *RedisCacheSuite) TestMissAndInvalidate() {
	ctx := context.Background()

	_, err := s.cache.Get(ctx, cache.NamespaceDID, "missing")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.cache.Set(ctx, cache.NamespaceDID, &cache.Snapshot{Key: "did:x"}))
	s.Require().NoError(s.cache.Invalidate(ctx, cache.NamespaceDID, "did:x"))

	_, err = s.cache.Get(ctx, cache.NamespaceDID, "did:x")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisCacheSuite) TestKeysExpireWithTTL() {
	ctx := context.Background()
	short := cache.NewRedisCache(s.redis.Client, time.Second, nil)

	s.Require().NoError(short.Set(ctx, cache.NamespaceDID, &cache.Snapshot{Key: "did:ttl"}))
	ttl, err := s.redis.Client.TTL(ctx, "ledgerid:did:did:ttl").Result()
	s.Require().NoError(err)
	s.Positive(ttl)
	s.LessOrEqual(ttl, time.Second)
}

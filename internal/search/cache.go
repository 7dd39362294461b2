package search

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rameshkrishnan-s/FileHub/internal/logging"
)

// MemoryCache is a size-bounded in-process cache with a fixed TTL.
type MemoryCache struct {
	lru *lru.LRU[string, []byte]
}

// NewMemoryCache creates a cache holding at most size pages for ttl each.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 1024
	}
	return &MemoryCache{lru: lru.NewLRU[string, []byte](size, nil, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	return c.lru.Get(key)
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte) {
	c.lru.Add(key, value)
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// RedisCache shares cached pages between server replicas.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "filehub:search:", ttl: ttl}
}

// Get returns the cached page. Redis errors are logged and treated as misses.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.WithContext(ctx).Warn("search cache read failed", zap.Error(err))
		}
		return nil, false
	}
	return raw, true
}

// Set stores the page. Failures only cost a future miss.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte) {
	if err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		logging.WithContext(ctx).Warn("search cache write failed", zap.Error(err))
	}
}

package routes

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss 表示缓存中没有可用数据。
var ErrCacheMiss = errors.New("cache miss")

// Cache 抽象路由缓存的基本操作。
type Cache interface {
	Get(ctx context.Context) ([]Route, error)
	Set(ctx context.Context, routes []Route) error
	Invalidate(ctx context.Context) error
}

// RedisCache 使用 Redis 作为路由缓存，供多副本共享。
type RedisCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisCache 创建 Redis 缓存适配器。
func NewRedisCache(client *redis.Client, key string, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		key:    key,
		ttl:    ttl,
	}
}

func (c *RedisCache) Get(ctx context.Context) ([]Route, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	var routes []Route
	if err := json.Unmarshal(raw, &routes); err != nil {
		return nil, err
	}
	return routes, nil
}

func (c *RedisCache) Set(ctx context.Context, routes []Route) error {
	raw, err := json.Marshal(routes)
	if err != nil {
		return err
	}
	if c.ttl <= 0 {
		return c.client.Set(ctx, c.key, raw, 0).Err()
	}
	return c.client.Set(ctx, c.key, raw, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}

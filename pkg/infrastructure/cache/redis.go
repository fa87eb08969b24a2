// Package cache holds short-lived provider access tokens in Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements the TokenCache interface over a Redis connection.
type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache connects using the connection info kept in the redis secret.
func NewRedisCache(info map[string]string) *RedisCache {
	return &RedisCache{
		Client: redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", info["host"], info["port"]),
			Username: info["user"],
			Password: info["pw"],
		}),
	}
}

// Get returns the cached value, or "" with a nil error on a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cache get %s: %w", key, err)
	}
	return val, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.Client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// NoopCache is used when no cache is configured; every lookup misses.
type NoopCache struct{}

func (NoopCache) Get(ctx context.Context, key string) (string, error) {
	return "", nil
}

func (NoopCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return nil
}

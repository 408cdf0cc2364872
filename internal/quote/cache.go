package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache keeps resolved stocks in Redis for a fixed time.
type RedisCache struct {
	client     *redis.Client
	expiration time.Duration
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache connects to the Redis instance at url (redis://[:password@]host:port/db).
func NewRedisCache(ctx context.Context, url string, expiration time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisCache{client: client, expiration: expiration}, nil
}

func (c *RedisCache) key(code string) string {
	return "quote:stock:" + code
}

// Get returns the cached stock for code, or nil when it is not cached.
func (c *RedisCache) Get(ctx context.Context, code string) (*Stock, error) {
	data, err := c.client.Get(ctx, c.key(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get stock from cache: %w", err)
	}

	var stock Stock
	if err := json.Unmarshal(data, &stock); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached stock: %w", err)
	}
	return &stock, nil
}

// Set stores stock under its code.
func (c *RedisCache) Set(ctx context.Context, stock *Stock) error {
	data, err := json.Marshal(stock)
	if err != nil {
		return fmt.Errorf("failed to marshal stock: %w", err)
	}
	if err := c.client.Set(ctx, c.key(stock.Code), data, c.expiration).Err(); err != nil {
		return fmt.Errorf("failed to cache stock: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

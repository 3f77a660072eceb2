package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskward/taskward/internal/log"
	"github.com/taskward/taskward/internal/model"
)

// CacheConfig is the configuration for the redis cache.
type CacheConfig struct {
	// URL is a redis connection URL (redis://[user:pass@]host:port/db).
	URL    string
	Logger log.Logger
}

func (c *CacheConfig) defaults() error {
	if c.URL == "" {
		return fmt.Errorf("redis url is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "cache.Redis"})
	return nil
}

// Cache is a redis implementation of cache.Cache.
type Cache struct {
	client *redis.Client
	logger log.Logger
}

// NewCache creates a new redis cache and checks connectivity.
func NewCache(ctx context.Context, cfg CacheConfig) (*Cache, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("could not parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 5 * time.Second
	opts.WriteTimeout = 5 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}

	cfg.Logger.Debugf("Redis cache connected to %s", opts.Addr)

	return &Cache{client: client, logger: cfg.Logger}, nil
}

// Close closes the redis connection.
func (c *Cache) Close() error { return c.client.Close() }

// Get returns the value for a key, or model.ErrNotFound on a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("key %s: %w", key, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get key: %w", err)
	}
	return value, nil
}

// Set stores a value under a key with a TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("could not set key: %w", err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("could not delete key: %w", err)
	}
	return nil
}

// DeleteByPattern removes every key starting with the given prefix,
// scanning instead of KEYS so large keyspaces do not block the server.
func (c *Cache) DeleteByPattern(ctx context.Context, prefix string) error {
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("could not delete key %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("could not scan keys: %w", err)
	}
	return nil
}

// Exists returns true when the key exists.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("could not check key: %w", err)
	}
	return n > 0, nil
}

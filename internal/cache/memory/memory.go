package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/taskward/taskward/internal/log"
	"github.com/taskward/taskward/internal/model"
)

// CacheConfig is the configuration for the in-process cache.
type CacheConfig struct {
	Logger log.Logger
}

func (c *CacheConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "cache.Memory"})
	return nil
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Cache is an in-process implementation of cache.Cache. It backs tests
// and serves as the transparent fallback when the external cache is
// unavailable.
type Cache struct {
	entries map[string]entry
	mu      sync.RWMutex
	logger  log.Logger
}

// NewCache creates a new in-process cache.
func NewCache(cfg CacheConfig) (*Cache, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Cache{
		entries: make(map[string]entry),
		logger:  cfg.Logger,
	}, nil
}

// Get returns the value for a key, or model.ErrNotFound on a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		return nil, fmt.Errorf("key %s: %w", key, model.ErrNotFound)
	}

	// Return a copy.
	value := make([]byte, len(e.value))
	copy(value, e.value)
	return value, nil
}

// Set stores a value under a key with a TTL. Last write wins.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	c.entries[key] = entry{value: stored, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()

	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// DeleteByPattern removes every key starting with the given prefix.
func (c *Cache) DeleteByPattern(ctx context.Context, prefix string) error {
	c.mu.Lock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
	return nil
}

// Exists returns true when a live entry exists for the key.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	return ok && !time.Now().After(e.expiresAt), nil
}

// DeleteExpired drops expired entries and returns how many were
// removed. Meant to be called periodically by a janitor.
func (c *Cache) DeleteExpired() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}

	if removed > 0 {
		c.logger.Debugf("Removed %d expired cache entries", removed)
	}
	return removed
}

// Len returns the number of stored entries, expired included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

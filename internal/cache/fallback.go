package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskward/taskward/internal/log"
	"github.com/taskward/taskward/internal/model"
)

// FallbackConfig is the configuration for the degrading cache.
type FallbackConfig struct {
	Primary  Cache
	Fallback Cache
	Logger   log.Logger
}

func (c *FallbackConfig) defaults() error {
	if c.Primary == nil {
		return fmt.Errorf("primary cache is required")
	}
	if c.Fallback == nil {
		return fmt.Errorf("fallback cache is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "cache.Fallback"})
	return nil
}

// Fallback wraps a primary cache with an in-process fallback: when the
// primary errors the operation degrades to the fallback instead of
// failing, so cache unavailability never fails a request.
//
// Deletes always hit both stores so a recovering primary cannot serve
// values invalidated during an outage.
type Fallback struct {
	primary  Cache
	fallback Cache
	logger   log.Logger
}

// NewFallback creates a new degrading cache.
func NewFallback(cfg FallbackConfig) (*Fallback, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Fallback{
		primary:  cfg.Primary,
		fallback: cfg.Fallback,
		logger:   cfg.Logger,
	}, nil
}

// Get returns the value from the primary, degrading to the fallback on
// backend failure. A miss on the primary is a miss, not a degrade.
func (f *Fallback) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := f.primary.Get(ctx, key)
	if err == nil || errors.Is(err, model.ErrNotFound) {
		return value, err
	}

	f.logger.Warningf("Primary cache get failed, degrading to fallback: %s", err)
	return f.fallback.Get(ctx, key)
}

// Set writes to the primary, degrading to the fallback on failure.
func (f *Fallback) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := f.primary.Set(ctx, key, value, ttl); err != nil {
		f.logger.Warningf("Primary cache set failed, degrading to fallback: %s", err)
		return f.fallback.Set(ctx, key, value, ttl)
	}

	// A fresh primary write supersedes whatever the fallback holds.
	if err := f.fallback.Delete(ctx, key); err != nil {
		f.logger.Warningf("Could not clear fallback entry: %s", err)
	}
	return nil
}

// Delete removes the key from both stores.
func (f *Fallback) Delete(ctx context.Context, key string) error {
	if err := f.fallback.Delete(ctx, key); err != nil {
		f.logger.Warningf("Fallback cache delete failed: %s", err)
	}

	if err := f.primary.Delete(ctx, key); err != nil {
		f.logger.Warningf("Primary cache delete failed: %s", err)
	}
	return nil
}

// DeleteByPattern removes matching keys from both stores.
func (f *Fallback) DeleteByPattern(ctx context.Context, prefix string) error {
	if err := f.fallback.DeleteByPattern(ctx, prefix); err != nil {
		f.logger.Warningf("Fallback cache pattern delete failed: %s", err)
	}

	if err := f.primary.DeleteByPattern(ctx, prefix); err != nil {
		f.logger.Warningf("Primary cache pattern delete failed: %s", err)
	}
	return nil
}

// Exists checks the primary, degrading to the fallback on failure.
func (f *Fallback) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := f.primary.Exists(ctx, key)
	if err != nil {
		f.logger.Warningf("Primary cache exists failed, degrading to fallback: %s", err)
		return f.fallback.Exists(ctx, key)
	}
	return ok, nil
}

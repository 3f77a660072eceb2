package cache

import (
	"context"
	"time"
)

// Cache is the interface for the key-value cache used for task lists,
// individual tasks, operation records and derived search results.
//
// Misses are reported as model.ErrNotFound so callers can distinguish
// them from backend failures.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeleteByPattern removes every key starting with the given prefix.
	DeleteByPattern(ctx context.Context, prefix string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Default TTLs, matching how long each kind of entry stays useful.
const (
	DefaultTTL   = 30 * time.Minute
	SearchTTL    = 5 * time.Minute
	OperationTTL = time.Hour
	SuggestTTL   = time.Hour
	StatsTTL     = 30 * time.Minute
)

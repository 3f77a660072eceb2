package cache_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/taskward/taskward/internal/cache"
	"github.com/taskward/taskward/internal/cache/cachemock"
	"github.com/taskward/taskward/internal/cache/memory"
	"github.com/taskward/taskward/internal/model"
)

func newFallback(t *testing.T, primary cache.Cache) (*cache.Fallback, *memory.Cache) {
	t.Helper()
	mem, err := memory.NewCache(memory.CacheConfig{})
	require.NoError(t, err)

	f, err := cache.NewFallback(cache.FallbackConfig{Primary: primary, Fallback: mem})
	require.NoError(t, err)
	return f, mem
}

func TestFallbackGetDegrades(t *testing.T) {
	ctx := context.Background()

	primary := cachemock.NewMockCache(t)
	primary.On("Get", mock.Anything, "key").Return(nil, fmt.Errorf("connection refused"))

	f, mem := newFallback(t, primary)
	require.NoError(t, mem.Set(ctx, "key", []byte("stale but served"), time.Minute))

	got, err := f.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("stale but served"), got)
}

func TestFallbackGetMissIsNotADegrade(t *testing.T) {
	ctx := context.Background()

	primary := cachemock.NewMockCache(t)
	primary.On("Get", mock.Anything, "key").Return(nil, fmt.Errorf("key: %w", model.ErrNotFound))

	f, mem := newFallback(t, primary)
	// The fallback holds a value, but a clean miss on the primary must
	// stay a miss.
	require.NoError(t, mem.Set(ctx, "key", []byte("should not be served"), time.Minute))

	_, err := f.Get(ctx, "key")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestFallbackSetDegrades(t *testing.T) {
	ctx := context.Background()

	primary := cachemock.NewMockCache(t)
	primary.On("Set", mock.Anything, "key", []byte("v"), time.Minute).Return(fmt.Errorf("connection refused"))

	f, mem := newFallback(t, primary)
	require.NoError(t, f.Set(ctx, "key", []byte("v"), time.Minute))

	got, err := mem.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestFallbackSetClearsFallbackOnSuccess(t *testing.T) {
	ctx := context.Background()

	primary := cachemock.NewMockCache(t)
	primary.On("Set", mock.Anything, "key", []byte("new"), time.Minute).Return(nil)

	f, mem := newFallback(t, primary)
	require.NoError(t, mem.Set(ctx, "key", []byte("old"), time.Minute))

	require.NoError(t, f.Set(ctx, "key", []byte("new"), time.Minute))

	_, err := mem.Get(ctx, "key")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestFallbackDeleteHitsBothStores(t *testing.T) {
	ctx := context.Background()

	primary := cachemock.NewMockCache(t)
	primary.On("Delete", mock.Anything, "key").Return(fmt.Errorf("connection refused"))

	f, mem := newFallback(t, primary)
	require.NoError(t, mem.Set(ctx, "key", []byte("v"), time.Minute))

	require.NoError(t, f.Delete(ctx, "key"))

	// Even with the primary down the fallback copy is gone.
	_, err := mem.Get(ctx, "key")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestFallbackDeleteByPatternHitsBothStores(t *testing.T) {
	ctx := context.Background()

	primary := cachemock.NewMockCache(t)
	primary.On("DeleteByPattern", mock.Anything, "search:user_1_").Return(nil)

	f, mem := newFallback(t, primary)
	require.NoError(t, mem.Set(ctx, "search:user_1_stats", []byte("v"), time.Minute))

	require.NoError(t, f.DeleteByPattern(ctx, "search:user_1_"))

	_, err := mem.Get(ctx, "search:user_1_stats")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestFallbackExistsDegrades(t *testing.T) {
	ctx := context.Background()

	primary := cachemock.NewMockCache(t)
	primary.On("Exists", mock.Anything, "key").Return(false, fmt.Errorf("connection refused"))

	f, mem := newFallback(t, primary)
	require.NoError(t, mem.Set(ctx, "key", []byte("v"), time.Minute))

	ok, err := f.Exists(ctx, "key")
	require.NoError(t, err)
	assert.True(t, ok)
}

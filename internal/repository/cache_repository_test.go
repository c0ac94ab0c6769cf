package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (CacheRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheRepository(client), mr
}

func TestCacheExists(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	exists, err := cache.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, cache.SetJSON(ctx, "k", "v", time.Minute))
	exists, err = cache.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	mr.FastForward(2 * time.Minute)
	exists, err = cache.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCacheJSON(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	var dest map[string]interface{}
	found, err := cache.GetJSON(ctx, "nasa:apod:2024-01-01", &dest)
	require.NoError(t, err)
	assert.False(t, found)

	payload := map[string]interface{}{"date": "2024-01-01", "title": "T"}
	require.NoError(t, cache.SetJSON(ctx, "nasa:apod:2024-01-01", payload, 24*time.Hour))

	found, err = cache.GetJSON(ctx, "nasa:apod:2024-01-01", &dest)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "T", dest["title"])

	require.NoError(t, mr.Set("broken", "{"))
	_, err = cache.GetJSON(ctx, "broken", &dest)
	assert.ErrorContains(t, err, "failed to unmarshal broken")
}

func TestCacheLock(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	ok, err := cache.AcquireLock(ctx, "lock:etl", "run-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.AcquireLock(ctx, "lock:etl", "run-2", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	// A stranger cannot release someone else's lock.
	require.NoError(t, cache.ReleaseLock(ctx, "lock:etl", "run-2"))
	assert.True(t, mr.Exists("lock:etl"))

	require.NoError(t, cache.ReleaseLock(ctx, "lock:etl", "run-1"))
	assert.False(t, mr.Exists("lock:etl"))

	ok, err = cache.AcquireLock(ctx, "lock:etl", "run-2", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

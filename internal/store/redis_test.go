package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCartCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return NewRedisCartCache(client), mr
}

func TestRedisCartCache_SetGet(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "session:abc", testLines()))
	assert.True(t, mr.Exists("cart:session:abc"))

	lines, err := cache.Get(ctx, "session:abc")
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	ttl := mr.TTL("cart:session:abc")
	assert.True(t, ttl >= 30*24*time.Hour, "TTL should be at least base TTL")
}

func TestRedisCartCache_Miss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	_, err := cache.Get(context.Background(), "session:nope")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCartCache_InvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("cart:session:bad", "[{\"id\":"))

	_, err := cache.Get(context.Background(), "session:bad")
	assert.ErrorContains(t, err, "unmarshal cart failed")
}

func TestRedisCartCache_Delete(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "user:7", testLines()))
	require.NoError(t, cache.Delete(ctx, "user:7"))
	assert.False(t, mr.Exists("cart:user:7"))

	assert.NoError(t, cache.Delete(ctx, "user:unknown"))
}

func TestRedisCartCache_RejectsInvalidLines(t *testing.T) {
	cache, _ := setupTestRedis(t)
	lines := testLines()
	lines[0].Quantity = 0

	assert.ErrorIs(t, cache.Set(context.Background(), "user:7", lines), ErrInvalidLine)
}

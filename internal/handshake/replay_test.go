package handshake

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/common/utils"
	"workspace-assistant/internal/database"
	"workspace-assistant/internal/redis"
)

func newRedisReplay(t *testing.T) (*RedisReplayCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	handle := database.NewHandle("redis", database.RedisDialer(redis.Config{Address: mr.Addr()}), database.Options{
		ConnectTimeout: time.Second,
		Retry:          utils.RetryConfig{MaxAttempts: 1},
	})
	t.Cleanup(func() { _ = handle.Close(context.Background()) })
	return NewRedisReplayCache(handle), mr
}

func TestMemoryReplayCache(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	cache := NewMemoryReplayCache()
	cache.now = func() time.Time { return now }

	ok, err := cache.Claim(ctx, "nonce-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.Claim(ctx, "nonce-a", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = cache.Claim(ctx, "nonce-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	ok, err = cache.Claim(ctx, "nonce-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired claims are forgotten")
}

func TestRedisReplayCache(t *testing.T) {
	ctx := context.Background()
	cache, mr := newRedisReplay(t)

	ok, err := cache.Claim(ctx, "nonce-a", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.Claim(ctx, "nonce-a", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 5*time.Minute, mr.TTL(replayPrefix+"nonce-a"))

	mr.FastForward(5 * time.Minute)
	ok, err = cache.Claim(ctx, "nonce-a", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisReplayCache_MinimumTTL(t *testing.T) {
	cache, mr := newRedisReplay(t)

	ok, err := cache.Claim(context.Background(), "nonce-a", 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Second, mr.TTL(replayPrefix+"nonce-a"))
}

func TestRedisReplayCache_Unavailable(t *testing.T) {
	cache, mr := newRedisReplay(t)
	mr.Close()

	ok, err := cache.Claim(context.Background(), "nonce-a", time.Minute)
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, errors.IsType(err, errors.ErrTypeConnection))
}

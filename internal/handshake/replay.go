package handshake

import (
	"context"
	"sync"
	"time"

	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/database"
	"workspace-assistant/internal/redis"
)

// ReplayCache remembers consumed state nonces for as long as they could
// still verify. Claim reports false when the nonce was already claimed.
type ReplayCache interface {
	Claim(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
}

// MemoryReplayCache is a process-local ReplayCache
type MemoryReplayCache struct {
	mu      sync.Mutex
	claimed map[string]time.Time
	now     func() time.Time
}

func NewMemoryReplayCache() *MemoryReplayCache {
	return &MemoryReplayCache{
		claimed: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (c *MemoryReplayCache) Claim(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for n, expires := range c.claimed {
		if !now.Before(expires) {
			delete(c.claimed, n)
		}
	}

	if _, ok := c.claimed[nonce]; ok {
		return false, nil
	}
	c.claimed[nonce] = now.Add(ttl)
	return true, nil
}

const replayPrefix = "oauth:state:"

// RedisReplayCache claims nonces with SET NX so every instance sees them
type RedisReplayCache struct {
	handle *database.Handle[*redis.Client]
}

func NewRedisReplayCache(handle *database.Handle[*redis.Client]) *RedisReplayCache {
	return &RedisReplayCache{handle: handle}
}

func (c *RedisReplayCache) Claim(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	client, err := c.handle.Acquire(ctx)
	if err != nil {
		return false, errors.ConnectionError("replay cache unavailable", err)
	}
	if ttl < time.Second {
		ttl = time.Second
	}

	ok, err := client.SetNX(ctx, replayPrefix+nonce, "1", ttl)
	if err != nil {
		return false, errors.ConnectionError("failed to claim state nonce", err)
	}
	return ok, nil
}

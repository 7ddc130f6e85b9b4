package locks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/redis"
)

func newRedsyncManager(t *testing.T) (*RedsyncManager, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)

	redisClient, err := redis.NewClient(context.Background(), &redis.Config{Address: s.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisClient.Close() })

	manager, err := NewRedsyncManager(redisClient, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	return manager, s
}

func TestRedsyncManager_AcquireLock(t *testing.T) {
	manager, s := newRedsyncManager(t)
	ctx := context.Background()

	t.Run("successful lock acquisition", func(t *testing.T) {
		lock, err := manager.AcquireLock(ctx, "refresh:user-1", 30*time.Second)
		require.NoError(t, err)
		require.NotNil(t, lock)

		assert.Equal(t, "refresh:user-1", lock.Key())
		assert.True(t, lock.IsHeld())
		assert.True(t, s.Exists("lock:refresh:user-1"))

		require.NoError(t, lock.Release(ctx))
		assert.False(t, lock.IsHeld())
		assert.False(t, s.Exists("lock:refresh:user-1"))

		// Second release is a no-op
		assert.NoError(t, lock.Release(ctx))
	})

	t.Run("lock contention", func(t *testing.T) {
		lock1, err := manager.AcquireLock(ctx, "refresh:user-2", 30*time.Second)
		require.NoError(t, err)
		defer lock1.Release(ctx)

		shortCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()

		lock2, err := manager.AcquireLock(shortCtx, "refresh:user-2", 30*time.Second)
		assert.Error(t, err)
		assert.Nil(t, lock2)
		assert.True(t, errors.IsType(err, errors.ErrTypeTimeout))
	})

	t.Run("released lock can be taken again", func(t *testing.T) {
		lock1, err := manager.AcquireLock(ctx, "refresh:user-3", 30*time.Second)
		require.NoError(t, err)
		require.NoError(t, lock1.Release(ctx))

		lock2, err := manager.AcquireLock(ctx, "refresh:user-3", 30*time.Second)
		require.NoError(t, err)
		assert.NoError(t, lock2.Release(ctx))
	})
}

func TestRedsyncManager_Close(t *testing.T) {
	manager, s := newRedsyncManager(t)

	lock, err := manager.AcquireLock(context.Background(), "refresh:user-4", 30*time.Second)
	require.NoError(t, err)

	require.NoError(t, manager.Close())
	assert.False(t, lock.IsHeld())
	assert.False(t, s.Exists("lock:refresh:user-4"))
}

func TestNewRedsyncManager_NilClient(t *testing.T) {
	_, err := NewRedsyncManager(nil, nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}

func TestLocalManager(t *testing.T) {
	manager := NewLocalManager()
	defer manager.Close()
	ctx := context.Background()

	t.Run("exclusive per key", func(t *testing.T) {
		var inside atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				lock, err := manager.AcquireLock(ctx, "refresh:user-1", time.Second)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, int32(1), inside.Add(1))
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				_ = lock.Release(ctx)
			}()
		}
		wg.Wait()
		assert.Zero(t, inside.Load())
	})

	t.Run("different keys do not block", func(t *testing.T) {
		a, err := manager.AcquireLock(ctx, "a", time.Second)
		require.NoError(t, err)
		defer a.Release(ctx)

		b, err := manager.AcquireLock(ctx, "b", time.Second)
		require.NoError(t, err)
		assert.NoError(t, b.Release(ctx))
	})

	t.Run("waiting respects context", func(t *testing.T) {
		held, err := manager.AcquireLock(ctx, "busy", time.Second)
		require.NoError(t, err)

		shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err = manager.AcquireLock(shortCtx, "busy", time.Second)
		assert.True(t, errors.IsType(err, errors.ErrTypeTimeout))

		require.NoError(t, held.Release(ctx))
		assert.False(t, held.IsHeld())
		assert.NoError(t, held.Release(ctx))

		again, err := manager.AcquireLock(ctx, "busy", time.Second)
		require.NoError(t, err)
		assert.NoError(t, again.Release(ctx))
	})
}

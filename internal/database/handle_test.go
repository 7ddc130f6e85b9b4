package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/common/utils"
	"workspace-assistant/internal/redis"
)

type fakeConn struct {
	id     int32
	alive  atomic.Bool
	closed atomic.Bool
}

type fakeBackend struct {
	dials      atomic.Int32
	failFirst  int32
	dialDelay  time.Duration
	onConnects atomic.Int32
}

func (b *fakeBackend) dialer() Dialer[*fakeConn] {
	return Dialer[*fakeConn]{
		Dial: func(ctx context.Context) (*fakeConn, error) {
			n := b.dials.Add(1)
			if b.dialDelay > 0 {
				select {
				case <-time.After(b.dialDelay):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			if n <= b.failFirst {
				return nil, errors.New("connection refused")
			}
			c := &fakeConn{id: n}
			c.alive.Store(true)
			return c, nil
		},
		Ping: func(ctx context.Context, c *fakeConn) error {
			if !c.alive.Load() {
				return errors.New("broken pipe")
			}
			return nil
		},
		Close: func(c *fakeConn) error {
			c.closed.Store(true)
			return nil
		},
		OnConnect: func(ctx context.Context, c *fakeConn) error {
			b.onConnects.Add(1)
			return nil
		},
	}
}

func fastOptions() Options {
	return Options{
		ConnectTimeout: time.Second,
		Retry: utils.RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  time.Millisecond,
			MaxDelay:      4 * time.Millisecond,
			BackoffFactor: 2,
		},
	}
}

func TestHandle_LazyDial(t *testing.T) {
	backend := &fakeBackend{}
	h := NewHandle("test-store", backend.dialer(), fastOptions())

	assert.Equal(t, StateDisconnected, h.State())
	assert.Equal(t, int32(0), backend.dials.Load())

	conn, err := h.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), conn.id)
	assert.Equal(t, StateConnected, h.State())
	assert.Equal(t, int32(1), backend.onConnects.Load())

	again, err := h.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, conn, again)
	assert.Equal(t, int32(1), backend.dials.Load())
}

func TestHandle_ConcurrentAcquireSharesOneDial(t *testing.T) {
	backend := &fakeBackend{dialDelay: 50 * time.Millisecond}
	h := NewHandle("test-store", backend.dialer(), fastOptions())

	const callers = 20
	conns := make([]*fakeConn, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := h.Acquire(context.Background())
			assert.NoError(t, err)
			conns[i] = c
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), backend.dials.Load())
	for _, c := range conns {
		assert.Same(t, conns[0], c)
	}
}

func TestHandle_RetriesBoundedThenFails(t *testing.T) {
	backend := &fakeBackend{failFirst: 100}
	h := NewHandle("test-store", backend.dialer(), fastOptions())

	_, err := h.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConnection))
	assert.Equal(t, int32(3), backend.dials.Load())
	assert.Equal(t, StateDisconnected, h.State())

	// A later Acquire starts a fresh attempt
	_, err = h.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(6), backend.dials.Load())
}

func TestHandle_RecoversWithinRetryBudget(t *testing.T) {
	backend := &fakeBackend{failFirst: 2}
	h := NewHandle("test-store", backend.dialer(), fastOptions())

	conn, err := h.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), conn.id)
}

func TestHandle_CallerCancellationDoesNotAbortDial(t *testing.T) {
	backend := &fakeBackend{dialDelay: 50 * time.Millisecond}
	h := NewHandle("test-store", backend.dialer(), fastOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := h.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	conn, err := h.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, conn)
	assert.Equal(t, int32(1), backend.dials.Load())
}

func TestHandle_HealthDemotesDeadConnection(t *testing.T) {
	backend := &fakeBackend{}
	h := NewHandle("test-store", backend.dialer(), fastOptions())

	err := h.Health(context.Background())
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConnection), "health never dials")
	assert.Equal(t, int32(0), backend.dials.Load())

	first, err := h.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Health(context.Background()))

	first.alive.Store(false)
	err = h.Health(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, h.State())
	assert.True(t, first.closed.Load())

	second, err := h.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), backend.dials.Load())
}

func TestHandle_Close(t *testing.T) {
	backend := &fakeBackend{}
	h := NewHandle("test-store", backend.dialer(), fastOptions())

	conn, err := h.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, h.Close(context.Background()))
	assert.True(t, conn.closed.Load())
	assert.Equal(t, StateClosed, h.State())

	_, err = h.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrHandleClosed)
	assert.ErrorIs(t, h.Health(context.Background()), ErrHandleClosed)

	// Closing twice is harmless
	assert.NoError(t, h.Close(context.Background()))
}

func TestHandle_CloseDuringDial(t *testing.T) {
	backend := &fakeBackend{dialDelay: 100 * time.Millisecond}
	h := NewHandle("test-store", backend.dialer(), fastOptions())

	errCh := make(chan error, 1)
	go func() {
		_, err := h.Acquire(context.Background())
		errCh <- err
	}()

	require.Eventually(t, func() bool { return h.State() == StateConnecting }, time.Second, time.Millisecond)
	require.NoError(t, h.Close(context.Background()))

	err := <-errCh
	assert.Error(t, err)
	assert.Equal(t, StateClosed, h.State())
}

func TestRedisDialer(t *testing.T) {
	mr := miniredis.RunT(t)

	h := NewHandle("redis", RedisDialer(redis.Config{Address: mr.Addr()}), fastOptions())
	defer h.Close(context.Background())

	client, err := h.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, client.Set(context.Background(), "k", "v", 0))
	assert.NoError(t, h.Health(context.Background()))
}

func TestSQLiteDialer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.db")

	dialer := SQLiteDialer(path)
	dialer.OnConnect = func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS scratch (id INTEGER PRIMARY KEY)`)
		return err
	}

	h := NewHandle("sqlite", dialer, fastOptions())
	defer h.Close(context.Background())

	db, err := h.Acquire(context.Background())
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO scratch (id) VALUES (1)`)
	require.NoError(t, err)
	assert.NoError(t, h.Health(context.Background()))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(42).String())
}

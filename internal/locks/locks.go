// Package locks serialises token refreshes for a user across goroutines
// and, with Redis configured, across service instances.
//
//	lock, err := manager.AcquireLock(ctx, "refresh:"+userID, 30*time.Second)
//	if err != nil {
//		return err
//	}
//	defer lock.Release(ctx)
package locks

import (
	"context"
	"sync"
	"time"

	"workspace-assistant/internal/common/errors"
)

// Lock is a held lock. Release is safe to call more than once.
type Lock interface {
	Key() string
	Release(ctx context.Context) error
	// IsHeld checks local state only
	IsHeld() bool
}

// LockManager hands out exclusive locks by key
type LockManager interface {
	AcquireLock(ctx context.Context, key string, expiration time.Duration) (Lock, error)
	Close() error
}

// LocalManager grants locks within one process. Expiration is ignored:
// a local lock is held until released or the manager is closed.
type LocalManager struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalManager() *LocalManager {
	return &LocalManager{slots: make(map[string]chan struct{})}
}

func (m *LocalManager) slot(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		m.slots[key] = s
	}
	return s
}

// AcquireLock blocks until key is free or ctx is done
func (m *LocalManager) AcquireLock(ctx context.Context, key string, expiration time.Duration) (Lock, error) {
	s := m.slot(key)
	select {
	case s <- struct{}{}:
		return &localLock{key: key, slot: s}, nil
	case <-ctx.Done():
		return nil, errors.TimeoutError("acquire lock " + key).WithCause(ctx.Err())
	}
}

func (m *LocalManager) Close() error {
	return nil
}

type localLock struct {
	key  string
	slot chan struct{}
	once sync.Once
	held sync.Mutex
	done bool
}

func (l *localLock) Key() string {
	return l.key
}

func (l *localLock) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.held.Lock()
		l.done = true
		l.held.Unlock()
		<-l.slot
	})
	return nil
}

func (l *localLock) IsHeld() bool {
	l.held.Lock()
	defer l.held.Unlock()
	return !l.done
}

var (
	_ LockManager = (*LocalManager)(nil)
	_ LockManager = (*RedsyncManager)(nil)
)

package sessions

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/database"
	"workspace-assistant/internal/redis"
)

const (
	redisPrefix      = "session:"
	maxConsumeTries  = 3
	minRedisLifetime = time.Second
)

// RedisStore keeps each session as JSON under session:<id>, expiring with
// the session itself.
type RedisStore struct {
	handle *database.Handle[*redis.Client]
	now    func() time.Time
}

func NewRedisStore(handle *database.Handle[*redis.Client]) *RedisStore {
	return &RedisStore{handle: handle, now: time.Now}
}

func (s *RedisStore) client(ctx context.Context) (*redis.Client, error) {
	c, err := s.handle.Acquire(ctx)
	if err != nil {
		if errors.IsType(err, errors.ErrTypeConnection) {
			return nil, err
		}
		return nil, errors.ConnectionError("session store unavailable", err)
	}
	return c, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	c, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	var session Session
	if err := c.GetJSON(ctx, redisPrefix+id, &session); err != nil {
		if redis.IsNil(err) {
			return nil, errNotFound()
		}
		return nil, errors.ConnectionError("failed to read session", err)
	}
	if session.IsExpired(s.now()) {
		return nil, errNotFound()
	}
	return &session, nil
}

func (s *RedisStore) Save(ctx context.Context, session *Session) error {
	if session == nil || session.ID == "" {
		return errors.ValidationError("session id is required")
	}
	c, err := s.client(ctx)
	if err != nil {
		return err
	}

	if err := c.Set(ctx, redisPrefix+session.ID, session, s.lifetime(session)); err != nil {
		return errors.ConnectionError("failed to save session", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	c, err := s.client(ctx)
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, redisPrefix+id); err != nil {
		return errors.ConnectionError("failed to delete session", err)
	}
	return nil
}

// ConsumeState runs inside WATCH/MULTI so two callbacks racing on the same
// session cannot both see the state.
func (s *RedisStore) ConsumeState(ctx context.Context, id, state string) (ConsumeResult, error) {
	c, err := s.client(ctx)
	if err != nil {
		return StateAbsent, err
	}
	key := redisPrefix + id

	var result ConsumeResult
	txf := func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if redis.IsNil(err) {
			result = StateAbsent
			return nil
		}
		if err != nil {
			return err
		}

		var session Session
		if err := json.Unmarshal(data, &session); err != nil {
			return err
		}

		var changed bool
		result, changed = consume(&session, state, s.now())
		if !changed {
			return nil
		}

		updated, err := json.Marshal(&session)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, updated, s.lifetime(&session))
			return nil
		})
		return err
	}

	for i := 0; i < maxConsumeTries; i++ {
		err = c.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if !redis.IsTxFailed(err) {
			return StateAbsent, errors.ConnectionError("failed to consume handshake state", err)
		}
	}
	return StateAbsent, errors.TransientError("handshake state contended", err)
}

func (s *RedisStore) lifetime(session *Session) time.Duration {
	d := session.ExpiresAt.Sub(s.now())
	if d < minRedisLifetime {
		d = minRedisLifetime
	}
	return d
}

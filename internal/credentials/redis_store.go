package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/database"
	"workspace-assistant/internal/redis"
)

const (
	redisUserPrefix  = "credentials:user:"
	redisEmailPrefix = "credentials:email:"
)

// RedisStore keeps each record as JSON under credentials:user:<id> with an
// email index under credentials:email:<address>. Records carry no TTL.
type RedisStore struct {
	handle *database.Handle[*redis.Client]
	now    func() time.Time
}

// NewRedisStore creates a store over a lazily connected Redis handle
func NewRedisStore(handle *database.Handle[*redis.Client]) *RedisStore {
	return &RedisStore{handle: handle, now: time.Now}
}

func (s *RedisStore) client(ctx context.Context) (*redis.Client, error) {
	c, err := s.handle.Acquire(ctx)
	if err != nil {
		if errors.IsType(err, errors.ErrTypeConnection) {
			return nil, err
		}
		return nil, errors.ConnectionError("credential store unavailable", err)
	}
	return c, nil
}

func (s *RedisStore) Find(ctx context.Context, userID string) (*Record, error) {
	c, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	var record Record
	if err := c.GetJSON(ctx, redisUserPrefix+userID, &record); err != nil {
		if redis.IsNil(err) {
			return nil, errNotFound()
		}
		return nil, s.wrap("read credential", err)
	}
	return &record, nil
}

func (s *RedisStore) FindByEmail(ctx context.Context, email string) (*Record, error) {
	c, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	userID, err := c.Get(ctx, redisEmailPrefix+NormalizeEmail(email))
	if err != nil {
		if redis.IsNil(err) {
			return nil, errNotFound()
		}
		return nil, s.wrap("read email index", err)
	}
	return s.Find(ctx, userID)
}

func (s *RedisStore) Upsert(ctx context.Context, record *Record) error {
	c, err := prepare(record, s.now())
	if err != nil {
		return err
	}
	client, err := s.client(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(c)
	if err != nil {
		return errors.InternalError("failed to encode credential", err)
	}

	var previous Record
	if err := client.GetJSON(ctx, redisUserPrefix+c.UserID, &previous); err != nil && !redis.IsNil(err) {
		return s.wrap("read credential", err)
	}

	err = client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, redisUserPrefix+c.UserID, data, 0)
		pipe.Set(ctx, redisEmailPrefix+c.Email, c.UserID, 0)
		if previous.Email != "" && previous.Email != c.Email {
			pipe.Del(ctx, redisEmailPrefix+previous.Email)
		}
		return nil
	})
	if err != nil {
		return s.wrap("write credential", err)
	}
	return nil
}

func (s *RedisStore) wrap(op string, err error) error {
	return errors.ConnectionError(fmt.Sprintf("failed to %s", op), err).
		WithContext("store", s.handle.Name())
}

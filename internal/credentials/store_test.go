package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/common/utils"
	"workspace-assistant/internal/crypto"
	"workspace-assistant/internal/database"
	"workspace-assistant/internal/redis"
)

func sampleRecord() *Record {
	return &Record{
		UserID:       "10769150350006150715113082367",
		Email:        "Ada@Example.com",
		Name:         "Ada Lovelace",
		AccessToken:  "ya29.access",
		RefreshToken: "1//refresh",
		Scope:        "openid email https://www.googleapis.com/auth/gmail.readonly",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(time.Hour).UnixMilli(),
	}
}

func fastOptions() database.Options {
	return database.Options{
		ConnectTimeout: time.Second,
		Retry: utils.RetryConfig{
			MaxAttempts:   2,
			InitialDelay:  time.Millisecond,
			MaxDelay:      time.Millisecond,
			BackoffFactor: 2,
		},
	}
}

// storeContract runs the behaviour every backend shares
func storeContract(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("missing record is not found", func(t *testing.T) {
		_, err := store.Find(ctx, "nobody")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))

		_, err = store.FindByEmail(ctx, "nobody@example.com")
		assert.True(t, IsNotFound(err))
	})

	t.Run("upsert then find", func(t *testing.T) {
		record := sampleRecord()
		require.NoError(t, store.Upsert(ctx, record))

		got, err := store.Find(ctx, record.UserID)
		require.NoError(t, err)
		assert.Equal(t, record.AccessToken, got.AccessToken)
		assert.Equal(t, record.RefreshToken, got.RefreshToken)
		assert.Equal(t, record.ExpiresAt, got.ExpiresAt)
		assert.Equal(t, "ada@example.com", got.Email)
		assert.NotZero(t, got.UpdatedAt)
	})

	t.Run("find by email ignores case", func(t *testing.T) {
		got, err := store.FindByEmail(ctx, "  ADA@example.COM ")
		require.NoError(t, err)
		assert.Equal(t, sampleRecord().UserID, got.UserID)
	})

	t.Run("upsert replaces the whole record", func(t *testing.T) {
		record := sampleRecord()
		record.AccessToken = "ya29.rotated"
		record.ExpiresAt = time.Now().Add(2 * time.Hour).UnixMilli()
		require.NoError(t, store.Upsert(ctx, record))

		got, err := store.Find(ctx, record.UserID)
		require.NoError(t, err)
		assert.Equal(t, "ya29.rotated", got.AccessToken)
		assert.Equal(t, record.ExpiresAt, got.ExpiresAt)
	})

	t.Run("email change moves the index", func(t *testing.T) {
		record := sampleRecord()
		record.Email = "ada@analytical.engine"
		require.NoError(t, store.Upsert(ctx, record))

		got, err := store.FindByEmail(ctx, "ada@analytical.engine")
		require.NoError(t, err)
		assert.Equal(t, record.UserID, got.UserID)
	})

	t.Run("invalid record is rejected", func(t *testing.T) {
		record := sampleRecord()
		record.AccessToken = ""
		err := store.Upsert(ctx, record)
		assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	storeContract(t, store)
	assert.Equal(t, 1, store.Len())

	t.Run("returned records are copies", func(t *testing.T) {
		got, err := store.Find(context.Background(), sampleRecord().UserID)
		require.NoError(t, err)
		got.AccessToken = "mutated"

		again, err := store.Find(context.Background(), sampleRecord().UserID)
		require.NoError(t, err)
		assert.NotEqual(t, "mutated", again.AccessToken)
	})

	t.Run("old email no longer resolves", func(t *testing.T) {
		_, err := store.FindByEmail(context.Background(), "ada@example.com")
		assert.True(t, IsNotFound(err))
	})
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	handle := database.NewHandle("redis", database.RedisDialer(redis.Config{Address: mr.Addr()}), fastOptions())
	t.Cleanup(func() { _ = handle.Close(context.Background()) })

	storeContract(t, NewRedisStore(handle))

	t.Run("records are stored without expiry", func(t *testing.T) {
		key := redisUserPrefix + sampleRecord().UserID
		assert.True(t, mr.Exists(key))
		assert.Zero(t, mr.TTL(key))
		assert.False(t, mr.Exists(redisEmailPrefix+"ada@example.com"))
	})
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	handle := database.NewHandle("redis", database.RedisDialer(redis.Config{Address: addr}), fastOptions())
	t.Cleanup(func() { _ = handle.Close(context.Background()) })

	_, err := NewRedisStore(handle).Find(context.Background(), "someone")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeConnection))
	assert.False(t, IsNotFound(err))
}

func TestSQLiteStore(t *testing.T) {
	dialer := database.SQLiteDialer(filepath.Join(t.TempDir(), "credentials.db"))
	dialer.OnConnect = MigrateSQLite
	handle := database.NewHandle("sqlite", dialer, fastOptions())
	t.Cleanup(func() { _ = handle.Close(context.Background()) })

	storeContract(t, NewSQLiteStore(handle))
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("POSTGRES_TEST_URL")
	if url == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}

	dialer := database.PostgresDialer(url)
	dialer.OnConnect = MigratePostgres
	handle := database.NewHandle("postgres", dialer, fastOptions())
	t.Cleanup(func() { _ = handle.Close(context.Background()) })

	pool, err := handle.Acquire(context.Background())
	require.NoError(t, err)
	_, err = pool.Exec(context.Background(), `DELETE FROM credentials`)
	require.NoError(t, err)

	storeContract(t, NewPostgresStore(handle))
}

func TestSealedStore(t *testing.T) {
	encryptor, err := crypto.NewTokenEncryptor("a-test-key-that-is-long-enough-to-use")
	require.NoError(t, err)

	inner := NewMemoryStore()
	store := NewSealedStore(inner, encryptor)
	storeContract(t, store)

	t.Run("tokens are sealed at rest", func(t *testing.T) {
		raw, err := inner.Find(context.Background(), sampleRecord().UserID)
		require.NoError(t, err)
		assert.True(t, crypto.IsSealed(raw.AccessToken))
		assert.True(t, crypto.IsSealed(raw.RefreshToken))
		assert.NotContains(t, raw.AccessToken, "ya29")
	})

	t.Run("plaintext rows are read as-is", func(t *testing.T) {
		plain := sampleRecord()
		plain.UserID = "legacy-user"
		plain.Email = "legacy@example.com"
		require.NoError(t, inner.Upsert(context.Background(), plain))

		got, err := store.Find(context.Background(), "legacy-user")
		require.NoError(t, err)
		assert.Equal(t, "ya29.access", got.AccessToken)
	})

	t.Run("missing refresh token stays empty", func(t *testing.T) {
		record := sampleRecord()
		record.UserID = "no-refresh"
		record.Email = "norefresh@example.com"
		record.RefreshToken = ""
		require.NoError(t, store.Upsert(context.Background(), record))

		got, err := store.Find(context.Background(), "no-refresh")
		require.NoError(t, err)
		assert.False(t, got.HasRefreshToken())
	})
}

func TestRecord(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	record := &Record{ExpiresAt: now.UnixMilli()}
	assert.True(t, record.IsExpired(now), "expiry instant itself counts as expired")
	assert.False(t, record.IsExpired(now.Add(-time.Millisecond)))

	record.ExpiresAt = now.Add(4 * time.Minute).UnixMilli()
	assert.False(t, record.IsExpired(now))
	assert.True(t, record.NeedsRefresh(now, 5*time.Minute))
	assert.False(t, record.NeedsRefresh(now, 3*time.Minute))

	assert.Equal(t, now.Add(4*time.Minute).UnixMilli(), record.Expiry().UnixMilli())

	record.Scope = "openid  email"
	assert.Equal(t, []string{"openid", "email"}, record.Scopes())

	assert.False(t, record.HasRefreshToken())
	record.RefreshToken = "  "
	assert.False(t, record.HasRefreshToken())

	var nilRecord *Record
	assert.Nil(t, nilRecord.Clone())
	assert.Error(t, nilRecord.Validate())
}

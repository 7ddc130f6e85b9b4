package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/config"
	"workspace-assistant/internal/credentials"
	"workspace-assistant/internal/handlers"
	"workspace-assistant/internal/handshake"
	"workspace-assistant/internal/locks"
	"workspace-assistant/internal/sessions"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Load()
	cfg.GoogleClientID = "client-id"
	cfg.GoogleClientSecret = "client-secret"
	cfg.StateSecret = strings.Repeat("s", 32)
	cfg.StoreBackend = "memory"
	cfg.RedisAddress = ""
	cfg.EncryptionKey = ""
	cfg.StoreConnectTimeout = "200ms"
	cfg.FallbackMode = "demo"
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { app.Cleanup(context.Background()) })
	return app
}

func TestNew_MemoryBackend(t *testing.T) {
	app := newTestApp(t, testConfig(t))

	assert.IsType(t, &sessions.MemoryStore{}, app.Sessions)
	assert.IsType(t, &handshake.MemoryReplayCache{}, app.Replay)
	assert.IsType(t, &locks.LocalManager{}, app.Locks)
	assert.Empty(t, app.checkers)
	assert.NotNil(t, app.Controller)
	assert.NotNil(t, app.Workspace)
}

func TestNew_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.StoreBackend = "redis"
	cfg.RedisAddress = mr.Addr()

	app := newTestApp(t, cfg)

	assert.IsType(t, &sessions.RedisStore{}, app.Sessions)
	assert.IsType(t, &handshake.RedisReplayCache{}, app.Replay)
	assert.IsType(t, &locks.RedsyncManager{}, app.Locks)
	require.Len(t, app.checkers, 1)
	assert.Equal(t, "redis", app.checkers[0].Name())
	assert.NoError(t, app.checkers[0].Health(context.Background()))
}

func TestNew_SQLiteWithUnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.StoreBackend = "sqlite"
	cfg.DatabasePath = filepath.Join(t.TempDir(), "credentials.db")
	cfg.RedisAddress = "127.0.0.1:1"

	app := newTestApp(t, cfg)

	assert.IsType(t, &sessions.MemoryStore{}, app.Sessions)
	assert.IsType(t, &locks.LocalManager{}, app.Locks)
	require.Len(t, app.checkers, 1)
	assert.Equal(t, "sqlite", app.checkers[0].Name())
}

func TestNew_EncryptionKeySealsCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.EncryptionKey = "0123456789abcdef0123456789abcdef"

	app := newTestApp(t, cfg)

	assert.IsType(t, &credentials.SealedStore{}, app.Credentials)
}

func TestNew_ShortStateSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.StateSecret = "short"

	_, err := New(context.Background(), cfg)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}

func TestRoutes(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	_, router := app.RunServer()

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		var body handlers.HealthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "ok", body.Status)
		require.Len(t, body.Breakers, 1)
		assert.Equal(t, "google-token-endpoint", body.Breakers[0].Name)
		assert.False(t, body.Breakers[0].Open)
	})

	t.Run("signin redirects to google", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/signin?return_to=/inbox", nil))

		assert.Equal(t, http.StatusFound, rec.Code)
		location := rec.Header().Get("Location")
		assert.Contains(t, location, "accounts.google.com")
		assert.Contains(t, location, "state=")
		assert.Contains(t, rec.Header().Get("Set-Cookie"), handlers.SessionCookie+"=")
	})

	t.Run("anonymous mail falls back to demo data", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/mail", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			IsFallback     bool   `json:"isFallback"`
			FallbackReason string `json:"fallbackReason"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.True(t, body.IsFallback)
		assert.Equal(t, "not_authenticated", body.FallbackReason)
	})

	t.Run("signout clears the cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/signout", nil))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
	})
}

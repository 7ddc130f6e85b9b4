package app

import (
	"context"

	"workspace-assistant/internal/common/logging"
	"workspace-assistant/internal/common/utils"
	"workspace-assistant/internal/database"
	"workspace-assistant/internal/handshake"
	"workspace-assistant/internal/locks"
	"workspace-assistant/internal/redis"
	"workspace-assistant/internal/sessions"
)

// initializeRedis is used with the SQL and memory credential backends.
// Redis is optional there: without it sessions, replay markers and locks
// stay in process.
func (app *App) initializeRedis(ctx context.Context) error {
	if app.Config.RedisAddress == "" || app.Config.StoreBackend == "memory" {
		app.useMemory("not configured")
		return nil
	}

	// One quick attempt; an unreachable optional Redis must not stall startup
	opts := app.storeOptions()
	opts.Retry = utils.RetryConfig{MaxAttempts: 1}
	handle := database.NewHandle("redis", database.RedisDialer(app.redisConfig()), opts)

	if !warm(ctx, app, handle) {
		_ = handle.Close(ctx)
		app.useMemory("unreachable")
		return nil
	}

	registerHandle(app, handle)
	app.useRedis(ctx, handle)
	return nil
}

func (app *App) useMemory(reason string) {
	app.Logger.Info("Redis: "+reason+" (sessions, replay protection and refresh locks are per-instance)")
	app.Sessions = sessions.NewMemoryStore()
	app.Replay = handshake.NewMemoryReplayCache()
	app.Locks = locks.NewLocalManager()
}

// useRedis puts sessions and replay markers on the shared handle. Locks get
// a client of their own so a demoted handle does not strand held locks.
func (app *App) useRedis(ctx context.Context, handle *database.Handle[*redis.Client]) {
	app.Sessions = sessions.NewRedisStore(handle)
	app.Replay = handshake.NewRedisReplayCache(handle)

	cfg := app.redisConfig()
	client, err := redis.NewClient(ctx, &cfg)
	if err != nil {
		app.Logger.Warn("Distributed locks unavailable, using local locks", logging.Err(err))
		app.Locks = locks.NewLocalManager()
		return
	}

	manager, err := locks.NewRedsyncManager(client, app.Logger)
	if err != nil {
		_ = client.Close()
		app.Logger.Warn("Distributed locks unavailable, using local locks", logging.Err(err))
		app.Locks = locks.NewLocalManager()
		return
	}

	app.Locks = manager
	app.addCloser("redis-locks", func(context.Context) error { return client.Close() })
	app.Logger.Info("Distributed Locks: Enabled", logging.String("address", cfg.Address))
}

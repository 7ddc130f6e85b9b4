package app

import (
	"context"
	"time"

	"workspace-assistant/internal/common/logging"
	"workspace-assistant/internal/config"
	"workspace-assistant/internal/credentials"
	"workspace-assistant/internal/crypto"
	"workspace-assistant/internal/database"
	"workspace-assistant/internal/redis"
)

// storeChecker reports a handle on /health, redialling one that a failed
// health check demoted
type storeChecker[T any] struct {
	handle *database.Handle[T]
}

func (c storeChecker[T]) Name() string {
	return c.handle.Name()
}

func (c storeChecker[T]) Health(ctx context.Context) error {
	if c.handle.State() == database.StateDisconnected {
		if _, err := c.handle.Acquire(ctx); err != nil {
			return err
		}
	}
	return c.handle.Health(ctx)
}

// registerHandle makes a handle visible to /health and the shutdown path
func registerHandle[T any](app *App, handle *database.Handle[T]) {
	app.checkers = append(app.checkers, storeChecker[T]{handle: handle})
	app.addCloser(handle.Name(), handle.Close)
}

// warm dials a handle at startup so configuration mistakes surface in the
// first log lines. A failure is not fatal: the handle redials on next use.
func warm[T any](ctx context.Context, app *App, handle *database.Handle[T]) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*config.Duration(app.Config.StoreConnectTimeout))
	defer cancel()

	if _, err := handle.Acquire(ctx); err != nil {
		app.Logger.Warn("Store not reachable at startup, will retry on demand",
			logging.String("store", handle.Name()),
			logging.Err(err),
		)
		return false
	}
	return true
}

func (app *App) storeOptions() database.Options {
	opts := database.DefaultOptions()
	opts.ConnectTimeout = config.Duration(app.Config.StoreConnectTimeout)
	opts.Logger = logging.GetGlobalLogger()
	return opts
}

func (app *App) redisConfig() redis.Config {
	return redis.Config{
		Address:     app.Config.RedisAddress,
		Password:    app.Config.RedisPassword,
		DB:          config.Int(app.Config.RedisDB),
		PoolSize:    config.Int(app.Config.RedisPoolSize),
		DialTimeout: config.Duration(app.Config.StoreConnectTimeout),
	}
}

// initializeStores selects the credential backend, then places sessions,
// replay markers and refresh locks on Redis when it is available
func (app *App) initializeStores(ctx context.Context) error {
	cfg := app.Config

	switch cfg.StoreBackend {
	case "memory":
		app.Logger.Warn("Credential store: memory (credentials are lost on restart)")
		app.Credentials = credentials.NewMemoryStore()

	case "redis":
		app.Logger.Info("Credential store: Redis", logging.String("address", cfg.RedisAddress))
		handle := database.NewHandle("redis", database.RedisDialer(app.redisConfig()), app.storeOptions())
		registerHandle(app, handle)
		warm(ctx, app, handle)
		app.Credentials = credentials.NewRedisStore(handle)
		app.useRedis(ctx, handle)
		return nil

	case "postgres", "postgresql":
		app.Logger.Info("Credential store: PostgreSQL")
		dialer := database.PostgresDialer(cfg.PostgresURL)
		dialer.OnConnect = credentials.MigratePostgres
		handle := database.NewHandle("postgres", dialer, app.storeOptions())
		registerHandle(app, handle)
		warm(ctx, app, handle)
		app.Credentials = credentials.NewPostgresStore(handle)

	default:
		app.Logger.Info("Credential store: SQLite", logging.String("path", cfg.DatabasePath))
		dialer := database.SQLiteDialer(cfg.DatabasePath)
		dialer.OnConnect = credentials.MigrateSQLite
		handle := database.NewHandle("sqlite", dialer, app.storeOptions())
		registerHandle(app, handle)
		warm(ctx, app, handle)
		app.Credentials = credentials.NewSQLiteStore(handle)
	}

	return app.initializeRedis(ctx)
}

// initializeEncryption seals tokens at rest when a key is configured
func (app *App) initializeEncryption() error {
	if app.Config.EncryptionKey == "" {
		app.Logger.Info("Credential encryption: disabled")
		return nil
	}

	encryptor, err := crypto.NewTokenEncryptor(app.Config.EncryptionKey)
	if err != nil {
		return err
	}
	app.Credentials = credentials.NewSealedStore(app.Credentials, encryptor)
	app.Logger.Info("Credential encryption: enabled")
	return nil
}

// sweepInterval is how often expired in-memory sessions are dropped
const sweepInterval = 10 * time.Minute

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"
	"workspace-assistant/internal/redis"
)

// RedisDialer dials a go-redis client
func RedisDialer(config redis.Config) Dialer[*redis.Client] {
	return Dialer[*redis.Client]{
		Dial: func(ctx context.Context) (*redis.Client, error) {
			cfg := config
			return redis.NewClient(ctx, &cfg)
		},
		Ping: func(ctx context.Context, c *redis.Client) error {
			return c.Ping(ctx)
		},
		Close: func(c *redis.Client) error {
			return c.Close()
		},
	}
}

// SQLiteDialer opens a SQLite database file through mattn/go-sqlite3
func SQLiteDialer(path string) Dialer[*sql.DB] {
	return Dialer[*sql.DB]{
		Dial: func(ctx context.Context) (*sql.DB, error) {
			db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
			if err != nil {
				return nil, fmt.Errorf("failed to open SQLite database: %w", err)
			}
			if err := db.PingContext(ctx); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
			}
			return db, nil
		},
		Ping: func(ctx context.Context, db *sql.DB) error {
			return db.PingContext(ctx)
		},
		Close: func(db *sql.DB) error {
			return db.Close()
		},
	}
}

// PostgresDialer opens a pgx connection pool
func PostgresDialer(url string) Dialer[*pgxpool.Pool] {
	return Dialer[*pgxpool.Pool]{
		Dial: func(ctx context.Context) (*pgxpool.Pool, error) {
			pool, err := pgxpool.New(ctx, url)
			if err != nil {
				return nil, fmt.Errorf("failed to create PostgreSQL pool: %w", err)
			}
			if err := pool.Ping(ctx); err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
			}
			return pool, nil
		},
		Ping: func(ctx context.Context, pool *pgxpool.Pool) error {
			return pool.Ping(ctx)
		},
		Close: func(pool *pgxpool.Pool) error {
			pool.Close()
			return nil
		},
	}
}

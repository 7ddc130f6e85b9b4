package credentials

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/database"
)

// MigratePostgres creates the credentials table. It is used as the
// OnConnect hook of the PostgreSQL handle.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS credentials (
			user_id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL DEFAULT '',
			scope TEXT NOT NULL DEFAULT '',
			token_type TEXT NOT NULL DEFAULT 'Bearer',
			expires_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_credentials_email ON credentials(email)`,
	}

	for _, query := range queries {
		if _, err := pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute migration query: %w", err)
		}
	}
	return nil
}

const upsertPostgres = `INSERT INTO credentials
	(user_id, email, name, access_token, refresh_token, scope, token_type, expires_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (user_id) DO UPDATE SET
		email = EXCLUDED.email,
		name = EXCLUDED.name,
		access_token = EXCLUDED.access_token,
		refresh_token = EXCLUDED.refresh_token,
		scope = EXCLUDED.scope,
		token_type = EXCLUDED.token_type,
		expires_at = EXCLUDED.expires_at,
		updated_at = EXCLUDED.updated_at`

// PostgresStore keeps records in PostgreSQL through a pgx pool.
type PostgresStore struct {
	handle *database.Handle[*pgxpool.Pool]
	now    func() time.Time
}

func NewPostgresStore(handle *database.Handle[*pgxpool.Pool]) *PostgresStore {
	return &PostgresStore{handle: handle, now: time.Now}
}

func (s *PostgresStore) Find(ctx context.Context, userID string) (*Record, error) {
	return s.queryOne(ctx, selectCredential+` WHERE user_id = $1`, userID)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*Record, error) {
	return s.queryOne(ctx, selectCredential+` WHERE email = $1 ORDER BY updated_at DESC LIMIT 1`, NormalizeEmail(email))
}

func (s *PostgresStore) Upsert(ctx context.Context, record *Record) error {
	c, err := prepare(record, s.now())
	if err != nil {
		return err
	}
	pool, err := s.pool(ctx)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, upsertPostgres,
		c.UserID, c.Email, c.Name, c.AccessToken, c.RefreshToken,
		c.Scope, c.TokenType, c.ExpiresAt, c.UpdatedAt)
	if err != nil {
		return errors.ConnectionError("failed to write credential", err).
			WithContext("store", s.handle.Name())
	}
	return nil
}

func (s *PostgresStore) queryOne(ctx context.Context, query string, arg string) (*Record, error) {
	pool, err := s.pool(ctx)
	if err != nil {
		return nil, err
	}

	record, err := scanRecord(pool.QueryRow(ctx, query, arg))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errNotFound()
		}
		return nil, errors.ConnectionError("failed to read credential", err).
			WithContext("store", s.handle.Name())
	}
	return record, nil
}

func (s *PostgresStore) pool(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := s.handle.Acquire(ctx)
	if err != nil {
		if errors.IsType(err, errors.ErrTypeConnection) {
			return nil, err
		}
		return nil, errors.ConnectionError("credential store unavailable", err)
	}
	return pool, nil
}

package credentials

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/database"
)

// MigrateSQLite creates the credentials table. It is used as the OnConnect
// hook of the SQLite handle.
func MigrateSQLite(ctx context.Context, db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS credentials (
			user_id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL DEFAULT '',
			scope TEXT NOT NULL DEFAULT '',
			token_type TEXT NOT NULL DEFAULT 'Bearer',
			expires_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_credentials_email ON credentials(email)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute migration query: %w", err)
		}
	}
	return nil
}

const (
	selectCredential = `SELECT user_id, email, name, access_token, refresh_token, scope, token_type, expires_at, updated_at
		FROM credentials`

	upsertSQLite = `INSERT INTO credentials
		(user_id, email, name, access_token, refresh_token, scope, token_type, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			scope = excluded.scope,
			token_type = excluded.token_type,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`
)

// SQLiteStore keeps records in a SQLite file through mattn/go-sqlite3.
type SQLiteStore struct {
	handle *database.Handle[*sql.DB]
	now    func() time.Time
}

func NewSQLiteStore(handle *database.Handle[*sql.DB]) *SQLiteStore {
	return &SQLiteStore{handle: handle, now: time.Now}
}

func (s *SQLiteStore) Find(ctx context.Context, userID string) (*Record, error) {
	return s.queryOne(ctx, selectCredential+` WHERE user_id = ?`, userID)
}

func (s *SQLiteStore) FindByEmail(ctx context.Context, email string) (*Record, error) {
	return s.queryOne(ctx, selectCredential+` WHERE email = ? ORDER BY updated_at DESC LIMIT 1`, NormalizeEmail(email))
}

func (s *SQLiteStore) Upsert(ctx context.Context, record *Record) error {
	c, err := prepare(record, s.now())
	if err != nil {
		return err
	}
	db, err := acquireSQL(ctx, s.handle)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, upsertSQLite,
		c.UserID, c.Email, c.Name, c.AccessToken, c.RefreshToken,
		c.Scope, c.TokenType, c.ExpiresAt, c.UpdatedAt)
	if err != nil {
		return errors.ConnectionError("failed to write credential", err).
			WithContext("store", s.handle.Name())
	}
	return nil
}

func (s *SQLiteStore) queryOne(ctx context.Context, query string, arg string) (*Record, error) {
	db, err := acquireSQL(ctx, s.handle)
	if err != nil {
		return nil, err
	}

	record, err := scanRecord(db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound()
		}
		return nil, errors.ConnectionError("failed to read credential", err).
			WithContext("store", s.handle.Name())
	}
	return record, nil
}

func acquireSQL(ctx context.Context, handle *database.Handle[*sql.DB]) (*sql.DB, error) {
	db, err := handle.Acquire(ctx)
	if err != nil {
		if errors.IsType(err, errors.ErrTypeConnection) {
			return nil, err
		}
		return nil, errors.ConnectionError("credential store unavailable", err)
	}
	return db, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var r Record
	err := row.Scan(&r.UserID, &r.Email, &r.Name, &r.AccessToken, &r.RefreshToken,
		&r.Scope, &r.TokenType, &r.ExpiresAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Package pgstore implements storage.Store on PostgreSQL through a pgx pool.
package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"pastebox/internal/storage"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS pastes (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    language TEXT,
    password_hash TEXT,
    expires_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL,
    view_count BIGINT NOT NULL DEFAULT 0,
    owner_id BIGINT
);
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pastes_expires_at ON pastes (expires_at);
CREATE INDEX IF NOT EXISTS idx_pastes_owner_id ON pastes (owner_id);
CREATE INDEX IF NOT EXISTS idx_pastes_created_at ON pastes (created_at);
`

// Store implements storage.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to the database at url, applies the schema and returns the store.
func Open(ctx context.Context, url string, maxConns int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse postgres url")
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	store := NewStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewStore wraps an existing pool. The caller is responsible for the schema.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates tables and indexes if they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

const pasteColumns = `id, content, language, password_hash, expires_at, created_at, view_count, owner_id`

func (s *Store) CreatePaste(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	paste.CreatedAt = paste.CreatedAt.UTC()
	paste.ExpiresAt = paste.ExpiresAt.UTC()

	query := `
		INSERT INTO pastes (` + pasteColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.pool.Exec(ctx, query,
		paste.ID,
		paste.Content,
		optional(paste.Language),
		optional(paste.PasswordHash),
		optionalTime(paste.ExpiresAt),
		paste.CreatedAt,
		paste.ViewCount,
		paste.OwnerID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return storage.ErrDuplicateID
		}
		return errors.Wrap(err, "insert paste")
	}
	return nil
}

func (s *Store) GetPaste(ctx context.Context, id string) (*storage.Paste, error) {
	query := `SELECT ` + pasteColumns + ` FROM pastes WHERE id = $1`
	paste, err := scanPaste(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "query paste")
	}
	return paste, nil
}

func (s *Store) DeletePaste(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM pastes WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "delete paste")
	}
	return nil
}

func (s *Store) IncrementViews(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `UPDATE pastes SET view_count = view_count + 1 WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "increment views")
	}
	return nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID int64, limit int) ([]*storage.Paste, error) {
	query := `
		SELECT ` + pasteColumns + `
		FROM pastes
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return s.queryPastes(ctx, query, ownerID, limit)
}

func (s *Store) ListPublic(ctx context.Context, now time.Time, limit int) ([]*storage.Paste, error) {
	query := `
		SELECT ` + pasteColumns + `
		FROM pastes
		WHERE password_hash IS NULL
		  AND (expires_at IS NULL OR expires_at > $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	return s.queryPastes(ctx, query, now.UTC(), limit)
}

func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pastes WHERE expires_at IS NOT NULL AND expires_at <= $1`, before.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "delete expired")
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) CreateUser(ctx context.Context, username, passwordHash string, createdAt time.Time) (int64, error) {
	query := `
		INSERT INTO users (username, password_hash, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	var id int64
	err := s.pool.QueryRow(ctx, query, username, passwordHash, createdAt.UTC()).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, storage.ErrConflict
		}
		return 0, errors.Wrap(err, "insert user")
	}
	return id, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*storage.User, error) {
	return s.queryUser(ctx, `SELECT id, username, password_hash, created_at FROM users WHERE id = $1`, id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*storage.User, error) {
	return s.queryUser(ctx, `SELECT id, username, password_hash, created_at FROM users WHERE username = $1`, username)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *Store) queryUser(ctx context.Context, query string, arg any) (*storage.User, error) {
	var user storage.User
	err := s.pool.QueryRow(ctx, query, arg).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "query user")
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) queryPastes(ctx context.Context, query string, args ...any) ([]*storage.Paste, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query pastes")
	}
	defer rows.Close()

	var out []*storage.Paste
	for rows.Next() {
		paste, err := scanPaste(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan paste")
		}
		out = append(out, paste)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate pastes")
	}
	return out, nil
}

func scanPaste(row pgx.Row) (*storage.Paste, error) {
	var (
		paste     storage.Paste
		language  *string
		password  *string
		expiresAt *time.Time
	)
	err := row.Scan(
		&paste.ID,
		&paste.Content,
		&language,
		&password,
		&expiresAt,
		&paste.CreatedAt,
		&paste.ViewCount,
		&paste.OwnerID,
	)
	if err != nil {
		return nil, err
	}
	if language != nil {
		paste.Language = *language
	}
	if password != nil {
		paste.PasswordHash = *password
	}
	if expiresAt != nil {
		paste.ExpiresAt = expiresAt.UTC()
	}
	paste.CreatedAt = paste.CreatedAt.UTC()
	return &paste, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

package sqlitestore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"pastebox/internal/storage"
)

const defaultMaxConns = 5

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Open initializes the SQLite database at path with a pool of at most maxConns connections.
func Open(path string, maxConns int) (*Store, error) {
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxIdleTime(10 * time.Minute)
	if err := initialize(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Every pooled connection gets the same pragmas.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func initialize(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS pastes (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    language TEXT,
    password_hash TEXT,
    expires_at DATETIME,
    created_at DATETIME NOT NULL,
    view_count INTEGER NOT NULL DEFAULT 0,
    owner_id INTEGER
);
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pastes_expires_at ON pastes (expires_at);
CREATE INDEX IF NOT EXISTS idx_pastes_owner_id ON pastes (owner_id);
CREATE INDEX IF NOT EXISTS idx_users_username ON users (username);
`
	if _, err := db.Exec(schema); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

const pasteColumns = `id, content, language, password_hash, expires_at, created_at, view_count, owner_id`

// CreatePaste inserts a paste.
func (s *Store) CreatePaste(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}

	paste.CreatedAt = paste.CreatedAt.UTC()
	paste.ExpiresAt = paste.ExpiresAt.UTC()

	const q = `
INSERT INTO pastes (` + pasteColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`
	_, err := s.db.ExecContext(ctx, q,
		paste.ID,
		paste.Content,
		nullString(paste.Language),
		nullString(paste.PasswordHash),
		nullableTime(paste.ExpiresAt),
		paste.CreatedAt,
		paste.ViewCount,
		nullableID(paste.OwnerID),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateID
		}
		return errors.Wrap(err, "insert paste")
	}
	return nil
}

// GetPaste fetches a paste by id.
func (s *Store) GetPaste(ctx context.Context, id string) (*storage.Paste, error) {
	const q = `SELECT ` + pasteColumns + ` FROM pastes WHERE id = ?;`
	paste, err := scanPaste(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "query paste")
	}
	return paste, nil
}

// DeletePaste removes a paste by id.
func (s *Store) DeletePaste(ctx context.Context, id string) error {
	const q = `DELETE FROM pastes WHERE id = ?;`
	if _, err := s.db.ExecContext(ctx, q, id); err != nil {
		return errors.Wrap(err, "delete paste")
	}
	return nil
}

// IncrementViews bumps the view counter.
func (s *Store) IncrementViews(ctx context.Context, id string) error {
	const q = `UPDATE pastes SET view_count = view_count + 1 WHERE id = ?;`
	if _, err := s.db.ExecContext(ctx, q, id); err != nil {
		return errors.Wrap(err, "increment views")
	}
	return nil
}

// ListByOwner returns the newest pastes owned by ownerID.
func (s *Store) ListByOwner(ctx context.Context, ownerID int64, limit int) ([]*storage.Paste, error) {
	const q = `
SELECT ` + pasteColumns + `
FROM pastes WHERE owner_id = ?
ORDER BY created_at DESC LIMIT ?;
`
	return s.queryPastes(ctx, q, ownerID, limit)
}

// ListPublic returns the newest unprotected, unexpired pastes.
func (s *Store) ListPublic(ctx context.Context, now time.Time, limit int) ([]*storage.Paste, error) {
	const q = `
SELECT ` + pasteColumns + `
FROM pastes
WHERE password_hash IS NULL
  AND (expires_at IS NULL OR expires_at > ?)
ORDER BY created_at DESC LIMIT ?;
`
	return s.queryPastes(ctx, q, now.UTC(), limit)
}

// DeleteExpired removes all expired pastes.
func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	const q = `DELETE FROM pastes WHERE expires_at IS NOT NULL AND expires_at <= ?;`
	res, err := s.db.ExecContext(ctx, q, before.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "delete expired")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return int(rows), nil
}

// CreateUser inserts a user and returns the generated id.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string, createdAt time.Time) (int64, error) {
	const q = `INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?);`
	res, err := s.db.ExecContext(ctx, q, username, passwordHash, createdAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, storage.ErrConflict
		}
		return 0, errors.Wrap(err, "insert user")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "last insert id")
	}
	return id, nil
}

// GetUserByID fetches a user by primary key.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*storage.User, error) {
	const q = `SELECT id, username, password_hash, created_at FROM users WHERE id = ?;`
	return s.queryUser(ctx, q, id)
}

// GetUserByUsername fetches a user by exact username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*storage.User, error) {
	const q = `SELECT id, username, password_hash, created_at FROM users WHERE username = ?;`
	return s.queryUser(ctx, q, username)
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) queryUser(ctx context.Context, q string, arg any) (*storage.User, error) {
	var (
		user      storage.User
		createdAt time.Time
	)
	err := s.db.QueryRowContext(ctx, q, arg).Scan(&user.ID, &user.Username, &user.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "query user")
	}
	user.CreatedAt = createdAt.UTC()
	return &user, nil
}

func (s *Store) queryPastes(ctx context.Context, q string, args ...any) ([]*storage.Paste, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanPaste(row scanner) (*storage.Paste, error) {
	var (
		paste     storage.Paste
		language  sql.NullString
		password  sql.NullString
		expiresAt sql.NullTime
		createdAt time.Time
		ownerID   sql.NullInt64
	)
	if err := row.Scan(&paste.ID, &paste.Content, &language, &password, &expiresAt, &createdAt, &paste.ViewCount, &ownerID); err != nil {
		return nil, err
	}
	paste.Language = language.String
	paste.PasswordHash = password.String
	paste.CreatedAt = createdAt.UTC()
	if expiresAt.Valid {
		paste.ExpiresAt = expiresAt.Time.UTC()
	}
	if ownerID.Valid {
		owner := ownerID.Int64
		paste.OwnerID = &owner
	}
	return &paste, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

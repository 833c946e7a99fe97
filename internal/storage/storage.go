package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a paste or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateID is returned when a paste id is already taken.
	ErrDuplicateID = errors.New("duplicate paste id")
	// ErrConflict is returned when a unique constraint other than the paste id is violated.
	ErrConflict = errors.New("conflict")
)

// Paste represents a stored paste entry.
type Paste struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	Language     string    `json:"language"`
	PasswordHash string    `json:"password_hash,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
	ViewCount    int64     `json:"view_count"`
	OwnerID      *int64    `json:"owner_id,omitempty"`
}

// HasExpiration reports whether the paste has an expiry set.
func (p Paste) HasExpiration() bool {
	return !p.ExpiresAt.IsZero()
}

// ExpiredAt reports whether the paste has expired at now.
func (p Paste) ExpiredAt(now time.Time) bool {
	return p.HasExpiration() && !p.ExpiresAt.After(now)
}

// Protected reports whether viewing requires a password.
func (p Paste) Protected() bool {
	return p.PasswordHash != ""
}

// OwnedBy reports whether userID owns the paste.
func (p Paste) OwnedBy(userID *int64) bool {
	return userID != nil && p.OwnerID != nil && *userID == *p.OwnerID
}

// Anonymous reports whether the paste has no owner.
func (p Paste) Anonymous() bool {
	return p.OwnerID == nil
}

// Size is the content length in bytes.
func (p Paste) Size() int {
	return len(p.Content)
}

// User is a registered account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// PasteStore persists pastes.
type PasteStore interface {
	// CreatePaste inserts a new paste. It never overwrites; an existing id
	// yields ErrDuplicateID.
	CreatePaste(ctx context.Context, paste *Paste) error
	GetPaste(ctx context.Context, id string) (*Paste, error)
	// DeletePaste removes a paste. Deleting a missing paste is not an error.
	DeletePaste(ctx context.Context, id string) error
	// IncrementViews bumps the view counter in a single atomic step.
	IncrementViews(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerID int64, limit int) ([]*Paste, error)
	// ListPublic returns unprotected pastes not expired at now, newest first.
	ListPublic(ctx context.Context, now time.Time, limit int) ([]*Paste, error)
	// DeleteExpired removes every paste whose expiry is at or before the provided time.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// UserStore persists user accounts.
type UserStore interface {
	// CreateUser inserts a user and returns its id. A taken username yields ErrConflict.
	CreateUser(ctx context.Context, username, passwordHash string, createdAt time.Time) (int64, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// Store defines the storage backend contract.
type Store interface {
	PasteStore
	UserStore
	Ping(ctx context.Context) error
	Close() error
}

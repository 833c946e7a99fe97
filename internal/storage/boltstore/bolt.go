package boltstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"pastebox/internal/storage"
)

var (
	pasteBucket    = []byte("pastes")
	expireBucket   = []byte("expires")
	createdBucket  = []byte("created")
	ownerBucket    = []byte("owners")
	userBucket     = []byte("users")
	usernameBucket = []byte("usernames")

	allBuckets = [][]byte{pasteBucket, expireBucket, createdBucket, ownerBucket, userBucket, usernameBucket}

	errBuckets = errors.New("buckets not initialized")
)

// Store implements storage.Store backed by BoltDB. Secondary indexes live in
// their own buckets and are kept in step with the pastes bucket inside the
// same transaction.
type Store struct {
	db *bolt.DB
}

// Open initializes a BoltDB-backed store located at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open bolt db")
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Wrapf(err, "create %s bucket", name)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

type buckets struct {
	pastes, expires, created, owners, users, usernames *bolt.Bucket
}

func open(tx *bolt.Tx) (buckets, error) {
	b := buckets{
		pastes:    tx.Bucket(pasteBucket),
		expires:   tx.Bucket(expireBucket),
		created:   tx.Bucket(createdBucket),
		owners:    tx.Bucket(ownerBucket),
		users:     tx.Bucket(userBucket),
		usernames: tx.Bucket(usernameBucket),
	}
	if b.pastes == nil || b.expires == nil || b.created == nil || b.owners == nil || b.users == nil || b.usernames == nil {
		return b, errBuckets
	}
	return b, nil
}

// CreatePaste persists a new paste entry.
func (s *Store) CreatePaste(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Normalize timestamps to UTC for consistency.
	paste.CreatedAt = paste.CreatedAt.UTC()
	paste.ExpiresAt = paste.ExpiresAt.UTC()

	data, err := json.Marshal(paste)
	if err != nil {
		return errors.Wrap(err, "marshal paste")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := open(tx)
		if err != nil {
			return err
		}
		if b.pastes.Get([]byte(paste.ID)) != nil {
			return storage.ErrDuplicateID
		}
		if err := b.pastes.Put([]byte(paste.ID), data); err != nil {
			return errors.Wrap(err, "save paste")
		}
		return putIndexes(b, paste)
	})
}

// GetPaste retrieves a paste by id.
func (s *Store) GetPaste(ctx context.Context, id string) (*storage.Paste, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out *storage.Paste
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := open(tx)
		if err != nil {
			return err
		}
		paste, err := getPaste(b, id)
		if err != nil {
			return err
		}
		out = paste
		return nil
	})
	return out, err
}

// DeletePaste removes a paste and its index entries.
func (s *Store) DeletePaste(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := open(tx)
		if err != nil {
			return err
		}
		paste, err := getPaste(b, id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return deletePaste(b, paste)
	})
}

// IncrementViews bumps the view counter. Bolt serializes writers, so the
// read-modify-write inside one transaction cannot lose updates.
func (s *Store) IncrementViews(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := open(tx)
		if err != nil {
			return err
		}
		paste, err := getPaste(b, id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		paste.ViewCount++
		data, err := json.Marshal(paste)
		if err != nil {
			return errors.Wrap(err, "marshal paste")
		}
		return errors.Wrap(b.pastes.Put([]byte(id), data), "save paste")
	})
}

// ListByOwner returns the newest pastes owned by ownerID.
func (s *Store) ListByOwner(ctx context.Context, ownerID int64, limit int) ([]*storage.Paste, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := u64(uint64(ownerID))
	var out []*storage.Paste
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := open(tx)
		if err != nil {
			return err
		}
		cursor := b.owners.Cursor()
		key, val := lastWithPrefix(cursor, prefix)
		for ; key != nil && bytes.HasPrefix(key, prefix); key, val = cursor.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			paste, err := getPaste(b, string(val))
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				return err
			}
			out = append(out, paste)
		}
		return nil
	})
	return out, err
}

// ListPublic returns the newest unprotected pastes not expired at now.
func (s *Store) ListPublic(ctx context.Context, now time.Time, limit int) ([]*storage.Paste, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now = now.UTC()
	var out []*storage.Paste
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := open(tx)
		if err != nil {
			return err
		}
		cursor := b.created.Cursor()
		for key, val := cursor.Last(); key != nil; key, val = cursor.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			paste, err := getPaste(b, string(val))
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				return err
			}
			if paste.Protected() || paste.ExpiredAt(now) {
				continue
			}
			out = append(out, paste)
		}
		return nil
	})
	return out, err
}

// DeleteExpired removes all pastes with expiry before or equal to the provided time.
func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	cutoff := toTimestamp(before.UTC())
	var removed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := open(tx)
		if err != nil {
			return err
		}

		var expired []string
		cursor := b.expires.Cursor()
		for key, val := cursor.First(); key != nil; key, val = cursor.Next() {
			if binary.BigEndian.Uint64(key[:8]) > cutoff {
				break
			}
			expired = append(expired, string(val))
		}
		for _, id := range expired {
			paste, err := getPaste(b, id)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				return err
			}
			if err := deletePaste(b, paste); err != nil {
				return errors.Wrapf(err, "delete expired paste %s", id)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

type userRecord struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateUser inserts a user with the next sequence number as its id.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string, createdAt time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var id int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := open(tx)
		if err != nil {
			return err
		}
		if b.usernames.Get([]byte(username)) != nil {
			return storage.ErrConflict
		}
		seq, err := b.users.NextSequence()
		if err != nil {
			return errors.Wrap(err, "next user id")
		}
		id = int64(seq)
		data, err := json.Marshal(userRecord{
			ID:           id,
			Username:     username,
			PasswordHash: passwordHash,
			CreatedAt:    createdAt.UTC(),
		})
		if err != nil {
			return errors.Wrap(err, "marshal user")
		}
		if err := b.users.Put(u64(seq), data); err != nil {
			return errors.Wrap(err, "save user")
		}
		return errors.Wrap(b.usernames.Put([]byte(username), u64(seq)), "index username")
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetUserByID fetches a user by id.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*storage.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, storage.ErrNotFound
	}

	var out *storage.User
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := open(tx)
		if err != nil {
			return err
		}
		out, err = getUser(b, u64(uint64(id)))
		return err
	})
	return out, err
}

// GetUserByUsername fetches a user by exact username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*storage.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out *storage.User
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := open(tx)
		if err != nil {
			return err
		}
		key := b.usernames.Get([]byte(username))
		if key == nil {
			return storage.ErrNotFound
		}
		out, err = getUser(b, key)
		return err
	})
	return out, err
}

// Ping verifies the database is open.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		_, err := open(tx)
		return err
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func getPaste(b buckets, id string) (*storage.Paste, error) {
	raw := b.pastes.Get([]byte(id))
	if raw == nil {
		return nil, storage.ErrNotFound
	}
	var paste storage.Paste
	if err := json.Unmarshal(raw, &paste); err != nil {
		return nil, errors.Wrap(err, "unmarshal paste")
	}
	return &paste, nil
}

func getUser(b buckets, key []byte) (*storage.User, error) {
	raw := b.users.Get(key)
	if raw == nil {
		return nil, storage.ErrNotFound
	}
	var rec userRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, errors.Wrap(err, "unmarshal user")
	}
	return &storage.User{
		ID:           rec.ID,
		Username:     rec.Username,
		PasswordHash: rec.PasswordHash,
		CreatedAt:    rec.CreatedAt,
	}, nil
}

func putIndexes(b buckets, paste *storage.Paste) error {
	if err := b.created.Put(timeKey(nil, paste.CreatedAt, paste.ID), []byte(paste.ID)); err != nil {
		return errors.Wrap(err, "index created")
	}
	if paste.HasExpiration() {
		if err := b.expires.Put(timeKey(nil, paste.ExpiresAt, paste.ID), []byte(paste.ID)); err != nil {
			return errors.Wrap(err, "index expiry")
		}
	}
	if paste.OwnerID != nil {
		if err := b.owners.Put(ownerKey(*paste.OwnerID, paste), []byte(paste.ID)); err != nil {
			return errors.Wrap(err, "index owner")
		}
	}
	return nil
}

func deletePaste(b buckets, paste *storage.Paste) error {
	if err := b.created.Delete(timeKey(nil, paste.CreatedAt, paste.ID)); err != nil {
		return errors.Wrap(err, "delete created index")
	}
	if paste.HasExpiration() {
		if err := b.expires.Delete(timeKey(nil, paste.ExpiresAt, paste.ID)); err != nil {
			return errors.Wrap(err, "delete expiry index")
		}
	}
	if paste.OwnerID != nil {
		if err := b.owners.Delete(ownerKey(*paste.OwnerID, paste)); err != nil {
			return errors.Wrap(err, "delete owner index")
		}
	}
	return errors.Wrap(b.pastes.Delete([]byte(paste.ID)), "delete paste")
}

// lastWithPrefix positions the cursor on the greatest key starting with the
// 8-byte prefix.
func lastWithPrefix(c *bolt.Cursor, prefix []byte) ([]byte, []byte) {
	next := u64(binary.BigEndian.Uint64(prefix) + 1)
	if key, _ := c.Seek(next); key == nil {
		return c.Last()
	}
	return c.Prev()
}

func ownerKey(ownerID int64, paste *storage.Paste) []byte {
	return timeKey(u64(uint64(ownerID)), paste.CreatedAt, paste.ID)
}

func timeKey(prefix []byte, t time.Time, id string) []byte {
	key := make([]byte, len(prefix)+8+len(id))
	n := copy(key, prefix)
	binary.BigEndian.PutUint64(key[n:], toTimestamp(t))
	copy(key[n+8:], id)
	return key
}

func u64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func toTimestamp(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UTC().UnixNano())
}

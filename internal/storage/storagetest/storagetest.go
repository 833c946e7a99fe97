// Package storagetest holds the behaviour every storage.Store backend must share.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"pastebox/internal/storage"
)

// Factory opens a fresh, empty store for a single subtest.
type Factory func(t *testing.T) storage.Store

// Run exercises a backend against the storage contract.
func Run(t *testing.T, open Factory) {
	t.Run("PasteCRUD", func(t *testing.T) { testPasteCRUD(t, open(t)) })
	t.Run("DuplicateID", func(t *testing.T) { testDuplicateID(t, open(t)) })
	t.Run("DeleteIsIdempotent", func(t *testing.T) { testDeleteIdempotent(t, open(t)) })
	t.Run("IncrementViews", func(t *testing.T) { testIncrementViews(t, open(t)) })
	t.Run("DeleteExpired", func(t *testing.T) { testDeleteExpired(t, open(t)) })
	t.Run("ListByOwner", func(t *testing.T) { testListByOwner(t, open(t)) })
	t.Run("ListPublic", func(t *testing.T) { testListPublic(t, open(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, open(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, open(t).Ping(context.Background())) })
}

// Base is a fixed reference instant used by the suite.
var Base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func owner(id int64) *int64 { return &id }

func newPaste(id string, created time.Time) *storage.Paste {
	return &storage.Paste{
		ID:        id,
		Content:   "content of " + id,
		Language:  "plaintext",
		CreatedAt: created,
	}
}

func ids(pastes []*storage.Paste) []string {
	out := make([]string, 0, len(pastes))
	for _, p := range pastes {
		out = append(out, p.ID)
	}
	return out
}

func testPasteCRUD(t *testing.T, store storage.Store) {
	ctx := context.Background()

	paste := &storage.Paste{
		ID:           "abc12345",
		Content:      "hello",
		Language:     "go",
		PasswordHash: "$2a$10$hash",
		CreatedAt:    Base,
		ExpiresAt:    Base.Add(time.Hour),
		OwnerID:      owner(7),
	}
	require.NoError(t, store.CreatePaste(ctx, paste))

	out, err := store.GetPaste(ctx, "abc12345")
	require.NoError(t, err)
	require.Equal(t, "hello", out.Content)
	require.Equal(t, "go", out.Language)
	require.Equal(t, "$2a$10$hash", out.PasswordHash)
	require.True(t, out.CreatedAt.Equal(Base))
	require.True(t, out.ExpiresAt.Equal(Base.Add(time.Hour)))
	require.EqualValues(t, 0, out.ViewCount)
	require.NotNil(t, out.OwnerID)
	require.EqualValues(t, 7, *out.OwnerID)

	anon := newPaste("anon0001", Base)
	require.NoError(t, store.CreatePaste(ctx, anon))
	out, err = store.GetPaste(ctx, "anon0001")
	require.NoError(t, err)
	require.Nil(t, out.OwnerID)
	require.False(t, out.HasExpiration())
	require.False(t, out.Protected())

	require.NoError(t, store.DeletePaste(ctx, "abc12345"))
	_, err = store.GetPaste(ctx, "abc12345")
	require.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
}

func testDuplicateID(t *testing.T, store storage.Store) {
	ctx := context.Background()

	require.NoError(t, store.CreatePaste(ctx, newPaste("dupe0001", Base)))
	second := newPaste("dupe0001", Base.Add(time.Minute))
	second.Content = "other"
	err := store.CreatePaste(ctx, second)
	require.True(t, errors.Is(err, storage.ErrDuplicateID), "got %v", err)

	out, err := store.GetPaste(ctx, "dupe0001")
	require.NoError(t, err)
	require.Equal(t, "content of dupe0001", out.Content)
}

func testDeleteIdempotent(t *testing.T, store storage.Store) {
	ctx := context.Background()

	require.NoError(t, store.DeletePaste(ctx, "missing1"))
	require.NoError(t, store.CreatePaste(ctx, newPaste("gone0001", Base)))
	require.NoError(t, store.DeletePaste(ctx, "gone0001"))
	require.NoError(t, store.DeletePaste(ctx, "gone0001"))
}

func testIncrementViews(t *testing.T, store storage.Store) {
	ctx := context.Background()

	require.NoError(t, store.CreatePaste(ctx, newPaste("views001", Base)))

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.IncrementViews(ctx, "views001")
		}()
	}
	wg.Wait()

	out, err := store.GetPaste(ctx, "views001")
	require.NoError(t, err)
	require.GreaterOrEqual(t, out.ViewCount, int64(1))
	require.LessOrEqual(t, out.ViewCount, int64(workers))

	require.NoError(t, store.IncrementViews(ctx, "missing1"))
}

func testDeleteExpired(t *testing.T, store storage.Store) {
	ctx := context.Background()

	active := newPaste("alive001", Base)
	active.ExpiresAt = Base.Add(time.Hour)
	expired := newPaste("dead0001", Base)
	expired.ExpiresAt = Base.Add(-time.Minute)
	boundary := newPaste("edge0001", Base)
	boundary.ExpiresAt = Base
	forever := newPaste("never001", Base)

	for _, p := range []*storage.Paste{active, expired, boundary, forever} {
		require.NoError(t, store.CreatePaste(ctx, p))
	}

	removed, err := store.DeleteExpired(ctx, Base)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	removed, err = store.DeleteExpired(ctx, Base)
	require.NoError(t, err)
	require.Equal(t, 0, removed)

	for _, id := range []string{"dead0001", "edge0001"} {
		_, err := store.GetPaste(ctx, id)
		require.True(t, errors.Is(err, storage.ErrNotFound), "%s: %v", id, err)
	}
	for _, id := range []string{"alive001", "never001"} {
		_, err := store.GetPaste(ctx, id)
		require.NoError(t, err, id)
	}
}

func testListByOwner(t *testing.T, store storage.Store) {
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		p := newPaste(fmt.Sprintf("own%05d", i), Base.Add(time.Duration(i)*time.Minute))
		p.OwnerID = owner(1)
		require.NoError(t, store.CreatePaste(ctx, p))
	}
	other := newPaste("other001", Base.Add(time.Hour))
	other.OwnerID = owner(2)
	require.NoError(t, store.CreatePaste(ctx, other))
	require.NoError(t, store.CreatePaste(ctx, newPaste("anon0001", Base.Add(2*time.Hour))))

	got, err := store.ListByOwner(ctx, 1, 50)
	require.NoError(t, err)
	require.Equal(t, []string{"own00004", "own00003", "own00002", "own00001", "own00000"}, ids(got))

	got, err = store.ListByOwner(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"own00004", "own00003"}, ids(got))

	got, err = store.ListByOwner(ctx, 2, 50)
	require.NoError(t, err)
	require.Equal(t, []string{"other001"}, ids(got))

	got, err = store.ListByOwner(ctx, 3, 50)
	require.NoError(t, err)
	require.Empty(t, got)
}

func testListPublic(t *testing.T, store storage.Store) {
	ctx := context.Background()

	plain := newPaste("plain001", Base)
	locked := newPaste("locked01", Base.Add(time.Minute))
	locked.PasswordHash = "$2a$10$hash"
	stale := newPaste("stale001", Base.Add(2*time.Minute))
	stale.ExpiresAt = Base.Add(5 * time.Minute)
	fresh := newPaste("fresh001", Base.Add(3*time.Minute))
	fresh.ExpiresAt = Base.Add(24 * time.Hour)
	owned := newPaste("owned001", Base.Add(4*time.Minute))
	owned.OwnerID = owner(9)

	for _, p := range []*storage.Paste{plain, locked, stale, fresh, owned} {
		require.NoError(t, store.CreatePaste(ctx, p))
	}

	got, err := store.ListPublic(ctx, Base.Add(10*time.Minute), 50)
	require.NoError(t, err)
	require.Equal(t, []string{"owned001", "fresh001", "plain001"}, ids(got))

	got, err = store.ListPublic(ctx, Base.Add(10*time.Minute), 1)
	require.NoError(t, err)
	require.Equal(t, []string{"owned001"}, ids(got))

	got, err = store.ListPublic(ctx, Base.Add(time.Minute), 50)
	require.NoError(t, err)
	require.Equal(t, []string{"owned001", "fresh001", "stale001", "plain001"}, ids(got))
}

func testUsers(t *testing.T, store storage.Store) {
	ctx := context.Background()

	id, err := store.CreateUser(ctx, "alice", "hash-a", Base)
	require.NoError(t, err)
	require.Positive(t, id)

	id2, err := store.CreateUser(ctx, "Alice", "hash-b", Base)
	require.NoError(t, err, "usernames are case-sensitive")
	require.NotEqual(t, id, id2)

	_, err = store.CreateUser(ctx, "alice", "hash-c", Base)
	require.True(t, errors.Is(err, storage.ErrConflict), "got %v", err)

	byName, err := store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, id, byName.ID)
	require.Equal(t, "hash-a", byName.PasswordHash)
	require.True(t, byName.CreatedAt.Equal(Base))

	byID, err := store.GetUserByID(ctx, id2)
	require.NoError(t, err)
	require.Equal(t, "Alice", byID.Username)

	_, err = store.GetUserByUsername(ctx, "bob")
	require.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
	_, err = store.GetUserByID(ctx, 9999)
	require.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
}

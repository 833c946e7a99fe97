package paste

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"pastebox/internal/storage"
	"pastebox/internal/storage/sqlitestore"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	store, err := sqlitestore.Open(filepath.Join(t.TempDir(), "paste.db"), 1)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newService(t *testing.T, store storage.PasteStore, opts ...Option) (*Service, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(c.Now)}, opts...)
	return NewService(store, zerolog.Nop(), opts...), c
}

func ptr[T any](v T) *T { return &v }

func TestCreateAndViewWithoutPassword(t *testing.T) {
	svc, _ := newService(t, newStore(t))
	ctx := context.Background()

	id, err := svc.Create(ctx, CreateParams{Content: "hello", Language: "go"})
	require.NoError(t, err)
	require.Len(t, id, 8)

	view, err := svc.View(ctx, id, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "hello", view.Paste.Content)
	require.Equal(t, "go", view.Paste.Language)
	require.False(t, view.IsOwner)
	require.EqualValues(t, 1, view.Paste.ViewCount)
	require.False(t, view.Paste.HasExpiration())

	view, err = svc.View(ctx, id, nil, nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, view.Paste.ViewCount)
}

func TestPasswordGate(t *testing.T) {
	svc, _ := newService(t, newStore(t))
	ctx := context.Background()
	owner := ptr(int64(1))

	id, err := svc.Create(ctx, CreateParams{Content: "secret", Password: "pw123", OwnerID: owner})
	require.NoError(t, err)

	stored, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.NotEqual(t, "pw123", stored.PasswordHash)

	_, err = svc.View(ctx, id, nil, nil)
	require.True(t, errors.Is(err, ErrPasswordRequired), "got %v", err)

	_, err = svc.View(ctx, id, ptr(int64(2)), ptr("wrong"))
	require.True(t, errors.Is(err, ErrPasswordIncorrect), "got %v", err)

	_, err = svc.View(ctx, id, nil, ptr(""))
	require.True(t, errors.Is(err, ErrPasswordIncorrect), "got %v", err)

	view, err := svc.View(ctx, id, nil, ptr("pw123"))
	require.NoError(t, err)
	require.Equal(t, "secret", view.Paste.Content)
	require.False(t, view.IsOwner)

	view, err = svc.View(ctx, id, owner, nil)
	require.NoError(t, err)
	require.True(t, view.IsOwner)

	stored, err = svc.Get(ctx, id)
	require.NoError(t, err)
	require.EqualValues(t, 2, stored.ViewCount, "denied views are not counted")
}

func TestLazyExpiry(t *testing.T) {
	store := newStore(t)
	svc, clk := newService(t, store)
	ctx := context.Background()

	id, err := svc.Create(ctx, CreateParams{Content: "hello", Expiration: "1m"})
	require.NoError(t, err)

	stored, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, stored.ExpiresAt.Equal(clk.Now().Add(time.Minute)))

	_, err = svc.View(ctx, id, nil, nil)
	require.NoError(t, err)

	clk.Advance(61 * time.Second)
	_, err = svc.View(ctx, id, nil, nil)
	require.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	_, err = store.GetPaste(ctx, id)
	require.True(t, errors.Is(err, storage.ErrNotFound), "row should be gone, got %v", err)
}

func TestExpiryTokens(t *testing.T) {
	svc, clk := newService(t, newStore(t))
	ctx := context.Background()

	cases := map[string]time.Duration{
		"30m":   30 * time.Minute,
		"2d":    48 * time.Hour,
		"never": 0,
		"":      0,
		"5x":    0,
	}
	for token, want := range cases {
		id, err := svc.Create(ctx, CreateParams{Content: "x", Expiration: token})
		require.NoError(t, err, token)
		stored, err := svc.Get(ctx, id)
		require.NoError(t, err, token)
		if want == 0 {
			require.False(t, stored.HasExpiration(), token)
			continue
		}
		require.True(t, stored.ExpiresAt.Equal(clk.Now().Add(want)), token)
	}
}

func TestHugeExpiryKeepsPasteAlive(t *testing.T) {
	svc, clk := newService(t, newStore(t))
	ctx := context.Background()

	id, err := svc.Create(ctx, CreateParams{Content: "long lived", Expiration: "200000d"})
	require.NoError(t, err)

	stored, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, stored.ExpiresAt.After(clk.Now()), "stored expiry %s", stored.ExpiresAt)

	removed, err := svc.SweepExpired(ctx, clk.Now())
	require.NoError(t, err)
	require.Zero(t, removed)

	view, err := svc.View(ctx, id, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "long lived", view.Paste.Content)
}

func TestSweepExpiredIsIdempotent(t *testing.T) {
	svc, clk := newService(t, newStore(t))
	ctx := context.Background()

	for _, token := range []string{"10m", "10m", "1d", ""} {
		_, err := svc.Create(ctx, CreateParams{Content: "x", Expiration: token})
		require.NoError(t, err)
	}

	clk.Advance(time.Hour)
	removed, err := svc.SweepExpired(ctx, clk.Now())
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	removed, err = svc.SweepExpired(ctx, clk.Now())
	require.NoError(t, err)
	require.Equal(t, 0, removed)
}

func TestDeleteOwnership(t *testing.T) {
	svc, _ := newService(t, newStore(t))
	ctx := context.Background()
	alice, bob := ptr(int64(1)), ptr(int64(2))

	anon, err := svc.Create(ctx, CreateParams{Content: "anyone"})
	require.NoError(t, err)
	res, err := svc.Delete(ctx, anon, nil)
	require.NoError(t, err)
	require.Equal(t, Deleted, res)

	owned, err := svc.Create(ctx, CreateParams{Content: "mine", OwnerID: alice})
	require.NoError(t, err)

	res, err = svc.Delete(ctx, owned, bob)
	require.NoError(t, err)
	require.Equal(t, Forbidden, res)
	res, err = svc.Delete(ctx, owned, nil)
	require.NoError(t, err)
	require.Equal(t, Forbidden, res)

	res, err = svc.Delete(ctx, owned, alice)
	require.NoError(t, err)
	require.Equal(t, Deleted, res)

	res, err = svc.Delete(ctx, owned, alice)
	require.NoError(t, err)
	require.Equal(t, NotFound, res)
}

func TestListsApplyDefaults(t *testing.T) {
	svc, clk := newService(t, newStore(t))
	ctx := context.Background()
	owner := ptr(int64(3))

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, CreateParams{Content: "x", OwnerID: owner})
		require.NoError(t, err)
		clk.Advance(time.Second)
	}
	_, err := svc.Create(ctx, CreateParams{Content: "locked", Password: "secret1"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateParams{Content: "short", Expiration: "1m"})
	require.NoError(t, err)

	mine, err := svc.ListByOwner(ctx, *owner, 0)
	require.NoError(t, err)
	require.Len(t, mine, 3)
	require.True(t, mine[0].CreatedAt.After(mine[2].CreatedAt))

	public, err := svc.ListPublic(ctx, 0)
	require.NoError(t, err)
	require.Len(t, public, 4)

	clk.Advance(2 * time.Minute)
	public, err = svc.ListPublic(ctx, -1)
	require.NoError(t, err)
	require.Len(t, public, 3)
}

type sequenceIDs struct {
	ids []string
	n   int
}

func (s *sequenceIDs) Generate(context.Context) (string, error) {
	out := s.ids[s.n%len(s.ids)]
	s.n++
	return out, nil
}

func TestCreateRetriesOnCollision(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreatePaste(ctx, &storage.Paste{ID: "taken001", Content: "x", CreatedAt: time.Now()}))

	gen := &sequenceIDs{ids: []string{"taken001", "taken001", "fresh001"}}
	svc, _ := newService(t, store, WithIDGenerator(gen))

	id, err := svc.Create(ctx, CreateParams{Content: "y"})
	require.NoError(t, err)
	require.Equal(t, "fresh001", id)
	require.Equal(t, 3, gen.n)

	stuck := &sequenceIDs{ids: []string{"taken001"}}
	svc, _ = newService(t, store, WithIDGenerator(stuck))
	_, err = svc.Create(ctx, CreateParams{Content: "z"})
	require.True(t, errors.Is(err, storage.ErrDuplicateID), "got %v", err)
	require.Equal(t, createAttempts, stuck.n)
}

type brokenCounter struct {
	storage.PasteStore
}

func (brokenCounter) IncrementViews(context.Context, string) error {
	return errors.New("disk full")
}

func TestViewIgnoresCounterFailure(t *testing.T) {
	store := newStore(t)
	svc, _ := newService(t, brokenCounter{store})
	ctx := context.Background()

	id, err := svc.Create(ctx, CreateParams{Content: "hello"})
	require.NoError(t, err)

	view, err := svc.View(ctx, id, nil, nil)
	require.NoError(t, err)
	require.EqualValues(t, 0, view.Paste.ViewCount)
}

func TestCreateRejectsUnhashablePassword(t *testing.T) {
	svc, _ := newService(t, newStore(t))

	long := make([]byte, 80)
	for i := range long {
		long[i] = 'a'
	}
	_, err := svc.Create(context.Background(), CreateParams{Content: "x", Password: string(long)})
	require.Error(t, err)
}

func TestDeleteResultString(t *testing.T) {
	require.Equal(t, "deleted", Deleted.String())
	require.Equal(t, "forbidden", Forbidden.String())
	require.Equal(t, "not_found", NotFound.String())
}

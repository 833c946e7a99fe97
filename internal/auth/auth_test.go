package auth

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"pastebox/internal/storage"
	"pastebox/internal/storage/sqlitestore"
)

func newService(t *testing.T, codec Codec) (*Service, *sqlitestore.Store) {
	t.Helper()
	store, err := sqlitestore.Open(filepath.Join(t.TempDir(), "auth.db"), 1)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewService(store, codec, zerolog.Nop()), store
}

// untouchable fails the test if registration reaches the store.
type untouchable struct {
	t *testing.T
}

func (u untouchable) CreateUser(context.Context, string, string, time.Time) (int64, error) {
	u.t.Fatal("CreateUser called")
	return 0, nil
}

func (u untouchable) GetUserByID(context.Context, int64) (*storage.User, error) {
	u.t.Fatal("GetUserByID called")
	return nil, nil
}

func (u untouchable) GetUserByUsername(context.Context, string) (*storage.User, error) {
	u.t.Fatal("GetUserByUsername called")
	return nil, nil
}

func TestRegisterValidationOrder(t *testing.T) {
	svc := NewService(untouchable{t}, nil, zerolog.Nop())
	ctx := context.Background()

	cases := []struct {
		name                        string
		username, password, confirm string
		want                        error
	}{
		{"short username wins", "ab", "x", "y", ErrUsernameTooShort},
		{"short password", "abc", "12345", "12345", ErrPasswordTooShort},
		{"mismatch", "abc", "123456", "123457", ErrPasswordMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.username, tc.password, tc.confirm)
			require.True(t, errors.Is(err, tc.want), "got %v", err)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			require.NotEmpty(t, ve.Message)
		})
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()

	id, err := svc.Register(ctx, "alice", "hunter22", "hunter22")
	require.NoError(t, err)
	require.Positive(t, id)

	stored, err := store.GetUserByID(ctx, id)
	require.NoError(t, err)
	require.NotEqual(t, "hunter22", stored.PasswordHash)

	_, err = svc.Register(ctx, "alice", "another1", "another1")
	require.True(t, errors.Is(err, ErrUsernameTaken), "got %v", err)

	user, err := svc.Login(ctx, "alice", "hunter22")
	require.NoError(t, err)
	require.Equal(t, id, user.ID)

	_, err = svc.Login(ctx, "alice", "wrong-pass")
	require.True(t, errors.Is(err, ErrInvalidCredentials))
	_, err = svc.Login(ctx, "nobody", "hunter22")
	require.True(t, errors.Is(err, ErrInvalidCredentials))
	require.Equal(t, "invalid credentials", err.Error())
	require.Equal(t, "Invalid username or password", InvalidCredentialsMessage)
}

func TestRegisterRejectsUnhashablePassword(t *testing.T) {
	svc, _ := newService(t, nil)
	long := strings.Repeat("p", 80)

	_, err := svc.Register(context.Background(), "carol", long, long)
	require.Error(t, err)
	var ve *ValidationError
	require.False(t, errors.As(err, &ve))
}

type racingStore struct {
	storage.UserStore
}

func (racingStore) GetUserByUsername(context.Context, string) (*storage.User, error) {
	return nil, storage.ErrNotFound
}

func (racingStore) CreateUser(context.Context, string, string, time.Time) (int64, error) {
	return 0, storage.ErrConflict
}

func TestRegisterConflictMapsToTaken(t *testing.T) {
	svc := NewService(racingStore{}, nil, zerolog.Nop())
	_, err := svc.Register(context.Background(), "dave", "secret1", "secret1")
	require.True(t, errors.Is(err, ErrUsernameTaken), "got %v", err)
}

func TestResolveSessionPlain(t *testing.T) {
	svc, _ := newService(t, PlainCodec{})
	ctx := context.Background()

	id, err := svc.Register(ctx, "erin", "secret1", "secret1")
	require.NoError(t, err)

	token, err := svc.IssueSession(id)
	require.NoError(t, err)
	user := svc.ResolveSession(ctx, token)
	require.NotNil(t, user)
	require.Equal(t, "erin", user.Username)

	for _, bad := range []string{"", "abc", "-1", "0", "999999"} {
		require.Nil(t, svc.ResolveSession(ctx, bad), bad)
	}
}

func TestResolveSessionSigned(t *testing.T) {
	codec, err := NewSignedCodec("pastebox_session", []byte("0123456789abcdef0123456789abcdef"), nil, 0)
	require.NoError(t, err)
	svc, _ := newService(t, codec)
	ctx := context.Background()

	id, err := svc.Register(ctx, "frank", "secret1", "secret1")
	require.NoError(t, err)

	token, err := svc.IssueSession(id)
	require.NoError(t, err)
	require.NotEqual(t, "1", token)

	user := svc.ResolveSession(ctx, token)
	require.NotNil(t, user)
	require.Equal(t, id, user.ID)

	plain, err := PlainCodec{}.Encode(id)
	require.NoError(t, err)
	require.Nil(t, svc.ResolveSession(ctx, plain), "unsigned ids are rejected")
	require.Nil(t, svc.ResolveSession(ctx, token+"x"))
}

func TestSignedCodecRejectsBadKeys(t *testing.T) {
	_, err := NewSignedCodec("s", nil, nil, 0)
	require.Error(t, err)
	_, err = NewSignedCodec("s", []byte("hash"), []byte("short"), 0)
	require.Error(t, err)
}

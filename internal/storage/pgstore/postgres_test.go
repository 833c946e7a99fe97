package pgstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pastebox/internal/storage"
	"pastebox/internal/storage/storagetest"
)

func freshStore(t *testing.T) storage.Store {
	t.Helper()
	if testPool == nil {
		t.Skip("postgres not available")
	}
	_, err := testPool.Exec(context.Background(), `TRUNCATE pastes, users RESTART IDENTITY`)
	require.NoError(t, err)
	return NewStore(testPool)
}

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, freshStore)
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := freshStore(t).(*Store)
	require.NoError(t, store.Migrate(context.Background()))
}

func TestOpenRejectsBadURL(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Open(ctx, "postgres://%zz", 1)
	require.Error(t, err)
}

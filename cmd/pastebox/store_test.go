package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"pastebox/internal/storage/boltstore"
	"pastebox/internal/storage/sqlitestore"
)

func TestOpenStoreBySchema(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := openStore(ctx, "sqlite:"+filepath.Join(dir, "a.db"), 1)
	require.NoError(t, err)
	require.IsType(t, &sqlitestore.Store{}, store)
	require.NoError(t, store.Close())

	store, err = openStore(ctx, "bolt:"+filepath.Join(dir, "b.db"), 1)
	require.NoError(t, err)
	require.IsType(t, &boltstore.Store{}, store)
	require.NoError(t, store.Close())

	_, err = openStore(ctx, "mysql://localhost/db", 1)
	require.Error(t, err)
}

func TestTrimSlashes(t *testing.T) {
	require.Equal(t, "./x.db", trimSlashes("//./x.db"))
	require.Equal(t, "/var/x.db", trimSlashes("/var/x.db"))
	require.Equal(t, "x.db", trimSlashes("x.db"))
}

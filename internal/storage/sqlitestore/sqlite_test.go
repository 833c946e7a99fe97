package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"pastebox/internal/storage"
	"pastebox/internal/storage/storagetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"), 2)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return openTemp(t) })
}

func TestSchemaIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	ctx := context.Background()

	store, err := Open(path, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.CreatePaste(ctx, &storage.Paste{ID: "keep0001", Content: "x", CreatedAt: storagetest.Base}); err != nil {
		t.Fatalf("create: %v", err)
	}
	store.Close()

	store, err = Open(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	if _, err := store.GetPaste(ctx, "keep0001"); err != nil {
		t.Fatalf("paste lost across reopen: %v", err)
	}
}

func TestDSNAppendsPragmas(t *testing.T) {
	if got := dsn("a.db"); got != "a.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)" {
		t.Fatalf("unexpected dsn %q", got)
	}
	if got := dsn("file:a.db?mode=rwc"); got != "file:a.db?mode=rwc&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)" {
		t.Fatalf("unexpected dsn %q", got)
	}
}

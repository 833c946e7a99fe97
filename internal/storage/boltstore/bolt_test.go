package boltstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"pastebox/internal/storage"
	"pastebox/internal/storage/storagetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return openTemp(t) })
}

func TestIndexesFollowDelete(t *testing.T) {
	store := openTemp(t)
	ctx := context.Background()

	owner := int64(4)
	paste := &storage.Paste{
		ID:        "idx00001",
		Content:   "x",
		CreatedAt: storagetest.Base,
		ExpiresAt: storagetest.Base.Add(time.Minute),
		OwnerID:   &owner,
	}
	if err := store.CreatePaste(ctx, paste); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.DeletePaste(ctx, paste.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	owned, err := store.ListByOwner(ctx, owner, 10)
	if err != nil {
		t.Fatalf("list owner: %v", err)
	}
	if len(owned) != 0 {
		t.Fatalf("expected owner index to be empty, got %d", len(owned))
	}
	removed, err := store.DeleteExpired(ctx, storagetest.Base.Add(time.Hour))
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected no stale expiry entries, removed %d", removed)
	}
}

func TestReopenKeepsUserSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seq.db")
	ctx := context.Background()

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	first, err := store.CreateUser(ctx, "alice", "h", storagetest.Base)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	store.Close()

	store, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	second, err := store.CreateUser(ctx, "bob", "h", storagetest.Base)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if second <= first {
		t.Fatalf("expected increasing ids, got %d then %d", first, second)
	}
}

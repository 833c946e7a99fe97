package main

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"pastebox/internal/storage"
	"pastebox/internal/storage/boltstore"
	"pastebox/internal/storage/pgstore"
	"pastebox/internal/storage/sqlitestore"
)

// openStore picks a backend from the database URL scheme:
//
//	sqlite:PATH, file:PATH       SQLite (modernc.org/sqlite)
//	bolt:PATH                    bbolt
//	postgres://, postgresql://   PostgreSQL (pgx)
func openStore(ctx context.Context, dbURL string, maxConns int) (storage.Store, error) {
	switch {
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		return pgstore.Open(ctx, dbURL, maxConns)
	case strings.HasPrefix(dbURL, "bolt:"):
		return boltstore.Open(trimSlashes(strings.TrimPrefix(dbURL, "bolt:")))
	case strings.HasPrefix(dbURL, "sqlite:"):
		return sqlitestore.Open(trimSlashes(strings.TrimPrefix(dbURL, "sqlite:")), maxConns)
	case strings.HasPrefix(dbURL, "file:"):
		return sqlitestore.Open(dbURL, maxConns)
	}
	return nil, errors.Errorf("unsupported database url %q", dbURL)
}

// trimSlashes turns sqlite://./x.db into ./x.db while keeping absolute paths.
func trimSlashes(path string) string {
	if strings.HasPrefix(path, "//") {
		return strings.TrimPrefix(path, "//")
	}
	return path
}

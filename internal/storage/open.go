package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Supported backends
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

var (
	_ Storage = (*SQLiteStorage)(nil)
	_ Storage = (*PostgresStorage)(nil)
)

// Open returns the store selected by backend. For SQLite dsn is a file path
// (a leading ~ expands to the home directory, parent directories are created);
// for Postgres it is a connection string.
func Open(ctx context.Context, backend, dsn string) (Storage, error) {
	switch strings.ToLower(backend) {
	case "", BackendSQLite:
		path, err := prepareSQLitePath(dsn)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStorage(path)
	case BackendPostgres, "postgresql":
		if dsn == "" {
			return nil, fmt.Errorf("postgres backend requires a connection string")
		}
		return NewPostgresStorage(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

func prepareSQLitePath(path string) (string, error) {
	if path == "" {
		return ":memory:", nil
	}
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path, nil
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return path, nil
}

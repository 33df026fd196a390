package storage

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresMigrations contains all Postgres migrations in order
var PostgresMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      pgMigrationV1Up,
		Down:    pgMigrationV1Down,
	},
	{
		Version: "1.1.0",
		Up:      pgMigrationV11Up,
		Down:    pgMigrationV11Down,
	},
}

const pgMigrationV1Up = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS profiles (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_profiles_username ON profiles (lower(username));

CREATE TABLE IF NOT EXISTS listings (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT '',
    listing_type TEXT NOT NULL,
    price DOUBLE PRECISION,
    user_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_listings_user ON listings (user_id);
CREATE INDEX IF NOT EXISTS idx_listings_category ON listings (category);
CREATE INDEX IF NOT EXISTS idx_listings_created ON listings (created_at DESC);

CREATE TABLE IF NOT EXISTS listing_embeddings (
    listing_id TEXT PRIMARY KEY REFERENCES listings (id) ON DELETE CASCADE,
    embedding vector NOT NULL,
    dimension INTEGER NOT NULL,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE OR REPLACE FUNCTION match_listings(query_embedding vector, match_threshold float8, match_count int)
RETURNS TABLE (id text, similarity float8)
LANGUAGE sql STABLE AS $$
    SELECT e.listing_id, 1 - (e.embedding <=> query_embedding)
    FROM listing_embeddings e
    WHERE e.dimension = vector_dims(query_embedding)
      AND 1 - (e.embedding <=> query_embedding) >= match_threshold
    ORDER BY e.embedding <=> query_embedding, e.listing_id
    LIMIT match_count;
$$;

CREATE OR REPLACE FUNCTION similar_listings(target_id text, match_threshold float8, match_count int)
RETURNS TABLE (id text, similarity float8)
LANGUAGE sql STABLE AS $$
    SELECT e.listing_id, 1 - (e.embedding <=> src.embedding)
    FROM listing_embeddings e
    JOIN listing_embeddings src ON src.listing_id = target_id
    WHERE e.listing_id <> target_id
      AND e.dimension = src.dimension
      AND 1 - (e.embedding <=> src.embedding) >= match_threshold
    ORDER BY e.embedding <=> src.embedding, e.listing_id
    LIMIT match_count;
$$;
`

const pgMigrationV1Down = `
DROP FUNCTION IF EXISTS similar_listings(text, float8, int);
DROP FUNCTION IF EXISTS match_listings(vector, float8, int);
DROP TABLE IF EXISTS listing_embeddings;
DROP TABLE IF EXISTS listings;
DROP TABLE IF EXISTS profiles;
`

const pgMigrationV11Up = `
CREATE TABLE IF NOT EXISTS chat_sessions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_sessions_user ON chat_sessions (user_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS chat_messages (
    id BIGSERIAL PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES chat_sessions (id) ON DELETE CASCADE,
    sender TEXT NOT NULL CHECK (sender IN ('user', 'bot')),
    text TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages (session_id, id);
`

const pgMigrationV11Down = `
DROP TABLE IF EXISTS chat_messages;
DROP TABLE IF EXISTS chat_sessions;
`

// ApplyPostgresMigrations runs all pending Postgres migrations
func ApplyPostgresMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("failed to create schema_version: %w", err)
	}

	currentVersion, err := currentPostgresSchemaVersion(ctx, pool)
	if err != nil {
		return err
	}

	for _, migration := range PostgresMigrations {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}
		if !currentVersion.LessThan(migrationVersion) {
			continue
		}

		if _, err := pool.Exec(ctx, migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
		if _, err := pool.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}
		currentVersion = migrationVersion
	}
	return nil
}

func currentPostgresSchemaVersion(ctx context.Context, pool *pgxpool.Pool) (*semver.Version, error) {
	rows, err := pool.Query(ctx, `SELECT version FROM schema_version`)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer rows.Close()

	return highestVersion(rows)
}

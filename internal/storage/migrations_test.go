package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMigrations_Idempotent(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, ApplyMigrations(ctx, s.db))

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&count))
	assert.Equal(t, len(AllMigrations), count)

	version, err := currentSchemaVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version.String())
}

func TestRollbackMigration(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, RollbackMigration(ctx, s.db))
	version, err := currentSchemaVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", version.String())

	var name string
	err = s.db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='chat_sessions'").Scan(&name)
	assert.Error(t, err, "chat tables should be dropped")

	require.NoError(t, RollbackMigration(ctx, s.db))
	version, err = currentSchemaVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0", version.String())

	assert.Error(t, RollbackMigration(ctx, s.db))

	// Reapplying from scratch restores the full schema
	require.NoError(t, ApplyMigrations(ctx, s.db))
	version, err = currentSchemaVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version.String())
}

func TestMigrationVersionsAligned(t *testing.T) {
	require.Equal(t, len(AllMigrations), len(PostgresMigrations))
	for i := range AllMigrations {
		assert.Equal(t, AllMigrations[i].Version, PostgresMigrations[i].Version)
	}
	assert.Equal(t, CurrentSchemaVersion, AllMigrations[len(AllMigrations)-1].Version)
}

package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenWithMigrations(t *testing.T) {
	t.Run("opens database and runs migrations", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		db, err := OpenWithMigrations(dbPath, nil)
		require.NoError(t, err)
		require.NotNil(t, db)
		defer db.Close()

		var exists int
		err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_migrations'").Scan(&exists)
		require.NoError(t, err)
		assert.Equal(t, 1, exists, "schema_migrations table should exist after migrations")

		err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='jobs'").Scan(&exists)
		require.NoError(t, err)
		assert.Equal(t, 1, exists, "jobs table should exist after migrations")
	})

	t.Run("is idempotent", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		db, err := OpenWithMigrations(dbPath, nil)
		require.NoError(t, err)
		db.Close()

		// Second open re-checks every migration and skips applied ones
		db, err = OpenWithMigrations(dbPath, nil)
		require.NoError(t, err)
		defer db.Close()

		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, count, 2)
	})

	t.Run("records applied versions", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		db, err := OpenWithMigrations(dbPath, nil)
		require.NoError(t, err)
		defer db.Close()

		var applied bool
		err = db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = '001')").Scan(&applied)
		require.NoError(t, err)
		assert.True(t, applied, "migration 001 should be recorded")
	})
}

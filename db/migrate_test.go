package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations(t *testing.T) {
	list, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, list)
	assert.Equal(t, "000", list[0].Version, "schema_migrations must be created first")
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].File, list[i].File)
	}
}

func TestOpenSQLiteWithMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := OpenSQLiteWithMigrations(dbPath, nil)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"schema_migrations", "crates", "versions"} {
		var n int
		err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "table %s should exist", table)
	}
}

func TestMigrate(t *testing.T) {
	t.Run("records every migration", func(t *testing.T) {
		db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		applied, err := MigrateContext(context.Background(), db, nil)
		require.NoError(t, err)

		list, err := Migrations()
		require.NoError(t, err)
		assert.Equal(t, len(list), applied)

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
		assert.Equal(t, len(list), count)
	})

	t.Run("is idempotent", func(t *testing.T) {
		db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, nil))

		applied, err := MigrateContext(context.Background(), db, nil)
		require.NoError(t, err, "running migrations multiple times should be safe")
		assert.Zero(t, applied)
	})

	t.Run("versions defaults match the registry", func(t *testing.T) {
		db, err := OpenSQLiteWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		_, err = db.Exec("INSERT INTO crates (id, name) VALUES (1, 'serde')")
		require.NoError(t, err)
		_, err = db.Exec("INSERT INTO versions (id, crate_id, num) VALUES (10, 1, '1.0.0')")
		require.NoError(t, err)

		var features, categories string
		var edition *string
		err = db.QueryRow("SELECT features, categories, edition FROM versions WHERE id = 10").
			Scan(&features, &categories, &edition)
		require.NoError(t, err)
		assert.Equal(t, "{}", features)
		assert.Equal(t, "[]", categories)
		assert.Nil(t, edition)
	})

	t.Run("fails on a closed database", func(t *testing.T) {
		db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		db.Close()

		err = Migrate(db, nil)
		require.Error(t, err)
		assert.True(t, IsDatabaseClosed(err))
	})
}

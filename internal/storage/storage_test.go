package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSQLiteCreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "meta.db")

	db, err := NewSQLite(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for _, table := range []string{"entry", "file"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}

	var fk int
	require.NoError(t, db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	require.Equal(t, 1, fk)
}

func TestNewSQLiteIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.db")

	first, err := NewSQLite(context.Background(), path)
	require.NoError(t, err)
	first.Close()

	second, err := NewSQLite(context.Background(), path)
	require.NoError(t, err)
	second.Close()
}

func TestSQLiteDSNAppendsPragmas(t *testing.T) {
	require.Equal(t, "a.db?"+sqlitePragmas, sqliteDSN("a.db"))
	require.Equal(t, "file:a.db?mode=rwc&"+sqlitePragmas, sqliteDSN("file:a.db?mode=rwc"))
}

func TestMigrateRejectsUnknownDialect(t *testing.T) {
	_, err := migrationDir("oracle")
	require.Error(t, err)
}

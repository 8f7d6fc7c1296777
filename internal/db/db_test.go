package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/colorbook/internal/config"
)

func TestInit(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", ".colorbook")

	db, err := Init(base)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(filepath.Join(base, "colorbook.db"))
	require.NoError(t, err)

	for _, dir := range []string{base, filepath.Join(base, "exports"), filepath.Join(base, "audio")} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		require.True(t, info.IsDir(), dir)
		require.Equal(t, os.FileMode(0700), info.Mode().Perm(), dir)
	}

	mode, err := pragma(db, "journal_mode")
	require.NoError(t, err)
	require.Equal(t, "wal", mode)

	var table string
	require.NoError(t, db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='kv'").Scan(&table))
}

func TestInit_Reopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := Init(dir)
	require.NoError(t, err)
	_, err = db1.Exec(`INSERT INTO kv (key, value, updated_at) VALUES ('k', x'01', 0)`)
	require.NoError(t, err)
	db1.Close()

	db2, err := Init(dir)
	require.NoError(t, err)
	defer db2.Close()

	version, err := GetUserVersion(db2)
	require.NoError(t, err)
	require.Equal(t, CurrentSchemaVersion, version)

	var n int
	require.NoError(t, db2.QueryRow("SELECT COUNT(*) FROM kv").Scan(&n))
	require.Equal(t, 1, n, "reopening must not rerun migrations")
}

func TestInit_RefusesNewerSchema(t *testing.T) {
	dir := t.TempDir()

	db, err := Init(dir)
	require.NoError(t, err)
	require.NoError(t, SetUserVersion(db, CurrentSchemaVersion+1))
	db.Close()

	_, err = Init(dir)
	require.ErrorContains(t, err, "newer than supported")
}

func TestConfigurePool(t *testing.T) {
	db, err := Init(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	ConfigurePool(db, nil)
	ConfigurePool(db, &config.Config{DBMaxOpenConns: 1, DBMaxIdleConns: 1})
	require.Equal(t, 1, db.Stats().MaxOpenConnections)
}

package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectMigratesOnce(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested", "data")

	db, err := Connect(ctx, dir, nil)
	require.NoError(t, err)

	for _, table := range []string{"app_settings", "window_states", "secure_prefs", "vfs_nodes", "packages"} {
		var name string
		err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}

	var root int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT is_dir FROM vfs_nodes WHERE path = '/'`).Scan(&root))
	assert.Equal(t, 1, root)
	require.NoError(t, db.Close())

	db, err = Connect(ctx, dir, nil)
	require.NoError(t, err)
	defer db.Close()
	applied, err := Migrate(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, applied)
}

func TestConnectRequiresDir(t *testing.T) {
	_, err := Connect(context.Background(), "", nil)
	assert.Error(t, err)
}

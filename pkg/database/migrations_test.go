package database

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func memoryDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Driver: DriverSQLite, Path: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrator_EmbeddedSchema(t *testing.T) {
	ctx := context.Background()
	db := memoryDB(t)
	m := NewMigrator(db, zap.NewNop())

	n, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	version, err := m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, version)

	n, err = m.Up(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM workflows").Scan(&count))
}

func TestMigrator_DetectsEditedMigration(t *testing.T) {
	ctx := context.Background()
	db := memoryDB(t)
	fsys := fstest.MapFS{
		"m/001_first.sql": {Data: []byte("CREATE TABLE a (id INTEGER);")},
	}
	m := NewMigratorFS(db, fsys, "m", zap.NewNop())
	_, err := m.Up(ctx)
	require.NoError(t, err)

	fsys["m/001_first.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE a (id INTEGER, name TEXT);")}
	fsys["m/002_second.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE b (id INTEGER);")}
	_, err = m.Up(ctx)
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	version, err := m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestMigrator_FailedMigrationRollsBack(t *testing.T) {
	ctx := context.Background()
	db := memoryDB(t)
	fsys := fstest.MapFS{
		"m/001_ok.sql":     {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"m/002_broken.sql": {Data: []byte("CREATE TABLE b (id INTEGER); NOT SQL;")},
	}
	m := NewMigratorFS(db, fsys, "m", zap.NewNop())

	n, err := m.Up(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "002_broken")
	assert.Equal(t, 1, n)

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "broken", pending[0].Name)
}

func TestMigrator_BadFileNames(t *testing.T) {
	ctx := context.Background()
	db := memoryDB(t)

	_, err := NewMigratorFS(db, fstest.MapFS{
		"m/init.sql": {Data: []byte("SELECT 1;")},
	}, "m", zap.NewNop()).Up(ctx)
	assert.ErrorContains(t, err, "positive version")

	_, err = NewMigratorFS(db, fstest.MapFS{
		"m/001_a.sql": {Data: []byte("SELECT 1;")},
		"m/1_b.sql":   {Data: []byte("SELECT 1;")},
	}, "m", zap.NewNop()).Up(ctx)
	assert.ErrorContains(t, err, "used by")
}

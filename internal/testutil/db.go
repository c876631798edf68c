// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/garyjia/excise-workflow/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/excise-workflow/pkg/database"
)

// NewDB opens a private in-memory SQLite database with every migration
// applied. The database is closed when the test ends.
func NewDB(t testing.TB) *sqldb.DB {
	t.Helper()

	logger := zap.NewNop()
	db, err := database.New(database.Config{
		Driver: database.DriverSQLite,
		Path:   ":memory:",
	}, logger)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := database.NewMigrator(db, logger).Up(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return sqldb.NewDB(db.DB, sqldb.SQLite, logger)
}

// Logger returns a logger that writes through t.Log
func Logger(t testing.TB) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
}

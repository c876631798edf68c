package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/domain/workflow"
)

func TestDialect_Rebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		query   string
		want    string
	}{
		{"sqlite untouched", SQLite, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{"postgres numbered", Postgres, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{"postgres skips literals", Postgres, "SELECT '?' FROM t WHERE a = ?", "SELECT '?' FROM t WHERE a = $1"},
		{"no placeholders", Postgres, "SELECT 1", "SELECT 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dialect.Rebind(tt.query); got != tt.want {
				t.Errorf("Rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)

	d, err = ParseDialect("pgx")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)
	assert.Equal(t, " FOR UPDATE", d.LockClause())
	assert.Empty(t, SQLite.LockClause())

	_, err = ParseDialect("mysql")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantConflict bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, true},
		{"sqlite locked", fmt.Errorf("wrapped: %w", sqlite3.Error{Code: sqlite3.ErrLocked}), true},
		{"sqlite constraint", sqlite3.Error{Code: sqlite3.ErrConstraint}, false},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, true},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"pg lock timeout", &pgconn.PgError{Code: "55P03"}, true},
		{"pg unique", &pgconn.PgError{Code: "23505"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			assert.Equal(t, tt.wantConflict, errors.Is(got, workflow.ErrStoreConflict))
		})
	}
}

func TestConstraintHelpers(t *testing.T) {
	assert.True(t, IsUniqueViolation(sqlite3.Error{ExtendedCode: sqlite3.ErrConstraintUnique}))
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsForeignKeyViolation(sqlite3.Error{ExtendedCode: sqlite3.ErrConstraintForeignKey}))
	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("x")))
	assert.True(t, IsNoRows(fmt.Errorf("get: %w", sql.ErrNoRows)))
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite3", "file::memory:?_txlock=immediate")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	_, err = sqlDB.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)

	return NewDB(sqlDB, SQLite, zap.NewNop())
}

func countItems(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM items`).Scan(&n))
	return n
}

func TestDB_WithTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		db := openTestDB(t)
		err := db.WithTransaction(ctx, func(txCtx context.Context) error {
			assert.True(t, InTransaction(txCtx))
			_, err := db.ExecContext(txCtx, `INSERT INTO items (name) VALUES (?)`, "a")
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 1, countItems(t, db))
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db := openTestDB(t)
		boom := errors.New("boom")
		err := db.WithTransaction(ctx, func(txCtx context.Context) error {
			if _, err := db.ExecContext(txCtx, `INSERT INTO items (name) VALUES (?)`, "a"); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, countItems(t, db))
	})

	t.Run("nested call joins the outer transaction", func(t *testing.T) {
		db := openTestDB(t)
		boom := errors.New("boom")
		err := db.WithTransaction(ctx, func(outer context.Context) error {
			inner := db.WithTransaction(outer, func(innerCtx context.Context) error {
				_, err := db.ExecContext(innerCtx, `INSERT INTO items (name) VALUES (?)`, "inner")
				return err
			})
			require.NoError(t, inner)
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, countItems(t, db))
	})

	t.Run("rolls back and re-panics", func(t *testing.T) {
		db := openTestDB(t)
		assert.Panics(t, func() {
			_ = db.WithTransaction(ctx, func(txCtx context.Context) error {
				_, _ = db.ExecContext(txCtx, `INSERT INTO items (name) VALUES (?)`, "a")
				panic("handler exploded")
			})
		})
		assert.Equal(t, 0, countItems(t, db))
	})

	t.Run("outside a transaction", func(t *testing.T) {
		assert.False(t, InTransaction(ctx))
	})
}

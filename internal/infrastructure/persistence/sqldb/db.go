package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/port"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const txKey contextKey = "tx"

// DB wraps sql.DB and implements port.TransactionManager. Its query methods
// run on the transaction carried by the context when there is one, and
// rebind "?" placeholders for the connection's dialect.
type DB struct {
	*sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// NewDB creates a new database wrapper
func NewDB(sqlDB *sql.DB, dialect Dialect, logger *zap.Logger) *DB {
	return &DB{
		DB:      sqlDB,
		dialect: dialect,
		logger:  logger,
	}
}

// Dialect returns the SQL dialect of the connection
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// WithTransaction implements port.TransactionManager.
// Nested calls join the outer transaction. Driver aborts caused by lock
// contention surface as workflow.ErrStoreConflict.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if tx := extractTx(ctx); tx != nil {
		return fn(ctx)
	}

	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return Classify(fmt.Errorf("failed to begin transaction: %w", err))
	}

	txCtx := context.WithValue(ctx, txKey, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return Classify(err)
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return Classify(fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

// InTransaction reports whether ctx carries an open transaction
func InTransaction(ctx context.Context) bool {
	return extractTx(ctx) != nil
}

// extractTx retrieves transaction from context if present
func extractTx(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// executor interface covers both *sql.DB and *sql.Tx
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// getExecutor returns appropriate executor (transaction or database)
func (db *DB) getExecutor(ctx context.Context) executor {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return db.DB
}

// ExecContext executes a statement on the context's transaction or the pool
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.getExecutor(ctx).ExecContext(ctx, db.dialect.Rebind(query), args...)
}

// QueryContext runs a query on the context's transaction or the pool
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.getExecutor(ctx).QueryContext(ctx, db.dialect.Rebind(query), args...)
}

// QueryRowContext runs a single-row query on the context's transaction or the pool
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.getExecutor(ctx).QueryRowContext(ctx, db.dialect.Rebind(query), args...)
}

// Verify interface compliance
var _ port.TransactionManager = (*DB)(nil)

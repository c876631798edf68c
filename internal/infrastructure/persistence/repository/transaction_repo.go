package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/port"
	"github.com/garyjia/excise-workflow/internal/domain/entity"
	"github.com/garyjia/excise-workflow/internal/infrastructure/persistence/sqldb"
)

// TransactionLogRepository implements port.TransactionLogRepository
type TransactionLogRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewTransactionLogRepository creates a new audit log repository
func NewTransactionLogRepository(db *sqldb.DB, logger *zap.Logger) port.TransactionLogRepository {
	return &TransactionLogRepository{
		db:     db,
		logger: logger,
	}
}

// Append writes one audit entry. The row is immutable once written.
func (r *TransactionLogRepository) Append(ctx context.Context, txn *entity.Transaction) error {
	if txn.Timestamp.IsZero() {
		txn.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO workflow_transactions (
			app_type, app_id, performed_by, forwarded_by_role_id,
			forwarded_to_role_id, stage_id, remarks, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		txn.App.Type,
		txn.App.ID,
		txn.PerformedBy,
		nullInt64(txn.ForwardedByRoleID),
		nullInt64(txn.ForwardedToRoleID),
		nullInt64(txn.StageID),
		txn.Remarks,
		txn.Timestamp,
	).Scan(&txn.ID)
	if err != nil {
		r.logger.Error("Failed to append workflow transaction",
			zap.String("application", txn.App.String()),
			zap.Error(err))
		return fmt.Errorf("failed to append workflow transaction: %w", sqldb.Classify(err))
	}

	r.logger.Debug("Workflow transaction appended",
		zap.Int64("id", txn.ID),
		zap.String("application", txn.App.String()))
	return nil
}

// ListByApplication retrieves the audit trail of an application oldest first
func (r *TransactionLogRepository) ListByApplication(ctx context.Context, app entity.AppRef) ([]*entity.Transaction, error) {
	query := `
		SELECT id, app_type, app_id, performed_by, forwarded_by_role_id,
			forwarded_to_role_id, stage_id, remarks, timestamp
		FROM workflow_transactions
		WHERE app_type = ? AND app_id = ?
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, app.Type, app.ID)
	if err != nil {
		r.logger.Error("Failed to list workflow transactions",
			zap.String("application", app.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list workflow transactions: %w", sqldb.Classify(err))
	}
	defer rows.Close()

	var txns []*entity.Transaction
	for rows.Next() {
		var (
			t                    entity.Transaction
			byRole, toRole, stID sql.NullInt64
		)
		err := rows.Scan(
			&t.ID,
			&t.App.Type,
			&t.App.ID,
			&t.PerformedBy,
			&byRole,
			&toRole,
			&stID,
			&t.Remarks,
			&t.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow transaction: %w", err)
		}
		t.ForwardedByRoleID = int64Ptr(byRole)
		t.ForwardedToRoleID = int64Ptr(toRole)
		t.StageID = int64Ptr(stID)
		txns = append(txns, &t)
	}
	return txns, rows.Err()
}

// DeleteByApplication removes the audit trail of a deleted application
func (r *TransactionLogRepository) DeleteByApplication(ctx context.Context, app entity.AppRef) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM workflow_transactions WHERE app_type = ? AND app_id = ?`, app.Type, app.ID)
	if err != nil {
		r.logger.Error("Failed to delete workflow transactions",
			zap.String("application", app.String()),
			zap.Error(err))
		return fmt.Errorf("failed to delete workflow transactions: %w", sqldb.Classify(err))
	}
	return nil
}

// Verify interface compliance
var _ port.TransactionLogRepository = (*TransactionLogRepository)(nil)

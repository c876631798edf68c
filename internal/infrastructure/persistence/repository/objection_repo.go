package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/port"
	"github.com/garyjia/excise-workflow/internal/domain/entity"
	"github.com/garyjia/excise-workflow/internal/infrastructure/persistence/sqldb"
)

// ObjectionRepository implements port.ObjectionRepository
type ObjectionRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewObjectionRepository creates a new objection repository
func NewObjectionRepository(db *sqldb.DB, logger *zap.Logger) port.ObjectionRepository {
	return &ObjectionRepository{
		db:     db,
		logger: logger,
	}
}

const objectionColumns = `id, app_type, app_id, field_name, remarks, raised_by, stage_id,
	is_resolved, raised_on, resolved_on`

// Create records a new unresolved objection
func (r *ObjectionRepository) Create(ctx context.Context, obj *entity.Objection) error {
	if obj.RaisedOn.IsZero() {
		obj.RaisedOn = time.Now().UTC()
	}

	query := `
		INSERT INTO workflow_objections (
			app_type, app_id, field_name, remarks, raised_by, stage_id, is_resolved, raised_on
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		obj.App.Type,
		obj.App.ID,
		obj.FieldName,
		obj.Remarks,
		obj.RaisedBy,
		nullInt64(obj.StageID),
		obj.IsResolved,
		obj.RaisedOn,
	).Scan(&obj.ID)
	if err != nil {
		r.logger.Error("Failed to create objection",
			zap.String("application", obj.App.String()),
			zap.String("field", obj.FieldName),
			zap.Error(err))
		return fmt.Errorf("failed to create objection: %w", sqldb.Classify(err))
	}
	return nil
}

// ListByApplication retrieves every objection of an application oldest first
func (r *ObjectionRepository) ListByApplication(ctx context.Context, app entity.AppRef) ([]*entity.Objection, error) {
	query := `SELECT ` + objectionColumns + `
		FROM workflow_objections
		WHERE app_type = ? AND app_id = ?
		ORDER BY id ASC
	`
	return r.list(ctx, query, app)
}

// ListUnresolved retrieves the open objections of an application oldest first
func (r *ObjectionRepository) ListUnresolved(ctx context.Context, app entity.AppRef) ([]*entity.Objection, error) {
	query := `SELECT ` + objectionColumns + `
		FROM workflow_objections
		WHERE app_type = ? AND app_id = ? AND is_resolved = ?
		ORDER BY id ASC
	`
	return r.list(ctx, query, app, false)
}

func (r *ObjectionRepository) list(ctx context.Context, query string, app entity.AppRef, extra ...any) ([]*entity.Objection, error) {
	args := append([]any{app.Type, app.ID}, extra...)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list objections",
			zap.String("application", app.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list objections: %w", sqldb.Classify(err))
	}
	defer rows.Close()

	var objections []*entity.Objection
	for rows.Next() {
		var (
			o          entity.Objection
			stageID    sql.NullInt64
			resolvedOn sql.NullTime
		)
		err := rows.Scan(
			&o.ID,
			&o.App.Type,
			&o.App.ID,
			&o.FieldName,
			&o.Remarks,
			&o.RaisedBy,
			&stageID,
			&o.IsResolved,
			&o.RaisedOn,
			&resolvedOn,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan objection: %w", err)
		}
		o.StageID = int64Ptr(stageID)
		if resolvedOn.Valid {
			at := resolvedOn.Time
			o.ResolvedOn = &at
		}
		objections = append(objections, &o)
	}
	return objections, rows.Err()
}

// MarkResolved flags the given objections as resolved. Already resolved
// rows are left untouched.
func (r *ObjectionRepository) MarkResolved(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, true, at, false)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := `
		UPDATE workflow_objections
		SET is_resolved = ?, resolved_on = ?
		WHERE is_resolved = ? AND id IN (` + strings.Join(placeholders, ", ") + `)`

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to resolve objections", zap.Int64s("ids", ids), zap.Error(err))
		return fmt.Errorf("failed to resolve objections: %w", sqldb.Classify(err))
	}

	n, _ := res.RowsAffected()
	r.logger.Debug("Objections resolved", zap.Int64s("ids", ids), zap.Int64("rows", n))
	return nil
}

// DeleteByApplication removes the objections of a deleted application
func (r *ObjectionRepository) DeleteByApplication(ctx context.Context, app entity.AppRef) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM workflow_objections WHERE app_type = ? AND app_id = ?`, app.Type, app.ID)
	if err != nil {
		r.logger.Error("Failed to delete objections",
			zap.String("application", app.String()),
			zap.Error(err))
		return fmt.Errorf("failed to delete objections: %w", sqldb.Classify(err))
	}
	return nil
}

// Verify interface compliance
var _ port.ObjectionRepository = (*ObjectionRepository)(nil)

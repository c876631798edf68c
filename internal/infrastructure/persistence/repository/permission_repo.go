package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/port"
	"github.com/garyjia/excise-workflow/internal/domain/entity"
	"github.com/garyjia/excise-workflow/internal/infrastructure/persistence/sqldb"
)

// PermissionRepository implements port.PermissionRepository
type PermissionRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewPermissionRepository creates a new stage permission repository
func NewPermissionRepository(db *sqldb.DB, logger *zap.Logger) port.PermissionRepository {
	return &PermissionRepository{
		db:     db,
		logger: logger,
	}
}

// Create grants a role access to a stage
func (r *PermissionRepository) Create(ctx context.Context, p *entity.StagePermission) error {
	query := `
		INSERT INTO stage_permissions (stage_id, role_id, can_process)
		VALUES (?, ?, ?)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query, p.StageID, p.RoleID, p.CanProcess).Scan(&p.ID)
	if err != nil {
		r.logger.Error("Failed to create stage permission",
			zap.Int64("stage_id", p.StageID),
			zap.Int64("role_id", p.RoleID),
			zap.Error(err))
		return fmt.Errorf("failed to create stage permission: %w",
			constraintError(err, "permission", "stage and role must exist and be granted once"))
	}
	return nil
}

// GetByID retrieves a stage permission by ID
func (r *PermissionRepository) GetByID(ctx context.Context, id int64) (*entity.StagePermission, error) {
	query := `SELECT id, stage_id, role_id, can_process FROM stage_permissions WHERE id = ?`

	var p entity.StagePermission
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.StageID, &p.RoleID, &p.CanProcess)
	if sqldb.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get stage permission", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get stage permission: %w", sqldb.Classify(err))
	}
	return &p, nil
}

// ListByStage retrieves the permissions of one stage
func (r *PermissionRepository) ListByStage(ctx context.Context, stageID int64) ([]*entity.StagePermission, error) {
	query := `
		SELECT id, stage_id, role_id, can_process
		FROM stage_permissions
		WHERE stage_id = ?
		ORDER BY id ASC
	`
	return r.list(ctx, query, stageID)
}

// ListByWorkflow retrieves the permissions of every stage of a workflow
func (r *PermissionRepository) ListByWorkflow(ctx context.Context, workflowID int64) ([]*entity.StagePermission, error) {
	query := `
		SELECT p.id, p.stage_id, p.role_id, p.can_process
		FROM stage_permissions p
		JOIN stages s ON s.id = p.stage_id
		WHERE s.workflow_id = ?
		ORDER BY p.id ASC
	`
	return r.list(ctx, query, workflowID)
}

func (r *PermissionRepository) list(ctx context.Context, query string, arg int64) ([]*entity.StagePermission, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		r.logger.Error("Failed to list stage permissions", zap.Int64("key", arg), zap.Error(err))
		return nil, fmt.Errorf("failed to list stage permissions: %w", sqldb.Classify(err))
	}
	defer rows.Close()

	var perms []*entity.StagePermission
	for rows.Next() {
		var p entity.StagePermission
		if err := rows.Scan(&p.ID, &p.StageID, &p.RoleID, &p.CanProcess); err != nil {
			return nil, fmt.Errorf("failed to scan stage permission: %w", err)
		}
		perms = append(perms, &p)
	}
	return perms, rows.Err()
}

// Update changes the can_process bit of a permission
func (r *PermissionRepository) Update(ctx context.Context, p *entity.StagePermission) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE stage_permissions SET can_process = ? WHERE id = ?`, p.CanProcess, p.ID)
	if err != nil {
		r.logger.Error("Failed to update stage permission", zap.Int64("id", p.ID), zap.Error(err))
		return fmt.Errorf("failed to update stage permission: %w", sqldb.Classify(err))
	}
	return expectAffected(res, "permission", p.ID)
}

// Delete removes a permission
func (r *PermissionRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM stage_permissions WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete stage permission", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete stage permission: %w", sqldb.Classify(err))
	}
	return expectAffected(res, "permission", id)
}

// Verify interface compliance
var _ port.PermissionRepository = (*PermissionRepository)(nil)

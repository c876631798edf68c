package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/port"
	"github.com/garyjia/excise-workflow/internal/domain/entity"
	"github.com/garyjia/excise-workflow/internal/infrastructure/persistence/sqldb"
)

// StageRepository implements port.StageRepository
type StageRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewStageRepository creates a new stage repository
func NewStageRepository(db *sqldb.DB, logger *zap.Logger) port.StageRepository {
	return &StageRepository{
		db:     db,
		logger: logger,
	}
}

const stageColumns = `id, workflow_id, name, description, is_initial, is_final, kind, forward_to`

// Create creates a new stage
func (r *StageRepository) Create(ctx context.Context, stage *entity.Stage) error {
	query := `
		INSERT INTO stages (workflow_id, name, description, is_initial, is_final, kind, forward_to)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		stage.WorkflowID,
		stage.Name,
		stage.Description,
		stage.IsInitial,
		stage.IsFinal,
		stage.Kind,
		stage.ForwardTo,
	).Scan(&stage.ID)
	if err != nil {
		r.logger.Error("Failed to create stage",
			zap.Int64("workflow_id", stage.WorkflowID),
			zap.String("name", stage.Name),
			zap.Error(err))
		return fmt.Errorf("failed to create stage: %w",
			constraintError(err, "name", "stage name must be unique and the workflow may have one initial stage"))
	}
	return nil
}

// GetByID retrieves a stage by ID
func (r *StageRepository) GetByID(ctx context.Context, id int64) (*entity.Stage, error) {
	query := `SELECT ` + stageColumns + ` FROM stages WHERE id = ?`

	stage, err := scanStage(r.db.QueryRowContext(ctx, query, id))
	if sqldb.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get stage by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get stage: %w", sqldb.Classify(err))
	}
	return stage, nil
}

// ListByWorkflow retrieves the stages of a workflow ordered by id
func (r *StageRepository) ListByWorkflow(ctx context.Context, workflowID int64) ([]*entity.Stage, error) {
	query := `SELECT ` + stageColumns + ` FROM stages WHERE workflow_id = ? ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		r.logger.Error("Failed to list stages", zap.Int64("workflow_id", workflowID), zap.Error(err))
		return nil, fmt.Errorf("failed to list stages: %w", sqldb.Classify(err))
	}
	defer rows.Close()

	var stages []*entity.Stage
	for rows.Next() {
		stage, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		stages = append(stages, stage)
	}
	return stages, rows.Err()
}

// Update updates a stage; the owning workflow cannot change
func (r *StageRepository) Update(ctx context.Context, stage *entity.Stage) error {
	query := `
		UPDATE stages
		SET name = ?, description = ?, is_initial = ?, is_final = ?, kind = ?, forward_to = ?
		WHERE id = ?
	`

	res, err := r.db.ExecContext(ctx, query,
		stage.Name,
		stage.Description,
		stage.IsInitial,
		stage.IsFinal,
		stage.Kind,
		stage.ForwardTo,
		stage.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update stage", zap.Int64("id", stage.ID), zap.Error(err))
		return fmt.Errorf("failed to update stage: %w",
			constraintError(err, "name", "stage name must be unique and the workflow may have one initial stage"))
	}
	return expectAffected(res, "stage", stage.ID)
}

// Delete removes a stage. Stages still holding applications are protected.
func (r *StageRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM stages WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete stage", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete stage: %w", constraintError(err, "stage", "stage is the current stage of an application"))
	}
	return expectAffected(res, "stage", id)
}

func scanStage(row rowScanner) (*entity.Stage, error) {
	var s entity.Stage
	err := row.Scan(
		&s.ID,
		&s.WorkflowID,
		&s.Name,
		&s.Description,
		&s.IsInitial,
		&s.IsFinal,
		&s.Kind,
		&s.ForwardTo,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Verify interface compliance
var _ port.StageRepository = (*StageRepository)(nil)

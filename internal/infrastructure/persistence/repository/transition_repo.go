package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/port"
	"github.com/garyjia/excise-workflow/internal/domain/entity"
	"github.com/garyjia/excise-workflow/internal/infrastructure/persistence/sqldb"
)

// TransitionRepository implements port.TransitionRepository
type TransitionRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewTransitionRepository creates a new transition repository
func NewTransitionRepository(db *sqldb.DB, logger *zap.Logger) port.TransitionRepository {
	return &TransitionRepository{
		db:     db,
		logger: logger,
	}
}

const transitionColumns = `id, workflow_id, from_stage_id, to_stage_id, condition`

const transitionConstraintMsg = "both stages must belong to the workflow and the edge must be unique"

// Create creates a new transition
func (r *TransitionRepository) Create(ctx context.Context, t *entity.Transition) error {
	cond, err := encodeJSON(t.Condition)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO transitions (workflow_id, from_stage_id, to_stage_id, condition)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`

	err = r.db.QueryRowContext(ctx, query, t.WorkflowID, t.FromStageID, t.ToStageID, cond).Scan(&t.ID)
	if err != nil {
		r.logger.Error("Failed to create transition",
			zap.Int64("workflow_id", t.WorkflowID),
			zap.Int64("from_stage_id", t.FromStageID),
			zap.Int64("to_stage_id", t.ToStageID),
			zap.Error(err))
		return fmt.Errorf("failed to create transition: %w", constraintError(err, "transition", transitionConstraintMsg))
	}
	return nil
}

// GetByID retrieves a transition by ID
func (r *TransitionRepository) GetByID(ctx context.Context, id int64) (*entity.Transition, error) {
	query := `SELECT ` + transitionColumns + ` FROM transitions WHERE id = ?`

	t, err := scanTransition(r.db.QueryRowContext(ctx, query, id))
	if sqldb.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get transition by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get transition: %w", sqldb.Classify(err))
	}
	return t, nil
}

// ListByWorkflow retrieves every transition of a workflow ordered by id
func (r *TransitionRepository) ListByWorkflow(ctx context.Context, workflowID int64) ([]*entity.Transition, error) {
	query := `SELECT ` + transitionColumns + ` FROM transitions WHERE workflow_id = ? ORDER BY id ASC`
	return r.list(ctx, query, workflowID)
}

// ListFrom retrieves the transitions leaving a stage ordered by id
func (r *TransitionRepository) ListFrom(ctx context.Context, stageID int64) ([]*entity.Transition, error) {
	query := `SELECT ` + transitionColumns + ` FROM transitions WHERE from_stage_id = ? ORDER BY id ASC`
	return r.list(ctx, query, stageID)
}

func (r *TransitionRepository) list(ctx context.Context, query string, arg int64) ([]*entity.Transition, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		r.logger.Error("Failed to list transitions", zap.Int64("key", arg), zap.Error(err))
		return nil, fmt.Errorf("failed to list transitions: %w", sqldb.Classify(err))
	}
	defer rows.Close()

	var transitions []*entity.Transition
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		transitions = append(transitions, t)
	}
	return transitions, rows.Err()
}

// Update updates the endpoints and guard of a transition
func (r *TransitionRepository) Update(ctx context.Context, t *entity.Transition) error {
	cond, err := encodeJSON(t.Condition)
	if err != nil {
		return err
	}

	query := `
		UPDATE transitions
		SET from_stage_id = ?, to_stage_id = ?, condition = ?
		WHERE id = ?
	`

	res, err := r.db.ExecContext(ctx, query, t.FromStageID, t.ToStageID, cond, t.ID)
	if err != nil {
		r.logger.Error("Failed to update transition", zap.Int64("id", t.ID), zap.Error(err))
		return fmt.Errorf("failed to update transition: %w", constraintError(err, "transition", transitionConstraintMsg))
	}
	return expectAffected(res, "transition", t.ID)
}

// Delete removes a transition
func (r *TransitionRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transitions WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete transition", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete transition: %w", sqldb.Classify(err))
	}
	return expectAffected(res, "transition", id)
}

func scanTransition(row rowScanner) (*entity.Transition, error) {
	var (
		t    entity.Transition
		cond string
	)
	if err := row.Scan(&t.ID, &t.WorkflowID, &t.FromStageID, &t.ToStageID, &cond); err != nil {
		return nil, err
	}

	decoded, err := decodeObject(cond)
	if err != nil {
		return nil, err
	}
	t.Condition = decoded
	return &t, nil
}

// Verify interface compliance
var _ port.TransitionRepository = (*TransitionRepository)(nil)

package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/port"
	"github.com/garyjia/excise-workflow/internal/domain/entity"
	"github.com/garyjia/excise-workflow/internal/infrastructure/persistence/sqldb"
)

// WorkflowRepository implements port.WorkflowRepository
type WorkflowRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sqldb.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

const workflowColumns = `id, name, description, include_unscoped_actions, created_at`

// Create creates a new workflow
func (r *WorkflowRepository) Create(ctx context.Context, wf *entity.Workflow) error {
	query := `
		INSERT INTO workflows (name, description, include_unscoped_actions)
		VALUES (?, ?, ?)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query, wf.Name, wf.Description, wf.IncludeUnscopedActions).
		Scan(&wf.ID, &wf.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create workflow", zap.String("name", wf.Name), zap.Error(err))
		return fmt.Errorf("failed to create workflow: %w", constraintError(err, "name", "workflow name already exists"))
	}
	return nil
}

// GetByID retrieves a workflow by ID
func (r *WorkflowRepository) GetByID(ctx context.Context, id int64) (*entity.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = ?`
	return r.getOne(ctx, query, id)
}

// GetByName retrieves a workflow by its unique name
func (r *WorkflowRepository) GetByName(ctx context.Context, name string) (*entity.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE name = ?`
	return r.getOne(ctx, query, name)
}

func (r *WorkflowRepository) getOne(ctx context.Context, query string, arg any) (*entity.Workflow, error) {
	wf, err := scanWorkflow(r.db.QueryRowContext(ctx, query, arg))
	if sqldb.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow", zap.Any("key", arg), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", sqldb.Classify(err))
	}
	return wf, nil
}

// List retrieves all workflows ordered by name
func (r *WorkflowRepository) List(ctx context.Context) ([]*entity.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list workflows", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflows: %w", sqldb.Classify(err))
	}
	defer rows.Close()

	var workflows []*entity.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// Update updates name, description and action policy of a workflow
func (r *WorkflowRepository) Update(ctx context.Context, wf *entity.Workflow) error {
	query := `
		UPDATE workflows
		SET name = ?, description = ?, include_unscoped_actions = ?
		WHERE id = ?
	`

	res, err := r.db.ExecContext(ctx, query, wf.Name, wf.Description, wf.IncludeUnscopedActions, wf.ID)
	if err != nil {
		r.logger.Error("Failed to update workflow", zap.Int64("id", wf.ID), zap.Error(err))
		return fmt.Errorf("failed to update workflow: %w", constraintError(err, "name", "workflow name already exists"))
	}
	return expectAffected(res, "workflow", wf.ID)
}

// Delete removes a workflow together with its stages and transitions
func (r *WorkflowRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete workflow", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete workflow: %w", constraintError(err, "workflow", "workflow still has applications"))
	}
	return expectAffected(res, "workflow", id)
}

func scanWorkflow(row rowScanner) (*entity.Workflow, error) {
	var wf entity.Workflow
	if err := row.Scan(&wf.ID, &wf.Name, &wf.Description, &wf.IncludeUnscopedActions, &wf.CreatedAt); err != nil {
		return nil, err
	}
	return &wf, nil
}

// Verify interface compliance
var _ port.WorkflowRepository = (*WorkflowRepository)(nil)

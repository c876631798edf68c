package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/port"
	"github.com/garyjia/excise-workflow/internal/domain/workflow"
	"github.com/garyjia/excise-workflow/internal/infrastructure/persistence/sqldb"
)

// SnapshotLoader materializes workflow snapshots straight from the catalog
// tables. Inside a transaction every read joins it, so a unit of work
// observes one consistent catalog.
type SnapshotLoader struct {
	workflows   port.WorkflowRepository
	stages      port.StageRepository
	transitions port.TransitionRepository
	permissions port.PermissionRepository
	roles       port.RoleRepository
	logger      *zap.Logger
}

// NewSnapshotLoader creates a snapshot source backed by the catalog repositories
func NewSnapshotLoader(db *sqldb.DB, logger *zap.Logger) *SnapshotLoader {
	return &SnapshotLoader{
		workflows:   NewWorkflowRepository(db, logger),
		stages:      NewStageRepository(db, logger),
		transitions: NewTransitionRepository(db, logger),
		permissions: NewPermissionRepository(db, logger),
		roles:       NewRoleRepository(db, logger),
		logger:      logger,
	}
}

// LoadSnapshot implements port.SnapshotSource
func (l *SnapshotLoader) LoadSnapshot(ctx context.Context, workflowID int64) (*workflow.Snapshot, error) {
	wf, err := l.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, workflow.NotFound("workflow", workflowID)
	}

	stages, err := l.stages.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	transitions, err := l.transitions.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	perms, err := l.permissions.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	roles, err := l.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}

	l.logger.Debug("Workflow snapshot loaded",
		zap.Int64("workflow_id", workflowID),
		zap.String("workflow", wf.Name),
		zap.Int("stages", len(stages)),
		zap.Int("transitions", len(transitions)))

	return workflow.NewSnapshot(*wf, deref(stages), deref(transitions), deref(perms), deref(roles)), nil
}

func deref[T any](items []*T) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		out = append(out, *it)
	}
	return out
}

var _ port.SnapshotSource = (*SnapshotLoader)(nil)

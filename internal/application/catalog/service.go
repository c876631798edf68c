// Package catalog administers workflow definitions: stages, transitions,
// stage permissions and roles. Every write invalidates the cached snapshot
// of the affected workflow after it commits.
package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/dispatcher"
	"github.com/garyjia/excise-workflow/internal/application/port"
	"github.com/garyjia/excise-workflow/internal/domain/entity"
	"github.com/garyjia/excise-workflow/internal/domain/event"
	domainwf "github.com/garyjia/excise-workflow/internal/domain/workflow"
)

// Repositories groups the catalog stores
type Repositories struct {
	Workflows   port.WorkflowRepository
	Stages      port.StageRepository
	Transitions port.TransitionRepository
	Permissions port.PermissionRepository
	Roles       port.RoleRepository
}

// Service manages the workflow catalog
type Service interface {
	ListWorkflows(ctx context.Context) ([]*entity.Workflow, error)
	GetWorkflow(ctx context.Context, id int64) (*entity.Workflow, error)
	GetWorkflowByName(ctx context.Context, name string) (*entity.Workflow, error)
	CreateWorkflow(ctx context.Context, wf *entity.Workflow) error
	UpdateWorkflow(ctx context.Context, wf *entity.Workflow) error
	DeleteWorkflow(ctx context.Context, id int64) error

	ListStages(ctx context.Context, workflowID int64) ([]*entity.Stage, error)
	GetStage(ctx context.Context, id int64) (*entity.Stage, error)
	CreateStage(ctx context.Context, st *entity.Stage) error
	UpdateStage(ctx context.Context, st *entity.Stage) error
	DeleteStage(ctx context.Context, id int64) error

	ListTransitions(ctx context.Context, workflowID int64) ([]*entity.Transition, error)
	ListTransitionsFrom(ctx context.Context, stageID int64) ([]*entity.Transition, error)
	GetTransition(ctx context.Context, id int64) (*entity.Transition, error)
	CreateTransition(ctx context.Context, t *entity.Transition) error
	UpdateTransition(ctx context.Context, t *entity.Transition) error
	DeleteTransition(ctx context.Context, id int64) error

	ListPermissions(ctx context.Context, stageID int64) ([]*entity.StagePermission, error)
	GetPermission(ctx context.Context, id int64) (*entity.StagePermission, error)
	CreatePermission(ctx context.Context, p *entity.StagePermission) error
	UpdatePermission(ctx context.Context, p *entity.StagePermission) error
	DeletePermission(ctx context.Context, id int64) error

	ListRoles(ctx context.Context) ([]*entity.Role, error)
	GetRole(ctx context.Context, id int64) (*entity.Role, error)
	CreateRole(ctx context.Context, r *entity.Role) error
	UpdateRole(ctx context.Context, r *entity.Role) error
	DeleteRole(ctx context.Context, id int64) error

	// Snapshot returns the materialized catalog of one workflow
	Snapshot(ctx context.Context, workflowID int64) (*domainwf.Snapshot, error)

	// Check validates a stored workflow
	Check(ctx context.Context, workflowID int64) ([]Problem, error)

	// Import upserts a parsed definition document in one unit of work
	Import(ctx context.Context, doc *Document) (*ImportReport, error)
}

type catalogServiceImpl struct {
	repos      Repositories
	snapshots  port.SnapshotSource
	cache      port.SnapshotCache
	txManager  port.TransactionManager
	dispatcher dispatcher.Dispatcher
	logger     *zap.Logger
}

// Option configures the catalog service
type Option func(*catalogServiceImpl)

// WithCache sets the snapshot cache invalidated after writes
func WithCache(c port.SnapshotCache) Option {
	return func(s *catalogServiceImpl) {
		s.cache = c
	}
}

// WithDispatcher sets the dispatcher catalog.changed events are sent to
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(s *catalogServiceImpl) {
		s.dispatcher = d
	}
}

// NewService creates a catalog service
func NewService(repos Repositories, snapshots port.SnapshotSource, txManager port.TransactionManager, logger *zap.Logger, opts ...Option) Service {
	s := &catalogServiceImpl{
		repos:     repos,
		snapshots: snapshots,
		txManager: txManager,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CanManage reports whether the user may change the catalog
func CanManage(user *entity.User) bool {
	if user == nil {
		return false
	}
	return user.IsSuperuser || (user.Role != nil && user.Role.CanManageWorkflows)
}

// changed invalidates cached snapshots and announces the change. It runs
// after the write committed.
func (s *catalogServiceImpl) changed(ctx context.Context, what string, workflowIDs ...int64) {
	for _, id := range workflowIDs {
		if s.cache != nil {
			if err := s.cache.Invalidate(ctx, id); err != nil {
				s.logger.Warn("Failed to invalidate snapshot cache",
					zap.Int64("workflow_id", id), zap.Error(err))
			}
		}
		if s.dispatcher != nil {
			s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeCatalogChanged, entity.AppRef{}, map[string]any{
				event.KeyWorkflow: id,
				"change":          what,
			}))
		}
	}
	s.logger.Info("Catalog changed", zap.String("change", what), zap.Int64s("workflow_ids", workflowIDs))
}

func found[T any](v *T, err error, kind string, id any) (*T, error) {
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, domainwf.NotFound(kind, id)
	}
	return v, nil
}

// Workflows

func (s *catalogServiceImpl) ListWorkflows(ctx context.Context) ([]*entity.Workflow, error) {
	return s.repos.Workflows.List(ctx)
}

func (s *catalogServiceImpl) GetWorkflow(ctx context.Context, id int64) (*entity.Workflow, error) {
	wf, err := s.repos.Workflows.GetByID(ctx, id)
	return found(wf, err, "workflow", id)
}

func (s *catalogServiceImpl) GetWorkflowByName(ctx context.Context, name string) (*entity.Workflow, error) {
	wf, err := s.repos.Workflows.GetByName(ctx, name)
	return found(wf, err, "workflow", name)
}

func (s *catalogServiceImpl) CreateWorkflow(ctx context.Context, wf *entity.Workflow) error {
	if wf.Name == "" {
		return domainwf.Invalid("name", "workflow name is required")
	}
	if err := s.repos.Workflows.Create(ctx, wf); err != nil {
		return err
	}
	s.changed(ctx, "workflow.created", wf.ID)
	return nil
}

func (s *catalogServiceImpl) UpdateWorkflow(ctx context.Context, wf *entity.Workflow) error {
	if wf.Name == "" {
		return domainwf.Invalid("name", "workflow name is required")
	}
	if err := s.repos.Workflows.Update(ctx, wf); err != nil {
		return err
	}
	s.changed(ctx, "workflow.updated", wf.ID)
	return nil
}

func (s *catalogServiceImpl) DeleteWorkflow(ctx context.Context, id int64) error {
	if err := s.repos.Workflows.Delete(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, "workflow.deleted", id)
	return nil
}

// Stages

func (s *catalogServiceImpl) ListStages(ctx context.Context, workflowID int64) ([]*entity.Stage, error) {
	if _, err := s.GetWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}
	return s.repos.Stages.ListByWorkflow(ctx, workflowID)
}

func (s *catalogServiceImpl) GetStage(ctx context.Context, id int64) (*entity.Stage, error) {
	st, err := s.repos.Stages.GetByID(ctx, id)
	return found(st, err, "stage", id)
}

func validateStage(st *entity.Stage) error {
	problems := map[string]string{}
	if st.Name == "" {
		problems["name"] = "stage name is required"
	}
	if st.Kind != "" && !domainwf.StageKind(st.Kind).IsValid() {
		problems["kind"] = fmt.Sprintf("unknown stage kind %q", st.Kind)
	}
	if st.ForwardTo != "" && !domainwf.ForwardPolicy(st.ForwardTo).IsValid() {
		problems["forward_to"] = fmt.Sprintf("unknown forward policy %q", st.ForwardTo)
	}
	if len(problems) > 0 {
		return &domainwf.ValidationError{Fields: problems}
	}
	return nil
}

func (s *catalogServiceImpl) CreateStage(ctx context.Context, st *entity.Stage) error {
	if err := validateStage(st); err != nil {
		return err
	}
	if err := s.repos.Stages.Create(ctx, st); err != nil {
		return err
	}
	s.changed(ctx, "stage.created", st.WorkflowID)
	return nil
}

func (s *catalogServiceImpl) UpdateStage(ctx context.Context, st *entity.Stage) error {
	if err := validateStage(st); err != nil {
		return err
	}
	if err := s.repos.Stages.Update(ctx, st); err != nil {
		return err
	}
	s.changed(ctx, "stage.updated", st.WorkflowID)
	return nil
}

func (s *catalogServiceImpl) DeleteStage(ctx context.Context, id int64) error {
	st, err := s.GetStage(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repos.Stages.Delete(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, "stage.deleted", st.WorkflowID)
	return nil
}

// Transitions

func (s *catalogServiceImpl) ListTransitions(ctx context.Context, workflowID int64) ([]*entity.Transition, error) {
	if _, err := s.GetWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}
	return s.repos.Transitions.ListByWorkflow(ctx, workflowID)
}

func (s *catalogServiceImpl) ListTransitionsFrom(ctx context.Context, stageID int64) ([]*entity.Transition, error) {
	if _, err := s.GetStage(ctx, stageID); err != nil {
		return nil, err
	}
	return s.repos.Transitions.ListFrom(ctx, stageID)
}

func (s *catalogServiceImpl) GetTransition(ctx context.Context, id int64) (*entity.Transition, error) {
	t, err := s.repos.Transitions.GetByID(ctx, id)
	return found(t, err, "transition", id)
}

func (s *catalogServiceImpl) CreateTransition(ctx context.Context, t *entity.Transition) error {
	if err := s.repos.Transitions.Create(ctx, t); err != nil {
		return err
	}
	s.changed(ctx, "transition.created", t.WorkflowID)
	return nil
}

func (s *catalogServiceImpl) UpdateTransition(ctx context.Context, t *entity.Transition) error {
	if err := s.repos.Transitions.Update(ctx, t); err != nil {
		return err
	}
	s.changed(ctx, "transition.updated", t.WorkflowID)
	return nil
}

func (s *catalogServiceImpl) DeleteTransition(ctx context.Context, id int64) error {
	t, err := s.GetTransition(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repos.Transitions.Delete(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, "transition.deleted", t.WorkflowID)
	return nil
}

// Permissions

func (s *catalogServiceImpl) ListPermissions(ctx context.Context, stageID int64) ([]*entity.StagePermission, error) {
	if _, err := s.GetStage(ctx, stageID); err != nil {
		return nil, err
	}
	return s.repos.Permissions.ListByStage(ctx, stageID)
}

func (s *catalogServiceImpl) GetPermission(ctx context.Context, id int64) (*entity.StagePermission, error) {
	p, err := s.repos.Permissions.GetByID(ctx, id)
	return found(p, err, "permission", id)
}

// workflowOfStage resolves the workflow whose cache a permission write touches
func (s *catalogServiceImpl) workflowOfStage(ctx context.Context, stageID int64) (int64, error) {
	st, err := s.GetStage(ctx, stageID)
	if err != nil {
		return 0, err
	}
	return st.WorkflowID, nil
}

func (s *catalogServiceImpl) CreatePermission(ctx context.Context, p *entity.StagePermission) error {
	wfID, err := s.workflowOfStage(ctx, p.StageID)
	if err != nil {
		return err
	}
	if err := s.repos.Permissions.Create(ctx, p); err != nil {
		return err
	}
	s.changed(ctx, "permission.created", wfID)
	return nil
}

func (s *catalogServiceImpl) UpdatePermission(ctx context.Context, p *entity.StagePermission) error {
	wfID, err := s.workflowOfStage(ctx, p.StageID)
	if err != nil {
		return err
	}
	if err := s.repos.Permissions.Update(ctx, p); err != nil {
		return err
	}
	s.changed(ctx, "permission.updated", wfID)
	return nil
}

func (s *catalogServiceImpl) DeletePermission(ctx context.Context, id int64) error {
	p, err := s.GetPermission(ctx, id)
	if err != nil {
		return err
	}
	wfID, err := s.workflowOfStage(ctx, p.StageID)
	if err != nil {
		return err
	}
	if err := s.repos.Permissions.Delete(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, "permission.deleted", wfID)
	return nil
}

// Roles. A role can appear in every workflow, so role writes invalidate all
// cached snapshots.

func (s *catalogServiceImpl) ListRoles(ctx context.Context) ([]*entity.Role, error) {
	return s.repos.Roles.List(ctx)
}

func (s *catalogServiceImpl) GetRole(ctx context.Context, id int64) (*entity.Role, error) {
	r, err := s.repos.Roles.GetByID(ctx, id)
	return found(r, err, "role", id)
}

func (s *catalogServiceImpl) CreateRole(ctx context.Context, r *entity.Role) error {
	if r.Name == "" {
		return domainwf.Invalid("name", "role name is required")
	}
	if err := s.repos.Roles.Create(ctx, r); err != nil {
		return err
	}
	s.rolesChanged(ctx, "role.created")
	return nil
}

func (s *catalogServiceImpl) UpdateRole(ctx context.Context, r *entity.Role) error {
	if r.Name == "" {
		return domainwf.Invalid("name", "role name is required")
	}
	if err := s.repos.Roles.Update(ctx, r); err != nil {
		return err
	}
	s.rolesChanged(ctx, "role.updated")
	return nil
}

func (s *catalogServiceImpl) DeleteRole(ctx context.Context, id int64) error {
	if err := s.repos.Roles.Delete(ctx, id); err != nil {
		return err
	}
	s.rolesChanged(ctx, "role.deleted")
	return nil
}

func (s *catalogServiceImpl) rolesChanged(ctx context.Context, what string) {
	wfs, err := s.repos.Workflows.List(ctx)
	if err != nil {
		s.logger.Warn("Failed to list workflows for cache invalidation", zap.Error(err))
		return
	}
	ids := make([]int64, 0, len(wfs))
	for _, wf := range wfs {
		ids = append(ids, wf.ID)
	}
	s.changed(ctx, what, ids...)
}

// Snapshots

func (s *catalogServiceImpl) Snapshot(ctx context.Context, workflowID int64) (*domainwf.Snapshot, error) {
	return s.snapshots.LoadSnapshot(ctx, workflowID)
}

func (s *catalogServiceImpl) Check(ctx context.Context, workflowID int64) ([]Problem, error) {
	snap, err := s.snapshots.LoadSnapshot(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return Validate(snap), nil
}

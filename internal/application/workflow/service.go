package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/dispatcher"
	"github.com/garyjia/excise-workflow/internal/application/port"
	"github.com/garyjia/excise-workflow/internal/domain/entity"
	"github.com/garyjia/excise-workflow/internal/domain/event"
	domainwf "github.com/garyjia/excise-workflow/internal/domain/workflow"
	"github.com/garyjia/excise-workflow/pkg/utils"
)

// Service is the workflow facade every application type is driven through.
// Each state-changing operation runs in one unit of work and either commits
// the stage change with its audit entries or leaves the store untouched.
type Service interface {
	CreateApplication(ctx context.Context, tag, workflowName string, user *entity.User, payload map[string]any, remarks string) (*Result, error)
	Get(ctx context.Context, ref entity.AppRef) (*entity.ApplicationRecord, error)
	List(ctx context.Context, tag string, limit, offset int) ([]*entity.ApplicationRecord, error)
	Delete(ctx context.Context, ref entity.AppRef) error

	Submit(ctx context.Context, ref entity.AppRef, user *entity.User, remarks string) (*Result, error)
	Advance(ctx context.Context, ref entity.AppRef, user *entity.User, targetStageID int64, actionCtx map[string]any, remarks string) (*Result, error)
	RaiseObjection(ctx context.Context, ref entity.AppRef, user *entity.User, targetStageID int64, items []entity.ObjectionItem, remarks string) (*Result, error)
	ResolveObjections(ctx context.Context, ref entity.AppRef, user *entity.User, objectionIDs []int64, updatedFields map[string]any, remarks string) (*Result, error)

	GetNextStages(ctx context.Context, ref entity.AppRef) ([]NextStage, error)
	GetActionConfig(token string) ActionConfig
	AllowedActions(ctx context.Context, ref entity.AppRef, user *entity.User) ([]string, error)
	CanProcess(ctx context.Context, ref entity.AppRef, user *entity.User) (bool, error)
	View(ctx context.Context, ref entity.AppRef, user *entity.User) (*ApplicationView, error)
	History(ctx context.Context, ref entity.AppRef) (*History, error)
}

// Result describes one committed move
type Result struct {
	Application  *entity.ApplicationRecord `json:"application"`
	FromStage    *entity.Stage             `json:"from_stage,omitempty"`
	ToStage      *entity.Stage             `json:"to_stage"`
	Transactions []*entity.Transaction     `json:"transactions"`
	Objections   []*entity.Objection       `json:"objections,omitempty"`

	workflowName string
}

// NextStage pairs an outgoing transition with its target stage
type NextStage struct {
	Transition *entity.Transition `json:"transition"`
	Stage      *entity.Stage      `json:"stage"`
}

// ApplicationView is an application as presented to one user
type ApplicationView struct {
	*entity.ApplicationRecord
	CurrentStage         int64                   `json:"current_stage"`
	CurrentStageName     string                  `json:"current_stage_name"`
	AllowedActions       []string                `json:"allowed_actions"`
	AllowedActionConfigs map[string]ActionConfig `json:"allowed_action_configs"`
}

// History is the audit trail of an application, newest transaction first
type History struct {
	Application  entity.AppRef         `json:"application"`
	Transactions []*entity.Transaction `json:"transactions"`
	Objections   []*entity.Objection   `json:"objections"`
}

// Operation names reported to the observer
const (
	OpCreate  = "create"
	OpSubmit  = "submit"
	OpAdvance = "advance"
	OpRaise   = "raise_objection"
	OpResolve = "resolve_objections"
	OpDelete  = "delete"
)

type workflowServiceImpl struct {
	registry    *Registry
	workflows   port.WorkflowRepository
	snapshots   port.SnapshotSource
	readSource  port.SnapshotSource
	txns        port.TransactionLogRepository
	objections  port.ObjectionRepository
	txManager   port.TransactionManager
	dispatcher  dispatcher.Dispatcher
	observer    port.OperationObserver
	selector    *domainwf.Selector
	projector   *Projector
	actionTable *ActionTable
	hooks       []Hook
	now         func() time.Time
	logger      *zap.Logger
}

// Option configures the workflow service
type Option func(*workflowServiceImpl)

// WithDispatcher sets the dispatcher post-commit events are sent to
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(s *workflowServiceImpl) {
		s.dispatcher = d
	}
}

// WithObserver sets the operation observer
func WithObserver(o port.OperationObserver) Option {
	return func(s *workflowServiceImpl) {
		s.observer = o
	}
}

// WithReadSource sets the snapshot source used by read-only operations,
// typically a cached one. State-changing operations always read the catalog
// inside their own unit of work.
func WithReadSource(src port.SnapshotSource) Option {
	return func(s *workflowServiceImpl) {
		s.readSource = src
	}
}

// WithEvaluator sets the condition evaluator
func WithEvaluator(eval *domainwf.Evaluator) Option {
	return func(s *workflowServiceImpl) {
		s.selector = domainwf.NewSelector(eval)
	}
}

// WithFamilyResolver sets the role families used by the action projector
func WithFamilyResolver(f *domainwf.FamilyResolver) Option {
	return func(s *workflowServiceImpl) {
		s.projector = NewProjector(f)
	}
}

// WithActionTable sets the action presentation table
func WithActionTable(t *ActionTable) Option {
	return func(s *workflowServiceImpl) {
		s.actionTable = t
	}
}

// WithHooks replaces the typed advance hooks
func WithHooks(hooks ...Hook) Option {
	return func(s *workflowServiceImpl) {
		s.hooks = hooks
	}
}

// WithClock sets the time source for transaction and objection timestamps
func WithClock(now func() time.Time) Option {
	return func(s *workflowServiceImpl) {
		s.now = now
	}
}

// NewService creates the workflow service
func NewService(
	registry *Registry,
	workflows port.WorkflowRepository,
	snapshots port.SnapshotSource,
	txns port.TransactionLogRepository,
	objections port.ObjectionRepository,
	txManager port.TransactionManager,
	logger *zap.Logger,
	opts ...Option,
) Service {
	s := &workflowServiceImpl{
		registry:    registry,
		workflows:   workflows,
		snapshots:   snapshots,
		readSource:  snapshots,
		txns:        txns,
		objections:  objections,
		txManager:   txManager,
		observer:    nopObserver{},
		selector:    domainwf.NewSelector(nil),
		projector:   NewProjector(nil),
		actionTable: NewActionTable(nil),
		hooks:       DefaultHooks(),
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// unitFunc runs inside the unit of work with the application locked
type unitFunc func(ctx context.Context, app port.Application, snap *domainwf.Snapshot) (*Result, error)

// mutate locks the application, loads the catalog inside the same unit of
// work and commits whatever fn wrote
func (s *workflowServiceImpl) mutate(ctx context.Context, op string, ref entity.AppRef, user *entity.User, fn unitFunc) (*Result, error) {
	start := time.Now()

	var result *Result
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		app, err := s.registry.LoadForUpdate(txCtx, ref)
		if err != nil {
			return err
		}
		snap, err := s.snapshots.LoadSnapshot(txCtx, app.WorkflowID())
		if err != nil {
			return err
		}
		result, err = fn(txCtx, app, snap)
		if err != nil {
			return err
		}
		result.Application = app.Record()
		result.workflowName = snap.Workflow.Name
		return nil
	})

	s.finish(op, ref, user, start, result, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// finish logs and observes the outcome of an operation
func (s *workflowServiceImpl) finish(op string, ref entity.AppRef, user *entity.User, start time.Time, result *Result, err error) {
	elapsed := time.Since(start)
	s.observer.ObserveOperation(op, outcomeOf(err), elapsed)

	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("application", ref.String()),
		zap.Int64("user_id", user.ID),
		zap.Duration("elapsed", elapsed),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		if domainwf.IsClientError(err) {
			s.logger.Warn("Workflow operation rejected", fields...)
		} else {
			s.logger.Error("Workflow operation failed", fields...)
		}
		return
	}

	from := ""
	if result.FromStage != nil {
		from = result.FromStage.Name
	}
	s.observer.ObserveTransition(result.workflowName, from, result.ToStage.Name)
	s.logger.Info("Workflow operation completed",
		append(fields,
			zap.String("from_stage", from),
			zap.String("to_stage", result.ToStage.Name))...)
}

// currentStage returns the stage the application sits in
func currentStage(app port.Application, snap *domainwf.Snapshot) (*entity.Stage, error) {
	st, ok := snap.Stage(app.CurrentStageID())
	if !ok {
		return nil, domainwf.Misconfigured("application %s is in stage %d outside workflow %q",
			app.Ref(), app.CurrentStageID(), snap.Workflow.Name)
	}
	return st, nil
}

// mayProcess reports whether the user may act on a stage
func mayProcess(snap *domainwf.Snapshot, stageID int64, user *entity.User) bool {
	return user.IsSuperuser || snap.CanProcess(stageID, user.RoleID())
}

// appendTransaction writes one audit entry for a move into stage
func (s *workflowServiceImpl) appendTransaction(ctx context.Context, app port.Application, user *entity.User, stage *entity.Stage, forwardedTo *int64, remarks string) (*entity.Transaction, error) {
	stageID := stage.ID
	txn := &entity.Transaction{
		App:               app.Ref(),
		PerformedBy:       user.ID,
		ForwardedByRoleID: user.RoleID(),
		ForwardedToRoleID: forwardedTo,
		StageID:           &stageID,
		Remarks:           remarks,
		Timestamp:         s.now(),
	}
	if err := s.txns.Append(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// enterStage moves the application into target, forwarding it by the
// stage's policy, and writes the audit entry
func (s *workflowServiceImpl) enterStage(ctx context.Context, app port.Application, snap *domainwf.Snapshot, user *entity.User, target *entity.Stage, remarks string) (*entity.Transaction, error) {
	to, err := forwardedTo(ctx, app, snap, target)
	if err != nil {
		return nil, err
	}

	app.SetCurrentStage(target.ID)
	if err := app.Persist(ctx); err != nil {
		return nil, fmt.Errorf("failed to save application: %w", err)
	}
	return s.appendTransaction(ctx, app, user, target, to, remarks)
}

// CreateApplication stores a new application in its workflow's initial stage
func (s *workflowServiceImpl) CreateApplication(ctx context.Context, tag, workflowName string, user *entity.User, payload map[string]any, remarks string) (*Result, error) {
	start := time.Now()
	ref := entity.AppRef{Type: tag}

	result, err := s.create(ctx, tag, workflowName, user, payload, remarks)
	if result != nil {
		ref = result.Application.Ref()
	}
	s.finish(OpCreate, ref, user, start, result, err)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, event.TypeApplicationCreated, result, user, remarks)
	return result, nil
}

func (s *workflowServiceImpl) create(ctx context.Context, tag, workflowName string, user *entity.User, payload map[string]any, remarks string) (*Result, error) {
	spec, ok := s.registry.Spec(tag)
	if !ok {
		return nil, domainwf.NotFound("application type", tag)
	}
	if workflowName == "" {
		workflowName = spec.Workflow
	}
	wf, err := s.workflows.GetByName(ctx, workflowName)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, domainwf.NotFound("workflow", workflowName)
	}
	if remarks = utils.SanitizeString(remarks); remarks == "" {
		remarks = "Application created"
	}

	var result *Result
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		snap, err := s.snapshots.LoadSnapshot(txCtx, wf.ID)
		if err != nil {
			return err
		}
		initial, ok := snap.InitialStage()
		if !ok {
			return domainwf.Misconfigured("workflow %q has no initial stage", wf.Name)
		}

		app, err := s.registry.New(tag, wf.ID, initial.ID, user.ID)
		if err != nil {
			return err
		}
		if err := app.ApplyUpdates(txCtx, payload); err != nil {
			return err
		}
		if err := app.Persist(txCtx); err != nil {
			return fmt.Errorf("failed to create application: %w", err)
		}

		txn, err := s.appendTransaction(txCtx, app, user, initial, nil, remarks)
		if err != nil {
			return err
		}
		result = &Result{
			Application:  app.Record(),
			ToStage:      initial,
			Transactions: []*entity.Transaction{txn},
			workflowName: wf.Name,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns the stored record of an application
func (s *workflowServiceImpl) Get(ctx context.Context, ref entity.AppRef) (*entity.ApplicationRecord, error) {
	app, err := s.registry.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	return app.Record(), nil
}

// List returns applications of one type newest first
func (s *workflowServiceImpl) List(ctx context.Context, tag string, limit, offset int) ([]*entity.ApplicationRecord, error) {
	apps, err := s.registry.List(ctx, tag, limit, offset)
	if err != nil {
		return nil, err
	}
	records := make([]*entity.ApplicationRecord, 0, len(apps))
	for _, a := range apps {
		records = append(records, a.Record())
	}
	return records, nil
}

// Delete removes an application with its transactions and objections
func (s *workflowServiceImpl) Delete(ctx context.Context, ref entity.AppRef) error {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.registry.LoadForUpdate(txCtx, ref); err != nil {
			return err
		}
		return s.registry.Delete(txCtx, ref)
	})
	if err != nil {
		s.logger.Error("Failed to delete application", zap.String("application", ref.String()), zap.Error(err))
		return err
	}

	s.logger.Info("Application deleted", zap.String("application", ref.String()))
	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeApplicationDeleted, ref, nil))
	}
	return nil
}

// Submit moves an application out of its initial stage along the best
// ranked outgoing transition and forwards it to the target's processor
func (s *workflowServiceImpl) Submit(ctx context.Context, ref entity.AppRef, user *entity.User, remarks string) (*Result, error) {
	remarks = utils.SanitizeString(remarks)

	result, err := s.mutate(ctx, OpSubmit, ref, user, func(txCtx context.Context, app port.Application, snap *domainwf.Snapshot) (*Result, error) {
		from, err := currentStage(app, snap)
		if err != nil {
			return nil, err
		}
		if !from.IsInitial {
			return nil, fmt.Errorf("%w: application is in stage %q", domainwf.ErrNotInitialStage, from.Name)
		}

		submitRemarks := remarks
		if submitRemarks == "" {
			submitRemarks = "Application submitted"
		}
		submitted, err := s.appendTransaction(txCtx, app, user, from, nil, submitRemarks)
		if err != nil {
			return nil, err
		}

		cand, err := s.selector.SelectSubmit(snap, from.ID, user)
		if err != nil {
			return nil, err
		}
		processor, ok := snap.ProcessorRole(cand.Target.ID)
		if !ok {
			return nil, domainwf.Misconfigured("stage %q has no processor role", cand.Target.Name)
		}

		app.SetCurrentStage(cand.Target.ID)
		if err := app.Persist(txCtx); err != nil {
			return nil, fmt.Errorf("failed to save application: %w", err)
		}
		processorID := processor.ID
		forwarded, err := s.appendTransaction(txCtx, app, user, cand.Target, &processorID,
			fmt.Sprintf("Forwarded to %s", processor.Name))
		if err != nil {
			return nil, err
		}

		return &Result{
			FromStage:    from,
			ToStage:      cand.Target,
			Transactions: []*entity.Transaction{submitted, forwarded},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, event.TypeSubmitted, result, user, remarks)
	return result, nil
}

// Advance moves an application along the edge to targetStageID after
// checking the user's permission on the current stage and the edge guard
func (s *workflowServiceImpl) Advance(ctx context.Context, ref entity.AppRef, user *entity.User, targetStageID int64, actionCtx map[string]any, remarks string) (*Result, error) {
	remarks = utils.SanitizeString(remarks)
	if actionCtx == nil {
		actionCtx = map[string]any{}
	}

	result, err := s.mutate(ctx, OpAdvance, ref, user, func(txCtx context.Context, app port.Application, snap *domainwf.Snapshot) (*Result, error) {
		from, err := currentStage(app, snap)
		if err != nil {
			return nil, err
		}
		if !mayProcess(snap, from.ID, user) {
			return nil, fmt.Errorf("%w: role %q cannot process stage %q", domainwf.ErrForbidden, user.RoleName(), from.Name)
		}
		if _, ok := snap.Stage(targetStageID); !ok {
			return nil, domainwf.NotFound("stage", targetStageID)
		}

		cand, err := s.selector.SelectExplicit(snap, from.ID, targetStageID, user, actionCtx)
		if err != nil {
			return nil, err
		}
		if err := runHooks(s.hooks, app, cand.Target, actionCtx); err != nil {
			return nil, err
		}

		text := remarks
		if text == "" {
			text = fmt.Sprintf("Moved to %s", cand.Target.Name)
		}
		txn, err := s.enterStage(txCtx, app, snap, user, cand.Target, text)
		if err != nil {
			return nil, err
		}

		return &Result{
			FromStage:    from,
			ToStage:      cand.Target,
			Transactions: []*entity.Transaction{txn},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, event.TypeStageChanged, result, user, remarks)
	return result, nil
}

// emit dispatches a post-commit event
func (s *workflowServiceImpl) emit(ctx context.Context, typ event.Type, result *Result, user *entity.User, remarks string) {
	if s.dispatcher == nil {
		return
	}

	payload := map[string]any{
		event.KeyToStage:  result.ToStage.Name,
		event.KeyUserID:   user.ID,
		event.KeyRole:     user.RoleName(),
		event.KeyRemarks:  remarks,
		event.KeyWorkflow: result.workflowName,
	}
	if result.FromStage != nil {
		payload[event.KeyFromStage] = result.FromStage.Name
	}
	if n := len(result.Transactions); n > 0 {
		payload[event.KeyTransaction] = result.Transactions[n-1].ID
	}
	if len(result.Objections) > 0 {
		fields := make([]string, 0, len(result.Objections))
		for _, o := range result.Objections {
			fields = append(fields, o.FieldName)
		}
		payload[event.KeyObjections] = fields
	}

	s.dispatcher.DispatchAsync(ctx, event.NewEvent(typ, result.Application.Ref(), payload))
}

// GetNextStages returns the transitions leaving the current stage with
// their targets
func (s *workflowServiceImpl) GetNextStages(ctx context.Context, ref entity.AppRef) ([]NextStage, error) {
	app, snap, err := s.read(ctx, ref)
	if err != nil {
		return nil, err
	}

	outgoing := snap.Outgoing(app.CurrentStageID())
	next := make([]NextStage, 0, len(outgoing))
	for _, t := range outgoing {
		target, ok := snap.Stage(t.ToStageID)
		if !ok {
			continue
		}
		next = append(next, NextStage{Transition: t, Stage: target})
	}
	return next, nil
}

// GetActionConfig returns the presentation record of an action token
func (s *workflowServiceImpl) GetActionConfig(token string) ActionConfig {
	return s.actionTable.Lookup(token)
}

// AllowedActions returns the action tokens the user may trigger now
func (s *workflowServiceImpl) AllowedActions(ctx context.Context, ref entity.AppRef, user *entity.User) ([]string, error) {
	app, snap, err := s.read(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.projector.AllowedActions(snap, app.CurrentStageID(), user), nil
}

// CanProcess reports whether the user may advance the application now
func (s *workflowServiceImpl) CanProcess(ctx context.Context, ref entity.AppRef, user *entity.User) (bool, error) {
	app, snap, err := s.read(ctx, ref)
	if err != nil {
		return false, err
	}
	return mayProcess(snap, app.CurrentStageID(), user), nil
}

// View returns the application as seen by user
func (s *workflowServiceImpl) View(ctx context.Context, ref entity.AppRef, user *entity.User) (*ApplicationView, error) {
	app, snap, err := s.read(ctx, ref)
	if err != nil {
		return nil, err
	}

	view := &ApplicationView{
		ApplicationRecord:    app.Record(),
		CurrentStage:         app.CurrentStageID(),
		AllowedActions:       s.projector.AllowedActions(snap, app.CurrentStageID(), user),
		AllowedActionConfigs: map[string]ActionConfig{},
	}
	if st, ok := snap.Stage(app.CurrentStageID()); ok {
		view.CurrentStageName = st.Name
	}
	for _, a := range view.AllowedActions {
		view.AllowedActionConfigs[a] = s.actionTable.Lookup(a)
	}
	return view, nil
}

// History returns transactions newest first and every objection
func (s *workflowServiceImpl) History(ctx context.Context, ref entity.AppRef) (*History, error) {
	if _, err := s.registry.Load(ctx, ref); err != nil {
		return nil, err
	}

	txns, err := s.txns.ListByApplication(ctx, ref)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(txns)-1; i < j; i, j = i+1, j-1 {
		txns[i], txns[j] = txns[j], txns[i]
	}

	objections, err := s.objections.ListByApplication(ctx, ref)
	if err != nil {
		return nil, err
	}

	return &History{Application: ref, Transactions: txns, Objections: objections}, nil
}

// read loads an application without locking plus its catalog snapshot
func (s *workflowServiceImpl) read(ctx context.Context, ref entity.AppRef) (port.Application, *domainwf.Snapshot, error) {
	app, err := s.registry.Load(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	snap, err := s.readSource.LoadSnapshot(ctx, app.WorkflowID())
	if err != nil {
		return nil, nil, err
	}
	return app, snap, nil
}

// outcomeOf classifies an operation error for metrics
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domainwf.ErrStoreConflict):
		return "conflict"
	case errors.Is(err, domainwf.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domainwf.ErrNotFound):
		return "not_found"
	case errors.Is(err, domainwf.ErrMisconfigured):
		return "misconfigured"
	case domainwf.IsClientError(err):
		return "rejected"
	default:
		return "error"
	}
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, string, time.Duration) {}
func (nopObserver) ObserveTransition(string, string, string)       {}

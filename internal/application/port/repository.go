package port

import (
	"context"
	"time"

	"github.com/garyjia/excise-workflow/internal/domain/entity"
)

// Single-row lookups return (nil, nil) when the row does not exist.

// WorkflowRepository defines persistence operations for Workflow
type WorkflowRepository interface {
	Create(ctx context.Context, wf *entity.Workflow) error
	GetByID(ctx context.Context, id int64) (*entity.Workflow, error)
	GetByName(ctx context.Context, name string) (*entity.Workflow, error)
	List(ctx context.Context) ([]*entity.Workflow, error)
	Update(ctx context.Context, wf *entity.Workflow) error
	Delete(ctx context.Context, id int64) error
}

// StageRepository defines persistence operations for Stage
type StageRepository interface {
	Create(ctx context.Context, stage *entity.Stage) error
	GetByID(ctx context.Context, id int64) (*entity.Stage, error)
	ListByWorkflow(ctx context.Context, workflowID int64) ([]*entity.Stage, error)
	Update(ctx context.Context, stage *entity.Stage) error
	Delete(ctx context.Context, id int64) error
}

// TransitionRepository defines persistence operations for Transition
type TransitionRepository interface {
	Create(ctx context.Context, t *entity.Transition) error
	GetByID(ctx context.Context, id int64) (*entity.Transition, error)
	ListByWorkflow(ctx context.Context, workflowID int64) ([]*entity.Transition, error)

	// ListFrom returns the transitions leaving a stage ordered by id
	ListFrom(ctx context.Context, stageID int64) ([]*entity.Transition, error)

	Update(ctx context.Context, t *entity.Transition) error
	Delete(ctx context.Context, id int64) error
}

// PermissionRepository defines persistence operations for StagePermission
type PermissionRepository interface {
	Create(ctx context.Context, p *entity.StagePermission) error
	GetByID(ctx context.Context, id int64) (*entity.StagePermission, error)
	ListByStage(ctx context.Context, stageID int64) ([]*entity.StagePermission, error)
	ListByWorkflow(ctx context.Context, workflowID int64) ([]*entity.StagePermission, error)
	Update(ctx context.Context, p *entity.StagePermission) error
	Delete(ctx context.Context, id int64) error
}

// RoleRepository defines persistence operations for Role
type RoleRepository interface {
	Create(ctx context.Context, role *entity.Role) error
	GetByID(ctx context.Context, id int64) (*entity.Role, error)
	GetByName(ctx context.Context, name string) (*entity.Role, error)
	List(ctx context.Context) ([]*entity.Role, error)
	Update(ctx context.Context, role *entity.Role) error
	Delete(ctx context.Context, id int64) error
}

// TransactionLogRepository appends and reads the polymorphic audit log
type TransactionLogRepository interface {
	Append(ctx context.Context, txn *entity.Transaction) error

	// ListByApplication returns the application's transactions oldest first
	ListByApplication(ctx context.Context, app entity.AppRef) ([]*entity.Transaction, error)

	DeleteByApplication(ctx context.Context, app entity.AppRef) error
}

// ObjectionRepository defines persistence operations for Objection
type ObjectionRepository interface {
	Create(ctx context.Context, obj *entity.Objection) error
	ListByApplication(ctx context.Context, app entity.AppRef) ([]*entity.Objection, error)
	ListUnresolved(ctx context.Context, app entity.AppRef) ([]*entity.Objection, error)
	MarkResolved(ctx context.Context, ids []int64, at time.Time) error
	DeleteByApplication(ctx context.Context, app entity.AppRef) error
}

// RecordRepository stores the rows of one concrete application type
type RecordRepository interface {
	// Tag returns the application type tag served by this repository
	Tag() string

	Create(ctx context.Context, rec *entity.ApplicationRecord) error
	GetByID(ctx context.Context, id int64) (*entity.ApplicationRecord, error)

	// GetForUpdate reads the row and locks it until the surrounding
	// transaction ends
	GetForUpdate(ctx context.Context, id int64) (*entity.ApplicationRecord, error)

	List(ctx context.Context, limit, offset int) ([]*entity.ApplicationRecord, error)
	Update(ctx context.Context, rec *entity.ApplicationRecord) error
	Delete(ctx context.Context, id int64) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

package port

import (
	"context"

	"github.com/garyjia/excise-workflow/internal/domain/entity"
)

// Application is the capability set the workflow engine needs from any
// concrete application record. The engine never reaches into type specific
// fields except through this contract.
type Application interface {
	Ref() entity.AppRef
	Record() *entity.ApplicationRecord

	WorkflowID() int64
	CurrentStageID() int64
	SetCurrentStage(stageID int64)

	// Persist writes stage, payload and flags back to the store
	Persist(ctx context.Context) error

	// TransactionsOldestFirst returns the audit trail in replay order.
	// Each call reads the store again.
	TransactionsOldestFirst(ctx context.Context) ([]*entity.Transaction, error)

	UnresolvedObjections(ctx context.Context) ([]*entity.Objection, error)

	// Flag returns a typed hook flag; ok is false when the type has no such flag
	Flag(name string) (value bool, ok bool)

	// SetFlag sets a typed hook flag and reports whether the type exposes it
	SetFlag(name string, value bool) bool

	// SetField stores a value in the payload without validation
	SetField(name string, value any)

	// ApplyUpdates validates a partial update against the type's field rules
	// and merges it into the payload. Nothing is merged when validation fails.
	ApplyUpdates(ctx context.Context, fields map[string]any) error
}

// ApplicationLoader resolves a polymorphic reference to its application
type ApplicationLoader interface {
	Load(ctx context.Context, ref entity.AppRef) (Application, error)

	// LoadForUpdate locks the record for the rest of the transaction in ctx
	LoadForUpdate(ctx context.Context, ref entity.AppRef) (Application, error)
}

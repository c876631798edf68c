package workflow

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/garyjia/excise-workflow/internal/application/port"
	"github.com/garyjia/excise-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/excise-workflow/internal/domain/workflow"
	"github.com/garyjia/excise-workflow/pkg/utils"
)

// reservedFields are record columns that a payload update may not touch
var reservedFields = map[string]bool{
	"id":               true,
	"type":             true,
	"workflow_id":      true,
	"current_stage_id": true,
	"applicant_id":     true,
	"flags":            true,
	"created_at":       true,
	"updated_at":       true,
}

// recordApplication adapts a stored record to port.Application
type recordApplication struct {
	rec        *entity.ApplicationRecord
	spec       RecordSpec
	repo       port.RecordRepository
	txns       port.TransactionLogRepository
	objections port.ObjectionRepository
	validate   *validator.Validate
}

func (a *recordApplication) Ref() entity.AppRef                { return a.rec.Ref() }
func (a *recordApplication) Record() *entity.ApplicationRecord { return a.rec }
func (a *recordApplication) WorkflowID() int64                 { return a.rec.WorkflowID }
func (a *recordApplication) CurrentStageID() int64             { return a.rec.CurrentStageID }

func (a *recordApplication) SetCurrentStage(stageID int64) {
	a.rec.CurrentStageID = stageID
}

// Persist inserts a new record or updates an existing one
func (a *recordApplication) Persist(ctx context.Context) error {
	if a.rec.ID == 0 {
		return a.repo.Create(ctx, a.rec)
	}
	return a.repo.Update(ctx, a.rec)
}

func (a *recordApplication) TransactionsOldestFirst(ctx context.Context) ([]*entity.Transaction, error) {
	return a.txns.ListByApplication(ctx, a.Ref())
}

func (a *recordApplication) UnresolvedObjections(ctx context.Context) ([]*entity.Objection, error) {
	return a.objections.ListUnresolved(ctx, a.Ref())
}

func (a *recordApplication) Flag(name string) (bool, bool) {
	if !a.spec.HasFlag(name) {
		return false, false
	}
	return a.rec.Flags[name], true
}

func (a *recordApplication) SetFlag(name string, value bool) bool {
	if !a.spec.HasFlag(name) {
		return false
	}
	if a.rec.Flags == nil {
		a.rec.Flags = map[string]bool{}
	}
	a.rec.Flags[name] = value
	return true
}

func (a *recordApplication) SetField(name string, value any) {
	if a.rec.Payload == nil {
		a.rec.Payload = map[string]any{}
	}
	a.rec.Payload[name] = value
}

// ApplyUpdates validates fields against the type's rules and merges them
// into the payload. Nothing is merged unless every field passes.
func (a *recordApplication) ApplyUpdates(ctx context.Context, fields map[string]any) error {
	problems := utils.ValidateFields(a.validate, fields, a.spec.Fields)
	for name := range fields {
		if reservedFields[name] {
			problems[name] = "field cannot be updated"
		}
	}
	if len(problems) > 0 {
		return &domainwf.ValidationError{Fields: problems}
	}

	for name, value := range fields {
		a.SetField(name, value)
	}
	if a.rec.ID == 0 {
		return nil
	}
	if err := a.repo.Update(ctx, a.rec); err != nil {
		return fmt.Errorf("failed to save updated fields: %w", err)
	}
	return nil
}

var _ port.Application = (*recordApplication)(nil)

package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/excise-workflow/internal/application/port"
	"github.com/garyjia/excise-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/excise-workflow/internal/domain/workflow"
)

// forwardedTo decides who receives an application entering target.
//
// Applicant stages go back to the role of whoever performed the first
// transaction. Every other stage goes to its first processor role; a
// non-terminal stage without one is a catalog defect.
func forwardedTo(ctx context.Context, app port.Application, snap *domainwf.Snapshot, target *entity.Stage) (*int64, error) {
	if domainwf.ForwardPolicyOf(target) == domainwf.ForwardToApplicant {
		txns, err := app.TransactionsOldestFirst(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read transactions: %w", err)
		}
		if len(txns) > 0 {
			return txns[0].ForwardedByRoleID, nil
		}
		// no history yet: fall through to the processor rule
	}

	if role, ok := snap.ProcessorRole(target.ID); ok {
		id := role.ID
		return &id, nil
	}
	if target.IsFinal || domainwf.KindOf(target) == domainwf.KindTerminal {
		return nil, nil
	}
	return nil, domainwf.Misconfigured("stage %q has no processor role", target.Name)
}

// originatingStage finds the stage an application returns to after its
// objections are resolved: the stage of the most-recent-but-one transaction,
// or else the newest transaction stage that is not an objection stage.
func originatingStage(txns []*entity.Transaction, snap *domainwf.Snapshot) (*entity.Stage, error) {
	if len(txns) >= 2 {
		if id := txns[len(txns)-2].StageID; id != nil {
			if st, ok := snap.Stage(*id); ok {
				return st, nil
			}
		}
	}

	for i := len(txns) - 1; i >= 0; i-- {
		id := txns[i].StageID
		if id == nil {
			continue
		}
		st, ok := snap.Stage(*id)
		if !ok || domainwf.KindOf(st) == domainwf.KindObjection {
			continue
		}
		return st, nil
	}
	return nil, domainwf.ErrNoOriginatingStage
}

// originatingOfficer returns the role of whoever moved the application into
// stageID most recently
func originatingOfficer(txns []*entity.Transaction, stageID int64) *int64 {
	for i := len(txns) - 1; i >= 0; i-- {
		if id := txns[i].StageID; id != nil && *id == stageID {
			return txns[i].ForwardedByRoleID
		}
	}
	return nil
}

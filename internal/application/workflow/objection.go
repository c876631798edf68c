package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/garyjia/excise-workflow/internal/application/port"
	"github.com/garyjia/excise-workflow/internal/domain/entity"
	"github.com/garyjia/excise-workflow/internal/domain/event"
	domainwf "github.com/garyjia/excise-workflow/internal/domain/workflow"
	"github.com/garyjia/excise-workflow/pkg/utils"
)

// RaiseObjection records one objection per item and sends the application
// to the objection stage paired with the current officer stage. A zero
// targetStageID means the paired stage.
func (s *workflowServiceImpl) RaiseObjection(ctx context.Context, ref entity.AppRef, user *entity.User, targetStageID int64, items []entity.ObjectionItem, remarks string) (*Result, error) {
	remarks = utils.SanitizeString(remarks)

	result, err := s.mutate(ctx, OpRaise, ref, user, func(txCtx context.Context, app port.Application, snap *domainwf.Snapshot) (*Result, error) {
		from, err := currentStage(app, snap)
		if err != nil {
			return nil, err
		}
		if !mayProcess(snap, from.ID, user) {
			return nil, fmt.Errorf("%w: role %q cannot process stage %q", domainwf.ErrForbidden, user.RoleName(), from.Name)
		}
		if !domainwf.IsOfficerStage(from) {
			return nil, fmt.Errorf("%w: %q", domainwf.ErrNotOfficerStage, from.Name)
		}

		target, ok := snap.StageByName(domainwf.ObjectionStageName(from.Name))
		if !ok {
			return nil, domainwf.Misconfigured("workflow %q has no stage %q",
				snap.Workflow.Name, domainwf.ObjectionStageName(from.Name))
		}
		if targetStageID != 0 && targetStageID != target.ID {
			return nil, domainwf.Invalid("target_stage", fmt.Sprintf("objections from %q must go to %q", from.Name, target.Name))
		}

		items, err = cleanItems(items)
		if err != nil {
			return nil, err
		}

		cand, err := s.selector.SelectExplicit(snap, from.ID, target.ID, user, map[string]any{})
		if err != nil {
			return nil, err
		}

		stageID := target.ID
		objections := make([]*entity.Objection, 0, len(items))
		for _, item := range items {
			obj := &entity.Objection{
				App:       app.Ref(),
				FieldName: item.FieldName,
				Remarks:   item.Remarks,
				RaisedBy:  user.ID,
				StageID:   &stageID,
				RaisedOn:  s.now(),
			}
			if err := s.objections.Create(txCtx, obj); err != nil {
				return nil, err
			}
			objections = append(objections, obj)
		}

		text := remarks
		if text == "" {
			text = fmt.Sprintf("%d objection(s) raised", len(objections))
		}
		txn, err := s.enterStage(txCtx, app, snap, user, cand.Target, text)
		if err != nil {
			return nil, err
		}

		return &Result{
			FromStage:    from,
			ToStage:      cand.Target,
			Transactions: []*entity.Transaction{txn},
			Objections:   objections,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, event.TypeObjectionRaised, result, user, remarks)
	return result, nil
}

// cleanItems trims the items and rejects an empty list or a blank field
func cleanItems(items []entity.ObjectionItem) ([]entity.ObjectionItem, error) {
	if len(items) == 0 {
		return nil, domainwf.Invalid("objections", "at least one objection is required")
	}
	out := make([]entity.ObjectionItem, 0, len(items))
	for i, item := range items {
		field := strings.TrimSpace(item.FieldName)
		if field == "" {
			return nil, domainwf.Invalid(fmt.Sprintf("objections[%d].field", i), "field is required")
		}
		out = append(out, entity.ObjectionItem{FieldName: field, Remarks: utils.SanitizeString(item.Remarks)})
	}
	return out, nil
}

// ResolveObjections applies the applicant's corrections, closes the selected
// objections and returns the application to the stage it was objected from.
// An empty objectionIDs selects every unresolved objection.
func (s *workflowServiceImpl) ResolveObjections(ctx context.Context, ref entity.AppRef, user *entity.User, objectionIDs []int64, updatedFields map[string]any, remarks string) (*Result, error) {
	remarks = utils.SanitizeString(remarks)

	result, err := s.mutate(ctx, OpResolve, ref, user, func(txCtx context.Context, app port.Application, snap *domainwf.Snapshot) (*Result, error) {
		if !domainwf.IsLicenseeRole(user.RoleName()) {
			return nil, fmt.Errorf("%w: only the licensee may resolve objections", domainwf.ErrForbidden)
		}
		from, err := currentStage(app, snap)
		if err != nil {
			return nil, err
		}

		unresolved, err := app.UnresolvedObjections(txCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to read objections: %w", err)
		}
		selected := selectObjections(unresolved, objectionIDs)
		if len(selected) == 0 {
			return nil, domainwf.ErrNothingToResolve
		}

		if missing := missingUpdates(selected, updatedFields); len(missing) > 0 {
			return nil, &domainwf.MissingUpdatesError{Keys: missing}
		}
		if err := app.ApplyUpdates(txCtx, updatedFields); err != nil {
			return nil, err
		}

		now := s.now()
		ids := make([]int64, 0, len(selected))
		for _, o := range selected {
			ids = append(ids, o.ID)
		}
		if err := s.objections.MarkResolved(txCtx, ids, now); err != nil {
			return nil, err
		}
		for _, o := range selected {
			o.IsResolved = true
			resolvedOn := now
			o.ResolvedOn = &resolvedOn
		}

		txns, err := app.TransactionsOldestFirst(txCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to read transactions: %w", err)
		}
		officer := originatingOfficer(txns, from.ID)
		target, err := originatingStage(txns, snap)
		if err != nil {
			return nil, err
		}

		app.SetCurrentStage(target.ID)
		if err := app.Persist(txCtx); err != nil {
			return nil, fmt.Errorf("failed to save application: %w", err)
		}
		text := remarks
		if text == "" {
			text = "Objections resolved"
		}
		txn, err := s.appendTransaction(txCtx, app, user, target, officer, text)
		if err != nil {
			return nil, err
		}

		return &Result{
			FromStage:    from,
			ToStage:      target,
			Transactions: []*entity.Transaction{txn},
			Objections:   selected,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, event.TypeObjectionsResolved, result, user, remarks)
	return result, nil
}

// selectObjections keeps the unresolved objections named in ids, or all of
// them when ids is empty
func selectObjections(unresolved []*entity.Objection, ids []int64) []*entity.Objection {
	if len(ids) == 0 {
		return unresolved
	}
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*entity.Objection
	for _, o := range unresolved {
		if want[o.ID] {
			out = append(out, o)
		}
	}
	return out
}

// missingUpdates returns the sorted objected fields absent from updated
func missingUpdates(objections []*entity.Objection, updated map[string]any) []string {
	seen := map[string]bool{}
	var missing []string
	for _, o := range objections {
		if seen[o.FieldName] {
			continue
		}
		seen[o.FieldName] = true
		if _, ok := updated[o.FieldName]; !ok {
			missing = append(missing, o.FieldName)
		}
	}
	sort.Strings(missing)
	return missing
}

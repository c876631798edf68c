package workflow

import (
	"fmt"

	"github.com/garyjia/excise-workflow/internal/domain/entity"
)

// Rank is the submit priority key of a candidate transition. Lower wins,
// compared field by field.
type Rank struct {
	Action       int
	Permission   int
	Licensee     int
	Precedence   int
	TransitionID int64
}

// Less reports whether r sorts before o
func (r Rank) Less(o Rank) bool {
	if r.Action != o.Action {
		return r.Action < o.Action
	}
	if r.Permission != o.Permission {
		return r.Permission < o.Permission
	}
	if r.Licensee != o.Licensee {
		return r.Licensee < o.Licensee
	}
	if r.Precedence != o.Precedence {
		return r.Precedence < o.Precedence
	}
	return r.TransitionID < o.TransitionID
}

const (
	actionRankSubmit  = 0
	actionRankGeneric = 1
	actionRankOther   = 2
)

// Candidate is a transition together with its resolved target stage
type Candidate struct {
	Transition *entity.Transition
	Target     *entity.Stage
	Rank       Rank
}

// Selector picks the transition an operation should take
type Selector struct {
	eval *Evaluator
}

// NewSelector creates a selector backed by the given evaluator
func NewSelector(eval *Evaluator) *Selector {
	if eval == nil {
		eval = NewEvaluator(DefaultDocumentaryKeys)
	}
	return &Selector{eval: eval}
}

// Evaluator returns the condition evaluator used by the selector
func (s *Selector) Evaluator() *Evaluator {
	return s.eval
}

// SelectExplicit returns the single edge from -> to after checking its guard
func (s *Selector) SelectExplicit(snap *Snapshot, fromID, toID int64, user *entity.User, ctx map[string]any) (*Candidate, error) {
	t, ok := snap.Transition(fromID, toID)
	if !ok {
		return nil, fmt.Errorf("%w: %d -> %d", ErrInvalidTransition, fromID, toID)
	}
	target, ok := snap.Stage(toID)
	if !ok {
		return nil, NotFound("stage", toID)
	}
	if err := s.eval.Evaluate(ParseCondition(t.Condition), user, ctx); err != nil {
		return nil, err
	}
	return &Candidate{Transition: t, Target: target}, nil
}

// SelectSubmit ranks every transition leaving the initial stage and returns
// the winner. It never mutates the snapshot.
func (s *Selector) SelectSubmit(snap *Snapshot, fromID int64, user *entity.User) (*Candidate, error) {
	from, ok := snap.Stage(fromID)
	if !ok {
		return nil, NotFound("stage", fromID)
	}
	outgoing := snap.Outgoing(fromID)
	if len(outgoing) == 0 {
		return nil, Misconfigured("no transition from initial stage %q", from.Name)
	}

	var best *Candidate
	for _, t := range outgoing {
		target, ok := snap.Stage(t.ToStageID)
		if !ok {
			return nil, Misconfigured("transition %d targets stage %d outside workflow %q", t.ID, t.ToStageID, snap.Workflow.Name)
		}
		c := &Candidate{Transition: t, Target: target, Rank: s.RankSubmit(snap, t, user)}
		if best == nil || c.Rank.Less(best.Rank) {
			best = c
		}
	}

	if best.Rank.Action == actionRankOther {
		return nil, &NoSubmitTransitionError{Stage: from.Name, Role: user.RoleName()}
	}
	return best, nil
}

// RankSubmit computes the submit priority key of one transition
func (s *Selector) RankSubmit(snap *Snapshot, t *entity.Transition, user *entity.User) Rank {
	cond := ParseCondition(t.Condition)

	r := Rank{
		Action:       actionRankOther,
		Permission:   1,
		Precedence:   DefaultRolePrecedence,
		TransitionID: t.ID,
	}
	switch {
	case cond.Action == "":
		r.Action = actionRankGeneric
	case IsSubmitAction(cond.Action) && s.eval.RoleMatches(cond, user) == nil:
		r.Action = actionRankSubmit
	}

	if role, ok := snap.ProcessorRole(t.ToStageID); ok {
		r.Permission = 0
		if IsLicenseeRole(role.Name) {
			r.Licensee = 1
		}
		r.Precedence = role.Precedence
	}
	return r
}

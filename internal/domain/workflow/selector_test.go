package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/excise-workflow/internal/domain/entity"
)

func TestSelector_SelectExplicit(t *testing.T) {
	snap := licenseWorkflow(t)
	sel := NewSelector(nil)
	level1 := stageID(t, snap, "level_1")

	tests := []struct {
		name    string
		to      string
		user    *entity.User
		ctx     map[string]any
		wantErr error
	}{
		{name: "guard holds", to: "level_2", user: userWithRole(snap, "level_1"), ctx: map[string]any{"action": "forward"}},
		{name: "action omitted", to: "level_2", user: userWithRole(snap, "level_1")},
		{name: "wrong role", to: "level_2", user: userWithRole(snap, "level_2"), wantErr: ErrConditionFailed},
		{name: "wrong action", to: "level_2", user: userWithRole(snap, "level_1"), ctx: map[string]any{"action": "RETURN"}, wantErr: ErrConditionFailed},
		{name: "no edge", to: "approved", user: userWithRole(snap, "level_1"), wantErr: ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := sel.SelectExplicit(snap, level1, stageID(t, snap, tt.to), tt.user, tt.ctx)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, c.Target.Name)
		})
	}
}

func TestSelector_SelectSubmit_SubmitActionWins(t *testing.T) {
	snap := licenseWorkflow(t)
	sel := NewSelector(nil)

	c, err := sel.SelectSubmit(snap, stageID(t, snap, "draft"), userWithRole(snap, "licensee"))
	require.NoError(t, err)
	assert.Equal(t, "level_1", c.Target.Name)
	assert.Equal(t, 0, c.Rank.Action)
}

func TestSelector_SelectSubmit_PrecedenceTiebreak(t *testing.T) {
	b := NewBuilder("tiebreak").
		Role("licensee", 50).
		Role("slow_desk", 10).
		Role("fast_desk", 5)
	b.Configure("draft").Initial().Permit("desk_a").Permit("desk_b")
	b.Configure("desk_a").ProcessedBy("slow_desk")
	b.Configure("desk_b").ProcessedBy("fast_desk")
	snap := b.MustBuild()

	user := userWithRole(snap, "licensee")
	c, err := NewSelector(nil).SelectSubmit(snap, stageID(t, snap, "draft"), user)
	require.NoError(t, err)
	assert.Equal(t, "desk_b", c.Target.Name)
}

func TestSelector_SelectSubmit_LowerIDOnFullTie(t *testing.T) {
	b := NewBuilder("tie").Role("licensee", 50).Role("desk", 10)
	b.Configure("draft").Initial().Permit("first").Permit("second")
	b.Configure("first").ProcessedBy("desk")
	b.Configure("second").ProcessedBy("desk")
	snap := b.MustBuild()

	c, err := NewSelector(nil).SelectSubmit(snap, stageID(t, snap, "draft"), userWithRole(snap, "licensee"))
	require.NoError(t, err)
	assert.Equal(t, "first", c.Target.Name)
}

func TestSelector_SelectSubmit_RankOrder(t *testing.T) {
	b := NewBuilder("ranks").
		Role("licensee", 1).
		Role("clerk", 40).
		Role("applicant_desk", 2)
	b.Configure("draft").Initial().
		Permit("unstaffed").
		Permit("back_to_licensee").
		Permit("clerk_desk").
		PermitIf("review", map[string]any{"action": "APPROVE"})
	b.Configure("unstaffed")
	b.Configure("back_to_licensee").ProcessedBy("licensee")
	b.Configure("clerk_desk").ProcessedBy("clerk")
	b.Configure("review").ProcessedBy("applicant_desk")
	snap := b.MustBuild()

	sel := NewSelector(nil)
	user := userWithRole(snap, "licensee")
	draft := stageID(t, snap, "draft")

	ranks := map[string]Rank{}
	for _, tr := range snap.Outgoing(draft) {
		st, _ := snap.Stage(tr.ToStageID)
		ranks[st.Name] = sel.RankSubmit(snap, tr, user)
	}

	assert.Equal(t, 1, ranks["unstaffed"].Permission)
	assert.Equal(t, DefaultRolePrecedence, ranks["unstaffed"].Precedence)
	assert.Equal(t, 1, ranks["back_to_licensee"].Licensee)
	assert.Equal(t, 0, ranks["clerk_desk"].Licensee)
	assert.Equal(t, 2, ranks["review"].Action)

	c, err := sel.SelectSubmit(snap, draft, user)
	require.NoError(t, err)
	assert.Equal(t, "clerk_desk", c.Target.Name)
}

func TestSelector_SelectSubmit_SubmitActionNeedsRole(t *testing.T) {
	b := NewBuilder("guarded").Role("licensee", 50).Role("desk", 10).Role("clerk", 20)
	b.Configure("draft").Initial().
		PermitIf("desk", map[string]any{"action": "submit", "role": "clerk"})
	b.Configure("desk").ProcessedBy("desk")
	snap := b.MustBuild()

	_, err := NewSelector(nil).SelectSubmit(snap, stageID(t, snap, "draft"), userWithRole(snap, "licensee"))
	require.Error(t, err)

	var nse *NoSubmitTransitionError
	require.True(t, errors.As(err, &nse))
	assert.Equal(t, "draft", nse.Stage)
	assert.Equal(t, "licensee", nse.Role)
}

func TestSelector_SelectSubmit_OnlyNonSubmitActions(t *testing.T) {
	b := NewBuilder("bad").Role("licensee", 50).Role("desk", 10)
	b.Configure("draft").Initial().PermitIf("desk", map[string]any{"action": "APPROVE"})
	b.Configure("desk").ProcessedBy("desk")
	snap := b.MustBuild()

	_, err := NewSelector(nil).SelectSubmit(snap, stageID(t, snap, "draft"), userWithRole(snap, "licensee"))
	assert.ErrorIs(t, err, ErrNoSubmitTransition)
}

func TestSelector_SelectSubmit_NoOutgoing(t *testing.T) {
	b := NewBuilder("empty")
	b.Configure("draft").Initial()
	snap := b.MustBuild()

	_, err := NewSelector(nil).SelectSubmit(snap, stageID(t, snap, "draft"), &entity.User{ID: 1})
	assert.ErrorIs(t, err, ErrMisconfigured)
}

func TestSelector_SelectSubmitIsPure(t *testing.T) {
	snap := licenseWorkflow(t)
	sel := NewSelector(nil)
	user := userWithRole(snap, "licensee")
	draft := stageID(t, snap, "draft")

	first, err := sel.SelectSubmit(snap, draft, user)
	require.NoError(t, err)
	second, err := sel.SelectSubmit(snap, draft, user)
	require.NoError(t, err)

	assert.Equal(t, first.Transition.ID, second.Transition.ID)
	assert.Equal(t, first.Rank, second.Rank)
}

func TestRank_Less(t *testing.T) {
	base := Rank{Action: 1, Permission: 0, Licensee: 0, Precedence: 10, TransitionID: 5}

	tests := []struct {
		name  string
		other Rank
		less  bool
	}{
		{"action", Rank{Action: 0, Permission: 1, Licensee: 1, Precedence: 999, TransitionID: 9}, true},
		{"permission", Rank{Action: 1, Permission: 1, TransitionID: 1}, false},
		{"licensee", Rank{Action: 1, Licensee: 1, Precedence: 1, TransitionID: 1}, false},
		{"precedence", Rank{Action: 1, Precedence: 5, TransitionID: 9}, true},
		{"id", Rank{Action: 1, Precedence: 10, TransitionID: 4}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.less, tt.other.Less(base))
		})
	}
}

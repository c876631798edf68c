package workflow

import (
	"errors"
	"testing"

	"github.com/garyjia/excise-workflow/internal/domain/entity"
)

// licenseWorkflow builds the conventional license approval catalog
func licenseWorkflow(t *testing.T) *Snapshot {
	t.Helper()

	b := NewBuilder("license_approval").
		Role("licensee", 50).
		Role("level_1", 10).
		Role("level_2", 20).
		Role("level_3", 30)

	b.Configure("draft").Initial().
		ProcessedBy("licensee").
		PermitIf("level_1", map[string]any{"action": "submit"})
	b.Configure("level_1").
		ProcessedBy("level_1").
		PermitIf("level_2", map[string]any{"role": "level_1", "action": "FORWARD"}).
		PermitIf("level_1_objection", map[string]any{"role": "level_1", "action": "RETURN"})
	b.Configure("level_1_objection").
		ProcessedBy("licensee").
		PermitIf("level_1", map[string]any{"role": "licensee", "has_objections": false})
	b.Configure("level_2").
		ProcessedBy("level_2").
		PermitIf("awaiting_payment", map[string]any{"role": "level_2", "action": "APPROVE"})
	b.Configure("awaiting_payment").
		ProcessedBy("level_2").
		PermitIf("level_3", map[string]any{"role": "licensee", "action": "PAY"})
	b.Configure("level_3").
		ProcessedBy("level_3").
		PermitIf("approved", map[string]any{"role": "level_3", "action": "ISSUE"})
	b.Configure("approved").Final()

	snap, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	return snap
}

func stageID(t *testing.T, snap *Snapshot, name string) int64 {
	t.Helper()
	st, ok := snap.StageByName(name)
	if !ok {
		t.Fatalf("stage %q not found", name)
	}
	return st.ID
}

func userWithRole(snap *Snapshot, name string) *entity.User {
	for i := range snap.Roles {
		if snap.Roles[i].Name == name {
			role := snap.Roles[i]
			return &entity.User{ID: 100 + role.ID, Username: name + "_user", Role: &role}
		}
	}
	return &entity.User{ID: 1, Username: "norole"}
}

func TestSnapshot_InitialStage(t *testing.T) {
	snap := licenseWorkflow(t)

	st, ok := snap.InitialStage()
	if !ok {
		t.Fatal("InitialStage() found nothing")
	}
	if st.Name != "draft" {
		t.Errorf("InitialStage() = %v, want %v", st.Name, "draft")
	}
}

func TestSnapshot_Outgoing(t *testing.T) {
	snap := licenseWorkflow(t)

	tests := []struct {
		stage   string
		targets []string
	}{
		{"draft", []string{"level_1"}},
		{"level_1", []string{"level_2", "level_1_objection"}},
		{"approved", nil},
	}

	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			outgoing := snap.Outgoing(stageID(t, snap, tt.stage))
			if len(outgoing) != len(tt.targets) {
				t.Fatalf("Outgoing() returned %d transitions, want %d", len(outgoing), len(tt.targets))
			}
			for i, tr := range outgoing {
				st, _ := snap.Stage(tr.ToStageID)
				if st.Name != tt.targets[i] {
					t.Errorf("Outgoing()[%d] = %v, want %v", i, st.Name, tt.targets[i])
				}
			}
		})
	}
}

func TestSnapshot_CanProcess(t *testing.T) {
	snap := licenseWorkflow(t)
	level1 := stageID(t, snap, "level_1")

	tests := []struct {
		name     string
		user     *entity.User
		expected bool
	}{
		{"processor role", userWithRole(snap, "level_1"), true},
		{"other role", userWithRole(snap, "licensee"), false},
		{"no role", &entity.User{ID: 9}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := snap.CanProcess(level1, tt.user.RoleID()); got != tt.expected {
				t.Errorf("CanProcess() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSnapshot_ProcessorRole(t *testing.T) {
	snap := licenseWorkflow(t)

	role, ok := snap.ProcessorRole(stageID(t, snap, "level_2"))
	if !ok {
		t.Fatal("ProcessorRole() found nothing")
	}
	if role.Name != "level_2" || role.Precedence != 20 {
		t.Errorf("ProcessorRole() = %+v, want level_2 with precedence 20", role)
	}

	if _, ok := snap.ProcessorRole(stageID(t, snap, "approved")); ok {
		t.Error("ProcessorRole() should find nothing on a final stage without permissions")
	}
}

func TestSnapshot_ProcessorRoleNotLoaded(t *testing.T) {
	snap := NewSnapshot(
		entity.Workflow{ID: 1, Name: "w"},
		[]entity.Stage{{ID: 1, WorkflowID: 1, Name: "a"}},
		nil,
		[]entity.StagePermission{{ID: 1, StageID: 1, RoleID: 42, CanProcess: true}},
		nil,
	)

	role, ok := snap.ProcessorRole(1)
	if !ok {
		t.Fatal("ProcessorRole() found nothing")
	}
	if role.ID != 42 || role.Precedence != DefaultRolePrecedence {
		t.Errorf("ProcessorRole() = %+v, want id 42 with default precedence", role)
	}
}

func TestSnapshot_ReindexSortsByID(t *testing.T) {
	snap := NewSnapshot(
		entity.Workflow{ID: 1, Name: "w"},
		[]entity.Stage{{ID: 2, Name: "b"}, {ID: 1, Name: "a", IsInitial: true}, {ID: 3, Name: "c"}},
		[]entity.Transition{
			{ID: 9, FromStageID: 1, ToStageID: 3},
			{ID: 4, FromStageID: 1, ToStageID: 2},
		},
		nil,
		nil,
	)

	outgoing := snap.Outgoing(1)
	if len(outgoing) != 2 || outgoing[0].ID != 4 || outgoing[1].ID != 9 {
		t.Errorf("Outgoing() not ordered by id: %+v", outgoing)
	}
	if snap.Stages[0].ID != 1 {
		t.Errorf("Stages[0].ID = %v, want 1", snap.Stages[0].ID)
	}
}

func TestBuilder_ConfigureReturnsSameStage(t *testing.T) {
	b := NewBuilder("w")
	first := b.Configure("a")
	second := b.Configure("a")

	if first.stage != second.stage {
		t.Error("Configure() should return the same stage for the same name")
	}
}

func TestBuilder_BuildRejectsTwoInitialStages(t *testing.T) {
	b := NewBuilder("w")
	b.Configure("a").Initial()
	b.Configure("b").Initial()

	if _, err := b.Build(); err == nil {
		t.Fatal("Build() should fail with two initial stages")
	}
}

func TestBuilder_BuildRejectsDuplicateEdges(t *testing.T) {
	b := NewBuilder("w")
	b.Configure("a").Initial().Permit("b").PermitIf("b", map[string]any{"role": "x"})

	if _, err := b.Build(); err == nil {
		t.Fatal("Build() should fail with duplicate transitions")
	}
}

func TestBuilder_BuildRejectsInvalidKind(t *testing.T) {
	b := NewBuilder("w")
	b.Configure("a").Kind(StageKind("bogus"))
	b.Configure("b").ForwardTo(ForwardPolicy("nobody"))

	_, err := b.Build()
	if err == nil {
		t.Fatal("Build() should fail on invalid kind and forward policy")
	}
}

func TestBuilder_MustBuildPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustBuild() should panic on an invalid definition")
		}
	}()

	b := NewBuilder("w")
	b.Configure("").Initial()
	b.MustBuild()
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		stage    entity.Stage
		expected StageKind
	}{
		{"objection suffix", entity.Stage{Name: "level_2_objection"}, KindObjection},
		{"objection anywhere in name", entity.Stage{Name: "objection_review"}, KindObjection},
		{"awaiting payment", entity.Stage{Name: "awaiting_payment"}, KindAwaitingPayment},
		{"awaiting payment within name", entity.Stage{Name: "fee_awaiting_payment"}, KindAwaitingPayment},
		{"final", entity.Stage{Name: "approved", IsFinal: true}, KindTerminal},
		{"officer", entity.Stage{Name: "level_1"}, KindNormal},
		{"explicit kind wins", entity.Stage{Name: "level_1_objection", Kind: "normal"}, KindNormal},
		{"invalid explicit kind falls back", entity.Stage{Name: "payment_due", Kind: "weird"}, KindNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(&tt.stage); got != tt.expected {
				t.Errorf("KindOf() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestForwardPolicyOf(t *testing.T) {
	tests := []struct {
		name     string
		stage    entity.Stage
		expected ForwardPolicy
	}{
		{"objection", entity.Stage{Name: "level_1_objection"}, ForwardToApplicant},
		{"objection prefix", entity.Stage{Name: "objection_review"}, ForwardToApplicant},
		{"awaiting payment", entity.Stage{Name: "awaiting_payment"}, ForwardToApplicant},
		{"officer", entity.Stage{Name: "level_2"}, ForwardToProcessor},
		{"explicit policy", entity.Stage{Name: "fee_due", ForwardTo: "applicant"}, ForwardToApplicant},
		{"explicit kind", entity.Stage{Name: "fee_due", Kind: "awaiting_payment"}, ForwardToApplicant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ForwardPolicyOf(&tt.stage); got != tt.expected {
				t.Errorf("ForwardPolicyOf() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsOfficerStage(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{"level_1", true},
		{"level_12", true},
		{"level_1_objection", false},
		{"level_", false},
		{"draft", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsOfficerStage(&entity.Stage{Name: tt.name}); got != tt.expected {
				t.Errorf("IsOfficerStage(%q) = %v, want %v", tt.name, got, tt.expected)
			}
		})
	}
}

func TestErrors_Unwrap(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"condition", &ConditionError{Key: "role", Expected: "x"}, ErrConditionFailed},
		{"no submit", &NoSubmitTransitionError{Stage: "draft", Role: "x"}, ErrNoSubmitTransition},
		{"misconfigured", Misconfigured("stage %s", "x"), ErrMisconfigured},
		{"missing updates", &MissingUpdatesError{Keys: []string{"pan"}}, ErrMissingUpdates},
		{"not found", NotFound("stage", 3), ErrNotFound},
		{"validation", Invalid("field", "required"), ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.target)
			}
			if !IsClientError(tt.err) && tt.target != ErrMisconfigured {
				t.Errorf("IsClientError(%v) = false", tt.err)
			}
		})
	}

	if IsClientError(ErrStoreConflict) {
		t.Error("IsClientError(ErrStoreConflict) should be false")
	}
}

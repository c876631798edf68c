package catalog

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/excise-workflow/internal/domain/workflow"
	"github.com/garyjia/excise-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/excise-workflow/internal/testutil"
)

type recordingCache struct {
	mu          sync.Mutex
	invalidated []int64
}

func (c *recordingCache) Get(context.Context, int64) (*domainwf.Snapshot, error) { return nil, nil }
func (c *recordingCache) Set(context.Context, *domainwf.Snapshot) error          { return nil }

func (c *recordingCache) Invalidate(_ context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, id)
	return nil
}

func (c *recordingCache) reset() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.invalidated
	c.invalidated = nil
	return ids
}

func newTestService(t *testing.T) (Service, *recordingCache) {
	t.Helper()
	db := testutil.NewDB(t)
	logger := zap.NewNop()
	repos := Repositories{
		Workflows:   repository.NewWorkflowRepository(db, logger),
		Stages:      repository.NewStageRepository(db, logger),
		Transitions: repository.NewTransitionRepository(db, logger),
		Permissions: repository.NewPermissionRepository(db, logger),
		Roles:       repository.NewRoleRepository(db, logger),
	}
	cache := &recordingCache{}
	svc := NewService(repos, repository.NewSnapshotLoader(db, logger), db, testutil.Logger(t), WithCache(cache))
	return svc, cache
}

const seedPath = "../../../configs/workflows.yaml"

func TestImport_ShippedSeed(t *testing.T) {
	svc, cache := newTestService(t)
	ctx := context.Background()

	doc, err := LoadDocument(seedPath)
	require.NoError(t, err)

	problems, err := doc.Check()
	require.NoError(t, err)
	assert.Empty(t, problems)

	report, err := svc.Import(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 6, report.Workflows)
	assert.Equal(t, 6, report.Roles)
	assert.NotZero(t, report.Transitions)
	assert.Len(t, cache.reset(), 6)

	wf, err := svc.GetWorkflowByName(ctx, "License Approval")
	require.NoError(t, err)
	snap, err := svc.Snapshot(ctx, wf.ID)
	require.NoError(t, err)

	initial, ok := snap.InitialStage()
	require.True(t, ok)
	assert.Equal(t, "draft", initial.Name)
	role, ok := snap.ProcessorRole(mustStage(t, snap, "level_1").ID)
	require.True(t, ok)
	assert.Equal(t, "Permit Section", role.Name)

	tr, ok := snap.Transition(mustStage(t, snap, "level_1").ID, mustStage(t, snap, "level_1_objection").ID)
	require.True(t, ok)
	assert.Equal(t, true, tr.Condition["has_objections"])

	checked, err := svc.Check(ctx, wf.ID)
	require.NoError(t, err)
	assert.Empty(t, checked)

	t.Run("re-import changes nothing", func(t *testing.T) {
		again, err := svc.Import(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, ImportReport{}, *again)
	})

	t.Run("re-import applies edits", func(t *testing.T) {
		doc.Roles[1].Precedence = 5
		doc.Workflows[0].Stages[1].Description = "Permit section scrutiny"
		report, err := svc.Import(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Roles)
		assert.Equal(t, 1, report.Stages)

		roles, err := svc.ListRoles(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Permit Section", roles[0].Name)
	})
}

func mustStage(t *testing.T, snap *domainwf.Snapshot, name string) *entity.Stage {
	t.Helper()
	st, ok := snap.StageByName(name)
	require.True(t, ok, name)
	return st
}

func TestImport_Rejects(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "undeclared target",
			yaml: `
workflows:
  - name: Broken
    stages:
      - name: draft
        initial: true
        transitions:
          - to: nowhere
`,
		},
		{
			name: "stage without processor",
			yaml: `
roles:
  - name: Licensee
workflows:
  - name: Broken
    stages:
      - name: draft
        initial: true
        processed_by: [Licensee]
        transitions:
          - to: level_1
      - name: level_1
`,
		},
		{
			name: "unknown role",
			yaml: `
workflows:
  - name: Broken
    stages:
      - name: draft
        initial: true
        processed_by: [Ghost]
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseDocument([]byte(tt.yaml))
			require.NoError(t, err)
			_, err = svc.Import(ctx, doc)
			assert.ErrorIs(t, err, domainwf.ErrValidation)

			_, err = svc.GetWorkflowByName(ctx, "Broken")
			assert.ErrorIs(t, err, domainwf.ErrNotFound)
		})
	}

	t.Run("unknown yaml key", func(t *testing.T) {
		_, err := ParseDocument([]byte("workflows:\n  - name: x\n    colour: red\n"))
		assert.Error(t, err)
	})
}

func TestParseDocument_NestedConditionValues(t *testing.T) {
	doc, err := ParseDocument([]byte(`
workflows:
  - name: Nested
    stages:
      - name: draft
        initial: true
        transitions:
          - to: level_1
            condition:
              action: submit
              role_id: 3
              meta: {region: east}
      - name: level_1
`))
	require.NoError(t, err)
	cond := doc.Workflows[0].Stages[0].Transitions[0].Condition
	assert.Equal(t, 3, cond["role_id"])
	assert.Equal(t, map[string]interface{}{"region": "east"}, cond["meta"])
}

func TestCRUD_InvalidatesCache(t *testing.T) {
	svc, cache := newTestService(t)
	ctx := context.Background()

	wf := &entity.Workflow{Name: "Transit Permit"}
	require.NoError(t, svc.CreateWorkflow(ctx, wf))
	assert.Equal(t, []int64{wf.ID}, cache.reset())

	draft := &entity.Stage{WorkflowID: wf.ID, Name: "draft", IsInitial: true}
	require.NoError(t, svc.CreateStage(ctx, draft))
	level1 := &entity.Stage{WorkflowID: wf.ID, Name: "level_1"}
	require.NoError(t, svc.CreateStage(ctx, level1))
	assert.Equal(t, []int64{wf.ID, wf.ID}, cache.reset())

	role := &entity.Role{Name: "Officer In Charge", Precedence: 20}
	require.NoError(t, svc.CreateRole(ctx, role))
	assert.Equal(t, []int64{wf.ID}, cache.reset())

	perm := &entity.StagePermission{StageID: level1.ID, RoleID: role.ID, CanProcess: true}
	require.NoError(t, svc.CreatePermission(ctx, perm))
	tr := &entity.Transition{WorkflowID: wf.ID, FromStageID: draft.ID, ToStageID: level1.ID}
	require.NoError(t, svc.CreateTransition(ctx, tr))
	assert.Equal(t, []int64{wf.ID, wf.ID}, cache.reset())

	t.Run("lists", func(t *testing.T) {
		stages, err := svc.ListStages(ctx, wf.ID)
		require.NoError(t, err)
		assert.Len(t, stages, 2)

		from, err := svc.ListTransitionsFrom(ctx, draft.ID)
		require.NoError(t, err)
		require.Len(t, from, 1)
		assert.Equal(t, level1.ID, from[0].ToStageID)

		perms, err := svc.ListPermissions(ctx, level1.ID)
		require.NoError(t, err)
		assert.Len(t, perms, 1)
	})

	t.Run("stage validation", func(t *testing.T) {
		err := svc.CreateStage(ctx, &entity.Stage{WorkflowID: wf.ID, Name: "odd", Kind: "sideways"})
		var verr *domainwf.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "kind")
	})

	t.Run("permission on a missing stage", func(t *testing.T) {
		err := svc.CreatePermission(ctx, &entity.StagePermission{StageID: 999, RoleID: role.ID})
		assert.ErrorIs(t, err, domainwf.ErrNotFound)
	})

	t.Run("deletes", func(t *testing.T) {
		cache.reset()
		require.NoError(t, svc.DeleteTransition(ctx, tr.ID))
		require.NoError(t, svc.DeletePermission(ctx, perm.ID))
		assert.Equal(t, []int64{wf.ID, wf.ID}, cache.reset())

		_, err := svc.GetTransition(ctx, tr.ID)
		assert.ErrorIs(t, err, domainwf.ErrNotFound)
	})
}

func TestCanManage(t *testing.T) {
	assert.False(t, CanManage(nil))
	assert.False(t, CanManage(&entity.User{ID: 1}))
	assert.True(t, CanManage(&entity.User{ID: 1, IsSuperuser: true}))
	assert.True(t, CanManage(&entity.User{ID: 1, Role: &entity.Role{Name: "IT Cell", CanManageWorkflows: true}}))
}

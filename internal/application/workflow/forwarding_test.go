package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/excise-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/excise-workflow/internal/domain/workflow"
)

type memTxnLog struct {
	txns []*entity.Transaction
}

func (m *memTxnLog) Append(_ context.Context, txn *entity.Transaction) error {
	m.txns = append(m.txns, txn)
	return nil
}

func (m *memTxnLog) ListByApplication(context.Context, entity.AppRef) ([]*entity.Transaction, error) {
	return m.txns, nil
}

func (m *memTxnLog) DeleteByApplication(context.Context, entity.AppRef) error {
	m.txns = nil
	return nil
}

func forwardingWorkflow() *domainwf.Snapshot {
	b := domainwf.NewBuilder("License Approval").
		Role("licensee", 100).
		Role("level_1", 10).
		Role("cashier", 40)
	b.Configure("draft").Initial().ProcessedBy("licensee").Permit("level_1")
	b.Configure("level_1").ProcessedBy("level_1").Permit("level_1_objection").Permit("awaiting_payment").Permit("limbo")
	b.Configure("level_1_objection").ProcessedBy("licensee")
	b.Configure("awaiting_payment").ProcessedBy("cashier")
	b.Configure("limbo")
	b.Configure("closed").Final()
	return b.MustBuild()
}

func stageNamed(t *testing.T, snap *domainwf.Snapshot, name string) *entity.Stage {
	t.Helper()
	st, ok := snap.StageByName(name)
	require.True(t, ok, name)
	return st
}

func txnAt(stage *entity.Stage, byRole int64) *entity.Transaction {
	id := stage.ID
	return &entity.Transaction{StageID: &id, ForwardedByRoleID: &byRole}
}

func TestForwardedTo(t *testing.T) {
	ctx := context.Background()
	snap := forwardingWorkflow()
	licensee, _ := snap.Role(2)
	cashier, _ := snap.Role(4)

	log := &memTxnLog{}
	reg := NewRegistry(log, nil)
	require.NoError(t, reg.Register(DefaultRecordSpecs()[0], newMemRecordRepo(entity.TypeLicenseApplication)))
	app, err := reg.New(entity.TypeLicenseApplication, snap.Workflow.ID, stageNamed(t, snap, "draft").ID, 1)
	require.NoError(t, err)

	t.Run("applicant stage without history falls back to the processor", func(t *testing.T) {
		to, err := forwardedTo(ctx, app, snap, stageNamed(t, snap, "awaiting_payment"))
		require.NoError(t, err)
		assert.Equal(t, cashier.ID, *to)
	})

	log.txns = []*entity.Transaction{txnAt(stageNamed(t, snap, "draft"), licensee.ID)}

	t.Run("applicant stages go back to the first performer", func(t *testing.T) {
		for _, name := range []string{"awaiting_payment", "level_1_objection"} {
			to, err := forwardedTo(ctx, app, snap, stageNamed(t, snap, name))
			require.NoError(t, err)
			assert.Equal(t, licensee.ID, *to, name)
		}
	})

	t.Run("final stage without processor forwards to nobody", func(t *testing.T) {
		to, err := forwardedTo(ctx, app, snap, stageNamed(t, snap, "closed"))
		require.NoError(t, err)
		assert.Nil(t, to)
	})

	t.Run("open stage without processor is misconfigured", func(t *testing.T) {
		_, err := forwardedTo(ctx, app, snap, stageNamed(t, snap, "limbo"))
		assert.ErrorIs(t, err, domainwf.ErrMisconfigured)
	})
}

func TestOriginatingStage(t *testing.T) {
	snap := forwardingWorkflow()
	draft := stageNamed(t, snap, "draft")
	level1 := stageNamed(t, snap, "level_1")
	objection := stageNamed(t, snap, "level_1_objection")

	t.Run("most recent but one", func(t *testing.T) {
		st, err := originatingStage([]*entity.Transaction{txnAt(draft, 2), txnAt(level1, 2), txnAt(objection, 3)}, snap)
		require.NoError(t, err)
		assert.Equal(t, level1.ID, st.ID)
	})

	t.Run("short history skips objection stages", func(t *testing.T) {
		st, err := originatingStage([]*entity.Transaction{txnAt(objection, 3)}, snap)
		assert.ErrorIs(t, err, domainwf.ErrNoOriginatingStage)
		assert.Nil(t, st)

		st, err = originatingStage([]*entity.Transaction{txnAt(level1, 3)}, snap)
		require.NoError(t, err)
		assert.Equal(t, level1.ID, st.ID)
	})

	t.Run("no history", func(t *testing.T) {
		_, err := originatingStage(nil, snap)
		assert.ErrorIs(t, err, domainwf.ErrNoOriginatingStage)
	})

	t.Run("officer of the latest entry into a stage", func(t *testing.T) {
		txns := []*entity.Transaction{txnAt(objection, 7), txnAt(level1, 2), txnAt(objection, 3)}
		assert.Equal(t, int64(3), *originatingOfficer(txns, objection.ID))
		assert.Nil(t, originatingOfficer(txns, draft.ID))
	})
}

package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/workflow"
	"github.com/garyjia/excise-workflow/internal/domain/entity"
)

func ptr(v int64) *int64 { return &v }

func TestHistoryExporter_Export(t *testing.T) {
	ref := entity.AppRef{Type: "license", ID: 7}
	at := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	resolved := at.Add(2 * time.Hour)

	h := &workflow.History{
		Application: ref,
		Transactions: []*entity.Transaction{
			{ID: 2, App: ref, PerformedBy: 5, ForwardedByRoleID: ptr(10), ForwardedToRoleID: ptr(100), StageID: ptr(3), Remarks: "Objection raised", Timestamp: at.Add(time.Hour)},
			{ID: 1, App: ref, PerformedBy: 9, ForwardedByRoleID: ptr(100), StageID: ptr(1), Remarks: "Application created", Timestamp: at},
		},
		Objections: []*entity.Objection{
			{ID: 4, App: ref, FieldName: "address", Remarks: "Incomplete", RaisedBy: 5, StageID: ptr(2), IsResolved: true, RaisedOn: at, ResolvedOn: &resolved},
		},
	}
	labels := Labels{
		Stages: map[int64]string{1: "draft", 2: "level_1", 3: "level_1_objection"},
		Roles:  map[int64]string{10: "Permit Section"},
	}

	var buf bytes.Buffer
	require.NoError(t, NewHistoryExporter(zap.NewNop()).Export(&buf, h, labels))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{transactionsSheet, objectionsSheet}, f.GetSheetList())

	rows, err := f.GetRows(transactionsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"ID", "Timestamp", "Stage", "Performed By", "From Role", "To Role", "Remarks"}, rows[0])
	assert.Equal(t, []string{"2", "2026-03-04 10:30:00", "level_1_objection", "5", "Permit Section", "100", "Objection raised"}, rows[1])
	assert.Equal(t, "draft", rows[2][2])

	objRows, err := f.GetRows(objectionsSheet)
	require.NoError(t, err)
	require.Len(t, objRows, 2)
	assert.Equal(t, []string{"4", "address", "Incomplete", "level_1", "5", "2026-03-04 09:30:00", "yes", "2026-03-04 11:30:00"}, objRows[1])
}

func TestHistoryExporter_Empty(t *testing.T) {
	var buf bytes.Buffer
	h := &workflow.History{Application: entity.AppRef{Type: "license", ID: 1}}
	require.NoError(t, NewHistoryExporter(zap.NewNop()).Export(&buf, h, Labels{}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(objectionsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

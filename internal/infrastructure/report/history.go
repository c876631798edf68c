// Package report renders application audit trails as Excel workbooks.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/workflow"
)

const (
	transactionsSheet = "Transactions"
	objectionsSheet   = "Objections"
	timeLayout        = "2006-01-02 15:04:05"
)

// Labels turns catalog ids into names; unknown ids print as numbers
type Labels struct {
	Stages map[int64]string
	Roles  map[int64]string
}

func (l Labels) stage(id *int64) string {
	return lookup(l.Stages, id)
}

func (l Labels) role(id *int64) string {
	return lookup(l.Roles, id)
}

func lookup(names map[int64]string, id *int64) string {
	if id == nil {
		return ""
	}
	if name, ok := names[*id]; ok {
		return name
	}
	return strconv.FormatInt(*id, 10)
}

// HistoryExporter writes History values as xlsx
type HistoryExporter struct {
	logger *zap.Logger
}

// NewHistoryExporter creates an exporter
func NewHistoryExporter(logger *zap.Logger) *HistoryExporter {
	return &HistoryExporter{logger: logger}
}

// Export writes a workbook with one sheet of transactions and one of objections
func (e *HistoryExporter) Export(w io.Writer, h *workflow.History, labels Labels) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), transactionsSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if _, err := f.NewSheet(objectionsSheet); err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}

	e.writeRow(f, transactionsSheet, 1, "ID", "Timestamp", "Stage", "Performed By", "From Role", "To Role", "Remarks")
	for i, t := range h.Transactions {
		e.writeRow(f, transactionsSheet, i+2,
			t.ID,
			t.Timestamp.UTC().Format(timeLayout),
			labels.stage(t.StageID),
			t.PerformedBy,
			labels.role(t.ForwardedByRoleID),
			labels.role(t.ForwardedToRoleID),
			t.Remarks,
		)
	}

	e.writeRow(f, objectionsSheet, 1, "ID", "Field", "Remarks", "Stage", "Raised By", "Raised On", "Resolved", "Resolved On")
	for i, o := range h.Objections {
		resolvedOn := ""
		if o.ResolvedOn != nil {
			resolvedOn = o.ResolvedOn.UTC().Format(timeLayout)
		}
		e.writeRow(f, objectionsSheet, i+2,
			o.ID,
			o.FieldName,
			o.Remarks,
			labels.stage(o.StageID),
			o.RaisedBy,
			o.RaisedOn.UTC().Format(timeLayout),
			yesNo(o.IsResolved),
			resolvedOn,
		)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Debug("History exported",
		zap.String("application", h.Application.String()),
		zap.Int("transactions", len(h.Transactions)),
		zap.Int("objections", len(h.Objections)))
	return nil
}

// writeRow sets a header or data row starting at column A
func (e *HistoryExporter) writeRow(f *excelize.File, sheet string, row int, values ...any) {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		e.logger.Warn("Invalid row", zap.Int("row", row), zap.Error(err))
		return
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		e.logger.Warn("Failed to set row",
			zap.String("sheet", sheet),
			zap.Int("row", row),
			zap.Error(err))
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

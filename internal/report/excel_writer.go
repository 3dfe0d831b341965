// Package report renders import results as spreadsheets for the people who
// review a run.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/supplier-ingest/internal/models"
)

// FileName is the attachment name used when a report is archived with its run
const FileName = "report.xlsx"

// Sheet names
const (
	SheetSummary  = "Summary"
	SheetFailures = "Failures"
	SheetWarnings = "Warnings"
	SheetChunks   = "Chunks"
	SheetRules    = "Rules"
)

// Summary rows, label in column A, value in column B
const (
	cellRunID     = "B1"
	cellSource    = "B2"
	cellCreated   = "B3"
	cellUpdated   = "B4"
	cellFailed    = "B5"
	cellWarnings  = "B6"
	cellDuration  = "B7"
	cellCancelled = "B8"
	cellIDs       = "B9"
)

var summaryLabels = []string{"Run", "Source", "Created", "Updated", "Failed", "Warnings", "Duration", "Cancelled", "IDs"}

// ExcelWriter renders an ImportResult as an xlsx workbook
type ExcelWriter struct {
	logger *zap.Logger
}

// NewExcelWriter creates a new ExcelWriter
func NewExcelWriter(logger *zap.Logger) *ExcelWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExcelWriter{logger: logger}
}

// Render returns the workbook bytes for result
func (w *ExcelWriter) Render(result *models.ImportResult) ([]byte, error) {
	file, err := w.build(result)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	return buf.Bytes(), nil
}

// Write renders result into out
func (w *ExcelWriter) Write(out io.Writer, result *models.ImportResult) error {
	file, err := w.build(result)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := file.WriteTo(out); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (w *ExcelWriter) build(result *models.ImportResult) (*excelize.File, error) {
	if result == nil {
		return nil, fmt.Errorf("cannot render report: nil result")
	}

	file := excelize.NewFile()
	if err := file.SetSheetName("Sheet1", SheetSummary); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to name summary sheet: %w", err)
	}

	steps := []struct {
		name string
		fill func(*excelize.File, *models.ImportResult) error
	}{
		{SheetSummary, w.fillSummary},
		{SheetFailures, w.fillFailures},
		{SheetWarnings, w.fillWarnings},
		{SheetChunks, w.fillChunks},
		{SheetRules, w.fillRules},
	}
	for _, step := range steps {
		if err := step.fill(file, result); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to fill %s: %w", step.name, err)
		}
	}

	w.logger.Debug("Report rendered",
		zap.String("run_id", result.RunID),
		zap.Int("failed", len(result.Failed)),
		zap.Int("warnings", len(result.Warnings)))
	return file, nil
}

func (w *ExcelWriter) fillSummary(file *excelize.File, r *models.ImportResult) error {
	for i, label := range summaryLabels {
		if err := file.SetCellValue(SheetSummary, fmt.Sprintf("A%d", i+1), label); err != nil {
			return err
		}
	}

	values := []struct {
		cell  string
		value any
	}{
		{cellRunID, r.RunID},
		{cellSource, r.Source},
		{cellCreated, len(r.Created)},
		{cellUpdated, len(r.Updated)},
		{cellFailed, len(r.Failed)},
		{cellWarnings, len(r.Warnings)},
		{cellDuration, (time.Duration(r.DurationMS) * time.Millisecond).String()},
		{cellCancelled, r.Cancelled},
	}
	for _, v := range values {
		if err := file.SetCellValue(SheetSummary, v.cell, v.value); err != nil {
			return fmt.Errorf("failed to set %s: %w", v.cell, err)
		}
	}

	// ids run along row 9, one per column
	for i, id := range r.IDs() {
		cell, err := excelize.CoordinatesToCellName(i+2, 9)
		if err != nil {
			return err
		}
		if err := file.SetCellValue(SheetSummary, cell, id); err != nil {
			return err
		}
	}
	return nil
}

func (w *ExcelWriter) fillFailures(file *excelize.File, r *models.ImportResult) error {
	rows := make([][]any, 0, len(r.Failed))
	for _, f := range r.Failed {
		rows = append(rows, []any{f.RowIndex, string(f.Kind), f.Message})
	}
	return w.table(file, SheetFailures, []any{"Row", "Kind", "Message"}, rows)
}

func (w *ExcelWriter) fillWarnings(file *excelize.File, r *models.ImportResult) error {
	rows := make([][]any, 0, len(r.Warnings))
	for _, wr := range r.Warnings {
		rows = append(rows, []any{string(wr.Kind), wr.Scope, wr.Message})
	}
	return w.table(file, SheetWarnings, []any{"Kind", "Scope", "Message"}, rows)
}

func (w *ExcelWriter) fillChunks(file *excelize.File, r *models.ImportResult) error {
	if len(r.Chunks) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(r.Chunks))
	for _, c := range r.Chunks {
		rows = append(rows, []any{c.Index, c.Rows, c.Attempts, c.Products, c.OK, string(c.Kind), c.Error})
	}
	return w.table(file, SheetChunks, []any{"Chunk", "Rows", "Attempts", "Products", "OK", "Kind", "Error"}, rows)
}

func (w *ExcelWriter) fillRules(file *excelize.File, r *models.ImportResult) error {
	if r.BusinessRules.Empty() {
		return nil
	}
	rows := make([][]any, 0, len(r.BusinessRules.Rows))
	for _, row := range r.BusinessRules.Rows {
		cells := make([]any, len(row))
		for i, c := range row {
			cells[i] = c
		}
		rows = append(rows, cells)
	}
	return w.table(file, SheetRules, []any{r.BusinessRules.Sheet}, rows)
}

// table writes header and rows to a new sheet starting at A1
func (w *ExcelWriter) table(file *excelize.File, sheet string, header []any, rows [][]any) error {
	if _, err := file.NewSheet(sheet); err != nil {
		return err
	}
	if err := file.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := file.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("failed to set row %d: %w", i+2, err)
		}
	}
	return nil
}

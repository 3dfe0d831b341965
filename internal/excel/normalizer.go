// Package excel turns supplier price-list workbooks into raw row mappings.
// Header rows, anonymous columns, rule sheets and section labels are discovered
// heuristically because every supplier lays its workbook out differently.
package excel

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/supplier-ingest/internal/models"
	"github.com/garyjia/supplier-ingest/pkg/utils"
)

// Defaults for header detection
const (
	DefaultProbeRows      = 20
	DefaultMinHeaderCells = 3
)

// SheetReport describes what happened to one worksheet
type SheetReport struct {
	Name      string    `json:"name"`
	Kind      SheetKind `json:"kind"`
	HeaderRow int       `json:"header_row,omitempty"` // 1-based
	Columns   []string  `json:"columns,omitempty"`
	Rows      int       `json:"rows"`
	Dropped   int       `json:"dropped_category_rows,omitempty"`
}

// Result is a normalized workbook
type Result struct {
	ProviderHint  string
	Rows          []models.RawRow
	BusinessRules *models.BusinessRules
	Sheets        []SheetReport
}

// Normalizer reads price-list workbooks
type Normalizer struct {
	probeRows      int
	minHeaderCells int
	logger         *zap.Logger
}

// NewNormalizer creates a normalizer with the default header heuristics
func NewNormalizer(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		probeRows:      DefaultProbeRows,
		minHeaderCells: DefaultMinHeaderCells,
		logger:         logger,
	}
}

// Normalize opens the workbook at path. An unreadable workbook is the only error;
// problems inside sheets become warnings on rec.
func (n *Normalizer) Normalize(path string, rec models.Recorder) (*Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open workbook %s: %w", models.ErrParse, path, err)
	}
	defer f.Close()
	return n.NormalizeFile(f, rec)
}

// NormalizeFile normalizes an already opened workbook
func (n *Normalizer) NormalizeFile(f *excelize.File, rec models.Recorder) (*Result, error) {
	res := &Result{}
	providers := make(map[string]string)

	for _, sheet := range f.GetSheetList() {
		srec := models.Scoped(rec, "sheet "+sheet)
		report := SheetReport{Name: sheet}

		switch {
		case IsRuleSheet(sheet):
			rows, err := f.GetRows(sheet)
			if err != nil {
				return nil, fmt.Errorf("%w: failed to read sheet %s: %w", models.ErrParse, sheet, err)
			}
			n.appendRules(res, sheet, rows)
			report.Kind = SheetRules
			report.Rows = len(rows)
			n.logger.Info("Rule sheet captured", zap.String("sheet", sheet), zap.Int("rows", len(rows)))

		case IsIgnoredSheet(sheet):
			report.Kind = SheetIgnored
			models.Warn(srec, models.KindNotice, "", "sheet skipped: returns or claims")

		case !n.visible(f, sheet):
			report.Kind = SheetHidden
			models.Warn(srec, models.KindNotice, "", "hidden sheet skipped")

		default:
			rows, err := n.readTyped(f, sheet)
			if err != nil {
				return nil, err
			}
			n.extractSheet(sheet, rows, &report, res, providers, srec)
		}

		n.logger.Debug("Sheet processed",
			zap.String("sheet", sheet),
			zap.String("kind", string(report.Kind)),
			zap.Int("rows", report.Rows))
		res.Sheets = append(res.Sheets, report)
	}

	res.ProviderHint = providerHint(providers)
	if res.ProviderHint == "" {
		if props, err := f.GetAppProps(); err == nil && props != nil {
			res.ProviderHint = utils.NormalizeSpace(props.Company)
		}
	}

	n.logger.Info("Workbook normalized",
		zap.Int("sheets", len(res.Sheets)),
		zap.Int("rows", len(res.Rows)),
		zap.String("provider_hint", res.ProviderHint),
		zap.Bool("has_rules", res.BusinessRules != nil))
	return res, nil
}

func (n *Normalizer) visible(f *excelize.File, sheet string) bool {
	v, err := f.GetSheetVisible(sheet)
	if err != nil {
		return true
	}
	return v
}

func (n *Normalizer) appendRules(res *Result, sheet string, rows [][]string) {
	if res.BusinessRules == nil {
		res.BusinessRules = &models.BusinessRules{Sheet: sheet}
	}
	for _, r := range rows {
		res.BusinessRules.Rows = append(res.BusinessRules.Rows, append([]string(nil), r...))
	}
}

// readTyped returns the sheet as rows of string, float64 or nil cells.
// Numeric cells keep their stored value; everything else stays text.
func (n *Normalizer) readTyped(f *excelize.File, sheet string) ([][]any, error) {
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read sheet %s: %w", models.ErrParse, sheet, err)
	}

	rows := make([][]any, len(raw))
	for r, cells := range raw {
		row := make([]any, len(cells))
		for c, text := range cells {
			row[c] = n.typedCell(f, sheet, r, c, text)
		}
		rows[r] = row
	}
	return rows, nil
}

func (n *Normalizer) typedCell(f *excelize.File, sheet string, r, c int, text string) any {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	axis, err := excelize.CoordinatesToCellName(c+1, r+1)
	if err != nil {
		return text
	}
	typ, err := f.GetCellType(sheet, axis)
	if err != nil {
		return text
	}
	switch typ {
	case excelize.CellTypeUnset, excelize.CellTypeNumber, excelize.CellTypeDate:
		if v, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil {
			return v
		}
	}
	return text
}

// headerIndex returns the first probed row with enough text cells, or -1
func (n *Normalizer) headerIndex(rows [][]any) int {
	limit := min(len(rows), n.probeRows)
	for i := 0; i < limit; i++ {
		text := 0
		for _, v := range rows[i] {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				text++
			}
		}
		if text >= n.minHeaderCells {
			return i
		}
	}
	return -1
}

func (n *Normalizer) extractSheet(sheet string, rows [][]any, report *SheetReport, res *Result, providers map[string]string, rec models.Recorder) {
	if len(rows) == 0 {
		report.Kind = SheetEmpty
		return
	}

	h := n.headerIndex(rows)
	if h < 0 {
		report.Kind = SheetNoHeader
		models.Warn(rec, models.KindParse, "", "no header row found in the first %d rows, sheet skipped", n.probeRows)
		return
	}
	report.Kind = SheetProducts
	report.HeaderRow = h + 1

	header := rows[h]
	data := rows[h+1:]

	width := len(header)
	for _, r := range data {
		width = max(width, len(r))
	}

	// Keep columns with at least one value below the header
	var keep []int
	for c := 0; c < width; c++ {
		for _, r := range data {
			if c < len(r) && !models.IsBlank(r[c]) {
				keep = append(keep, c)
				break
			}
		}
	}

	kept := make([]any, len(keep))
	for i, c := range keep {
		if c < len(header) {
			kept[i] = header[c]
		}
	}
	columns := nameColumns(kept)
	report.Columns = columns
	lay := detectLayout(columns)

	for offset, r := range data {
		values := make([]any, len(keep))
		for i, c := range keep {
			if c < len(r) {
				values[i] = r[c]
			}
		}

		row := models.RawRow{Sheet: sheet, Line: h + offset + 2}
		row.Cells = make([]models.Cell, len(columns))
		for i, col := range columns {
			row.Cells[i] = models.Cell{Column: col, Value: values[i]}
		}
		if row.NonEmpty() == 0 {
			continue
		}
		if lay.isCategoryRow(values) {
			report.Dropped++
			continue
		}

		collectProvider(providers, columns, values)
		res.Rows = append(res.Rows, row)
		report.Rows++
	}
}

// collectProvider tracks the values seen in supplier/brand columns.
// A single distinct value across the workbook becomes the provider hint.
func collectProvider(providers map[string]string, columns []string, values []any) {
	for i, col := range columns {
		if !headerMatches(col, providerHeaderMarkers) {
			continue
		}
		v := utils.NormalizeSpace(cellText(values[i]))
		if v == "" {
			continue
		}
		providers[utils.FoldKey(v)] = v
	}
}

func providerHint(providers map[string]string) string {
	if len(providers) != 1 {
		return ""
	}
	for _, v := range providers {
		return v
	}
	return ""
}

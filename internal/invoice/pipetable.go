package invoice

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/garyjia/supplier-ingest/internal/locale"
	"github.com/garyjia/supplier-ingest/internal/models"
)

// ParsePipeTable reads markdown-style table rows ("| code | description ... | qty | price | total |").
// The first column is the code and the rightmost three are quantity, unit price and line total.
// Header and separator rows are skipped silently; rows with unparseable numbers are skipped with a warning.
func ParsePipeTable(text string, rec models.Recorder) []models.InvoiceLine {
	var lines []models.InvoiceLine
	for n, raw := range strings.Split(text, "\n") {
		if !strings.Contains(raw, "|") {
			continue
		}
		var cols []string
		for _, c := range strings.Split(raw, "|") {
			if c = strings.TrimSpace(c); c != "" {
				cols = append(cols, c)
			}
		}
		if len(cols) < 5 || !looksLikeCode(cols[0]) {
			continue
		}

		scope := fmt.Sprintf("text line %d", n+1)
		qty, err := locale.TryParseDecimal(cols[len(cols)-3])
		if err != nil {
			models.Warn(rec, models.KindParse, scope, "line skipped: quantity: %v", err)
			continue
		}
		price, err := locale.TryParseDecimal(strings.Fields(cols[len(cols)-2])[0])
		if err != nil {
			models.Warn(rec, models.KindParse, scope, "line skipped: unit price: %v", err)
			continue
		}
		total, err := locale.TryParseDecimal(cols[len(cols)-1])
		if err != nil {
			models.Warn(rec, models.KindParse, scope, "line skipped: line total: %v", err)
			continue
		}

		line, err := models.NewInvoiceLine(models.InvoiceLine{
			Code:        cols[0],
			Description: strings.Join(cols[1:len(cols)-3], " "),
			Qty:         qty,
			PriceUnit:   price,
			Subtotal:    total,
		})
		if err != nil {
			models.Warn(rec, models.KindValidation, scope, "line skipped: %v", err)
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// looksLikeCode accepts article codes: one token holding at least one digit, no separator-only cells
func looksLikeCode(s string) bool {
	if strings.ContainsAny(s, " \t") || strings.Trim(s, "-:") == "" {
		return false
	}
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

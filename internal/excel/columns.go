package excel

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/garyjia/supplier-ingest/internal/categorize"
	"github.com/garyjia/supplier-ingest/internal/models"
)

// AnonymousColumnPrefix names header cells that are blank
const AnonymousColumnPrefix = "columna_sin_nombre_"

var (
	codeHeaderMarkers     = []string{"cod", "ref", "sku", "articulo", "modelo", "ean"}
	priceHeaderMarkers    = []string{"precio", "pvp", "p.v.p", "coste", "costo", "importe", "neto", "tarifa", "price", "pvd"}
	providerHeaderMarkers = []string{"proveedor", "marca", "fabricante", "supplier", "brand"}
)

func headerMatches(column string, markers []string) bool {
	n := categorize.Normalize(column)
	for _, m := range markers {
		if strings.Contains(n, m) {
			return true
		}
	}
	return false
}

// cellText renders a typed cell as header text
func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// nameColumns turns header cells into unique, stripped column names.
// Blank names become columna_sin_nombre_{position}, 1-based; repeats get a _2, _3 suffix.
func nameColumns(header []any) []string {
	names := make([]string, len(header))
	seen := make(map[string]int)
	for i, h := range header {
		name := cellText(h)
		if name == "" {
			name = AnonymousColumnPrefix + strconv.Itoa(i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}
		names[i] = name
	}
	return names
}

// layout remembers which columns carry codes and prices in a sheet
type layout struct {
	code   int
	prices []int
}

func detectLayout(columns []string) layout {
	l := layout{code: -1}
	for i, c := range columns {
		if l.code < 0 && headerMatches(c, codeHeaderMarkers) {
			l.code = i
			continue
		}
		if headerMatches(c, priceHeaderMarkers) {
			l.prices = append(l.prices, i)
		}
	}
	if l.code < 0 && len(columns) > 0 {
		l.code = 0
	}
	return l
}

// isCategoryRow reports a section label: a single text cell in the code column, no prices
func (l layout) isCategoryRow(values []any) bool {
	filled := -1
	for i, v := range values {
		if models.IsBlank(v) {
			continue
		}
		if filled >= 0 {
			return false
		}
		filled = i
	}
	if filled != l.code {
		return false
	}
	if _, isText := values[filled].(string); !isText {
		return false
	}
	for _, p := range l.prices {
		if p < len(values) && !models.IsBlank(values[p]) {
			return false
		}
	}
	return true
}

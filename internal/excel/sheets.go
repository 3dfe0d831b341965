package excel

import (
	"strings"
	"unicode"

	"github.com/garyjia/supplier-ingest/internal/categorize"
)

// SheetKind classifies a worksheet before extraction
type SheetKind string

const (
	SheetProducts SheetKind = "products"
	SheetRules    SheetKind = "rules"
	SheetIgnored  SheetKind = "ignored"
	SheetHidden   SheetKind = "hidden"
	SheetNoHeader SheetKind = "no_header"
	SheetEmpty    SheetKind = "empty"
)

// Sheet names containing one of these fragments hold business rules, not products
var ruleSheetMarkers = []string{"reglas", "calculo", "tarifa", "formula"}

// Sheet names containing one of these words hold returns and claims
var ignoredSheetWords = map[string]bool{
	"devolucion":    true,
	"devoluciones":  true,
	"reclamacion":   true,
	"reclamaciones": true,
	"vendido":       true,
	"vendidos":      true,
	"roto":          true,
	"rotos":         true,
}

// IsRuleSheet reports whether a sheet name marks a business rule sheet
func IsRuleSheet(name string) bool {
	n := categorize.Normalize(name)
	for _, m := range ruleSheetMarkers {
		if strings.Contains(n, m) {
			return true
		}
	}
	return false
}

// IsIgnoredSheet reports whether a sheet lists returns, claims or sold-out stock.
// Matching is by whole word so "Protocolo" is not mistaken for "roto".
func IsIgnoredSheet(name string) bool {
	words := strings.FieldsFunc(categorize.Normalize(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if ignoredSheetWords[w] {
			return true
		}
	}
	return false
}

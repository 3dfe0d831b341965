package locale

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultMultipliers are the gross to net divisors for suppliers known to quote
// VAT-inclusive prices (1.262 = 21% VAT + 5.2% equivalence surcharge).
func DefaultMultipliers() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"ALMCE":      decimal.RequireFromString("1.262"),
		"NEVIR":      decimal.RequireFromString("1.262"),
		"WORTEN":     decimal.RequireFromString("1.21"),
		"MI ELECTRO": decimal.RequireFromString("1.21"),
		"JYSK":       decimal.RequireFromString("1.21"),
	}
}

type multiplier struct {
	key    string
	factor decimal.Decimal
}

// PriceAdjuster converts supplier prices to a net basis
type PriceAdjuster struct {
	entries []multiplier
}

// NewPriceAdjuster builds an adjuster from a supplier -> multiplier table.
// Longer keys are matched first so "MI ELECTRO PLUS" cannot be shadowed by a shorter key.
func NewPriceAdjuster(table map[string]decimal.Decimal) (*PriceAdjuster, error) {
	a := &PriceAdjuster{}
	for k, f := range table {
		key := strings.ToUpper(strings.TrimSpace(k))
		if key == "" {
			return nil, fmt.Errorf("price multiplier with empty supplier key")
		}
		if !f.IsPositive() {
			return nil, fmt.Errorf("price multiplier for %s must be positive, got %s", key, f)
		}
		a.entries = append(a.entries, multiplier{key: key, factor: f})
	}
	sort.Slice(a.entries, func(i, j int) bool {
		if len(a.entries[i].key) != len(a.entries[j].key) {
			return len(a.entries[i].key) > len(a.entries[j].key)
		}
		return a.entries[i].key < a.entries[j].key
	})
	return a, nil
}

// Lookup returns the multiplier that applies to supplier, if any
func (a *PriceAdjuster) Lookup(supplier string) (string, decimal.Decimal, bool) {
	name := strings.ToUpper(strings.TrimSpace(supplier))
	if a == nil || name == "" {
		return "", decimal.Decimal{}, false
	}
	for _, e := range a.entries {
		if strings.Contains(name, e.key) {
			return e.key, e.factor, true
		}
	}
	return "", decimal.Decimal{}, false
}

// Adjust divides price by the supplier's multiplier and rounds to two decimals.
// Unmatched suppliers get price back unchanged.
func (a *PriceAdjuster) Adjust(supplier string, price decimal.Decimal) decimal.Decimal {
	_, f, ok := a.Lookup(supplier)
	if !ok {
		return price
	}
	return price.Div(f).Round(2)
}

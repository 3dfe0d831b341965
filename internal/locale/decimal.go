// Package locale parses numbers and dates written the way European supplier
// documents write them, and converts gross supplier prices to net.
package locale

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garyjia/supplier-ingest/internal/models"
)

var (
	plainNumber = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)
	glyphs      = strings.NewReplacer("€", "", "$", "", "EUR", "", "eur", "", " ", "", " ", "", " ", "", "\t", "")
)

// ParseDecimal converts a cell or text value to a decimal. It never fails:
// blank input yields zero silently, unparseable input yields zero and a warning on rec.
func ParseDecimal(v any, rec models.Recorder) decimal.Decimal {
	d, err := TryParseDecimal(v)
	if err != nil {
		models.Warn(rec, models.KindParse, "", "%v, using 0", err)
		return decimal.Zero
	}
	return d
}

// TryParseDecimal is the strict form of ParseDecimal: blank input is zero,
// anything else must parse or an error wrapping models.ErrParse is returned.
func TryParseDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return t, nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero, nil
		}
		return decimal.NewFromFloat(t), nil
	case float32:
		return decimal.NewFromFloat32(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case string:
		return parseText(t)
	case fmt.Stringer:
		return parseText(t.String())
	default:
		return decimal.Zero, fmt.Errorf("%w: unsupported value %v (%T)", models.ErrParse, v, v)
	}
}

func parseText(raw string) (decimal.Decimal, error) {
	s := glyphs.Replace(strings.TrimSpace(raw))
	if s == "" {
		return decimal.Zero, nil
	}

	neg := false
	switch {
	case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"):
		neg, s = true, s[1:len(s)-1]
	case strings.HasSuffix(s, "-") && len(s) > 1:
		neg, s = true, s[:len(s)-1]
	}
	if strings.HasPrefix(s, "-") {
		neg, s = !neg, s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	s = unifySeparators(s)
	if !plainNumber.MatchString(s) {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", models.ErrParse, raw)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q: %v", models.ErrParse, raw, err)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// unifySeparators rewrites s so that "." is the only (decimal) separator.
//
//	both separators present  -> the rightmost one is decimal
//	one comma                -> decimal
//	several commas or dots   -> thousands
//	one dot, 3 digits after, 1-3 non-zero digits before -> thousands
func unifySeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	commas := strings.Count(s, ",")
	dots := strings.Count(s, ".")

	switch {
	case commas > 0 && dots > 0:
		if lastComma > lastDot {
			return strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case commas == 1:
		return strings.Replace(s, ",", ".", 1)
	case commas > 1:
		return strings.ReplaceAll(s, ",", "")
	case dots > 1:
		return strings.ReplaceAll(s, ".", "")
	case dots == 1:
		intPart, frac := s[:lastDot], s[lastDot+1:]
		if len(frac) == 3 && len(intPart) >= 1 && len(intPart) <= 3 && strings.Trim(intPart, "0") != "" {
			return intPart + frac
		}
	}
	return s
}

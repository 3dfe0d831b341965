package locale

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/garyjia/supplier-ingest/internal/models"
)

// Layouts tried in order. Single-digit days and months are accepted.
var dateLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2006-01-02",
}

var shortYear = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2})$`)

// Excel serials outside this range are treated as plain numbers, not dates
const (
	minExcelSerial = 20000 // 1954
	maxExcelSerial = 80000 // 2119
)

// ParseDate reads DD/MM/YYYY, DD-MM-YYYY, YYYY-MM-DD or DD/MM/YY (years 2000-2099).
// Excel date serials are accepted as well. The second result is false on failure.
func ParseDate(v any) (models.Date, bool) {
	switch t := v.(type) {
	case models.Date:
		return t, !t.IsZero()
	case time.Time:
		return models.NewDate(t.Year(), t.Month(), t.Day()), !t.IsZero()
	case float64:
		if t < minExcelSerial || t > maxExcelSerial {
			return models.Date{}, false
		}
		tm, err := excelize.ExcelDateToTime(t, false)
		if err != nil {
			return models.Date{}, false
		}
		return models.NewDate(tm.Year(), tm.Month(), tm.Day()), true
	case string:
		return parseDateText(t)
	default:
		return models.Date{}, false
	}
}

func parseDateText(raw string) (models.Date, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return models.Date{}, false
	}
	// "2024-03-01T00:00:00" and "2024-03-01 10:22" carry a time part we do not need
	if i := strings.IndexAny(s, "T "); i == 10 {
		s = s[:i]
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.NewDate(t.Year(), t.Month(), t.Day()), true
		}
	}

	if m := shortYear.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		t := time.Date(2000+year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		// time.Date normalizes 31/02 into March; reject instead
		if t.Day() != day || int(t.Month()) != month {
			return models.Date{}, false
		}
		return models.NewDate(t.Year(), t.Month(), t.Day()), true
	}
	return models.Date{}, false
}

// FormatISO renders d as YYYY-MM-DD
func FormatISO(d models.Date) string {
	return d.String()
}

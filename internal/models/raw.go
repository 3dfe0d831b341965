package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Cell is one named value of a RawRow. Value is a string, a float64 or nil.
type Cell struct {
	Column string
	Value  any
}

// RawRow is an ordered mapping from normalized column name to cell value
type RawRow struct {
	Sheet string
	Line  int // 1-based row number in the source sheet
	Cells []Cell
}

// Get returns the value stored under column
func (r RawRow) Get(column string) (any, bool) {
	for _, c := range r.Cells {
		if c.Column == column {
			return c.Value, true
		}
	}
	return nil, false
}

// Columns returns the column names in order
func (r RawRow) Columns() []string {
	cols := make([]string, len(r.Cells))
	for i, c := range r.Cells {
		cols[i] = c.Column
	}
	return cols
}

// NonEmpty counts cells holding a value other than nil or blank text
func (r RawRow) NonEmpty() int {
	n := 0
	for _, c := range r.Cells {
		if !IsBlank(c.Value) {
			n++
		}
	}
	return n
}

// IsBlank reports whether a cell value carries no data
func IsBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

// MarshalJSON writes the cells as a JSON object, keeping column order
func (r RawRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Cells {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Column)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ExtractionBatch is a contiguous chunk of rows sent to the model as one prompt
type ExtractionBatch struct {
	Rows    []RawRow
	Index   int
	Attempt int
}

// BusinessRules is the verbatim content of a workbook rule sheet
type BusinessRules struct {
	Sheet string     `json:"sheet"`
	Rows  [][]string `json:"rows"`
}

// Lines renders each non-empty rule row as one line of text
func (b *BusinessRules) Lines() []string {
	if b == nil {
		return nil
	}
	var lines []string
	for _, row := range b.Rows {
		var parts []string
		for _, cell := range row {
			if !IsBlank(cell) {
				parts = append(parts, cell)
			}
		}
		if len(parts) > 0 {
			lines = append(lines, strings.Join(parts, " | "))
		}
	}
	return lines
}

func (b *BusinessRules) Empty() bool {
	return len(b.Lines()) == 0
}

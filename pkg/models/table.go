package models

import (
	"fmt"

	"github.com/spf13/cast"
)

// Table is a header plus rows snapshot as shown by the broker's trading window.
type Table struct {
	Header []string `json:"header"`
	Rows   [][]any  `json:"rows"`
}

// NewTable builds a table and checks that every row matches the header width.
func NewTable(header []string, rows [][]any) (Table, error) {
	for i, row := range rows {
		if len(row) != len(header) {
			return Table{}, fmt.Errorf("row %d has %d cells, header has %d", i, len(row), len(header))
		}
	}
	if rows == nil {
		rows = [][]any{}
	}
	return Table{Header: header, Rows: rows}, nil
}

func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// Clone returns a deep enough copy that callers can't mutate cached rows.
func (t Table) Clone() Table {
	header := make([]string, len(t.Header))
	copy(header, t.Header)
	rows := make([][]any, len(t.Rows))
	for i, row := range t.Rows {
		rows[i] = make([]any, len(row))
		copy(rows[i], row)
	}
	return Table{Header: header, Rows: rows}
}

// Column returns the index of name in the header, or -1.
func (t Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// CellFloat reads a numeric cell, accepting numbers and numeric strings.
func CellFloat(row []any, idx int) (float64, error) {
	if idx < 0 {
		idx += len(row)
	}
	if idx < 0 || idx >= len(row) {
		return 0, fmt.Errorf("column %d out of range (%d cells)", idx, len(row))
	}
	return cast.ToFloat64E(row[idx])
}

// CellString reads a cell as text.
func CellString(row []any, idx int) string {
	if idx < 0 {
		idx += len(row)
	}
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return cast.ToString(row[idx])
}

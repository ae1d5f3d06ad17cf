// Package dataset turns raw tabular files into the deterministic numeric
// feature matrices the training and detection pipelines consume.
package dataset

import (
	"errors"
	"fmt"
)

// Matrix is an ordered set of named numeric columns with aligned rows.
// Once built it contains no missing values and no duplicate column names.
type Matrix struct {
	Columns []string
	Rows    [][]float64
}

func (m *Matrix) NumRows() int { return len(m.Rows) }

func (m *Matrix) NumCols() int { return len(m.Columns) }

// Validate checks the structural invariants. Reconcile output always
// passes; callers constructing matrices by hand should check.
func (m *Matrix) Validate() error {
	if m == nil || len(m.Columns) == 0 {
		return errors.New("matrix has no columns")
	}
	seen := make(map[string]struct{}, len(m.Columns))
	for _, name := range m.Columns {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate column name %q", name)
		}
		seen[name] = struct{}{}
	}
	for i, row := range m.Rows {
		if len(row) != len(m.Columns) {
			return fmt.Errorf("row %d has %d values, want %d", i, len(row), len(m.Columns))
		}
	}
	return nil
}

// Column returns the values of the named column, or nil if absent.
func (m *Matrix) Column(name string) []float64 {
	idx := -1
	for i, c := range m.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]float64, len(m.Rows))
	for i, row := range m.Rows {
		out[i] = row[idx]
	}
	return out
}

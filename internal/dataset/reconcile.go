package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/yungbote/benchwatch-backend/internal/mlerr"
)

// RawTable is a parsed tabular file before reconciliation: a header and
// string cells of whatever the source format produced.
type RawTable struct {
	Header  []string
	Records [][]string
}

// Reconcile produces a deterministic numeric matrix from a raw table.
// The step order is load-bearing: duplicate headers are renamed in
// first-seen order, cells are coerced to numbers, columns that are
// entirely missing are dropped BEFORE the remaining gaps are filled with
// zero. Dropping first keeps the column set stable across files of the
// same lineage that happen to carry sparse or empty columns.
func Reconcile(raw RawTable) (*Matrix, error) {
	if len(raw.Header) == 0 {
		return nil, fmt.Errorf("%w: table has no header", mlerr.ErrSchema)
	}

	columns := dedupeHeader(raw.Header)

	// Coerce every cell. Missing stays NaN until the fill step.
	nCols := len(columns)
	values := make([][]float64, len(raw.Records))
	for i, rec := range raw.Records {
		row := make([]float64, nCols)
		for j := 0; j < nCols; j++ {
			if j < len(rec) {
				row[j] = coerceNumeric(rec[j])
			} else {
				row[j] = math.NaN()
			}
		}
		values[i] = row
	}

	// Drop columns with no numeric value at all.
	keep := make([]int, 0, nCols)
	for j := 0; j < nCols; j++ {
		any := false
		for i := range values {
			if !math.IsNaN(values[i][j]) {
				any = true
				break
			}
		}
		if any {
			keep = append(keep, j)
		}
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("%w: all %d columns are empty or non-numeric", mlerr.ErrSchema, nCols)
	}

	outCols := make([]string, len(keep))
	for i, j := range keep {
		outCols[i] = columns[j]
	}
	outRows := make([][]float64, len(values))
	for i, row := range values {
		out := make([]float64, len(keep))
		for k, j := range keep {
			v := row[j]
			if math.IsNaN(v) {
				v = 0.0
			}
			out[k] = v
		}
		outRows[i] = out
	}

	return &Matrix{Columns: outCols, Rows: outRows}, nil
}

// dedupeHeader renames repeated column names by appending _1, _2, ... in
// first-seen order so identical raw headers always map to identical
// renamed headers.
func dedupeHeader(header []string) []string {
	out := make([]string, len(header))
	counts := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		n := counts[name]
		counts[name] = n + 1
		if n == 0 {
			out[i] = name
		} else {
			out[i] = fmt.Sprintf("%s_%d", name, n)
		}
	}
	return out
}

// coerceNumeric parses a cell, converting a locale decimal comma to a
// dot. Non-numeric and non-finite values become NaN (missing).
func coerceNumeric(cell string) float64 {
	s := strings.TrimSpace(cell)
	if s == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && strings.Contains(s, ",") {
		f, err = strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	}
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return math.NaN()
	}
	return f
}

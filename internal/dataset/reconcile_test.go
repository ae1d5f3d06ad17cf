package dataset

import (
	"errors"
	"reflect"
	"testing"

	"github.com/yungbote/benchwatch-backend/internal/mlerr"
)

func TestReconcileDedupesHeaders(t *testing.T) {
	raw := RawTable{
		Header: []string{"pressure", "flow", "pressure", "pressure"},
		Records: [][]string{
			{"1", "2", "3", "4"},
		},
	}
	m, err := Reconcile(raw)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	want := []string{"pressure", "flow", "pressure_1", "pressure_2"}
	if !reflect.DeepEqual(m.Columns, want) {
		t.Fatalf("columns=%v, want %v", m.Columns, want)
	}
}

func TestReconcileDecimalComma(t *testing.T) {
	raw := RawTable{
		Header: []string{"a", "b"},
		Records: [][]string{
			{"1,5", "2.25"},
			{"-0,125", "3"},
		},
	}
	m, err := Reconcile(raw)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if m.Rows[0][0] != 1.5 || m.Rows[1][0] != -0.125 {
		t.Fatalf("decimal comma not coerced: %v", m.Rows)
	}
}

func TestReconcileDropsEmptyColumnsBeforeFill(t *testing.T) {
	// The "label" column has no numeric value anywhere, so it must
	// disappear entirely instead of becoming a zero column.
	raw := RawTable{
		Header: []string{"a", "label", "b"},
		Records: [][]string{
			{"1", "ok", "2"},
			{"3", "fail", ""},
		},
	}
	m, err := Reconcile(raw)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	wantCols := []string{"a", "b"}
	if !reflect.DeepEqual(m.Columns, wantCols) {
		t.Fatalf("columns=%v, want %v", m.Columns, wantCols)
	}
	// The missing b cell in row 1 is zero-filled after the drop.
	if m.Rows[1][1] != 0 {
		t.Fatalf("missing cell not zero-filled: %v", m.Rows[1])
	}
}

func TestReconcileInfinityBecomesMissing(t *testing.T) {
	raw := RawTable{
		Header: []string{"a"},
		Records: [][]string{
			{"Inf"},
			{"1"},
		},
	}
	m, err := Reconcile(raw)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if m.Rows[0][0] != 0 {
		t.Fatalf("Inf should be treated as missing and zero-filled, got %v", m.Rows[0][0])
	}
}

func TestReconcileAllNonNumericIsSchemaError(t *testing.T) {
	raw := RawTable{
		Header: []string{"name", "status"},
		Records: [][]string{
			{"pump-1", "ok"},
			{"pump-2", "fail"},
		},
	}
	if _, err := Reconcile(raw); !errors.Is(err, mlerr.ErrSchema) {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestReconcileDeterministic(t *testing.T) {
	raw := RawTable{
		Header: []string{"x", "x", "y"},
		Records: [][]string{
			{"1", "2", ""},
			{"3,5", "bad", "7"},
		},
	}
	a, err := Reconcile(raw)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	b, err := Reconcile(raw)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("reconciliation not deterministic: %v vs %v", a, b)
	}
}

func TestReconcileShortRecordsPadded(t *testing.T) {
	raw := RawTable{
		Header: []string{"a", "b", "c"},
		Records: [][]string{
			{"1", "2", "3"},
			{"4"},
		},
	}
	m, err := Reconcile(raw)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	want := []float64{4, 0, 0}
	if !reflect.DeepEqual(m.Rows[1], want) {
		t.Fatalf("short record row=%v, want %v", m.Rows[1], want)
	}
}

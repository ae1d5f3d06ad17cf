// Package scaler maintains running per-feature statistics so feature
// normalization stays consistent across files arriving over time without
// ever holding the full history in memory.
package scaler

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/yungbote/benchwatch-backend/internal/dataset"
	"github.com/yungbote/benchwatch-backend/internal/mlerr"
)

const (
	// SchemaVersion tags persisted scaler state so an incompatible file
	// fails fast at load time.
	SchemaVersion = 1

	// epsilon floors the standard deviation to keep constant features
	// from dividing by zero.
	epsilon = 1e-8
)

// Scaler accumulates count, mean, and sum-of-squared-deviations per
// feature using Welford's algorithm.
type Scaler struct {
	Dim   int       `json:"dim"`
	Count float64   `json:"count"`
	Mean  []float64 `json:"mean"`
	M2    []float64 `json:"m2"`
}

func New(dim int) *Scaler {
	return &Scaler{
		Dim:  dim,
		Mean: make([]float64, dim),
		M2:   make([]float64, dim),
	}
}

// Fitted reports whether at least one row has been absorbed.
func (s *Scaler) Fitted() bool { return s.Count >= 1 }

// PartialFit absorbs one matrix into the running statistics. It must be
// called with each new file before that file is transformed for
// training, so the network always sees normalization consistent with the
// full history to date.
func (s *Scaler) PartialFit(m *dataset.Matrix) error {
	if m.NumCols() != s.Dim {
		return &mlerr.DimensionError{Want: s.Dim, Got: m.NumCols()}
	}
	for _, row := range m.Rows {
		s.Count++
		for j, v := range row {
			delta := v - s.Mean[j]
			s.Mean[j] += delta / s.Count
			s.M2[j] += delta * (v - s.Mean[j])
		}
	}
	return nil
}

// Std returns the per-feature sample standard deviation, floored at
// epsilon.
func (s *Scaler) Std() []float64 {
	out := make([]float64, s.Dim)
	for j := range out {
		v := 0.0
		if s.Count > 1 {
			v = s.M2[j] / (s.Count - 1)
		}
		std := math.Sqrt(v)
		if std < epsilon {
			std = epsilon
		}
		out[j] = std
	}
	return out
}

// Transform standardizes a matrix: (value - mean) / std per feature.
func (s *Scaler) Transform(m *dataset.Matrix) ([][]float64, error) {
	if m.NumCols() != s.Dim {
		return nil, &mlerr.DimensionError{Want: s.Dim, Got: m.NumCols()}
	}
	if !s.Fitted() {
		return nil, fmt.Errorf("scaler has not been fitted")
	}
	std := s.Std()
	out := make([][]float64, len(m.Rows))
	for i, row := range m.Rows {
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Mean[j]) / std[j]
		}
		out[i] = scaled
	}
	return out, nil
}

// persisted wraps the state with a schema discriminator.
type persisted struct {
	Schema int     `json:"schema"`
	State  *Scaler `json:"state"`
}

func (s *Scaler) Marshal() ([]byte, error) {
	return json.Marshal(persisted{Schema: SchemaVersion, State: s})
}

func Unmarshal(data []byte) (*Scaler, error) {
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.Schema != SchemaVersion {
		return nil, fmt.Errorf("unsupported scaler schema %d", p.Schema)
	}
	st := p.State
	if st == nil || st.Dim <= 0 || len(st.Mean) != st.Dim || len(st.M2) != st.Dim {
		return nil, fmt.Errorf("scaler state is malformed")
	}
	return st, nil
}

package autoencoder

import (
	"encoding/json"
	"fmt"
)

// StateSchemaVersion tags persisted network state so an incompatible
// file fails fast at load time instead of silently loading mismatched
// shapes.
const StateSchemaVersion = 1

// State is the lossless serialized form of a network.
type State struct {
	Schema    int         `json:"schema"`
	InputDim  int         `json:"input_dim"`
	HiddenDim int         `json:"hidden_dim"`
	W1        [][]float64 `json:"w1"`
	B1        []float64   `json:"b1"`
	W2        [][]float64 `json:"w2"`
	B2        []float64   `json:"b2"`
}

func (n *Network) State() State {
	return State{
		Schema:    StateSchemaVersion,
		InputDim:  n.InputDim,
		HiddenDim: n.HiddenDim,
		W1:        n.W1,
		B1:        n.B1,
		W2:        n.W2,
		B2:        n.B2,
	}
}

func (n *Network) Marshal() ([]byte, error) {
	return json.Marshal(n.State())
}

// FromState validates every shape before handing back a usable network.
func FromState(st State) (*Network, error) {
	if st.Schema != StateSchemaVersion {
		return nil, fmt.Errorf("unsupported autoencoder schema %d", st.Schema)
	}
	if st.InputDim <= 0 || st.HiddenDim <= 0 {
		return nil, fmt.Errorf("autoencoder state has invalid dimensions %dx%d", st.InputDim, st.HiddenDim)
	}
	if len(st.W1) != st.InputDim || len(st.W2) != st.HiddenDim ||
		len(st.B1) != st.HiddenDim || len(st.B2) != st.InputDim {
		return nil, fmt.Errorf("autoencoder state shapes do not match declared dimensions")
	}
	for _, row := range st.W1 {
		if len(row) != st.HiddenDim {
			return nil, fmt.Errorf("autoencoder W1 row width mismatch")
		}
	}
	for _, row := range st.W2 {
		if len(row) != st.InputDim {
			return nil, fmt.Errorf("autoencoder W2 row width mismatch")
		}
	}
	return &Network{
		InputDim:  st.InputDim,
		HiddenDim: st.HiddenDim,
		W1:        st.W1,
		B1:        st.B1,
		W2:        st.W2,
		B2:        st.B2,
	}, nil
}

func Unmarshal(data []byte) (*Network, error) {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return FromState(st)
}

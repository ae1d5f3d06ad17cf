package detect

// Result is one model's verdict on one feature matrix.
type Result struct {
	Version              int       `json:"version"`
	Policy               string    `json:"policy"`
	Threshold            float64   `json:"threshold"`
	ReconstructionErrors []float64 `json:"reconstruction_errors"`
	AnomalyIndices       []int     `json:"anomaly_indices"`
	Stats                Stats     `json:"stats"`
}

// Stats summarizes a detection run the way the operator console
// presents it.
type Stats struct {
	TotalPoints  int     `json:"total_points"`
	AnomalyCount int     `json:"anomaly_count"`
	AnomalyRate  float64 `json:"anomaly_rate"`
	MeanError    float64 `json:"mean_error"`
	MaxError     float64 `json:"max_error"`
	MinError     float64 `json:"min_error"`
}

// Evaluate applies a policy to reconstruction errors and assembles the
// result. Anomalies are the rows whose error strictly exceeds the
// threshold.
func Evaluate(errs []float64, policy ThresholdPolicy, custom float64, version int) (*Result, error) {
	threshold, err := policy.Threshold(errs, custom)
	if err != nil {
		return nil, err
	}

	indices := []int{}
	meanErr, maxErr, minErr := 0.0, 0.0, 0.0
	if len(errs) > 0 {
		maxErr = errs[0]
		minErr = errs[0]
	}
	for i, e := range errs {
		if e > threshold {
			indices = append(indices, i)
		}
		meanErr += e
		if e > maxErr {
			maxErr = e
		}
		if e < minErr {
			minErr = e
		}
	}
	if len(errs) > 0 {
		meanErr /= float64(len(errs))
	}

	rate := 0.0
	if len(errs) > 0 {
		rate = float64(len(indices)) / float64(len(errs))
	}
	return &Result{
		Version:              version,
		Policy:               policy.String(),
		Threshold:            threshold,
		ReconstructionErrors: errs,
		AnomalyIndices:       indices,
		Stats: Stats{
			TotalPoints:  len(errs),
			AnomalyCount: len(indices),
			AnomalyRate:  rate,
			MeanError:    meanErr,
			MaxError:     maxErr,
			MinError:     minErr,
		},
	}, nil
}

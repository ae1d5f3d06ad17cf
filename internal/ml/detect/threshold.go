// Package detect scores feature matrices against trained models and
// applies threshold policies to the resulting reconstruction errors.
package detect

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ThresholdPolicy is the closed set of ways to derive an anomaly cutoff
// from a batch of reconstruction errors. Unknown policy strings are an
// error rather than a silent fallthrough to the default.
type ThresholdPolicy int

const (
	PolicyMeanPlus2Std ThresholdPolicy = iota
	PolicyMeanPlus3Std
	Policy95thPercentile
	Policy99thPercentile
	PolicyCustom
)

// DefaultPolicy matches the historical operator default.
const DefaultPolicy = PolicyMeanPlus3Std

func (p ThresholdPolicy) String() string {
	switch p {
	case PolicyMeanPlus2Std:
		return "mean+2std"
	case PolicyMeanPlus3Std:
		return "mean+3std"
	case Policy95thPercentile:
		return "p95"
	case Policy99thPercentile:
		return "p99"
	case PolicyCustom:
		return "custom"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy accepts the canonical tokens plus the labels the legacy
// desktop tool showed operators.
func ParsePolicy(s string) (ThresholdPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return DefaultPolicy, nil
	case "mean+2std", "mean + 2×std", "mean + 2*std":
		return PolicyMeanPlus2Std, nil
	case "mean+3std", "mean + 3×std", "mean + 3*std":
		return PolicyMeanPlus3Std, nil
	case "p95", "95th percentile":
		return Policy95thPercentile, nil
	case "p99", "99th percentile":
		return Policy99thPercentile, nil
	case "custom", "custom value":
		return PolicyCustom, nil
	}
	return DefaultPolicy, fmt.Errorf("unknown threshold policy %q", s)
}

// Threshold computes the cutoff for a batch of errors. custom is only
// consulted by PolicyCustom.
func (p ThresholdPolicy) Threshold(errs []float64, custom float64) (float64, error) {
	if p != PolicyCustom && len(errs) == 0 {
		return 0, fmt.Errorf("no reconstruction errors to derive threshold from")
	}
	switch p {
	case PolicyMeanPlus2Std:
		m, s := meanStd(errs)
		return m + 2*s, nil
	case PolicyMeanPlus3Std:
		m, s := meanStd(errs)
		return m + 3*s, nil
	case Policy95thPercentile:
		return percentile(errs, 95), nil
	case Policy99thPercentile:
		return percentile(errs, 99), nil
	case PolicyCustom:
		return custom, nil
	}
	return 0, fmt.Errorf("unknown threshold policy %d", int(p))
}

// meanStd returns the mean and population standard deviation.
func meanStd(errs []float64) (float64, float64) {
	n := float64(len(errs))
	mean := 0.0
	for _, v := range errs {
		mean += v
	}
	mean /= n
	variance := 0.0
	for _, v := range errs {
		d := v - mean
		variance += d * d
	}
	variance /= n
	return mean, math.Sqrt(variance)
}

// percentile uses linear interpolation between closest ranks.
func percentile(errs []float64, q float64) float64 {
	sorted := append([]float64(nil), errs...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

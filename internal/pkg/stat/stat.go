// Package stat holds the small set of descriptive statistics shared by the
// pipeline stages: means, linear-interpolation quantiles and min-max
// normalization.
package stat

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Median is Quantile(values, 0.5).
func Median(values []float64) float64 {
	return Quantile(values, 0.5)
}

// Quantile returns the q-th quantile (0 ≤ q ≤ 1) using linear interpolation
// between closest ranks. The input is not modified. Empty input yields 0.
func Quantile(values []float64, q float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	q = math.Max(0, math.Min(1, q))
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// MinMax returns the smallest and largest value. Empty input yields 0, 0.
func MinMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Scaler maps values onto [0,1] by min-max normalization over a fitted
// population. A population with zero variance maps everything to 0.5.
type Scaler struct {
	Min, Max float64
}

// Fit builds a Scaler over values.
func Fit(values []float64) Scaler {
	lo, hi := MinMax(values)
	return Scaler{Min: lo, Max: hi}
}

// ZeroVariance reports whether the fitted population was constant.
func (s Scaler) ZeroVariance() bool {
	return s.Max-s.Min <= 0
}

// Scale normalizes v, clipped to [0,1].
func (s Scaler) Scale(v float64) float64 {
	if s.ZeroVariance() {
		return 0.5
	}
	return Clip01((v - s.Min) / (s.Max - s.Min))
}

// Clip01 clamps v into [0,1].
func Clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Package calc contains the pure numeric calculators used by the analysis
// engines. All functions are side-effect free and return zero-valued
// results for empty or singleton inputs instead of errors.
package calc

import "math"

// Mean returns the arithmetic mean, 0 for empty input.
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

// StdDev returns the population standard deviation, 0 for n < 2.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}

// Sum returns the total of the values.
func Sum(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum
}

// Volatility returns the coefficient of variation (stdev/mean). Returns 0
// when mean is 0 or fewer than two samples exist.
func Volatility(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	if mean == 0 {
		return 0
	}
	return StdDev(values) / math.Abs(mean)
}

// RoundCents rounds a dollar amount to cents precision.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

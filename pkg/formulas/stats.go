package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// PopStdDev calculates the population standard deviation (divisor N).
// Bollinger bands use the population form, matching TA-Lib's BBANDS.
func PopStdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	m := stat.Mean(data, nil)
	var sum float64
	for _, v := range data {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(data)))
}

// ChangePercent calculates the percentage change from previous to current.
// Returns 0 when previous is 0.
func ChangePercent(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return 100 * (current - previous) / previous
}

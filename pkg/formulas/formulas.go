// Package formulas provides the pure technical-indicator calculations used by
// the screening engine.
//
// All functions take price/volume series ordered most-recent-first (index 0 is
// the latest bar), mirroring how the price store returns data. Functions
// return nil when the series is shorter than the requested period.
package formulas

// chronological clips a most-recent-first series to its newest n entries and
// returns them oldest-first, which is the order go-talib expects.
func chronological(series []float64, n int) []float64 {
	if n > len(series) {
		n = len(series)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = series[n-1-i]
	}
	return out
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}

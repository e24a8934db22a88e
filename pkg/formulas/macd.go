package formulas

import (
	"github.com/markcheno/go-talib"
)

// MACD represents Moving Average Convergence Divergence values
type MACD struct {
	Value     float64 `json:"value"`     // EMA(fast) - EMA(slow)
	Signal    float64 `json:"signal"`    // EMA(signalPeriod) of the MACD line
	Histogram float64 `json:"histogram"` // Value - Signal
}

// CalculateMACD calculates MACD with the conventional 12/26/9 parameters.
//
// The signal line is the 9-period EMA of the MACD series. Returns nil when
// the series is too short for the slow EMA plus the signal EMA to settle.
func CalculateMACD(prices []float64, fast, slow, signal int) *MACD {
	if fast <= 0 || slow <= fast || signal <= 0 {
		return nil
	}
	// talib needs slow+signal-1 bars before the signal line is defined.
	if len(prices) < slow+signal {
		return nil
	}

	macd, sig, hist := talib.Macd(chronological(prices, len(prices)), fast, slow, signal)

	last := len(macd) - 1
	if last >= 0 && !isNaN(macd[last]) && !isNaN(sig[last]) {
		return &MACD{
			Value:     macd[last],
			Signal:    sig[last],
			Histogram: hist[last],
		}
	}

	return nil
}

package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateRSI calculates the Relative Strength Index over the newest
// `length` price changes (so it needs length+1 prices).
//
// RSI Formula:
//
//	RSI = 100 - (100 / (1 + RS))
//	where RS = Average Gain / Average Loss over N periods
//
// When there are no losses in the window the RSI is 100 by convention.
// Returns nil if insufficient data.
func CalculateRSI(prices []float64, length int) *float64 {
	if length <= 0 || len(prices) < length+1 {
		return nil
	}

	closes := chronological(prices, length+1)

	// Guard the zero-loss window explicitly: RS is undefined there and the
	// conventional answer is 100.
	var avgLoss float64
	for i := 1; i < len(closes); i++ {
		if diff := closes[i] - closes[i-1]; diff < 0 {
			avgLoss += -diff
		}
	}
	if avgLoss == 0 {
		result := 100.0
		return &result
	}

	rsi := talib.Rsi(closes, length)
	if len(rsi) > 0 && !isNaN(rsi[len(rsi)-1]) {
		result := rsi[len(rsi)-1]
		return &result
	}

	return nil
}

package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateSMA calculates the Simple Moving Average over the newest `length`
// prices.
//
// Returns nil if fewer than `length` prices are available.
func CalculateSMA(prices []float64, length int) *float64 {
	if length <= 0 || len(prices) < length {
		return nil
	}

	sma := talib.Sma(chronological(prices, length), length)
	if len(sma) > 0 && !isNaN(sma[len(sma)-1]) {
		result := sma[len(sma)-1]
		return &result
	}

	return nil
}

// CalculateEMA calculates the Exponential Moving Average.
//
// The EMA is seeded with the arithmetic mean of the oldest `length` prices in
// the window and walked forward with multiplier 2/(length+1). The window is
// capped at 2*length bars so old history stops mattering.
//
// Returns nil if fewer than `length` prices are available.
func CalculateEMA(prices []float64, length int) *float64 {
	if length <= 0 || len(prices) < length {
		return nil
	}

	ema := talib.Ema(chronological(prices, 2*length), length)
	if len(ema) > 0 && !isNaN(ema[len(ema)-1]) {
		result := ema[len(ema)-1]
		return &result
	}

	return nil
}

// CalculateAvgVolume calculates the arithmetic mean of the newest `length`
// volumes. Returns nil if fewer than `length` volumes are available.
func CalculateAvgVolume(volumes []float64, length int) *float64 {
	if length <= 0 || len(volumes) < length {
		return nil
	}

	avg := Mean(volumes[:length])
	return &avg
}

// IsAligned reports whether the moving averages form a bullish alignment:
// all four present and strictly decreasing with period (ma5 > ma20 > ma60 > ma112).
func IsAligned(ma5, ma20, ma60, ma112 *float64) bool {
	if ma5 == nil || ma20 == nil || ma60 == nil || ma112 == nil {
		return false
	}
	return *ma5 > *ma20 && *ma20 > *ma60 && *ma60 > *ma112
}

// RatioToMA expresses price as a percentage of a moving average (100 = at the
// MA). Returns nil when the MA is absent or zero.
func RatioToMA(price float64, ma *float64) *float64 {
	if ma == nil || *ma == 0 {
		return nil
	}
	ratio := 100 * price / *ma
	return &ratio
}

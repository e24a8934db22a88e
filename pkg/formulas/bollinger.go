package formulas

import (
	"github.com/markcheno/go-talib"
)

// BollingerBands represents Bollinger Bands values
type BollingerBands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// BandPosition describes where a price sits relative to the bands.
type BandPosition string

const (
	BandUpper  BandPosition = "upper"
	BandMiddle BandPosition = "middle"
	BandLower  BandPosition = "lower"
)

// CalculateBollingerBands calculates Bollinger Bands over the newest `length`
// prices.
//
//	Middle = SMA(length)
//	Upper  = Middle + multiplier * population stddev
//	Lower  = Middle - multiplier * population stddev
//
// Returns nil if fewer than `length` prices are available.
func CalculateBollingerBands(prices []float64, length int, multiplier float64) *BollingerBands {
	if length <= 0 || len(prices) < length {
		return nil
	}

	// MAType 0 = SMA. TA-Lib's BBANDS uses the population stddev, matching
	// the classical definition.
	upper, middle, lower := talib.BBands(chronological(prices, length), length, multiplier, multiplier, 0)

	if len(upper) > 0 && !isNaN(upper[len(upper)-1]) {
		return &BollingerBands{
			Upper:  upper[len(upper)-1],
			Middle: middle[len(middle)-1],
			Lower:  lower[len(lower)-1],
		}
	}

	return nil
}

// Position reports where price sits relative to the bands. A price at or
// beyond a band counts as being on that band.
func (b *BollingerBands) Position(price float64) BandPosition {
	switch {
	case price >= b.Upper:
		return BandUpper
	case price <= b.Lower:
		return BandLower
	default:
		return BandMiddle
	}
}

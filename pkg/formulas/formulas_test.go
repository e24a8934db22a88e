package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateSMA(t *testing.T) {
	// Newest-first closes
	closes := []float64{110, 108, 106, 104, 102}

	sma := CalculateSMA(closes, 5)
	require.NotNil(t, sma)
	assert.InDelta(t, 106.0, *sma, 1e-9)

	// Only the newest `length` entries count
	sma3 := CalculateSMA(closes, 3)
	require.NotNil(t, sma3)
	assert.InDelta(t, 108.0, *sma3, 1e-9)
}

func TestCalculateSMAInsufficientData(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	assert.Nil(t, CalculateSMA(closes, 112))
	assert.Nil(t, CalculateSMA(nil, 5))
	assert.Nil(t, CalculateSMA(closes, 0))
}

func TestRatioToMA(t *testing.T) {
	ma := 106.0
	ratio := RatioToMA(110, &ma)
	require.NotNil(t, ratio)
	assert.InDelta(t, 103.77, *ratio, 0.01)

	assert.Nil(t, RatioToMA(110, nil))

	zero := 0.0
	assert.Nil(t, RatioToMA(110, &zero))
}

// Ratio is invariant under equal scaling of price and MA.
func TestRatioToMAScaleInvariant(t *testing.T) {
	ma := 106.0
	scaled := ma * 1000
	r1 := RatioToMA(110, &ma)
	r2 := RatioToMA(110*1000, &scaled)
	require.NotNil(t, r1)
	require.NotNil(t, r2)
	assert.InDelta(t, *r1, *r2, 1e-9)
}

func TestCalculateEMA(t *testing.T) {
	// Chronological 1, 2, 3 with period 2:
	// seed = mean(1, 2) = 1.5, then 3*(2/3) + 1.5*(1/3) = 2.5
	closes := []float64{3, 2, 1}

	ema := CalculateEMA(closes, 2)
	require.NotNil(t, ema)
	assert.InDelta(t, 2.5, *ema, 1e-9)

	assert.Nil(t, CalculateEMA(closes, 4))
}

func TestCalculateAvgVolume(t *testing.T) {
	volumes := []float64{1000, 2000, 3000}

	avg := CalculateAvgVolume(volumes, 3)
	require.NotNil(t, avg)
	assert.InDelta(t, 2000, *avg, 1e-9)

	assert.Nil(t, CalculateAvgVolume(volumes, 4))
}

func TestIsAligned(t *testing.T) {
	ma5, ma20, ma60, ma112 := 110.0, 105.0, 100.0, 95.0

	assert.True(t, IsAligned(&ma5, &ma20, &ma60, &ma112))
	assert.False(t, IsAligned(&ma20, &ma5, &ma60, &ma112))
	assert.False(t, IsAligned(&ma5, &ma20, &ma60, nil))

	// Equality is not strict ordering
	equal := 105.0
	assert.False(t, IsAligned(&equal, &ma20, &ma60, &ma112))
}

func TestCalculateBollingerBands(t *testing.T) {
	// Alternating 102/98: mean 100, population stddev 2
	closes := make([]float64, 20)
	for i := range closes {
		if i%2 == 0 {
			closes[i] = 102
		} else {
			closes[i] = 98
		}
	}

	bands := CalculateBollingerBands(closes, 20, 2.0)
	require.NotNil(t, bands)
	assert.InDelta(t, 100.0, bands.Middle, 1e-9)
	assert.InDelta(t, 104.0, bands.Upper, 1e-9)
	assert.InDelta(t, 96.0, bands.Lower, 1e-9)

	assert.Nil(t, CalculateBollingerBands(closes[:10], 20, 2.0))
}

func TestBollingerPosition(t *testing.T) {
	bands := &BollingerBands{Upper: 104, Middle: 100, Lower: 96}

	assert.Equal(t, BandLower, bands.Position(95))
	assert.Equal(t, BandLower, bands.Position(96))
	assert.Equal(t, BandMiddle, bands.Position(97))
	assert.Equal(t, BandMiddle, bands.Position(100))
	assert.Equal(t, BandUpper, bands.Position(104))
	assert.Equal(t, BandUpper, bands.Position(110))
}

func TestCalculateRSI(t *testing.T) {
	// Chronological 10, 11, 10, 12: gains 1 + 2, loss 1 over 3 diffs
	// RS = 1 / (1/3) = 3, RSI = 100 - 100/4 = 75
	closes := []float64{12, 10, 11, 10}

	rsi := CalculateRSI(closes, 3)
	require.NotNil(t, rsi)
	assert.InDelta(t, 75.0, *rsi, 1e-9)
}

func TestCalculateRSIAllGains(t *testing.T) {
	// Monotonically rising prices: no losses, RSI is 100 by convention
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = float64(115 - i) // newest-first, strictly rising over time
	}

	rsi := CalculateRSI(closes, 14)
	require.NotNil(t, rsi)
	assert.InDelta(t, 100.0, *rsi, 1e-9)
}

func TestCalculateRSIInsufficientData(t *testing.T) {
	closes := []float64{12, 10, 11}
	assert.Nil(t, CalculateRSI(closes, 14))
}

func TestCalculateMACD(t *testing.T) {
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 100 + float64(i%7)
	}

	macd := CalculateMACD(closes, 12, 26, 9)
	require.NotNil(t, macd)
	assert.InDelta(t, macd.Value-macd.Signal, macd.Histogram, 1e-9)

	assert.Nil(t, CalculateMACD(closes[:20], 12, 26, 9))
	assert.Nil(t, CalculateMACD(closes, 26, 12, 9))
}

func TestCalculateIchimoku(t *testing.T) {
	n := 60
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		highs[i] = 110 + float64(i%5)
		lows[i] = 90 - float64(i%5)
		closes[i] = 100
	}

	ichi := CalculateIchimoku(highs, lows, closes, 9, 26, 52)
	require.NotNil(t, ichi)
	assert.InDelta(t, (114.0+86.0)/2, ichi.Tenkan, 1e-9)
	assert.InDelta(t, (114.0+86.0)/2, ichi.Kijun, 1e-9)
	assert.InDelta(t, (ichi.Tenkan+ichi.Kijun)/2, ichi.SpanA, 1e-9)
	assert.InDelta(t, (114.0+86.0)/2, ichi.SpanB, 1e-9)
	assert.InDelta(t, 100.0, ichi.Chikou, 1e-9)

	assert.Nil(t, CalculateIchimoku(highs[:40], lows[:40], closes[:40], 9, 26, 52))
}

func TestPopStdDev(t *testing.T) {
	assert.InDelta(t, 2.0, PopStdDev([]float64{102, 98, 102, 98}), 1e-9)
	assert.InDelta(t, 0.0, PopStdDev([]float64{5, 5, 5}), 1e-9)
	assert.InDelta(t, 0.0, PopStdDev(nil), 1e-9)
}

func TestChangePercent(t *testing.T) {
	assert.InDelta(t, 10.0, ChangePercent(110, 100), 1e-9)
	assert.InDelta(t, -50.0, ChangePercent(50, 100), 1e-9)
	assert.InDelta(t, 0.0, ChangePercent(50, 0), 1e-9)
}

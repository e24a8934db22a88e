package formulas

// Ichimoku represents the Ichimoku cloud components for the latest bar.
type Ichimoku struct {
	Tenkan float64 `json:"tenkan"` // Conversion line: (hi9 + lo9) / 2
	Kijun  float64 `json:"kijun"`  // Base line: (hi26 + lo26) / 2
	SpanA  float64 `json:"spanA"`  // Leading span A: (tenkan + kijun) / 2
	SpanB  float64 `json:"spanB"`  // Leading span B: (hi52 + lo52) / 2
	Chikou float64 `json:"chikou"` // Lagging span: most recent close
}

// CalculateIchimoku calculates the Ichimoku cloud with the conventional
// 9/26/52 periods. Highs, lows and closes are most-recent-first and must all
// cover at least `senkou` bars.
func CalculateIchimoku(highs, lows, closes []float64, tenkan, kijun, senkou int) *Ichimoku {
	if tenkan <= 0 || kijun < tenkan || senkou < kijun {
		return nil
	}
	if len(highs) < senkou || len(lows) < senkou || len(closes) == 0 {
		return nil
	}

	t := (maxOf(highs[:tenkan]) + minOf(lows[:tenkan])) / 2
	k := (maxOf(highs[:kijun]) + minOf(lows[:kijun])) / 2

	return &Ichimoku{
		Tenkan: t,
		Kijun:  k,
		SpanA:  (t + k) / 2,
		SpanB:  (maxOf(highs[:senkou]) + minOf(lows[:senkou])) / 2,
		Chikou: closes[0],
	}
}

func maxOf(data []float64) float64 {
	m := data[0]
	for _, v := range data[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(data []float64) float64 {
	m := data[0]
	for _, v := range data[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

package screener

import "time"

// MatchedStock is one instrument that passed every enabled gate, enriched
// with the indicator values computed during evaluation. Scalar indicator
// fields are rounded to two decimals; prices follow the market's currency
// precision (whole won, cent dollars).
type MatchedStock struct {
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	Market        string  `json:"market"`
	CurrentPrice  float64 `json:"currentPrice"`
	ChangePercent float64 `json:"changePercent"`
	Volume        uint64  `json:"volume"`

	MA5   *float64 `json:"ma5,omitempty"`
	MA20  *float64 `json:"ma20,omitempty"`
	MA60  *float64 `json:"ma60,omitempty"`
	MA112 *float64 `json:"ma112,omitempty"`
	MA224 *float64 `json:"ma224,omitempty"`

	MA60Ratio  *float64 `json:"ma60Ratio,omitempty"`
	MA112Ratio *float64 `json:"ma112Ratio,omitempty"`
	MA224Ratio *float64 `json:"ma224Ratio,omitempty"`

	BBUpper      *float64 `json:"bbUpper,omitempty"`
	BBMiddle     *float64 `json:"bbMiddle,omitempty"`
	BBLower      *float64 `json:"bbLower,omitempty"`
	BandPosition string   `json:"bandPosition,omitempty"`

	AvgVolume20 *float64 `json:"avgVolume20,omitempty"`

	MarketCap *int64   `json:"marketCap,omitempty"`
	PER       *float64 `json:"per,omitempty"`
	PBR       *float64 `json:"pbr,omitempty"`
}

// ScreeningResult is the outcome of one screening run. Immutable once
// produced; match order follows chunk completion, not input order.
type ScreeningResult struct {
	Matches       []MatchedStock `json:"matches"`
	TotalScanned  int            `json:"totalScanned"`
	MatchedCount  int            `json:"matchedCount"`
	ExecutionMs   int64          `json:"executionMs"`
	CapturedAt    time.Time      `json:"capturedAt"`
	UniverseLabel string         `json:"universeLabel"`
}

package screener

import (
	"fmt"

	"github.com/stockhunter/stockhunter/internal/domain"
)

// ScreeningCondition is the declarative predicate set a screening run
// evaluates. Field names mirror the public API body.
type ScreeningCondition struct {
	// Optional per-request broker credentials; fall back to the configured
	// application keys when empty.
	AppKey       string `json:"appKey,omitempty"`
	AppSecret    string `json:"appSecret,omitempty"`
	IsProduction bool   `json:"isProduction,omitempty"`

	MA60Enabled bool `json:"ma60Enabled"`
	MA60Min     int  `json:"ma60Min"`
	MA60Max     int  `json:"ma60Max"`

	MA112Enabled bool `json:"ma112Enabled"`
	MA112Min     int  `json:"ma112Min"`
	MA112Max     int  `json:"ma112Max"`

	MA224Enabled bool `json:"ma224Enabled"`
	MA224Min     int  `json:"ma224Min"`
	MA224Max     int  `json:"ma224Max"`

	BBEnabled    bool    `json:"bbEnabled"`
	BBPeriod     int     `json:"bbPeriod"`
	BBMultiplier float64 `json:"bbMultiplier"`
	BBPosition   string  `json:"bbPosition"`
	BBUpperBreak bool    `json:"bbUpperBreak"`
	BBLowerBreak bool    `json:"bbLowerBreak"`

	VolumeEnabled  bool    `json:"volumeEnabled"`
	VolumeMultiple float64 `json:"volumeMultiple"`

	PriceChangeEnabled bool    `json:"priceChangeEnabled"`
	PriceChangeMin     float64 `json:"priceChangeMin"`
	PriceChangeMax     float64 `json:"priceChangeMax"`

	ExcludeETF        bool `json:"excludeETF"`
	ExcludeETN        bool `json:"excludeETN"`
	ExcludeManagement bool `json:"excludeManagement"`

	MarketCapEnabled bool  `json:"marketCapEnabled"`
	MarketCapMin     int64 `json:"marketCapMin"`
	MarketCapMax     int64 `json:"marketCapMax"`

	PEREnabled bool    `json:"perEnabled"`
	PERMin     float64 `json:"perMin"`
	PERMax     float64 `json:"perMax"`

	PBREnabled bool    `json:"pbrEnabled"`
	PBRMin     float64 `json:"pbrMin"`
	PBRMax     float64 `json:"pbrMax"`

	MAAlignment bool `json:"maAlignment"`

	// Empty means scan the full universe.
	TargetCodes []string `json:"targetCodes"`
}

// DefaultCondition returns the defaults the API applies before decoding a
// request body over them.
func DefaultCondition() ScreeningCondition {
	return ScreeningCondition{
		MA60Min: 95, MA60Max: 105,
		MA112Enabled: true, MA112Min: 95, MA112Max: 105,
		MA224Min: 95, MA224Max: 105,
		BBPeriod:       20,
		BBMultiplier:   2.0,
		BBPosition:     BandPositionAll,
		VolumeMultiple: 1.5,
		PriceChangeMin: -100, PriceChangeMax: 100,
		ExcludeETF: true,
		ExcludeETN: true,
		MarketCapMax: 1_000_000_000_000,
		PERMax:       30,
		PBRMax:       10,
	}
}

// BandPositionAll accepts any band position.
const BandPositionAll = "all"

var validBBPeriods = map[int]bool{10: true, 20: true, 30: true}
var validBBMultipliers = map[float64]bool{1.5: true, 2.0: true, 3.0: true}
var validBBPositions = map[string]bool{BandPositionAll: true, "upper": true, "middle": true, "lower": true}

// Validate rejects out-of-range or unrecognised option values.
func (c *ScreeningCondition) Validate() error {
	for _, b := range []struct {
		enabled  bool
		min, max int
		name     string
	}{
		{c.MA60Enabled, c.MA60Min, c.MA60Max, "ma60"},
		{c.MA112Enabled, c.MA112Min, c.MA112Max, "ma112"},
		{c.MA224Enabled, c.MA224Min, c.MA224Max, "ma224"},
	} {
		if !b.enabled {
			continue
		}
		if b.min < 0 || b.max > 200 || b.min > b.max {
			return fmt.Errorf("%w: %s bounds [%d, %d]", domain.ErrInvalidInput, b.name, b.min, b.max)
		}
	}

	if c.BBEnabled {
		if !validBBPeriods[c.BBPeriod] {
			return fmt.Errorf("%w: bbPeriod %d (want 10, 20 or 30)", domain.ErrInvalidInput, c.BBPeriod)
		}
		if !validBBMultipliers[c.BBMultiplier] {
			return fmt.Errorf("%w: bbMultiplier %v (want 1.5, 2.0 or 3.0)", domain.ErrInvalidInput, c.BBMultiplier)
		}
		if !validBBPositions[c.BBPosition] {
			return fmt.Errorf("%w: bbPosition %q", domain.ErrInvalidInput, c.BBPosition)
		}
	}

	if c.VolumeEnabled && c.VolumeMultiple < 1 {
		return fmt.Errorf("%w: volumeMultiple %v (want >= 1)", domain.ErrInvalidInput, c.VolumeMultiple)
	}

	if c.PriceChangeEnabled {
		if c.PriceChangeMin < -100 || c.PriceChangeMax > 100 || c.PriceChangeMin > c.PriceChangeMax {
			return fmt.Errorf("%w: priceChange bounds [%v, %v]", domain.ErrInvalidInput, c.PriceChangeMin, c.PriceChangeMax)
		}
	}

	if c.MarketCapEnabled && (c.MarketCapMin < 0 || c.MarketCapMin > c.MarketCapMax) {
		return fmt.Errorf("%w: marketCap bounds [%d, %d]", domain.ErrInvalidInput, c.MarketCapMin, c.MarketCapMax)
	}
	if c.PEREnabled && (c.PERMin < 0 || c.PERMin > c.PERMax) {
		return fmt.Errorf("%w: per bounds [%v, %v]", domain.ErrInvalidInput, c.PERMin, c.PERMax)
	}
	if c.PBREnabled && (c.PBRMin < 0 || c.PBRMin > c.PBRMax) {
		return fmt.Errorf("%w: pbr bounds [%v, %v]", domain.ErrInvalidInput, c.PBRMin, c.PBRMax)
	}

	return nil
}

// NeedsFundamentals reports whether any gate requires a live quote.
func (c *ScreeningCondition) NeedsFundamentals() bool {
	return c.MarketCapEnabled || c.PEREnabled || c.PBREnabled
}

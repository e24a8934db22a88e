// Package screener evaluates declarative screening conditions over the
// instrument universe.
package screener

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stockhunter/stockhunter/internal/domain"
	"github.com/stockhunter/stockhunter/pkg/formulas"
)

const (
	// screeningWindow bounds how much history one evaluation reads.
	screeningWindow = 280

	// Instruments are screened in chunks; chunks run in parallel,
	// instruments within a chunk sequentially.
	chunkSize = 100
)

// Engine screens one market's universe against a ScreeningCondition.
type Engine struct {
	cap *MarketCapability
	log zerolog.Logger
}

// NewEngine creates a screening engine over one market capability.
func NewEngine(capability *MarketCapability, log zerolog.Logger) *Engine {
	return &Engine{
		cap: capability,
		log: log.With().Str("component", "screener").Str("market", capability.Label).Logger(),
	}
}

// Screen evaluates the condition over the universe (or the target codes)
// and returns the matches. Per-instrument failures are logged and skipped;
// only setup failures abort the run. Match order follows chunk completion.
func (e *Engine) Screen(ctx context.Context, cond ScreeningCondition) (*ScreeningResult, error) {
	if err := cond.Validate(); err != nil {
		return nil, err
	}

	universe, err := e.cap.UniverseSource()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve universe: %w", err)
	}

	if len(cond.TargetCodes) > 0 {
		universe, err = e.restrictToTargets(universe, cond.TargetCodes)
		if err != nil {
			return nil, err
		}
	}

	start := time.Now()

	var mu sync.Mutex
	var matches []MatchedStock

	g, gctx := errgroup.WithContext(ctx)
	for offset := 0; offset < len(universe); offset += chunkSize {
		chunk := universe[offset:min(offset+chunkSize, len(universe))]
		g.Go(func() error {
			var chunkMatches []MatchedStock
			for _, inst := range chunk {
				if err := gctx.Err(); err != nil {
					return err
				}
				match, ok, err := e.evaluate(gctx, inst, &cond)
				if err != nil {
					e.log.Warn().Str("code", inst.Code).Err(err).Msg("Evaluation failed, skipping instrument")
					continue
				}
				if ok {
					chunkMatches = append(chunkMatches, *match)
				}
			}
			mu.Lock()
			matches = append(matches, chunkMatches...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &ScreeningResult{
		Matches:       matches,
		TotalScanned:  len(universe),
		MatchedCount:  len(matches),
		ExecutionMs:   time.Since(start).Milliseconds(),
		CapturedAt:    time.Now(),
		UniverseLabel: e.cap.Label,
	}

	e.log.Info().Int("scanned", result.TotalScanned).Int("matched", result.MatchedCount).
		Int64("execution_ms", result.ExecutionMs).Msg("Screening complete")
	return result, nil
}

// restrictToTargets filters the universe down to the requested codes.
// Unrecognised but well-formed codes are ignored; malformed ones reject the
// whole request.
func (e *Engine) restrictToTargets(universe []domain.Instrument, targets []string) ([]domain.Instrument, error) {
	wanted := make(map[string]bool, len(targets))
	for _, code := range targets {
		if !e.cap.IDValidator(code) {
			return nil, fmt.Errorf("%w: target code %q", domain.ErrInvalidInput, code)
		}
		wanted[code] = true
	}

	var filtered []domain.Instrument
	for _, inst := range universe {
		if wanted[inst.Code] {
			filtered = append(filtered, inst)
		}
	}
	return filtered, nil
}

func (e *Engine) evaluate(ctx context.Context, inst domain.Instrument, cond *ScreeningCondition) (*MatchedStock, bool, error) {
	bars, err := e.cap.DailyBars(ctx, inst, screeningWindow)
	if err != nil {
		return nil, false, err
	}
	if len(bars) == 0 {
		return nil, false, nil
	}

	if inst.Name == "" {
		name, err := e.cap.NameFetch(inst.Code)
		if err != nil {
			return nil, false, err
		}
		inst.Name = name
	}

	// Name prefilter before any math
	if cond.ExcludeETF && e.cap.IsETF(inst) {
		return nil, false, nil
	}
	if cond.ExcludeETN && e.cap.IsETN(inst) {
		return nil, false, nil
	}
	if cond.ExcludeManagement && isManagementIssue(inst.Name) {
		return nil, false, nil
	}

	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = float64(b.Volume)
	}

	currentPrice := closes[0]
	prevPrice := currentPrice
	if len(closes) > 1 {
		prevPrice = closes[1]
	}
	currentVolume := bars[0].Volume

	ma5 := formulas.CalculateSMA(closes, 5)
	ma20 := formulas.CalculateSMA(closes, 20)
	ma60 := formulas.CalculateSMA(closes, 60)
	ma112 := formulas.CalculateSMA(closes, 112)
	ma224 := formulas.CalculateSMA(closes, 224)

	maGates := []struct {
		enabled  bool
		ma       *float64
		min, max int
	}{
		{cond.MA60Enabled, ma60, cond.MA60Min, cond.MA60Max},
		{cond.MA112Enabled, ma112, cond.MA112Min, cond.MA112Max},
		{cond.MA224Enabled, ma224, cond.MA224Min, cond.MA224Max},
	}
	for _, gate := range maGates {
		if !gate.enabled {
			continue
		}
		ratio := formulas.RatioToMA(currentPrice, gate.ma)
		if ratio == nil {
			// An enabled bound over an absent indicator excludes
			return nil, false, nil
		}
		if *ratio < float64(gate.min) || *ratio > float64(gate.max) {
			return nil, false, nil
		}
	}

	if cond.MAAlignment && !formulas.IsAligned(ma5, ma20, ma60, ma112) {
		return nil, false, nil
	}

	var bands *formulas.BollingerBands
	var position formulas.BandPosition
	if cond.BBEnabled {
		bands = formulas.CalculateBollingerBands(closes, cond.BBPeriod, cond.BBMultiplier)
		if bands == nil {
			return nil, false, nil
		}
		position = bands.Position(currentPrice)
		if cond.BBPosition != BandPositionAll && string(position) != cond.BBPosition {
			return nil, false, nil
		}
		if cond.BBUpperBreak && currentPrice < bands.Upper {
			return nil, false, nil
		}
		if cond.BBLowerBreak && currentPrice > bands.Lower {
			return nil, false, nil
		}
	}

	avgVolume := formulas.CalculateAvgVolume(volumes, 20)
	if cond.VolumeEnabled {
		if avgVolume == nil || *avgVolume == 0 {
			return nil, false, nil
		}
		if float64(currentVolume) / *avgVolume < cond.VolumeMultiple {
			return nil, false, nil
		}
	}

	changePct := formulas.ChangePercent(currentPrice, prevPrice)
	if cond.PriceChangeEnabled {
		if changePct < cond.PriceChangeMin || changePct > cond.PriceChangeMax {
			return nil, false, nil
		}
	}

	var quote *domain.Quote
	if cond.NeedsFundamentals() && e.cap.QuoteFetch != nil {
		quote, err = e.cap.QuoteFetch(ctx, inst.Code)
		if err != nil {
			e.log.Warn().Str("code", inst.Code).Err(err).Msg("Fundamental fetch failed")
			quote = nil
		}

		if cond.MarketCapEnabled {
			if quote == nil || quote.MarketCap == nil {
				return nil, false, nil
			}
			if *quote.MarketCap < cond.MarketCapMin || *quote.MarketCap > cond.MarketCapMax {
				return nil, false, nil
			}
		}
		if cond.PEREnabled {
			if quote == nil || quote.PER == nil {
				return nil, false, nil
			}
			if *quote.PER < cond.PERMin || *quote.PER > cond.PERMax {
				return nil, false, nil
			}
		}
		if cond.PBREnabled {
			if quote == nil || quote.PBR == nil {
				return nil, false, nil
			}
			if *quote.PBR < cond.PBRMin || *quote.PBR > cond.PBRMax {
				return nil, false, nil
			}
		}
	}

	match := &MatchedStock{
		Code:          inst.Code,
		Name:          inst.Name,
		Market:        string(inst.Market),
		CurrentPrice:  roundTo(currentPrice, e.cap.PriceDecimals),
		ChangePercent: roundTo(changePct, 2),
		Volume:        currentVolume,
		MA5:           roundPtr(ma5, 2),
		MA20:          roundPtr(ma20, 2),
		MA60:          roundPtr(ma60, 2),
		MA112:         roundPtr(ma112, 2),
		MA224:         roundPtr(ma224, 2),
		MA60Ratio:     roundPtr(formulas.RatioToMA(currentPrice, ma60), 2),
		MA112Ratio:    roundPtr(formulas.RatioToMA(currentPrice, ma112), 2),
		MA224Ratio:    roundPtr(formulas.RatioToMA(currentPrice, ma224), 2),
		AvgVolume20:   roundPtr(avgVolume, 2),
	}
	if bands != nil {
		match.BBUpper = roundPtr(&bands.Upper, 2)
		match.BBMiddle = roundPtr(&bands.Middle, 2)
		match.BBLower = roundPtr(&bands.Lower, 2)
		match.BandPosition = string(position)
	}
	if quote != nil {
		match.MarketCap = quote.MarketCap
		match.PER = roundPtr(quote.PER, 2)
		match.PBR = roundPtr(quote.PBR, 2)
	}

	return match, true, nil
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}

func roundPtr(v *float64, decimals int) *float64 {
	if v == nil {
		return nil
	}
	rounded := roundTo(*v, decimals)
	return &rounded
}

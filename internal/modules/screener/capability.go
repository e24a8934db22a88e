package screener

import (
	"context"
	"strings"

	"github.com/stockhunter/stockhunter/internal/domain"
	"github.com/stockhunter/stockhunter/internal/modules/master"
	"github.com/stockhunter/stockhunter/internal/modules/prices"
)

// usETFPatterns flags the well-known US index and commodity trackers the
// identifier alone gives away.
var usETFPatterns = []string{"QQQ", "SPY", "DIA", "IWM", "EEM", "GLD", "SLV"}

// managementTokens mark administrative-issue and trading-warning listings.
var managementTokens = []string{"관리", "투자주의", "투자경고", "투자위험", "거래정지", "정리매매"}

// MarketCapability bundles the market-specific behaviours the engine needs:
// where the universe comes from, how bars and quotes are fetched, and how
// fund-like instruments are recognised. The engine itself stays parametric
// over the market kind.
type MarketCapability struct {
	// Label names the universe in results, e.g. "KR" or "US/NAS".
	Label string

	UniverseSource func() ([]domain.Instrument, error)
	DailyBars      func(ctx context.Context, inst domain.Instrument, limit int) ([]domain.DailyBar, error)
	// QuoteFetch is nil for markets without fundamentals; fundamental gates
	// are then skipped rather than excluding everything.
	QuoteFetch  func(ctx context.Context, code string) (*domain.Quote, error)
	NameFetch   func(code string) (string, error)
	IDValidator func(code string) bool
	IsETF       func(inst domain.Instrument) bool
	IsETN       func(inst domain.Instrument) bool

	// PriceDecimals is the rounding applied to prices: 0 for won, 2 for
	// dollars.
	PriceDecimals int
}

// QuoteClient is the broker surface the Korean capability needs.
type QuoteClient interface {
	CurrentQuote(ctx context.Context, code string) (*domain.Quote, error)
}

// USDailyClient is the broker surface the US capability needs.
type USDailyClient interface {
	USDaily(ctx context.Context, exchange, symbol string) ([]domain.DailyBar, error)
}

// KoreanCapability screens the Korean universe: bars come from the local
// store, fundamentals from the live quote endpoint.
func KoreanCapability(store *prices.Store, universe *master.Manager, quotes QuoteClient) *MarketCapability {
	capability := &MarketCapability{
		Label:          "KR",
		UniverseSource: universe.KoreanUniverse,
		DailyBars: func(_ context.Context, inst domain.Instrument, limit int) ([]domain.DailyBar, error) {
			return store.Bars(inst.Code, limit)
		},
		NameFetch: universe.NameOf,
		IDValidator: func(code string) bool {
			if len(code) != 6 {
				return false
			}
			for _, r := range code {
				if r < '0' || r > '9' {
					return false
				}
			}
			return true
		},
		IsETF: func(inst domain.Instrument) bool {
			return inst.IsETF || master.IsETFName(inst.Name)
		},
		IsETN: func(inst domain.Instrument) bool {
			return inst.IsETN || master.IsETNName(inst.Name)
		},
		PriceDecimals: 0,
	}
	if quotes != nil {
		capability.QuoteFetch = quotes.CurrentQuote
	}
	return capability
}

// USCapability screens one US exchange: bars come straight from the broker,
// fundamentals are unavailable.
func USCapability(universe *master.Manager, client USDailyClient, exchange string) *MarketCapability {
	return &MarketCapability{
		Label: "US/" + exchange,
		UniverseSource: func() ([]domain.Instrument, error) {
			return universe.USUniverse(exchange)
		},
		DailyBars: func(ctx context.Context, inst domain.Instrument, limit int) ([]domain.DailyBar, error) {
			bars, err := client.USDaily(ctx, inst.Market.ExchangeCode(), inst.Code)
			if err != nil {
				return nil, err
			}
			if len(bars) > limit {
				bars = bars[:limit]
			}
			return bars, nil
		},
		QuoteFetch: nil,
		NameFetch: func(code string) (string, error) {
			return universe.NameOf(code)
		},
		IDValidator: func(code string) bool {
			if code == "" || len(code) > 10 {
				return false
			}
			for _, r := range code {
				if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '.' && r != '-' {
					return false
				}
			}
			return true
		},
		IsETF: func(inst domain.Instrument) bool {
			if inst.IsETF {
				return true
			}
			upper := strings.ToUpper(inst.Code)
			for _, pattern := range usETFPatterns {
				if upper == pattern {
					return true
				}
			}
			return strings.Contains(strings.ToUpper(inst.Name), "ETF")
		},
		IsETN: func(inst domain.Instrument) bool {
			return inst.IsETN || master.IsETNName(inst.Name)
		},
		PriceDecimals: 2,
	}
}

// isManagementIssue reports whether a display name carries an
// administrative-status token.
func isManagementIssue(name string) bool {
	for _, token := range managementTokens {
		if strings.Contains(name, token) {
			return true
		}
	}
	return false
}

// Package domain contains the core data types shared across modules.
// It has no infrastructure dependencies.
package domain

import "time"

// Market identifies the exchange an instrument is listed on.
type Market string

const (
	MarketKOSPI  Market = "KOSPI"
	MarketKOSDAQ Market = "KOSDAQ"
	MarketNASDAQ Market = "NASDAQ"
	MarketNYSE   Market = "NYSE"
	MarketAMEX   Market = "AMEX"
)

// IsKorean reports whether the market is a Korean exchange.
func (m Market) IsKorean() bool {
	return m == MarketKOSPI || m == MarketKOSDAQ
}

// ExchangeCode returns the KIS overseas exchange code for US markets
// (NAS, NYS, AMS). Empty for Korean markets.
func (m Market) ExchangeCode() string {
	switch m {
	case MarketNASDAQ:
		return "NAS"
	case MarketNYSE:
		return "NYS"
	case MarketAMEX:
		return "AMS"
	}
	return ""
}

// MarketFromExchangeCode maps a KIS overseas exchange code back to a market.
func MarketFromExchangeCode(code string) (Market, bool) {
	switch code {
	case "NAS":
		return MarketNASDAQ, true
	case "NYS":
		return MarketNYSE, true
	case "AMS":
		return MarketAMEX, true
	}
	return "", false
}

// Instrument is one listed equity. Identity is (Market, Code): a six-digit
// numeric code for Korean listings, a ticker symbol for US listings.
// Instruments are never deleted; delisting clears IsActive.
type Instrument struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Market   Market `json:"market"`
	IsETF    bool   `json:"isEtf"`
	IsETN    bool   `json:"isEtn"`
	IsActive bool   `json:"isActive"`
}

// TradeDateFormat is the broker's date layout. YYYYMMDD sorts
// chronologically as text, so it doubles as the storage format.
const TradeDateFormat = "20060102"

// DailyBar is one daily OHLCV record. Identity is (Code, TradeDate);
// duplicates overwrite.
type DailyBar struct {
	Code       string    `json:"code"`
	TradeDate  string    `json:"tradeDate"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     uint64    `json:"volume"`
	InsertedAt time.Time `json:"-"`
	UpdatedAt  time.Time `json:"-"`
}

// Quote is a current-price snapshot with the fundamentals the broker reports
// alongside it. Fundamental fields are nil when the broker omits them
// (common for ETFs and preferred shares).
type Quote struct {
	Code      string   `json:"code"`
	Name      string   `json:"name"`
	Price     float64  `json:"price"`
	MarketCap *int64   `json:"marketCap,omitempty"`
	PER       *float64 `json:"per,omitempty"`
	PBR       *float64 `json:"pbr,omitempty"`
	EPS       *float64 `json:"eps,omitempty"`
	BPS       *float64 `json:"bps,omitempty"`
}

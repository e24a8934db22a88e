package kis

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/stockhunter/stockhunter/internal/domain"
)

// Transaction IDs per endpoint. Production and paper environments share
// these for the quotation endpoints.
const (
	trIDRecentDaily  = "FHKST01010400"
	trIDPeriodDaily  = "FHKST03010100"
	trIDCurrentPrice = "FHKST01010100"
	trIDSearchInfo   = "CTPF1604R"
	trIDUSDaily      = "HHDFS76240000"
)

// MintToken issues a fresh access token. This is the raw broker call; use
// the TokenManager (via any authenticated method) for day-to-day access.
func (c *Client) mintToken(ctx context.Context) (string, int, error) {
	payload := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     c.appKey,
		"appsecret":  c.appSecret,
	}

	var resp tokenResponse
	if err := c.postJSON(ctx, "/oauth2/tokenP", payload, &resp); err != nil {
		return "", 0, fmt.Errorf("%w: %v", domain.ErrAuthFailure, err)
	}

	if resp.AccessToken == "" {
		c.log.Error().
			Str("error_code", resp.ErrorCode).
			Str("error_description", resp.ErrorDescription).
			Msg("Token issuance rejected")
		return "", 0, fmt.Errorf("%w: %s", domain.ErrAuthFailure, resp.ErrorDescription)
	}

	return resp.AccessToken, resp.ExpiresIn, nil
}

// ValidateCredentials performs a mint against the broker and purges nothing
// on success: the minted token goes into the caches, so a screening run that
// follows reuses it instead of burning the daily issuance budget again.
func (c *Client) ValidateCredentials(ctx context.Context) error {
	_, err := c.tokens.Acquire(ctx)
	return err
}

// validateDomesticCode rejects identifiers the domestic endpoints cannot
// accept. Korean listings use six-digit numeric codes.
func validateDomesticCode(code string) error {
	if len(code) != 6 {
		return fmt.Errorf("%w: code %q must be 6 digits", domain.ErrInvalidInput, code)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: code %q must be numeric", domain.ErrInvalidInput, code)
		}
	}
	return nil
}

// validateSymbol rejects identifiers the overseas endpoints cannot accept.
func validateSymbol(symbol string) error {
	if symbol == "" || len(symbol) > 10 {
		return fmt.Errorf("%w: symbol %q", domain.ErrInvalidInput, symbol)
	}
	for _, r := range symbol {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '.' && r != '-' {
			return fmt.Errorf("%w: symbol %q", domain.ErrInvalidInput, symbol)
		}
	}
	return nil
}

// RecentDaily fetches the most recent daily bars for a Korean listing,
// newest-first. The broker caps this endpoint at 30 bars regardless of the
// requested window; use PeriodDaily for anything wider.
func (c *Client) RecentDaily(ctx context.Context, code string) ([]domain.DailyBar, error) {
	if err := validateDomesticCode(code); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("fid_cond_mrkt_div_code", "J")
	params.Set("fid_input_iscd", code)
	params.Set("fid_period_div_code", "D")
	params.Set("fid_org_adj_prc", "0")

	var resp recentDailyResponse
	if err := c.get(ctx, "/uapi/domestic-stock/v1/quotations/inquire-daily-price", trIDRecentDaily, params, "", &resp); err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.brokerError()
	}

	bars := make([]domain.DailyBar, 0, len(resp.Output))
	for i := range resp.Output {
		if bar, ok := resp.Output[i].toBar(code); ok {
			bars = append(bars, bar)
		}
	}
	return bars, nil
}

// PeriodDaily fetches daily bars for a Korean listing within [start, end]
// (YYYYMMDD, inclusive), newest-first, up to ~100 bars per call.
func (c *Client) PeriodDaily(ctx context.Context, code, start, end string) ([]domain.DailyBar, error) {
	if err := validateDomesticCode(code); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("FID_COND_MRKT_DIV_CODE", "J")
	params.Set("FID_INPUT_ISCD", code)
	params.Set("FID_INPUT_DATE_1", start)
	params.Set("FID_INPUT_DATE_2", end)
	params.Set("FID_PERIOD_DIV_CODE", "D")
	params.Set("FID_ORG_ADJ_PRC", "0")

	var resp periodDailyResponse
	if err := c.get(ctx, "/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice", trIDPeriodDaily, params, "", &resp); err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.brokerError()
	}

	bars := make([]domain.DailyBar, 0, len(resp.Output2))
	for i := range resp.Output2 {
		if bar, ok := resp.Output2[i].toBar(code); ok {
			bars = append(bars, bar)
		}
	}
	return bars, nil
}

// CurrentQuote fetches the current price and fundamentals for a Korean
// listing. Fundamental fields the broker leaves blank come back nil.
func (c *Client) CurrentQuote(ctx context.Context, code string) (*domain.Quote, error) {
	if err := validateDomesticCode(code); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("fid_cond_mrkt_div_code", "J")
	params.Set("fid_input_iscd", code)

	var resp quoteResponse
	if err := c.get(ctx, "/uapi/domestic-stock/v1/quotations/inquire-price", trIDCurrentPrice, params, "", &resp); err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.brokerError()
	}

	quote := &domain.Quote{
		Code:  code,
		Name:  strings.TrimSpace(resp.Output.PrdtName),
		Price: parseFloat(resp.Output.StckPrpr),
		PER:   parseOptionalFloat(resp.Output.Per),
		PBR:   parseOptionalFloat(resp.Output.Pbr),
		EPS:   parseOptionalFloat(resp.Output.Eps),
		BPS:   parseOptionalFloat(resp.Output.Bps),
	}

	// hts_avls is reported in units of 100 million won.
	if avls := parseOptionalFloat(resp.Output.HtsAvls); avls != nil {
		marketCap := int64(*avls) * 100_000_000
		quote.MarketCap = &marketCap
	}

	return quote, nil
}

// LookupName fetches the human-readable short name of a Korean listing.
func (c *Client) LookupName(ctx context.Context, code string) (string, error) {
	if err := validateDomesticCode(code); err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("PRDT_TYPE_CD", "300")
	params.Set("PDNO", code)

	var resp searchInfoResponse
	if err := c.get(ctx, "/uapi/domestic-stock/v1/quotations/search-info", trIDSearchInfo, params, "P", &resp); err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", resp.brokerError()
	}

	name := strings.TrimSpace(resp.Output.PrdtAbrvName)
	if name == "" {
		name = strings.TrimSpace(resp.Output.PrdtName)
	}
	return name, nil
}

// USDaily fetches recent daily bars for a US listing, newest-first.
// exchange is one of NAS, NYS, AMS.
func (c *Client) USDaily(ctx context.Context, exchange, symbol string) ([]domain.DailyBar, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	if exchange != "NAS" && exchange != "NYS" && exchange != "AMS" {
		return nil, fmt.Errorf("%w: exchange %q", domain.ErrInvalidInput, exchange)
	}

	params := url.Values{}
	params.Set("AUTH", "")
	params.Set("EXCD", exchange)
	params.Set("SYMB", symbol)
	params.Set("GUBN", "0")
	params.Set("BYMD", "")
	params.Set("MODP", "0")

	var resp usDailyResponse
	if err := c.get(ctx, "/uapi/overseas-price/v1/quotations/dailyprice", trIDUSDaily, params, "", &resp); err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.brokerError()
	}

	bars := make([]domain.DailyBar, 0, len(resp.Output2))
	for i := range resp.Output2 {
		if bar, ok := resp.Output2[i].toBar(symbol); ok {
			bars = append(bars, bar)
		}
	}
	return bars, nil
}

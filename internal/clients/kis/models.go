package kis

import (
	"strconv"
	"strings"

	"github.com/stockhunter/stockhunter/internal/domain"
)

// tokenResponse is the /oauth2/tokenP reply.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`

	// Present on failure
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

// envelope is the common broker reply wrapper.
type envelope struct {
	RtCd  string `json:"rt_cd"`
	MsgCd string `json:"msg_cd"`
	Msg1  string `json:"msg1"`
}

// ok reports whether the broker accepted the request.
func (e *envelope) ok() bool {
	return e.RtCd == "0"
}

// brokerError converts a failed envelope into the error the caller sees.
func (e *envelope) brokerError() error {
	return &domain.BrokerError{Code: e.RtCd, Msg: strings.TrimSpace(e.Msg1)}
}

// dailyBarRow is one bar as returned by both domestic daily endpoints.
// KIS reports every numeric field as a string.
type dailyBarRow struct {
	StckBsopDate string `json:"stck_bsop_date"`
	StckOprc     string `json:"stck_oprc"`
	StckHgpr     string `json:"stck_hgpr"`
	StckLwpr     string `json:"stck_lwpr"`
	StckClpr     string `json:"stck_clpr"`
	AcmlVol      string `json:"acml_vol"`
}

func (r *dailyBarRow) toBar(code string) (domain.DailyBar, bool) {
	if r.StckBsopDate == "" {
		return domain.DailyBar{}, false
	}
	return domain.DailyBar{
		Code:      code,
		TradeDate: r.StckBsopDate,
		Open:      parseFloat(r.StckOprc),
		High:      parseFloat(r.StckHgpr),
		Low:       parseFloat(r.StckLwpr),
		Close:     parseFloat(r.StckClpr),
		Volume:    parseUint(r.AcmlVol),
	}, true
}

// recentDailyResponse wraps inquire-daily-price (bars arrive in "output").
type recentDailyResponse struct {
	envelope
	Output []dailyBarRow `json:"output"`
}

// periodDailyResponse wraps inquire-daily-itemchartprice (bars in "output2").
type periodDailyResponse struct {
	envelope
	Output2 []dailyBarRow `json:"output2"`
}

// quoteOutput is the inquire-price "output" payload. hts_avls is the market
// cap in units of 100 million won.
type quoteOutput struct {
	StckPrpr string `json:"stck_prpr"`
	HtsAvls  string `json:"hts_avls"`
	Per      string `json:"per"`
	Pbr      string `json:"pbr"`
	Eps      string `json:"eps"`
	Bps      string `json:"bps"`
	PrdtName string `json:"prdt_name"`
}

type quoteResponse struct {
	envelope
	Output quoteOutput `json:"output"`
}

// searchInfoResponse wraps search-info (CTPF1604R).
type searchInfoResponse struct {
	envelope
	Output struct {
		PrdtAbrvName string `json:"prdt_abrv_name"`
		PrdtName     string `json:"prdt_name"`
	} `json:"output"`
}

// usDailyRow is one bar from the overseas dailyprice endpoint.
type usDailyRow struct {
	Xymd string `json:"xymd"`
	Open string `json:"open"`
	High string `json:"high"`
	Low  string `json:"low"`
	Clos string `json:"clos"`
	Tvol string `json:"tvol"`
}

func (r *usDailyRow) toBar(symbol string) (domain.DailyBar, bool) {
	if r.Xymd == "" {
		return domain.DailyBar{}, false
	}
	return domain.DailyBar{
		Code:      symbol,
		TradeDate: r.Xymd,
		Open:      parseFloat(r.Open),
		High:      parseFloat(r.High),
		Low:       parseFloat(r.Low),
		Close:     parseFloat(r.Clos),
		Volume:    parseUint(r.Tvol),
	}, true
}

type usDailyResponse struct {
	envelope
	Output2 []usDailyRow `json:"output2"`
}

// parseFloat parses a KIS numeric string, tolerating thousands separators
// and blanks. Returns 0 for unparseable input.
func parseFloat(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" || s == "-" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseUint(s string) uint64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseOptionalFloat returns nil for blank or zero-like fields, which is how
// KIS reports a missing fundamental.
func parseOptionalFloat(s string) *float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" || s == "-" || s == "0" || s == "0.00" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

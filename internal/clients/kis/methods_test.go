package kis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockhunter/stockhunter/internal/domain"
)

// newTestClient wires a client against a fake broker. The fake always issues
// tokens; per-test handlers cover the quotation endpoints.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/tokenP", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "fake-token",
			"token_type":   "Bearer",
			"expires_in":   86400,
		})
	})
	if handler != nil {
		mux.HandleFunc("/", handler)
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		AppKey:    "test-app-key",
		AppSecret: "test-app-secret",
		RateLimit: 1000,
		CacheDir:  t.TempDir(),
	}, zerolog.Nop())
	c.SetBaseURL(srv.URL)

	return c
}

func TestRecentDaily(t *testing.T) {
	var gotTrID, gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotTrID = r.Header.Get("tr_id")
		gotAuth = r.Header.Get("authorization")
		assert.Equal(t, "J", r.URL.Query().Get("fid_cond_mrkt_div_code"))
		assert.Equal(t, "005930", r.URL.Query().Get("fid_input_iscd"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"rt_cd": "0",
			"msg1":  "정상처리 되었습니다.",
			"output": []map[string]string{
				{"stck_bsop_date": "20250822", "stck_oprc": "71000", "stck_hgpr": "71900", "stck_lwpr": "70800", "stck_clpr": "71500", "acml_vol": "9876543"},
				{"stck_bsop_date": "20250821", "stck_oprc": "70500", "stck_hgpr": "71200", "stck_lwpr": "70100", "stck_clpr": "71000", "acml_vol": "8765432"},
			},
		})
	})

	bars, err := c.RecentDaily(context.Background(), "005930")
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, "FHKST01010400", gotTrID)
	assert.Equal(t, "Bearer fake-token", gotAuth)

	assert.Equal(t, "20250822", bars[0].TradeDate)
	assert.Equal(t, 71500.0, bars[0].Close)
	assert.Equal(t, uint64(9876543), bars[0].Volume)
	assert.Equal(t, "005930", bars[1].Code)
}

func TestRecentDailyRejectsInvalidCode(t *testing.T) {
	c := newTestClient(t, nil)

	_, err := c.RecentDaily(context.Background(), "AAPL")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = c.RecentDaily(context.Background(), "12345")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPeriodDaily(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "FHKST03010100", r.Header.Get("tr_id"))
		assert.Equal(t, "20250501", r.URL.Query().Get("FID_INPUT_DATE_1"))
		assert.Equal(t, "20250808", r.URL.Query().Get("FID_INPUT_DATE_2"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"rt_cd": "0",
			"output2": []map[string]string{
				{"stck_bsop_date": "20250808", "stck_oprc": "100", "stck_hgpr": "110", "stck_lwpr": "95", "stck_clpr": "105", "acml_vol": "1000"},
				// Broker pads short ranges with empty rows; those are dropped
				{"stck_bsop_date": ""},
			},
		})
	})

	bars, err := c.PeriodDaily(context.Background(), "005930", "20250501", "20250808")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 105.0, bars[0].Close)
}

func TestPeriodDailyBrokerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"rt_cd": "1",
			"msg_cd": "EGW00123",
			"msg1":  "기간이 만료된 token 입니다.",
		})
	})

	_, err := c.PeriodDaily(context.Background(), "005930", "20250501", "20250808")
	require.Error(t, err)

	be, ok := domain.AsBrokerError(err)
	require.True(t, ok)
	assert.Equal(t, "1", be.Code)
	assert.Contains(t, be.Msg, "token")
}

func TestCurrentQuote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "FHKST01010100", r.Header.Get("tr_id"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"rt_cd": "0",
			"output": map[string]string{
				"stck_prpr": "71500",
				"hts_avls":  "4268000",
				"per":       "12.34",
				"pbr":       "1.23",
				"eps":       "5794.00",
				"bps":       "58123.00",
				"prdt_name": "삼성전자",
			},
		})
	})

	quote, err := c.CurrentQuote(context.Background(), "005930")
	require.NoError(t, err)

	assert.Equal(t, 71500.0, quote.Price)
	require.NotNil(t, quote.MarketCap)
	assert.Equal(t, int64(4268000)*100_000_000, *quote.MarketCap)
	require.NotNil(t, quote.PER)
	assert.InDelta(t, 12.34, *quote.PER, 1e-9)
	assert.Equal(t, "삼성전자", quote.Name)
}

func TestCurrentQuoteMissingFundamentals(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"rt_cd": "0",
			"output": map[string]string{
				"stck_prpr": "10250",
				"hts_avls":  "",
				"per":       "0.00",
				"pbr":       "",
			},
		})
	})

	quote, err := c.CurrentQuote(context.Background(), "069500")
	require.NoError(t, err)

	assert.Equal(t, 10250.0, quote.Price)
	assert.Nil(t, quote.MarketCap)
	assert.Nil(t, quote.PER)
	assert.Nil(t, quote.PBR)
}

func TestLookupName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "CTPF1604R", r.Header.Get("tr_id"))
		assert.Equal(t, "P", r.Header.Get("custtype"))
		assert.Equal(t, "300", r.URL.Query().Get("PRDT_TYPE_CD"))
		assert.Equal(t, "000660", r.URL.Query().Get("PDNO"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"rt_cd": "0",
			"output": map[string]string{
				"prdt_abrv_name": "SK하이닉스",
			},
		})
	})

	name, err := c.LookupName(context.Background(), "000660")
	require.NoError(t, err)
	assert.Equal(t, "SK하이닉스", name)
}

func TestUSDaily(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "HHDFS76240000", r.Header.Get("tr_id"))
		assert.Equal(t, "NAS", r.URL.Query().Get("EXCD"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("SYMB"))
		assert.Equal(t, "0", r.URL.Query().Get("GUBN"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"rt_cd": "0",
			"output2": []map[string]string{
				{"xymd": "20250822", "open": "224.10", "high": "228.50", "low": "223.00", "clos": "227.76", "tvol": "45678901"},
			},
		})
	})

	bars, err := c.USDaily(context.Background(), "NAS", "AAPL")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 227.76, bars[0].Close)
	assert.Equal(t, "AAPL", bars[0].Code)
}

func TestUSDailyRejectsBadExchange(t *testing.T) {
	c := newTestClient(t, nil)

	_, err := c.USDaily(context.Background(), "LSE", "AAPL")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestMintTokenFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/tokenP", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error_code":        "EGW00133",
			"error_description": "appkey is not valid",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		AppKey:    "bad-key",
		AppSecret: "bad-secret",
		RateLimit: 1000,
		CacheDir:  t.TempDir(),
	}, zerolog.Nop())
	c.SetBaseURL(srv.URL)

	err := c.ValidateCredentials(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuthFailure)
}

func TestRateLimiterPacesRequests(t *testing.T) {
	var hits int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"rt_cd": "0", "output": []map[string]string{}})
	})
	// 50 req/s: 11 calls need at least 10 refill intervals = 200ms
	c.limiter.SetLimit(50)
	c.limiter.SetBurst(1)

	start := time.Now()
	for i := 0; i < 11; i++ {
		_, err := c.RecentDaily(context.Background(), "005930")
		require.NoError(t, err)
	}
	elapsed := time.Since(start)

	assert.Equal(t, 11, hits)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
}

func TestGetHonoursContextCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.RecentDaily(ctx, "005930")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

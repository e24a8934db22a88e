// Package kis provides the Korea Investment & Securities open-API client.
//
// All outbound calls pass through a shared token-bucket rate limiter and
// carry a bearer token obtained from the TokenManager. The client wraps the
// broker's envelope format (rt_cd / msg1 / output) into typed results.
package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/stockhunter/stockhunter/pkg/logger"
)

const (
	productionBaseURL = "https://openapi.koreainvestment.com:9443"
	paperBaseURL      = "https://openapivts.koreainvestment.com:29443"

	requestTimeout = 30 * time.Second
	connectTimeout = 10 * time.Second
)

// Config holds client configuration
type Config struct {
	AppKey     string
	AppSecret  string
	Production bool    // true: production, false: paper trading environment
	RateLimit  float64 // outbound requests per second
	CacheDir   string  // directory for the on-disk token cache
}

// Client is a rate-limited KIS API client. A process may hold several
// clients with independent budgets (e.g. one for the collector, one for
// interactive reads).
type Client struct {
	appKey     string
	appSecret  string
	baseURL    string
	production bool
	httpClient *http.Client
	limiter    *rate.Limiter
	tokens     *TokenManager
	log        zerolog.Logger
}

// NewClient creates a new KIS client
func NewClient(cfg Config, log zerolog.Logger) *Client {
	baseURL := paperBaseURL
	env := "paper"
	if cfg.Production {
		baseURL = productionBaseURL
		env = "prod"
	}

	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 15
	}

	c := &Client{
		appKey:     cfg.AppKey,
		appSecret:  cfg.AppSecret,
		baseURL:    baseURL,
		production: cfg.Production,
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		log:     logger.Component(log, "kis-client").With().Str("env", env).Logger(),
	}

	c.tokens = NewTokenManager(cfg.CacheDir, env, cfg.AppKey, c.mintToken, c.log)

	return c
}

// Environment returns "prod" or "paper".
func (c *Client) Environment() string {
	if c.production {
		return "prod"
	}
	return "paper"
}

// SetBaseURL overrides the broker base URL. Used by tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// Tokens exposes the token manager (for purge operations).
func (c *Client) Tokens() *TokenManager {
	return c.tokens
}

// get performs a rate-limited authenticated GET and decodes the JSON body
// into out. Headers beyond the common set (trID, custtype) come from hdrs.
func (c *Client) get(ctx context.Context, path, trID string, params url.Values, custtype string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	token, err := c.tokens.Acquire(ctx)
	if err != nil {
		return err
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("authorization", "Bearer "+token)
	req.Header.Set("appkey", c.appKey)
	req.Header.Set("appsecret", c.appSecret)
	req.Header.Set("tr_id", trID)
	if custtype != "" {
		req.Header.Set("custtype", custtype)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyStr := string(body)
		if len(bodyStr) > 500 {
			bodyStr = bodyStr[:500] + "..."
		}
		c.log.Error().
			Int("status_code", resp.StatusCode).
			Str("tr_id", trID).
			Str("response_body", bodyStr).
			Msg("API returned non-200 status")
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, resp.Status)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

// postJSON performs a rate-limited unauthenticated POST with a JSON body.
// Used only for token issuance.
func (c *Client) postJSON(ctx context.Context, path string, payload, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyStr := string(respBody)
		if len(bodyStr) > 500 {
			bodyStr = bodyStr[:500] + "..."
		}
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, bodyStr)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

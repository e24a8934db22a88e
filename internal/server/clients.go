package server

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stockhunter/stockhunter/internal/clients/kis"
	"github.com/stockhunter/stockhunter/internal/config"
	"github.com/stockhunter/stockhunter/internal/domain"
)

// Credentials are broker credentials carried on a request. All fields
// optional; empty falls back to the configured defaults.
type Credentials struct {
	AppKey       string `json:"appKey"`
	AppSecret    string `json:"appSecret"`
	IsProduction bool   `json:"isProduction"`
}

// ClientProvider hands out broker clients for request-supplied or configured
// credentials. Clients are cached per (environment, app key, rate) so token
// caches and rate limiters are shared across requests with the same key.
type ClientProvider struct {
	cfg *config.Config
	log zerolog.Logger

	mu    sync.Mutex
	cache map[string]*kis.Client
}

// NewClientProvider creates the provider.
func NewClientProvider(cfg *config.Config, log zerolog.Logger) *ClientProvider {
	return &ClientProvider{
		cfg:   cfg,
		log:   log,
		cache: make(map[string]*kis.Client),
	}
}

// Interactive resolves a client for screening and quote traffic.
func (p *ClientProvider) Interactive(creds Credentials) (*kis.Client, error) {
	return p.resolve(creds, p.cfg.InteractiveRateLimit, "interactive")
}

// Collector resolves a client for bulk collection traffic, which runs under
// a tighter outbound budget.
func (p *ClientProvider) Collector(creds Credentials) (*kis.Client, error) {
	return p.resolve(creds, p.cfg.CollectorRateLimit, "collector")
}

func (p *ClientProvider) resolve(creds Credentials, rateLimit float64, pool string) (*kis.Client, error) {
	appKey, appSecret, production := creds.AppKey, creds.AppSecret, creds.IsProduction
	if appKey == "" {
		appKey = p.cfg.KISAppKey
		appSecret = p.cfg.KISAppSecret
		production = p.cfg.KISProduction
	}
	if appKey == "" || appSecret == "" {
		return nil, fmt.Errorf("%w: broker credentials required", domain.ErrInvalidInput)
	}

	env := "paper"
	if production {
		env = "prod"
	}
	key := env + "|" + pool + "|" + appKey

	p.mu.Lock()
	defer p.mu.Unlock()
	if client, ok := p.cache[key]; ok {
		return client, nil
	}

	client := kis.NewClient(kis.Config{
		AppKey:     appKey,
		AppSecret:  appSecret,
		Production: production,
		RateLimit:  rateLimit,
		CacheDir:   p.cfg.DataDir,
	}, p.log)
	p.cache[key] = client
	return client, nil
}

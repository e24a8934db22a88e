package master

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockhunter/stockhunter/internal/domain"
	"github.com/stockhunter/stockhunter/internal/modules/prices"
)

// MetaStore is the slice of the price store the manager needs for tracking
// refresh freshness.
type MetaStore interface {
	SetMeta(key, value string) error
	GetMeta(key string) (string, error)
}

// Manager resolves the instrument universe. Sources in precedence order:
// the durable stock_master table while fresh, operator uploads, the packaged
// CSV listings, and finally a hard-coded minimal universe.
type Manager struct {
	repo *Repository
	meta MetaStore
	ttl  time.Duration
	log  zerolog.Logger
}

// NewManager creates a universe manager. ttl bounds how long a stored
// listing counts as fresh before the packaged fallback is consulted again.
func NewManager(repo *Repository, meta MetaStore, ttl time.Duration, log zerolog.Logger) *Manager {
	return &Manager{
		repo: repo,
		meta: meta,
		ttl:  ttl,
		log:  log.With().Str("component", "master").Logger(),
	}
}

// Repository exposes the underlying repository for direct queries.
func (m *Manager) Repository() *Repository {
	return m.repo
}

// KoreanUniverse returns the active Korean instruments, refreshing from the
// packaged listings when the store is empty or stale. Falls back to the
// hard-coded minimal universe if every other source fails.
func (m *Manager) KoreanUniverse() ([]domain.Instrument, error) {
	fresh, err := m.isFresh()
	if err != nil {
		return nil, err
	}

	if fresh {
		instruments, err := m.koreanFromStore()
		if err != nil {
			return nil, err
		}
		if len(instruments) > 0 {
			return instruments, nil
		}
		// Fresh timestamp over an empty table means a failed refresh; fall through
	}

	if err := m.refreshFromEmbedded(); err != nil {
		m.log.Warn().Err(err).Msg("Packaged listing refresh failed, using minimal universe")
		return minimalUniverse, nil
	}

	return m.koreanFromStore()
}

// ByMarket returns the active instruments of one Korean market, applying the
// same freshness rules as KoreanUniverse.
func (m *Manager) ByMarket(market domain.Market) ([]domain.Instrument, error) {
	if market.IsKorean() {
		if _, err := m.KoreanUniverse(); err != nil {
			return nil, err
		}
	}
	return m.repo.ByMarket(market)
}

// USUniverse returns the known US instruments for one exchange code (NAS,
// NYS, AMS). Uploaded or synced listings in the store win; otherwise the
// packaged symbol list serves.
func (m *Manager) USUniverse(exchange string) ([]domain.Instrument, error) {
	market, ok := domain.MarketFromExchangeCode(exchange)
	if !ok {
		return nil, fmt.Errorf("%w: unknown exchange %q", domain.ErrInvalidInput, exchange)
	}

	stored, err := m.repo.ByMarket(market)
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 {
		return stored, nil
	}

	return loadEmbeddedUS(market)
}

// NameOf resolves a display name from the store.
func (m *Manager) NameOf(code string) (string, error) {
	return m.repo.NameOf(code)
}

// RefreshFromUpload replaces market listings from operator-uploaded
// fixed-width files, keyed by filename. Returns instruments loaded per
// market. All-or-nothing per market; a bad file fails the whole upload
// before anything is written.
func (m *Manager) RefreshFromUpload(files map[string][]byte) (map[string]int, error) {
	type parsed struct {
		market      domain.Market
		instruments []domain.Instrument
	}

	var batches []parsed
	for filename, data := range files {
		market, instruments, err := ParseListingFile(filename, data)
		if err != nil {
			return nil, err
		}
		batches = append(batches, parsed{market: market, instruments: instruments})
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("%w: no listing files in upload", domain.ErrInvalidInput)
	}

	counts := make(map[string]int, len(batches))
	for _, b := range batches {
		if err := m.repo.ReplaceMarket(b.market, b.instruments); err != nil {
			return nil, err
		}
		counts[string(b.market)] = len(b.instruments)
	}

	if err := m.markRefreshed(); err != nil {
		m.log.Warn().Err(err).Msg("Failed to record master refresh time")
	}

	return counts, nil
}

// ManagerStats reports master contents plus the last refresh time.
type ManagerStats struct {
	Total       int            `json:"total"`
	PerMarket   map[string]int `json:"perMarket"`
	LastRefresh string         `json:"lastRefresh,omitempty"`
}

// Stats summarises the master and when it was last refreshed.
func (m *Manager) Stats() (*ManagerStats, error) {
	repoStats, err := m.repo.GetStats()
	if err != nil {
		return nil, err
	}

	lastRefresh, err := m.meta.GetMeta(prices.MetaMasterRefreshedAt)
	if err != nil {
		return nil, err
	}

	return &ManagerStats{
		Total:       repoStats.Total,
		PerMarket:   repoStats.PerMarket,
		LastRefresh: lastRefresh,
	}, nil
}

func (m *Manager) koreanFromStore() ([]domain.Instrument, error) {
	kospi, err := m.repo.ByMarket(domain.MarketKOSPI)
	if err != nil {
		return nil, err
	}
	kosdaq, err := m.repo.ByMarket(domain.MarketKOSDAQ)
	if err != nil {
		return nil, err
	}
	return append(kospi, kosdaq...), nil
}

func (m *Manager) refreshFromEmbedded() error {
	for _, market := range []domain.Market{domain.MarketKOSPI, domain.MarketKOSDAQ} {
		instruments, err := loadEmbedded(market)
		if err != nil {
			return err
		}
		if err := m.repo.ReplaceMarket(market, instruments); err != nil {
			return err
		}
	}

	if err := m.markRefreshed(); err != nil {
		m.log.Warn().Err(err).Msg("Failed to record master refresh time")
	}

	m.log.Info().Msg("Loaded instrument master from packaged listings")
	return nil
}

func (m *Manager) isFresh() (bool, error) {
	stamp, err := m.meta.GetMeta(prices.MetaMasterRefreshedAt)
	if err != nil {
		return false, err
	}
	if stamp == "" {
		return false, nil
	}

	refreshedAt, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return false, nil
	}
	return time.Since(refreshedAt) <= m.ttl, nil
}

func (m *Manager) markRefreshed() error {
	return m.meta.SetMeta(prices.MetaMasterRefreshedAt, time.Now().UTC().Format(time.RFC3339))
}

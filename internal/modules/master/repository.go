// Package master maintains the durable instrument master: the listing of
// known instruments per market, refreshed from operator uploads or packaged
// fallbacks.
package master

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockhunter/stockhunter/internal/database"
	"github.com/stockhunter/stockhunter/internal/domain"
)

// Repository handles stock_master table operations.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

const masterColumns = `code, market, name, is_etf, is_etn, is_active`

// NewRepository creates a stock master repository. The table itself is
// created by the price store migration; both share one database.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "stock_master").Logger(),
	}
}

// ReplaceMarket swaps out the full listing for one market transactionally.
// Instruments that disappear from the listing are deactivated, not deleted,
// so their price history stays queryable.
func (r *Repository) ReplaceMarket(market domain.Market, instruments []domain.Instrument) error {
	if len(instruments) == 0 {
		return fmt.Errorf("%w: empty listing for %s", domain.ErrInvalidInput, market)
	}

	now := time.Now().Unix()

	err := database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`UPDATE stock_master SET is_active = 0, updated_at = ? WHERE market = ?`, now, market); err != nil {
			return fmt.Errorf("failed to deactivate %s listing: %w", market, err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO stock_master (code, market, name, is_etf, is_etn, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 1, ?, ?)
			ON CONFLICT(code) DO UPDATE SET
				market = excluded.market,
				name = excluded.name,
				is_etf = excluded.is_etf,
				is_etn = excluded.is_etn,
				is_active = 1,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare master upsert: %w", err)
		}
		defer stmt.Close()

		for i := range instruments {
			inst := &instruments[i]
			if _, err := stmt.Exec(inst.Code, inst.Market, inst.Name, boolToInt(inst.IsETF), boolToInt(inst.IsETN), now, now); err != nil {
				return fmt.Errorf("failed to upsert instrument %s: %w", inst.Code, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Info().Str("market", string(market)).Int("count", len(instruments)).Msg("Replaced market listing")
	return nil
}

// UpdateName corrects the display name of one instrument.
func (r *Repository) UpdateName(code, name string) error {
	res, err := r.db.Exec(`UPDATE stock_master SET name = ?, updated_at = ? WHERE code = ?`, name, time.Now().Unix(), code)
	if err != nil {
		return fmt.Errorf("failed to update name for %s: %w", code, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: unknown instrument %s", domain.ErrInvalidInput, code)
	}
	return nil
}

// AllActive lists every active instrument across all markets.
func (r *Repository) AllActive() ([]domain.Instrument, error) {
	return r.queryInstruments(`SELECT `+masterColumns+` FROM stock_master WHERE is_active = 1 ORDER BY market, code`)
}

// ByMarket lists active instruments for one market.
func (r *Repository) ByMarket(market domain.Market) ([]domain.Instrument, error) {
	return r.queryInstruments(`SELECT `+masterColumns+` FROM stock_master WHERE is_active = 1 AND market = ? ORDER BY code`, market)
}

// NameOf returns the display name for a code, or "" when unknown.
func (r *Repository) NameOf(code string) (string, error) {
	var name string
	err := r.db.QueryRow(`SELECT name FROM stock_master WHERE code = ?`, code).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up name for %s: %w", code, err)
	}
	return name, nil
}

// Get returns one instrument, or nil when unknown.
func (r *Repository) Get(code string) (*domain.Instrument, error) {
	instruments, err := r.queryInstruments(`SELECT `+masterColumns+` FROM stock_master WHERE code = ?`, code)
	if err != nil {
		return nil, err
	}
	if len(instruments) == 0 {
		return nil, nil
	}
	return &instruments[0], nil
}

// Stats summarises the master contents.
type Stats struct {
	Total     int            `json:"total"`
	PerMarket map[string]int `json:"perMarket"`
}

// GetStats counts active instruments per market.
func (r *Repository) GetStats() (*Stats, error) {
	rows, err := r.db.Query(`SELECT market, COUNT(*) FROM stock_master WHERE is_active = 1 GROUP BY market`)
	if err != nil {
		return nil, fmt.Errorf("failed to count master entries: %w", err)
	}
	defer rows.Close()

	stats := &Stats{PerMarket: make(map[string]int)}
	for rows.Next() {
		var market string
		var count int
		if err := rows.Scan(&market, &count); err != nil {
			return nil, fmt.Errorf("failed to scan master stats: %w", err)
		}
		stats.PerMarket[market] = count
		stats.Total += count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating master stats: %w", err)
	}

	return stats, nil
}

func (r *Repository) queryInstruments(query string, args ...interface{}) ([]domain.Instrument, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock master: %w", err)
	}
	defer rows.Close()

	var instruments []domain.Instrument
	for rows.Next() {
		var inst domain.Instrument
		var isETF, isETN, isActive int

		if err := rows.Scan(&inst.Code, &inst.Market, &inst.Name, &isETF, &isETN, &isActive); err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		inst.IsETF = isETF != 0
		inst.IsETN = isETN != 0
		inst.IsActive = isActive != 0

		instruments = append(instruments, inst)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instruments: %w", err)
	}

	return instruments, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

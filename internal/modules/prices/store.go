// Package prices provides the durable per-instrument daily OHLCV store.
package prices

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockhunter/stockhunter/internal/database"
	"github.com/stockhunter/stockhunter/internal/domain"
)

// Metadata keys for operational state.
const (
	MetaLastFullInit      = "last_full_init"
	MetaLastDailyUpdate   = "last_daily_update"
	MetaMasterRefreshedAt = "stock_master_refreshed_at"
)

const schema = `
CREATE TABLE IF NOT EXISTS daily_prices (
	code        TEXT    NOT NULL,
	trade_date  TEXT    NOT NULL,
	open        REAL    NOT NULL DEFAULT 0,
	high        REAL    NOT NULL DEFAULT 0,
	low         REAL    NOT NULL DEFAULT 0,
	close       REAL    NOT NULL DEFAULT 0,
	volume      INTEGER NOT NULL DEFAULT 0,
	inserted_at INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL,
	PRIMARY KEY (code, trade_date)
);

CREATE INDEX IF NOT EXISTS idx_daily_prices_code_date ON daily_prices(code, trade_date DESC);
CREATE INDEX IF NOT EXISTS idx_daily_prices_date ON daily_prices(trade_date DESC);

CREATE TABLE IF NOT EXISTS stock_master (
	code       TEXT PRIMARY KEY,
	market     TEXT NOT NULL,
	name       TEXT NOT NULL,
	is_etf     INTEGER NOT NULL DEFAULT 0,
	is_etn     INTEGER NOT NULL DEFAULT 0,
	is_active  INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stock_master_market ON stock_master(market);

CREATE TABLE IF NOT EXISTS db_metadata (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Store provides access to the daily price data. The store is single-writer:
// only the collector mutates bar data, and writes serialise on writeMu so a
// partially applied batch is never visible.
type Store struct {
	db      *database.DB
	writeMu sync.Mutex
	log     zerolog.Logger
}

// NewStore creates a price store over an open database.
func NewStore(db *database.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "price_store").Logger(),
	}
}

// Migrate applies the store schema. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply price store schema: %w", err)
	}
	return nil
}

// DB exposes the underlying database (shared with the master repository).
func (s *Store) DB() *database.DB {
	return s.db
}

// UpsertBatch writes bars for one instrument atomically. Re-applying the
// same batch is a no-op apart from updated_at; rows keep their original
// inserted_at.
func (s *Store) UpsertBatch(code string, bars []domain.DailyBar) error {
	if len(bars) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().Unix()

	return database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO daily_prices (code, trade_date, open, high, low, close, volume, inserted_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(code, trade_date) DO UPDATE SET
				open = excluded.open,
				high = excluded.high,
				low = excluded.low,
				close = excluded.close,
				volume = excluded.volume,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		for i := range bars {
			b := &bars[i]
			if b.TradeDate == "" {
				continue
			}
			if _, err := stmt.Exec(code, b.TradeDate, b.Open, b.High, b.Low, b.Close, int64(b.Volume), now, now); err != nil {
				return fmt.Errorf("failed to upsert bar %s/%s: %w", code, b.TradeDate, err)
			}
		}
		return nil
	})
}

// Bars fetches up to limit bars for an instrument, newest-first.
func (s *Store) Bars(code string, limit int) ([]domain.DailyBar, error) {
	rows, err := s.db.Query(`
		SELECT code, trade_date, open, high, low, close, volume, inserted_at, updated_at
		FROM daily_prices
		WHERE code = ?
		ORDER BY trade_date DESC
		LIMIT ?
	`, code, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []domain.DailyBar
	for rows.Next() {
		var b domain.DailyBar
		var volume, insertedAt, updatedAt int64

		if err := rows.Scan(&b.Code, &b.TradeDate, &b.Open, &b.High, &b.Low, &b.Close, &volume, &insertedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		b.Volume = uint64(volume)
		b.InsertedAt = time.Unix(insertedAt, 0)
		b.UpdatedAt = time.Unix(updatedAt, 0)

		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars: %w", err)
	}

	return bars, nil
}

// LatestDate returns the newest trade date stored for an instrument, or ""
// when the instrument has no bars.
func (s *Store) LatestDate(code string) (string, error) {
	// MAX over zero rows yields NULL rather than no row
	var date sql.NullString
	err := s.db.QueryRow(`SELECT MAX(trade_date) FROM daily_prices WHERE code = ?`, code).Scan(&date)
	if err != nil {
		return "", fmt.Errorf("failed to query latest date: %w", err)
	}
	if !date.Valid {
		return "", nil
	}
	return date.String, nil
}

// AllInstrumentsWithBars lists every instrument that has at least one bar.
func (s *Store) AllInstrumentsWithBars() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT code FROM daily_prices ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan code: %w", err)
		}
		codes = append(codes, code)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instruments: %w", err)
	}

	return codes, nil
}

// HasBars reports whether the store holds any bar at all.
func (s *Store) HasBars() (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM daily_prices LIMIT 1`).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to probe store: %w", err)
	}
	return true, nil
}

// PruneOlderThan removes bars older than horizonDays calendar days before
// today. Returns the number of rows removed. Only the full-backfill
// finalisation calls this; incremental updates never prune.
func (s *Store) PruneOlderThan(horizonDays int) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -horizonDays).Format(domain.TradeDateFormat)

	res, err := s.db.Exec(`DELETE FROM daily_prices WHERE trade_date < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune bars: %w", err)
	}

	pruned, _ := res.RowsAffected()
	if pruned > 0 {
		s.log.Info().Int64("rows", pruned).Str("cutoff", cutoff).Msg("Pruned old bars")
	}
	return pruned, nil
}

// SetMeta stores an operational key/value pair.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO db_metadata (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}
	return nil
}

// GetMeta fetches an operational value, or "" when unset.
func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM db_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata %s: %w", key, err)
	}
	return value, nil
}

// Statistics summarises the store contents.
type Statistics struct {
	InstrumentCount int    `json:"instrumentCount"`
	BarCount        int64  `json:"barCount"`
	OldestDate      string `json:"oldestDate"`
	NewestDate      string `json:"newestDate"`
}

// GetStatistics computes store-wide statistics.
func (s *Store) GetStatistics() (*Statistics, error) {
	stats := &Statistics{}

	var oldest, newest sql.NullString
	err := s.db.QueryRow(`
		SELECT COUNT(DISTINCT code), COUNT(*), MIN(trade_date), MAX(trade_date)
		FROM daily_prices
	`).Scan(&stats.InstrumentCount, &stats.BarCount, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to compute statistics: %w", err)
	}

	if oldest.Valid {
		stats.OldestDate = oldest.String
	}
	if newest.Valid {
		stats.NewestDate = newest.String
	}

	return stats, nil
}

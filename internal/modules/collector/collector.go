// Package collector orchestrates bar collection: the full historical
// backfill and the nightly incremental update.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stockhunter/stockhunter/internal/domain"
	"github.com/stockhunter/stockhunter/internal/modules/master"
	"github.com/stockhunter/stockhunter/internal/modules/prices"
)

const (
	// Backfill walks six 100-calendar-day windows back from today.
	backfillBatchDays  = 100
	backfillBatchCount = 6

	// Bars older than the retention horizon are pruned, but only at
	// backfill finalisation. Used when the configured horizon is absent.
	defaultRetentionDays = 400

	// The recent-daily endpoint caps at 30 bars; wider gaps go through the
	// period endpoint.
	recentDailyCap = 30

	// Instruments backfilled concurrently. The rate limiter does the real
	// pacing; this only bounds in-flight work.
	backfillWorkers = 4

	interBatchPause = 50 * time.Millisecond
)

// BrokerClient is the slice of the broker client the collector uses.
type BrokerClient interface {
	RecentDaily(ctx context.Context, code string) ([]domain.DailyBar, error)
	PeriodDaily(ctx context.Context, code, start, end string) ([]domain.DailyBar, error)
	LookupName(ctx context.Context, code string) (string, error)
}

// Collector runs backfills and incremental updates against the price store.
// At most one collection runs at a time.
type Collector struct {
	client    BrokerClient
	store     *prices.Store
	universe  *master.Manager
	progress  *ProgressTracker
	retention int // days of history kept after a backfill
	log       zerolog.Logger

	mu      sync.Mutex
	running bool

	now func() time.Time // injectable for tests
}

// New creates a collector. retentionDays bounds the history kept after a
// backfill; zero or negative falls back to the default horizon.
func New(client BrokerClient, store *prices.Store, universe *master.Manager, retentionDays int, log zerolog.Logger) *Collector {
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	return &Collector{
		client:    client,
		store:     store,
		universe:  universe,
		progress:  NewProgressTracker(),
		retention: retentionDays,
		log:       log.With().Str("component", "collector").Logger(),
		now:       time.Now,
	}
}

// Progress exposes the tracker for handlers.
func (c *Collector) Progress() *ProgressTracker {
	return c.progress
}

// SetClient swaps the broker client used by subsequent collections. Requests
// may carry their own credentials; the handler installs the matching client
// before kicking off a run. Refused while a collection is in flight.
func (c *Collector) SetClient(client BrokerClient) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return domain.ErrCollectionRunning
	}
	c.client = client
	return nil
}

// Running reports whether a collection is in flight.
func (c *Collector) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Collector) tryStart() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return domain.ErrCollectionRunning
	}
	c.running = true
	return nil
}

func (c *Collector) finish() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// Initialize performs the full historical backfill over the Korean universe.
// Without forceRebuild it refuses to touch a store that already holds bars.
func (c *Collector) Initialize(ctx context.Context, forceRebuild bool) error {
	if !forceRebuild {
		has, err := c.store.HasBars()
		if err != nil {
			return err
		}
		if has {
			return domain.ErrAlreadyInitialised
		}
	}

	if err := c.tryStart(); err != nil {
		return err
	}
	defer c.finish()

	universe, err := c.universe.KoreanUniverse()
	if err != nil {
		return fmt.Errorf("failed to resolve universe: %w", err)
	}

	runID := c.progress.Begin("initialize", len(universe))
	defer c.progress.Complete()

	c.log.Info().Str("run_id", runID).Int("universe", len(universe)).Bool("force_rebuild", forceRebuild).
		Msg("Starting full backfill")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(backfillWorkers)

	for _, inst := range universe {
		code := inst.Code
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			if !forceRebuild {
				latest, err := c.store.LatestDate(code)
				if err != nil {
					return err
				}
				if latest != "" {
					c.progress.Advance(code)
					return nil
				}
			}

			bars, err := c.backfillInstrument(gctx, code)
			if err != nil {
				c.log.Warn().Str("code", code).Err(err).Msg("Backfill failed for instrument")
				c.progress.RecordFailure(code)
				c.progress.Advance(code)
				return nil
			}

			if len(bars) == 0 {
				c.log.Warn().Str("code", code).Msg("No bars collected, skipping instrument")
				c.progress.Advance(code)
				return nil
			}

			if err := c.store.UpsertBatch(code, bars); err != nil {
				return err
			}
			c.progress.Advance(code)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if _, err := c.store.PruneOlderThan(c.retention); err != nil {
		return err
	}

	today := c.now().Format(domain.TradeDateFormat)
	if err := c.store.SetMeta(prices.MetaLastFullInit, today); err != nil {
		return err
	}

	snap := c.progress.Snapshot()
	c.log.Info().Str("run_id", runID).Int("processed", snap.Current).Int("failed", snap.FailedCount).
		Msg("Full backfill complete")
	return nil
}

// backfillInstrument collects roughly 400 calendar days of history in six
// 100-day period queries walking backward from today, deduplicated by trade
// date. A failure on the first window fails the instrument; later windows
// fail soft and the partial history is kept.
func (c *Collector) backfillInstrument(ctx context.Context, code string) ([]domain.DailyBar, error) {
	today := c.now()
	seen := make(map[string]struct{})
	var collected []domain.DailyBar

	for batch := 0; batch < backfillBatchCount; batch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := today.AddDate(0, 0, -batch*backfillBatchDays)
		start := end.AddDate(0, 0, -(backfillBatchDays - 1))

		bars, err := c.client.PeriodDaily(ctx, code, start.Format(domain.TradeDateFormat), end.Format(domain.TradeDateFormat))
		if err != nil {
			if batch == 0 {
				return nil, err
			}
			c.log.Warn().Str("code", code).Int("batch", batch+1).Err(err).
				Msg("Later backfill window failed, keeping partial history")
			break
		}

		for _, bar := range bars {
			if _, dup := seen[bar.TradeDate]; dup {
				continue
			}
			seen[bar.TradeDate] = struct{}{}
			collected = append(collected, bar)
		}

		time.Sleep(interBatchPause)
	}

	return collected, nil
}

// Update fills the gap between the newest stored bar and today for every
// instrument already in the store. Never prunes.
func (c *Collector) Update(ctx context.Context) error {
	if err := c.tryStart(); err != nil {
		return err
	}
	defer c.finish()

	instruments, err := c.store.AllInstrumentsWithBars()
	if err != nil {
		return err
	}

	runID := c.progress.Begin("update", len(instruments))
	defer c.progress.Complete()

	c.log.Info().Str("run_id", runID).Int("instruments", len(instruments)).Msg("Starting incremental update")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(backfillWorkers)

	for _, code := range instruments {
		code := code
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			if err := c.updateInstrument(gctx, code); err != nil {
				c.log.Warn().Str("code", code).Err(err).Msg("Incremental update failed for instrument")
				c.progress.RecordFailure(code)
			}
			c.progress.Advance(code)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	today := c.now().Format(domain.TradeDateFormat)
	if err := c.store.SetMeta(prices.MetaLastDailyUpdate, today); err != nil {
		return err
	}

	snap := c.progress.Snapshot()
	c.log.Info().Str("run_id", runID).Int("processed", snap.Current).Int("failed", snap.FailedCount).
		Msg("Incremental update complete")
	return nil
}

func (c *Collector) updateInstrument(ctx context.Context, code string) error {
	latest, err := c.store.LatestDate(code)
	if err != nil {
		return err
	}

	var fresh []domain.DailyBar
	daysMissing := c.daysSince(latest)

	if latest == "" || daysMissing <= recentDailyCap {
		fresh, err = c.client.RecentDaily(ctx, code)
	} else {
		latestDay, perr := time.Parse(domain.TradeDateFormat, latest)
		if perr != nil {
			return fmt.Errorf("corrupt latest date %q for %s: %w", latest, code, perr)
		}
		start := latestDay.AddDate(0, 0, 1)
		fresh, err = c.client.PeriodDaily(ctx, code, start.Format(domain.TradeDateFormat), c.now().Format(domain.TradeDateFormat))
	}
	if err != nil {
		return err
	}

	var newBars []domain.DailyBar
	for _, bar := range fresh {
		if latest == "" || bar.TradeDate > latest {
			newBars = append(newBars, bar)
		}
	}
	if len(newBars) == 0 {
		return nil
	}

	return c.store.UpsertBatch(code, newBars)
}

// daysSince returns calendar days between a stored trade date and today.
// Zero when the date is absent or unparseable.
func (c *Collector) daysSince(tradeDate string) int {
	if tradeDate == "" {
		return 0
	}
	day, err := time.Parse(domain.TradeDateFormat, tradeDate)
	if err != nil {
		return 0
	}
	return int(c.now().Sub(day).Hours() / 24)
}

// SyncStockNames fills in missing display names via the broker's symbol
// lookup. Returns how many names were updated.
func (c *Collector) SyncStockNames(ctx context.Context) (int, error) {
	universe, err := c.universe.KoreanUniverse()
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, inst := range universe {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		if inst.Name != "" && inst.Name != inst.Code {
			continue
		}

		name, err := c.client.LookupName(ctx, inst.Code)
		if err != nil {
			c.log.Warn().Str("code", inst.Code).Err(err).Msg("Name lookup failed")
			continue
		}
		if name == "" {
			continue
		}

		if err := c.universe.Repository().UpdateName(inst.Code, name); err != nil {
			c.log.Warn().Str("code", inst.Code).Err(err).Msg("Name update failed")
			continue
		}
		updated++
	}

	return updated, nil
}

package collector

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockhunter/stockhunter/internal/database"
	"github.com/stockhunter/stockhunter/internal/domain"
	"github.com/stockhunter/stockhunter/internal/modules/master"
	"github.com/stockhunter/stockhunter/internal/modules/prices"
)

type fakeBroker struct {
	mu          sync.Mutex
	recentCalls int
	periodCalls int
	lookupCalls int

	recentFn func(code string) ([]domain.DailyBar, error)
	periodFn func(code, start, end string) ([]domain.DailyBar, error)
	lookupFn func(code string) (string, error)
}

func (f *fakeBroker) RecentDaily(_ context.Context, code string) ([]domain.DailyBar, error) {
	f.mu.Lock()
	f.recentCalls++
	f.mu.Unlock()
	if f.recentFn == nil {
		return nil, nil
	}
	return f.recentFn(code)
}

func (f *fakeBroker) PeriodDaily(_ context.Context, code, start, end string) ([]domain.DailyBar, error) {
	f.mu.Lock()
	f.periodCalls++
	f.mu.Unlock()
	if f.periodFn == nil {
		return nil, nil
	}
	return f.periodFn(code, start, end)
}

func (f *fakeBroker) LookupName(_ context.Context, code string) (string, error) {
	f.mu.Lock()
	f.lookupCalls++
	f.mu.Unlock()
	if f.lookupFn == nil {
		return "", nil
	}
	return f.lookupFn(code)
}

func (f *fakeBroker) calls() (recent, period, lookup int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recentCalls, f.periodCalls, f.lookupCalls
}

// newTestCollector wires a collector over a fresh store whose universe holds
// the given Korean codes, with the default retention horizon.
func newTestCollector(t *testing.T, broker *fakeBroker, codes ...string) (*Collector, *prices.Store, *master.Repository) {
	t.Helper()
	return newTestCollectorRetention(t, broker, 0, codes...)
}

func newTestCollectorRetention(t *testing.T, broker *fakeBroker, retentionDays int, codes ...string) (*Collector, *prices.Store, *master.Repository) {
	t.Helper()

	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "collector_test.db"),
		Name: "collector-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := prices.NewStore(db, zerolog.Nop())
	require.NoError(t, store.Migrate())

	repo := master.NewRepository(db, zerolog.Nop())
	if len(codes) > 0 {
		var instruments []domain.Instrument
		for _, code := range codes {
			instruments = append(instruments, domain.Instrument{
				Code: code, Name: "종목" + code, Market: domain.MarketKOSPI, IsActive: true,
			})
		}
		require.NoError(t, repo.ReplaceMarket(domain.MarketKOSPI, instruments))
	}
	require.NoError(t, store.SetMeta(prices.MetaMasterRefreshedAt, time.Now().UTC().Format(time.RFC3339)))

	manager := master.NewManager(repo, store, 7*24*time.Hour, zerolog.Nop())
	return New(broker, store, manager, retentionDays, zerolog.Nop()), store, repo
}

func dayBar(code string, daysAgo int, close float64) domain.DailyBar {
	return domain.DailyBar{
		Code:      code,
		TradeDate: time.Now().AddDate(0, 0, -daysAgo).Format(domain.TradeDateFormat),
		Open:      close - 1,
		High:      close + 1,
		Low:       close - 2,
		Close:     close,
		Volume:    1000,
	}
}

func TestInitializeBackfillsUniverse(t *testing.T) {
	broker := &fakeBroker{
		periodFn: func(code, start, end string) ([]domain.DailyBar, error) {
			// Only the most recent window has data; older windows are empty
			if end >= time.Now().AddDate(0, 0, -5).Format(domain.TradeDateFormat) {
				return []domain.DailyBar{dayBar(code, 1, 100), dayBar(code, 2, 99)}, nil
			}
			return nil, nil
		},
	}
	c, store, _ := newTestCollector(t, broker, "005930", "000660")

	require.NoError(t, c.Initialize(context.Background(), false))

	for _, code := range []string{"005930", "000660"} {
		bars, err := store.Bars(code, 10)
		require.NoError(t, err)
		assert.Len(t, bars, 2, code)
	}

	// Six period windows per instrument
	_, period, _ := broker.calls()
	assert.Equal(t, 12, period)

	lastInit, err := store.GetMeta(prices.MetaLastFullInit)
	require.NoError(t, err)
	assert.Equal(t, time.Now().Format(domain.TradeDateFormat), lastInit)

	snap := c.Progress().Snapshot()
	assert.False(t, snap.Running)
	assert.Equal(t, 2, snap.Current)
	assert.Equal(t, 0, snap.FailedCount)
}

func TestInitializeRefusesPopulatedStore(t *testing.T) {
	broker := &fakeBroker{}
	c, store, _ := newTestCollector(t, broker, "005930")

	require.NoError(t, store.UpsertBatch("005930", []domain.DailyBar{dayBar("005930", 1, 100)}))
	before, err := store.GetStatistics()
	require.NoError(t, err)

	err = c.Initialize(context.Background(), false)
	assert.ErrorIs(t, err, domain.ErrAlreadyInitialised)

	// No broker traffic, statistics untouched
	recent, period, _ := broker.calls()
	assert.Zero(t, recent)
	assert.Zero(t, period)

	after, err := store.GetStatistics()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestInitializeForceRebuildRecollects(t *testing.T) {
	broker := &fakeBroker{
		periodFn: func(code, start, end string) ([]domain.DailyBar, error) {
			return []domain.DailyBar{dayBar(code, 1, 120)}, nil
		},
	}
	c, store, _ := newTestCollector(t, broker, "005930")

	require.NoError(t, store.UpsertBatch("005930", []domain.DailyBar{dayBar("005930", 1, 100)}))

	require.NoError(t, c.Initialize(context.Background(), true))

	bars, err := store.Bars("005930", 10)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 120.0, bars[0].Close)
}

func TestInitializeFirstWindowFailureSkipsInstrument(t *testing.T) {
	broker := &fakeBroker{
		periodFn: func(code, start, end string) ([]domain.DailyBar, error) {
			if code == "000660" {
				return nil, fmt.Errorf("broker unavailable")
			}
			return []domain.DailyBar{dayBar(code, 1, 100)}, nil
		},
	}
	c, store, _ := newTestCollector(t, broker, "005930", "000660")

	require.NoError(t, c.Initialize(context.Background(), false))

	bars, err := store.Bars("000660", 10)
	require.NoError(t, err)
	assert.Empty(t, bars)

	bars, err = store.Bars("005930", 10)
	require.NoError(t, err)
	assert.Len(t, bars, 1)

	snap := c.Progress().Snapshot()
	assert.Equal(t, 1, snap.FailedCount)
	assert.Equal(t, []string{"000660"}, snap.FailedCodes)
	assert.Equal(t, 2, snap.Current)
}

func TestInitializeLaterWindowFailureKeepsPartial(t *testing.T) {
	var windows int
	broker := &fakeBroker{}
	broker.periodFn = func(code, start, end string) ([]domain.DailyBar, error) {
		windows++
		switch windows {
		case 1:
			return []domain.DailyBar{dayBar(code, 1, 100)}, nil
		case 2:
			return nil, fmt.Errorf("broker unavailable")
		default:
			t.Errorf("window %d requested after a failed window", windows)
			return nil, nil
		}
	}
	c, store, _ := newTestCollector(t, broker, "005930")

	require.NoError(t, c.Initialize(context.Background(), false))

	bars, err := store.Bars("005930", 10)
	require.NoError(t, err)
	assert.Len(t, bars, 1)

	snap := c.Progress().Snapshot()
	assert.Zero(t, snap.FailedCount)
}

func TestBackfillDeduplicatesOverlappingWindows(t *testing.T) {
	dup := dayBar("005930", 3, 100)
	broker := &fakeBroker{
		periodFn: func(code, start, end string) ([]domain.DailyBar, error) {
			// Every window reports the same bar
			return []domain.DailyBar{dup}, nil
		},
	}
	c, store, _ := newTestCollector(t, broker, "005930")

	require.NoError(t, c.Initialize(context.Background(), false))

	bars, err := store.Bars("005930", 100)
	require.NoError(t, err)
	assert.Len(t, bars, 1)
}

func TestInitializePrunesBeyondRetention(t *testing.T) {
	broker := &fakeBroker{
		periodFn: func(code, start, end string) ([]domain.DailyBar, error) {
			return []domain.DailyBar{dayBar(code, 1, 100), dayBar(code, 500, 80)}, nil
		},
	}
	c, store, _ := newTestCollector(t, broker, "005930")

	require.NoError(t, c.Initialize(context.Background(), false))

	bars, err := store.Bars("005930", 100)
	require.NoError(t, err)
	require.Len(t, bars, 1)

	cutoff := time.Now().AddDate(0, 0, -400).Format(domain.TradeDateFormat)
	assert.GreaterOrEqual(t, bars[0].TradeDate, cutoff)
}

func TestInitializeHonoursConfiguredRetention(t *testing.T) {
	broker := &fakeBroker{
		periodFn: func(code, start, end string) ([]domain.DailyBar, error) {
			return []domain.DailyBar{dayBar(code, 1, 100), dayBar(code, 60, 80)}, nil
		},
	}
	c, store, _ := newTestCollectorRetention(t, broker, 30, "005930")

	require.NoError(t, c.Initialize(context.Background(), false))

	// The 60-day-old bar falls outside the 30-day horizon
	bars, err := store.Bars("005930", 100)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, time.Now().AddDate(0, 0, -1).Format(domain.TradeDateFormat), bars[0].TradeDate)
}

func TestUpdateGapFill(t *testing.T) {
	latest := dayBar("005930", 10, 100)

	broker := &fakeBroker{
		recentFn: func(code string) ([]domain.DailyBar, error) {
			// Broker returns a 30-bar window covering the gap and beyond
			var bars []domain.DailyBar
			for d := 1; d <= 30; d++ {
				bars = append(bars, dayBar(code, d, 100+float64(d)))
			}
			return bars, nil
		},
	}
	c, store, _ := newTestCollector(t, broker, "005930")
	require.NoError(t, store.UpsertBatch("005930", []domain.DailyBar{latest}))

	require.NoError(t, c.Update(context.Background()))

	recent, period, _ := broker.calls()
	assert.Equal(t, 1, recent)
	assert.Zero(t, period)

	// Bars at or before the pre-update latest are untouched; newer ones land
	bars, err := store.Bars("005930", 100)
	require.NoError(t, err)
	assert.Len(t, bars, 10)

	newLatest, err := store.LatestDate("005930")
	require.NoError(t, err)
	assert.Equal(t, time.Now().AddDate(0, 0, -1).Format(domain.TradeDateFormat), newLatest)

	// The original bar survived with its value intact
	assert.Equal(t, 100.0, bars[len(bars)-1].Close)

	lastUpdate, err := store.GetMeta(prices.MetaLastDailyUpdate)
	require.NoError(t, err)
	assert.Equal(t, time.Now().Format(domain.TradeDateFormat), lastUpdate)
}

func TestUpdateWideGapUsesPeriodEndpoint(t *testing.T) {
	latest := dayBar("005930", 60, 100)
	latestDate := latest.TradeDate

	var gotStart, gotEnd string
	broker := &fakeBroker{
		periodFn: func(code, start, end string) ([]domain.DailyBar, error) {
			gotStart, gotEnd = start, end
			return []domain.DailyBar{dayBar(code, 1, 130)}, nil
		},
	}
	c, store, _ := newTestCollector(t, broker, "005930")
	require.NoError(t, store.UpsertBatch("005930", []domain.DailyBar{latest}))

	require.NoError(t, c.Update(context.Background()))

	recent, period, _ := broker.calls()
	assert.Zero(t, recent)
	assert.Equal(t, 1, period)

	wantStart, _ := time.Parse(domain.TradeDateFormat, latestDate)
	assert.Equal(t, wantStart.AddDate(0, 0, 1).Format(domain.TradeDateFormat), gotStart)
	assert.Equal(t, time.Now().Format(domain.TradeDateFormat), gotEnd)
}

func TestUpdateNeverPrunes(t *testing.T) {
	ancient := dayBar("005930", 500, 50)
	broker := &fakeBroker{
		periodFn: func(code, start, end string) ([]domain.DailyBar, error) {
			return []domain.DailyBar{dayBar(code, 1, 130)}, nil
		},
	}
	c, store, _ := newTestCollector(t, broker, "005930")
	require.NoError(t, store.UpsertBatch("005930", []domain.DailyBar{ancient}))

	require.NoError(t, c.Update(context.Background()))

	bars, err := store.Bars("005930", 100)
	require.NoError(t, err)
	assert.Len(t, bars, 2)
}

func TestOnlyOneCollectionAtATime(t *testing.T) {
	block := make(chan struct{})
	broker := &fakeBroker{
		periodFn: func(code, start, end string) ([]domain.DailyBar, error) {
			<-block
			return []domain.DailyBar{dayBar(code, 1, 100)}, nil
		},
	}
	c, _, _ := newTestCollector(t, broker, "005930")

	done := make(chan error, 1)
	go func() { done <- c.Initialize(context.Background(), false) }()

	require.Eventually(t, c.Running, time.Second, 5*time.Millisecond)

	err := c.Update(context.Background())
	assert.ErrorIs(t, err, domain.ErrCollectionRunning)

	close(block)
	require.NoError(t, <-done)
}

func TestSyncStockNames(t *testing.T) {
	broker := &fakeBroker{
		lookupFn: func(code string) (string, error) {
			return "조회된이름", nil
		},
	}
	c, store, repo := newTestCollector(t, broker)

	require.NoError(t, repo.ReplaceMarket(domain.MarketKOSPI, []domain.Instrument{
		{Code: "005930", Name: "삼성전자", Market: domain.MarketKOSPI, IsActive: true},
		{Code: "123456", Name: "123456", Market: domain.MarketKOSPI, IsActive: true},
	}))
	require.NoError(t, store.SetMeta(prices.MetaMasterRefreshedAt, time.Now().UTC().Format(time.RFC3339)))

	updated, err := c.SyncStockNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	_, _, lookups := broker.calls()
	assert.Equal(t, 1, lookups)

	name, err := repo.NameOf("123456")
	require.NoError(t, err)
	assert.Equal(t, "조회된이름", name)
}

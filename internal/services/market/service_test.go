package market

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
	"github.com/bobmcallan/famfolio/internal/models"
	badgerstore "github.com/bobmcallan/famfolio/internal/storage/badger"
)

// seriesProvider returns a bar for every weekday in the requested range
// except the configured gaps, unless err is set.
type seriesProvider struct {
	mu    sync.Mutex
	gaps  map[string]map[time.Time]bool // symbol -> missing dates; "*" applies to all
	err   error
	block bool
	calls atomic.Int32
	close decimal.Decimal
}

func newSeriesProvider() *seriesProvider {
	return &seriesProvider{gaps: map[string]map[time.Time]bool{}, close: decimal.NewFromInt(100)}
}

func (p *seriesProvider) skip(symbol string, dates ...time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gaps[symbol] == nil {
		p.gaps[symbol] = map[time.Time]bool{}
	}
	for _, d := range dates {
		p.gaps[symbol][d] = true
	}
}

func (p *seriesProvider) FetchDailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyPrice, error) {
	p.calls.Add(1)
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.err != nil {
		return nil, p.err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.DailyPrice
	for _, d := range common.Weekdays(start, end) {
		if p.gaps[symbol][d] || p.gaps["*"][d] {
			continue
		}
		out = append(out, models.DailyPrice{Date: d, Close: p.close})
	}
	return out, nil
}

var _ interfaces.PriceProvider = (*seriesProvider)(nil)

// Wednesday 2024-03-20, 16:00 in New York: after the close.
var testNow = time.Date(2024, 3, 20, 20, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, provider interfaces.PriceProvider, configure ...func(*common.Config)) (*Service, interfaces.StorageManager) {
	t.Helper()
	store, err := badgerstore.NewManager(common.NewSilentLogger(), filepath.Join(t.TempDir(), "badger"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := common.NewDefaultConfig()
	for _, fn := range configure {
		fn(cfg)
	}

	svc := NewService(store, provider, cfg, common.NewSilentLogger())
	svc.SetClock(common.NewMarketClock("America/New_York").WithNow(func() time.Time { return testNow }))
	svc.SetBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} })
	return svc, store
}

func seedPrice(t *testing.T, store interfaces.StorageManager, symbol string, date time.Time, close string) {
	t.Helper()
	require.NoError(t, store.PriceStore().PutPrice(context.Background(), &models.PriceEntry{
		Symbol:     symbol,
		Date:       date,
		Close:      decimal.RequireFromString(close),
		Provenance: models.ProvenanceFetched,
		UpdatedAt:  testNow.Add(-48 * time.Hour),
	}))
}

func TestGetPrice_CacheHitMakesNoCall(t *testing.T) {
	provider := newSeriesProvider()
	svc, store := newTestService(t, provider)
	seedPrice(t, store, "AAPL", common.Date(2024, 3, 18), "172.50")

	q, err := svc.GetPrice(context.Background(), "aapl", common.Date(2024, 3, 18))
	require.NoError(t, err)

	assert.True(t, q.Close.Equal(decimal.RequireFromString("172.50")))
	assert.False(t, q.Stale)
	assert.Equal(t, int32(0), provider.calls.Load())
	assert.Equal(t, 0, svc.APIUsage().UsedToday)
}

func TestGetPrice_MissFetchesOnceThenHitsCache(t *testing.T) {
	provider := newSeriesProvider()
	svc, _ := newTestService(t, provider)
	ctx := context.Background()

	q, err := svc.GetPrice(ctx, "MSFT", common.Date(2024, 3, 12))
	require.NoError(t, err)
	assert.Equal(t, models.ProvenanceFetched, q.Provenance)

	_, err = svc.GetPrice(ctx, "MSFT", common.Date(2024, 3, 11))
	require.NoError(t, err)

	assert.Equal(t, int32(1), provider.calls.Load(), "expanded window should cover neighbouring dates")
	assert.Equal(t, 1, svc.APIUsage().UsedToday)
}

func TestGetPrice_WeekendCarriesForwardWithoutFetch(t *testing.T) {
	provider := newSeriesProvider()
	svc, store := newTestService(t, provider)
	seedPrice(t, store, "AAPL", common.Date(2024, 3, 15), "170")

	q, err := svc.GetPrice(context.Background(), "AAPL", common.Date(2024, 3, 17))
	require.NoError(t, err)

	assert.Equal(t, common.Date(2024, 3, 15), q.PriceDate)
	assert.Equal(t, ReasonWeekend, q.Reason)
	assert.False(t, q.Stale)
	assert.Equal(t, int32(0), provider.calls.Load())
}

func TestGetPrice_BeforeFirstTradeDateNeverFetches(t *testing.T) {
	provider := newSeriesProvider()
	svc, store := newTestService(t, provider)
	ctx := context.Background()

	_, err := store.TransactionStore().Append(ctx, &models.Transaction{
		AccountID: "acct", Symbol: "SHOP.TO", Type: models.TxBuy, Currency: "CAD",
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(90),
		TradeDate: common.Date(2024, 3, 1),
	})
	require.NoError(t, err)

	_, err = svc.GetPrice(ctx, "SHOP.TO", common.Date(2024, 2, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
	assert.Equal(t, int32(0), provider.calls.Load())
}

func TestGetPrices_BudgetRunsOutMidBatch(t *testing.T) {
	provider := newSeriesProvider()
	svc, store := newTestService(t, provider, func(c *common.Config) {
		c.Prices.DailyRequestLimit = 500
	})
	for i := 0; i < 499; i++ {
		require.True(t, svc.usage.TryAcquire())
	}
	seedPrice(t, store, "BBB", common.Date(2024, 3, 15), "50")
	seedPrice(t, store, "CCC", common.Date(2024, 3, 14), "75")

	quotes, errs := svc.GetPrices(context.Background(), []string{"AAA", "BBB", "CCC"}, common.Date(2024, 3, 19))

	assert.Empty(t, errs)
	assert.Equal(t, int32(1), provider.calls.Load())
	assert.False(t, quotes["AAA"].Stale)

	for _, sym := range []string{"BBB", "CCC"} {
		q := quotes[sym]
		require.NotNil(t, q, sym)
		assert.True(t, q.Stale, sym)
		assert.Equal(t, ReasonRateLimited, q.Reason, sym)
	}
	assert.Equal(t, common.Date(2024, 3, 14), quotes["CCC"].PriceDate)

	usage := svc.APIUsage()
	assert.Equal(t, 500, usage.UsedToday)
	assert.Equal(t, 0, usage.Remaining)
}

func TestGetPrice_RateLimitedWithNoCacheReturnsError(t *testing.T) {
	provider := newSeriesProvider()
	svc, _ := newTestService(t, provider, func(c *common.Config) {
		c.Prices.DailyRequestLimit = 1
	})
	require.True(t, svc.usage.TryAcquire())

	_, err := svc.GetPrice(context.Background(), "AAA", common.Date(2024, 3, 19))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrRateLimitExceeded))
	assert.Equal(t, int32(0), provider.calls.Load())
}

func TestGetPrice_ProviderFailureServesStaleAndRecordsNothing(t *testing.T) {
	provider := newSeriesProvider()
	provider.err = common.NewProviderError(common.ProviderTransient, "AAPL", 503, errors.New("unavailable"))
	svc, store := newTestService(t, provider, func(c *common.Config) {
		c.Clients.EODHD.MaxRetries = 2
	})
	seedPrice(t, store, "AAPL", common.Date(2024, 3, 15), "170")
	ctx := context.Background()

	q, err := svc.GetPrice(ctx, "AAPL", common.Date(2024, 3, 19))
	require.NoError(t, err)

	assert.True(t, q.Stale)
	assert.Equal(t, ReasonProviderError, q.Reason)
	assert.Equal(t, int32(3), provider.calls.Load(), "one call plus two retries")
	assert.Equal(t, 3, svc.APIUsage().UsedToday)

	attempts, err := store.HolidayStore().ListSymbolAttempts(ctx, "AAPL", common.Date(2024, 1, 1), common.Date(2024, 12, 31))
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestGetPrice_NotFoundIsNotRetried(t *testing.T) {
	provider := newSeriesProvider()
	provider.err = common.NewProviderError(common.ProviderNotFound, "NOPE", 404, errors.New("unknown symbol"))
	svc, _ := newTestService(t, provider)

	_, err := svc.GetPrice(context.Background(), "NOPE", common.Date(2024, 3, 19))
	require.Error(t, err)
	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestGetPrice_TimeoutIsProviderTimeout(t *testing.T) {
	provider := newSeriesProvider()
	provider.block = true
	svc, _ := newTestService(t, provider, func(c *common.Config) {
		c.Clients.EODHD.MaxRetries = 0
	})
	svc.timeout = 20 * time.Millisecond

	_, err := svc.GetPrice(context.Background(), "SLOW", common.Date(2024, 3, 19))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrProviderTimeout), "got %v", err)
}

func TestTriggerPriceUpdate_SecondRunHitsCache(t *testing.T) {
	provider := newSeriesProvider()
	svc, _ := newTestService(t, provider)
	ctx := context.Background()

	first, err := svc.TriggerPriceUpdate(ctx, []string{"AAPL"})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, first.Updated)

	second, err := svc.TriggerPriceUpdate(ctx, []string{"AAPL"})
	require.NoError(t, err)
	assert.Empty(t, second.Updated)
	assert.Equal(t, []string{"AAPL"}, second.Fresh)

	assert.Equal(t, int32(1), provider.calls.Load())
	assert.Equal(t, 1, svc.APIUsage().UsedToday)
}

func TestTriggerPriceUpdate_SkipsRemainderWhenBudgetSpent(t *testing.T) {
	provider := newSeriesProvider()
	svc, _ := newTestService(t, provider, func(c *common.Config) {
		c.Prices.DailyRequestLimit = 1
	})

	result, err := svc.TriggerPriceUpdate(context.Background(), []string{"AAA", "BBB", "CCC"})
	require.NoError(t, err)

	assert.Equal(t, []string{"AAA"}, result.Updated)
	assert.Equal(t, []string{"BBB", "CCC"}, result.SkippedRateLimited)
	assert.Empty(t, result.Failed)
}

func TestTriggerPriceUpdate_DefaultsToTrackedSymbols(t *testing.T) {
	provider := newSeriesProvider()
	svc, store := newTestService(t, provider)
	ctx := context.Background()

	for _, sym := range []string{"XIU.TO", "AAPL"} {
		_, err := store.TransactionStore().Append(ctx, &models.Transaction{
			AccountID: "acct", Symbol: sym, Type: models.TxBuy, Currency: "USD",
			Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(10),
			TradeDate: common.Date(2024, 3, 4),
		})
		require.NoError(t, err)
	}

	result, err := svc.TriggerPriceUpdate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "XIU.TO"}, result.Updated)
}

func TestStocksNeedingUpdate(t *testing.T) {
	provider := newSeriesProvider()
	svc, store := newTestService(t, provider)
	ctx := context.Background()

	for _, sym := range []string{"AAA", "BBB"} {
		_, err := store.TransactionStore().Append(ctx, &models.Transaction{
			AccountID: "acct", Symbol: sym, Type: models.TxBuy, Currency: "USD",
			Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(10),
			TradeDate: common.Date(2024, 1, 2),
		})
		require.NoError(t, err)
	}
	seedPrice(t, store, "BBB", common.Date(2024, 3, 18), "10")

	stale, err := svc.StocksNeedingUpdate(ctx)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, models.StaleSymbol{Symbol: "AAA", Reason: models.StaleNoData}, stale[0])
	assert.Equal(t, "BBB", stale[1].Symbol)
	assert.Equal(t, models.StaleOutdated, stale[1].Reason)
}

func TestRefreshBatchSize(t *testing.T) {
	svc, _ := newTestService(t, newSeriesProvider())
	assert.Equal(t, 50, svc.RefreshBatchSize())

	open := time.Date(2024, 3, 20, 15, 0, 0, 0, time.UTC) // 11:00 in New York
	svc.SetClock(common.NewMarketClock("America/New_York").WithNow(func() time.Time { return open }))
	assert.Equal(t, 20, svc.RefreshBatchSize())
}

func TestMissingDates_SkipsClosures(t *testing.T) {
	svc, store := newTestService(t, newSeriesProvider())
	ctx := context.Background()
	seedPrice(t, store, "AAPL", common.Date(2024, 3, 26), "1")
	require.NoError(t, store.HolidayStore().UpsertHoliday(ctx, &models.MarketHoliday{
		Date: common.Date(2024, 3, 27), Market: models.MarketUS, Confidence: 5, Source: models.HolidayInferred,
	}))

	// Clock is moved forward so the range is in the past.
	later := time.Date(2024, 4, 10, 20, 0, 0, 0, time.UTC)
	svc.SetClock(common.NewMarketClock("America/New_York").WithNow(func() time.Time { return later }))

	missing, err := svc.MissingDates(ctx, "AAPL", common.Date(2024, 3, 25), common.Date(2024, 4, 1))
	require.NoError(t, err)

	// 26 cached, 27 inferred holiday, 29 Good Friday, 30-31 weekend.
	assert.Equal(t, []time.Time{
		common.Date(2024, 3, 25),
		common.Date(2024, 3, 28),
		common.Date(2024, 4, 1),
	}, missing)
}

func TestCacheStats(t *testing.T) {
	svc, store := newTestService(t, newSeriesProvider())
	seedPrice(t, store, "AAPL", common.Date(2024, 3, 14), "1")
	seedPrice(t, store, "AAPL", common.Date(2024, 3, 12), "1")

	stats, err := svc.CacheStats(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, common.Date(2024, 3, 12), stats.Earliest)
	assert.Equal(t, common.Date(2024, 3, 14), stats.Latest)
}

func TestMaintain_PrunesAttemptsAndRollsUsage(t *testing.T) {
	svc, store := newTestService(t, newSeriesProvider(), func(c *common.Config) {
		c.Prices.AttemptRetention = "720h"
	})
	ctx := context.Background()
	hs := store.HolidayStore()

	_, err := hs.RecordAttempt(ctx, &models.HolidayAttempt{Date: common.Date(2023, 12, 1), Symbol: "OLD", Market: models.MarketUS})
	require.NoError(t, err)
	_, err = hs.RecordAttempt(ctx, &models.HolidayAttempt{Date: common.Date(2024, 3, 13), Symbol: "NEW", Market: models.MarketUS})
	require.NoError(t, err)

	require.True(t, svc.usage.TryAcquire())
	tomorrow := testNow.Add(24 * time.Hour)
	svc.SetClock(common.NewMarketClock("America/New_York").WithNow(func() time.Time { return tomorrow }))
	require.True(t, svc.usage.RolledOver())

	require.NoError(t, svc.Maintain(ctx))

	old, err := hs.ListSymbolAttempts(ctx, "OLD", common.Date(2023, 1, 1), common.Date(2024, 12, 31))
	require.NoError(t, err)
	assert.Empty(t, old)

	kept, err := hs.ListSymbolAttempts(ctx, "NEW", common.Date(2023, 1, 1), common.Date(2024, 12, 31))
	require.NoError(t, err)
	assert.Len(t, kept, 1)

	assert.False(t, svc.usage.RolledOver())
	assert.Equal(t, 0, svc.APIUsage().UsedToday)
}

func TestFetchSeries_ChargesBudgetWithoutCaching(t *testing.T) {
	provider := newSeriesProvider()
	svc, store := newTestService(t, provider)
	ctx := context.Background()

	series, err := svc.FetchSeries(ctx, "USDCAD.FOREX", common.Date(2024, 3, 11), common.Date(2024, 3, 15))
	require.NoError(t, err)
	assert.Len(t, series, 5)
	assert.Equal(t, 1, svc.APIUsage().UsedToday)

	n, err := store.PriceStore().CountPrices(ctx, "USDCAD.FOREX")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// Package storagetest holds a behavioural test suite shared by every
// interfaces.StorageManager backend.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
	"github.com/bobmcallan/famfolio/internal/models"
)

// Factory returns a fresh, empty manager for one subtest.
type Factory func(t *testing.T) interfaces.StorageManager

func d(y int, m time.Month, day int) time.Time { return common.Date(y, m, day) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Run executes the full suite against the backend built by newManager.
func Run(t *testing.T, newManager Factory) {
	t.Run("PriceStore", func(t *testing.T) { testPriceStore(t, newManager(t)) })
	t.Run("PriceOverwrite", func(t *testing.T) { testPriceOverwrite(t, newManager(t)) })
	t.Run("HolidayStore", func(t *testing.T) { testHolidayStore(t, newManager(t)) })
	t.Run("TransactionStore", func(t *testing.T) { testTransactionStore(t, newManager(t)) })
	t.Run("CashSnapshotStore", func(t *testing.T) { testCashSnapshotStore(t, newManager(t)) })
	t.Run("FXRateStore", func(t *testing.T) { testFXRateStore(t, newManager(t)) })
}

func testPriceStore(t *testing.T, m interfaces.StorageManager) {
	ctx := context.Background()
	ps := m.PriceStore()

	_, err := ps.GetPrice(ctx, "AAPL", d(2024, 3, 11))
	assert.True(t, errors.Is(err, common.ErrNotFound), "missing price should be ErrNotFound, got %v", err)

	entries := []*models.PriceEntry{
		{Symbol: "AAPL", Date: d(2024, 3, 11), Close: dec("172.75"), Provenance: models.ProvenanceFetched},
		{Symbol: "AAPL", Date: d(2024, 3, 13), Close: dec("171.13"), Provenance: models.ProvenanceFetched},
		{Symbol: "AAPL", Date: d(2024, 3, 12), Close: dec("173.23"), Provenance: models.ProvenanceFetched},
		{Symbol: "MSFT", Date: d(2024, 3, 12), Close: dec("415.28"), Provenance: models.ProvenanceFetched},
	}
	require.NoError(t, ps.PutPrices(ctx, entries))

	got, err := ps.GetPrice(ctx, "AAPL", d(2024, 3, 12))
	require.NoError(t, err)
	assert.True(t, got.Close.Equal(dec("173.23")))
	assert.Equal(t, models.ProvenanceFetched, got.Provenance)
	assert.False(t, got.UpdatedAt.IsZero(), "UpdatedAt is stamped on write")

	list, err := ps.ListPrices(ctx, "AAPL", d(2024, 3, 11), d(2024, 3, 12))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, d(2024, 3, 11), list[0].Date)
	assert.Equal(t, d(2024, 3, 12), list[1].Date)

	before, err := ps.PriceOnOrBefore(ctx, "AAPL", d(2024, 3, 16))
	require.NoError(t, err)
	assert.Equal(t, d(2024, 3, 13), before.Date)

	_, err = ps.PriceOnOrBefore(ctx, "AAPL", d(2024, 3, 1))
	assert.True(t, errors.Is(err, common.ErrNotFound))

	latest, err := ps.LatestPrice(ctx, "MSFT")
	require.NoError(t, err)
	assert.Equal(t, d(2024, 3, 12), latest.Date)

	n, err := ps.CountPrices(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func testPriceOverwrite(t *testing.T, m interfaces.StorageManager) {
	ctx := context.Background()
	ps := m.PriceStore()
	day := d(2024, 3, 29)

	inferred := &models.PriceEntry{Symbol: "SHOP.TO", Date: day, Close: dec("104.10"), Provenance: models.ProvenanceInferredHoliday}
	require.NoError(t, ps.PutPrice(ctx, inferred))
	// identical write is a no-op
	require.NoError(t, ps.PutPrice(ctx, inferred))

	n, err := ps.CountPrices(ctx, "SHOP.TO")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	fetched := &models.PriceEntry{Symbol: "SHOP.TO", Date: day, Close: dec("105.00"), Provenance: models.ProvenanceFetched}
	require.NoError(t, ps.PutPrice(ctx, fetched))

	got, err := ps.GetPrice(ctx, "SHOP.TO", day)
	require.NoError(t, err)
	assert.True(t, got.Close.Equal(dec("105.00")), "real fetch overwrites inferred entry")
	assert.Equal(t, models.ProvenanceFetched, got.Provenance)
}

func testHolidayStore(t *testing.T, m interfaces.StorageManager) {
	ctx := context.Background()
	hs := m.HolidayStore()
	day := d(2024, 3, 29)

	created, err := hs.RecordAttempt(ctx, &models.HolidayAttempt{Date: day, Symbol: "AAPL", Market: models.MarketUS})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = hs.RecordAttempt(ctx, &models.HolidayAttempt{Date: day, Symbol: "AAPL", Market: models.MarketUS})
	require.NoError(t, err)
	assert.False(t, created, "attempts are deduplicated by (date, symbol)")

	_, err = hs.RecordAttempt(ctx, &models.HolidayAttempt{Date: day, Symbol: "MSFT", Market: models.MarketUS})
	require.NoError(t, err)
	_, err = hs.RecordAttempt(ctx, &models.HolidayAttempt{Date: day, Symbol: "SHOP.TO", Market: models.MarketCA})
	require.NoError(t, err)
	_, err = hs.RecordAttempt(ctx, &models.HolidayAttempt{Date: d(2023, 1, 16), Symbol: "AAPL", Market: models.MarketUS})
	require.NoError(t, err)

	us, err := hs.ListAttempts(ctx, models.MarketUS, day)
	require.NoError(t, err)
	assert.Len(t, us, 2)

	require.NoError(t, hs.MarkHasData(ctx, "MSFT", day))
	require.NoError(t, hs.MarkHasData(ctx, "NOPE", day), "missing attempt is ignored")

	sym, err := hs.ListSymbolAttempts(ctx, "MSFT", day, day)
	require.NoError(t, err)
	require.Len(t, sym, 1)
	assert.True(t, sym[0].HasData)

	pruned, err := hs.PruneAttempts(ctx, d(2024, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	_, err = hs.GetHoliday(ctx, models.MarketUS, day)
	assert.True(t, errors.Is(err, common.ErrNotFound))

	require.NoError(t, hs.UpsertHoliday(ctx, &models.MarketHoliday{Date: day, Market: models.MarketUS, Confidence: 5, Source: models.HolidayInferred}))
	require.NoError(t, hs.UpsertHoliday(ctx, &models.MarketHoliday{Date: day, Market: models.MarketUS, Confidence: 6, Source: models.HolidayInferred}))

	h, err := hs.GetHoliday(ctx, models.MarketUS, day)
	require.NoError(t, err)
	assert.Equal(t, 6, h.Confidence)

	_, err = hs.GetHoliday(ctx, models.MarketCA, day)
	assert.True(t, errors.Is(err, common.ErrNotFound), "holidays are per market")

	list, err := hs.ListHolidays(ctx, models.MarketUS, d(2024, 1, 1), d(2024, 12, 31))
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testTransactionStore(t *testing.T, m interfaces.StorageManager) {
	ctx := context.Background()
	ts := m.TransactionStore()

	buy := &models.Transaction{
		AccountID: "acct-1", Symbol: "AAPL", Type: models.TxBuy, Currency: "USD",
		Quantity: dec("10"), Price: dec("100"), Fee: dec("1"), TradeDate: d(2024, 1, 2),
	}
	dep := &models.Transaction{
		AccountID: "acct-1", Type: models.TxDeposit, Currency: "CAD",
		Amount: dec("1000"), TradeDate: d(2024, 1, 2),
	}
	other := &models.Transaction{
		AccountID: "acct-2", Symbol: "SHOP.TO", Type: models.TxBuy, Currency: "CAD",
		Quantity: dec("3"), Price: dec("90"), TradeDate: d(2023, 12, 1),
	}

	b, err := ts.Append(ctx, buy)
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	dp, err := ts.Append(ctx, dep)
	require.NoError(t, err)
	assert.Greater(t, dp.Seq, b.Seq, "sequence increases on insert")
	_, err = ts.Append(ctx, other)
	require.NoError(t, err)

	list, err := ts.ListByAccount(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID, "same date sorts by sequence")
	assert.True(t, list[0].Price.Equal(dec("100")))
	assert.True(t, list[0].Fee.Equal(dec("1")))

	trades, err := ts.ListTrades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "SHOP.TO", trades[0].Symbol, "trades sorted by trade date")

	accounts, err := ts.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acct-1", "acct-2"}, accounts)
}

func testCashSnapshotStore(t *testing.T, m interfaces.StorageManager) {
	ctx := context.Background()
	cs := m.CashSnapshotStore()

	_, err := cs.GetSnapshot(ctx, "acct-1", "CAD")
	assert.True(t, errors.Is(err, common.ErrNotFound))

	require.NoError(t, cs.PutSnapshot(ctx, &models.CashSnapshot{AccountID: "acct-1", Currency: "cad", Balance: dec("-200")}))
	require.NoError(t, cs.PutSnapshot(ctx, &models.CashSnapshot{AccountID: "acct-1", Currency: "USD", Balance: dec("50.25")}))

	got, err := cs.GetSnapshot(ctx, "acct-1", "CAD")
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("-200")))

	require.NoError(t, cs.PutSnapshot(ctx, &models.CashSnapshot{AccountID: "acct-1", Currency: "USD", Balance: dec("75")}))
	got, err = cs.GetSnapshot(ctx, "acct-1", "USD")
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("75")))
}

func testFXRateStore(t *testing.T, m interfaces.StorageManager) {
	ctx := context.Background()
	fs := m.FXRateStore()

	_, err := fs.RateOnOrBefore(ctx, "USD", "CAD", d(2024, 3, 15))
	assert.True(t, errors.Is(err, common.ErrNotFound))

	require.NoError(t, fs.PutRates(ctx, []*models.FXRate{
		{Base: "USD", Quote: "CAD", Date: d(2024, 3, 13), Rate: dec("1.3500")},
		{Base: "USD", Quote: "CAD", Date: d(2024, 3, 14), Rate: dec("1.3550")},
	}))

	r, err := fs.RateOnOrBefore(ctx, "USD", "CAD", d(2024, 3, 17))
	require.NoError(t, err)
	assert.Equal(t, d(2024, 3, 14), r.Date)
	assert.True(t, r.Rate.Equal(dec("1.355")))

	r, err = fs.RateOnOrBefore(ctx, "USD", "CAD", d(2024, 3, 13))
	require.NoError(t, err)
	assert.True(t, r.Rate.Equal(dec("1.35")))
}

package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/famfolio/internal/models"
)

// PriceService is the price fetch coordinator. It is the only component that
// calls the provider and the only owner of the daily usage counter.
type PriceService interface {
	// GetPrice returns the close for symbol on date. Cache misses may fetch.
	// When the budget is spent or the provider fails, the last cached price is
	// returned with Stale set; the error is returned only when nothing is cached.
	GetPrice(ctx context.Context, symbol string, date time.Time) (*models.Quote, error)

	// GetPrices looks up several symbols for the same date.
	GetPrices(ctx context.Context, symbols []string, date time.Time) (map[string]*models.Quote, map[string]error)

	// PriceAsOf answers from the cache only, never calling the provider.
	PriceAsOf(ctx context.Context, symbol string, date time.Time) (*models.Quote, error)

	// MissingDates returns trading days in [start, end] with no cached price.
	MissingDates(ctx context.Context, symbol string, start, end time.Time) ([]time.Time, error)

	// FetchSeries fetches a raw daily series (e.g. an FX pair) under the budget.
	FetchSeries(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyPrice, error)

	TriggerPriceUpdate(ctx context.Context, symbols []string) (*models.PriceUpdateResult, error)
	StocksNeedingUpdate(ctx context.Context) ([]models.StaleSymbol, error)
	APIUsage() models.APIUsage
	ResetDailyUsage()
	CacheStats(ctx context.Context, symbol string) (*models.CacheStats, error)
	Maintain(ctx context.Context) error

	// RefreshBatchSize is the number of symbols refreshed per scheduler tick.
	RefreshBatchSize() int
}

// LedgerService is the FIFO position ledger.
type LedgerService interface {
	RecordTransaction(ctx context.Context, tx *models.Transaction) (*models.Transaction, error)
	GetLots(ctx context.Context, accountID string, asOf time.Time) ([]models.Lot, error)
	GetHoldings(ctx context.Context, accountID string, asOf time.Time) (map[string]*models.Holding, error)

	// GetGain returns gains keyed by currency. A non-empty symbol restricts
	// the result to that symbol.
	GetGain(ctx context.Context, accountID, symbol string, asOf time.Time) (map[string]*models.Gain, error)
}

// CashService reconstructs cash balances.
type CashService interface {
	GetCashBalance(ctx context.Context, accountID string, asOf time.Time) (*models.CashBalance, error)
	SetSnapshot(ctx context.Context, accountID, currency string, balance decimal.Decimal) error
	CheckDrift(ctx context.Context, accountID string) (*models.CashDrift, error)
}

// FXService resolves the as-of conversion rate for combined totals.
type FXService interface {
	// RateAsOf returns the rate for date, or the most recent prior rate.
	// common.ErrFXRateUnavailable is returned when none exists.
	RateAsOf(ctx context.Context, date time.Time) (*models.FXRate, error)
}

// ValuationService is the single path for total-asset figures.
type ValuationService interface {
	GetTotalAssets(ctx context.Context, accountID string, asOf time.Time) (*models.TotalAssets, error)
	GetAssetSnapshot(ctx context.Context, accountID string, asOf time.Time) (*models.AssetSnapshot, error)
}

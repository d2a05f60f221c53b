// Package interfaces defines service contracts for famfolio
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/famfolio/internal/models"
)

// StorageManager coordinates the persistence stores of one backend.
type StorageManager interface {
	PriceStore() PriceStore
	HolidayStore() HolidayStore
	TransactionStore() TransactionStore
	CashSnapshotStore() CashSnapshotStore
	FXRateStore() FXRateStore

	// Backend returns the backend name ("badger", "sqlite", "surrealdb").
	Backend() string

	Close() error
}

// PriceStore persists the (symbol, date) price cache. Reads never trigger
// provider calls. Puts are upserts: an identical value is a no-op and a
// differing value overwrites, including INFERRED_HOLIDAY entries.
// Missing records return common.ErrNotFound.
type PriceStore interface {
	GetPrice(ctx context.Context, symbol string, date time.Time) (*models.PriceEntry, error)
	PutPrice(ctx context.Context, entry *models.PriceEntry) error
	PutPrices(ctx context.Context, entries []*models.PriceEntry) error

	// ListPrices returns cached entries in [start, end] in ascending date order.
	ListPrices(ctx context.Context, symbol string, start, end time.Time) ([]*models.PriceEntry, error)

	// PriceOnOrBefore returns the most recent entry dated on or before date.
	PriceOnOrBefore(ctx context.Context, symbol string, date time.Time) (*models.PriceEntry, error)

	// LatestPrice returns the most recent entry for symbol.
	LatestPrice(ctx context.Context, symbol string) (*models.PriceEntry, error)

	// CountPrices returns the number of cached entries for symbol.
	CountPrices(ctx context.Context, symbol string) (int, error)
}

// HolidayStore persists holiday attempts and promoted market holidays.
type HolidayStore interface {
	// RecordAttempt stores an attempt keyed by (date, symbol). It returns
	// false when the attempt already existed.
	RecordAttempt(ctx context.Context, attempt *models.HolidayAttempt) (bool, error)

	// ListAttempts returns all attempts for a market on a date.
	ListAttempts(ctx context.Context, market models.Market, date time.Time) ([]*models.HolidayAttempt, error)

	// ListSymbolAttempts returns a symbol's attempts dated in [start, end].
	ListSymbolAttempts(ctx context.Context, symbol string, start, end time.Time) ([]*models.HolidayAttempt, error)

	// MarkHasData flips HasData on an existing attempt. Missing attempts are ignored.
	MarkHasData(ctx context.Context, symbol string, date time.Time) error

	// PruneAttempts deletes attempts dated before cutoff and returns the count.
	PruneAttempts(ctx context.Context, cutoff time.Time) (int, error)

	GetHoliday(ctx context.Context, market models.Market, date time.Time) (*models.MarketHoliday, error)
	UpsertHoliday(ctx context.Context, holiday *models.MarketHoliday) error
	ListHolidays(ctx context.Context, market models.Market, start, end time.Time) ([]*models.MarketHoliday, error)
}

// TransactionStore is the append-only transaction log.
type TransactionStore interface {
	// Append assigns ID (when empty), Seq and CreatedAt, then stores tx.
	Append(ctx context.Context, tx *models.Transaction) (*models.Transaction, error)

	// ListByAccount returns an account's transactions ordered by (trade date, seq).
	ListByAccount(ctx context.Context, accountID string) ([]*models.Transaction, error)

	// ListTrades returns BUY and SELL transactions across all accounts.
	ListTrades(ctx context.Context) ([]*models.Transaction, error)

	ListAccounts(ctx context.Context) ([]string, error)
}

// CashSnapshotStore persists current cash balances per (account, currency).
type CashSnapshotStore interface {
	GetSnapshot(ctx context.Context, accountID, currency string) (*models.CashSnapshot, error)
	PutSnapshot(ctx context.Context, snapshot *models.CashSnapshot) error
}

// FXRateStore persists daily FX rates.
type FXRateStore interface {
	PutRates(ctx context.Context, rates []*models.FXRate) error

	// RateOnOrBefore returns the most recent rate dated on or before date.
	RateOnOrBefore(ctx context.Context, base, quote string, date time.Time) (*models.FXRate, error)
}

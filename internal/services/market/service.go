// Package market provides the price fetch coordinator
package market

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	gocache "github.com/patrickmn/go-cache"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
	"github.com/bobmcallan/famfolio/internal/models"
)

const trackedKey = "tracked"

// Service implements PriceService. It is the only caller of the price
// provider and the only owner of the daily usage counter.
type Service struct {
	storage  interfaces.StorageManager
	provider interfaces.PriceProvider
	config   common.PricesConfig
	logger   *common.Logger

	clock      *common.MarketClock
	usage      *UsageCounter
	timeout    time.Duration
	maxRetries int
	newBackOff func() backoff.BackOff

	memo       *gocache.Cache
	fetchLocks sync.Map // symbol -> *sync.Mutex
}

// NewService creates a new price fetch coordinator
func NewService(
	storage interfaces.StorageManager,
	provider interfaces.PriceProvider,
	config *common.Config,
	logger *common.Logger,
) *Service {
	prices := config.Prices
	if prices.DailyRequestLimit <= 0 {
		prices.DailyRequestLimit = 200
	}
	if prices.HolidayThreshold <= 0 {
		prices.HolidayThreshold = 5
	}
	if prices.MarketHoursBatch <= 0 {
		prices.MarketHoursBatch = 20
	}
	if prices.OffHoursBatch <= 0 {
		prices.OffHoursBatch = 50
	}

	s := &Service{
		storage:    storage,
		provider:   provider,
		config:     prices,
		logger:     logger,
		clock:      common.NewMarketClock(prices.Timezone),
		timeout:    config.Clients.EODHD.GetTimeout(),
		maxRetries: config.Clients.EODHD.MaxRetries,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		memo:       gocache.New(30*time.Second, time.Minute),
	}
	s.usage = NewUsageCounter(prices.DailyRequestLimit, s.clock.Today)
	return s
}

// SetClock replaces the market clock. The usage counter follows it.
func (s *Service) SetClock(clock *common.MarketClock) {
	s.clock = clock
	s.usage.today = clock.Today
}

// SetBackOff replaces the retry policy for transient provider failures.
func (s *Service) SetBackOff(newBackOff func() backoff.BackOff) {
	s.newBackOff = newBackOff
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// trackedSymbols derives the refresh universe from the trade log: every
// traded symbol with its currency and earliest trade date.
func (s *Service) trackedSymbols(ctx context.Context) (map[string]models.TrackedSymbol, error) {
	if v, ok := s.memo.Get(trackedKey); ok {
		return v.(map[string]models.TrackedSymbol), nil
	}

	trades, err := s.storage.TransactionStore().ListTrades(ctx)
	if err != nil {
		return nil, err
	}

	tracked := make(map[string]models.TrackedSymbol)
	for _, tx := range trades {
		sym := normalizeSymbol(tx.Symbol)
		ts, ok := tracked[sym]
		if !ok || tx.TradeDate.Before(ts.FirstTradeDate) {
			tracked[sym] = models.TrackedSymbol{
				Symbol:         sym,
				Currency:       tx.Currency,
				Market:         models.DetectMarket(sym, tx.Currency),
				FirstTradeDate: common.DateOnly(tx.TradeDate),
			}
		}
	}

	s.memo.SetDefault(trackedKey, tracked)
	return tracked, nil
}

// symbolInfo returns tracking metadata for symbol. Untracked symbols get a
// market from their suffix and no first-trade-date bound.
func (s *Service) symbolInfo(ctx context.Context, symbol string) models.TrackedSymbol {
	tracked, err := s.trackedSymbols(ctx)
	if err != nil {
		s.logger.For(ctx).Warn().Err(err).Msg("Failed to load tracked symbols")
	}
	if ts, ok := tracked[symbol]; ok {
		return ts
	}
	return models.TrackedSymbol{Symbol: symbol, Market: models.DetectMarket(symbol, "")}
}

func (s *Service) trackedList(ctx context.Context) ([]models.TrackedSymbol, error) {
	tracked, err := s.trackedSymbols(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.TrackedSymbol, 0, len(tracked))
	for _, ts := range tracked {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *Service) lockSymbol(symbol string) func() {
	v, _ := s.fetchLocks.LoadOrStore(symbol, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// APIUsage reports today's provider budget.
func (s *Service) APIUsage() models.APIUsage {
	return s.usage.Snapshot()
}

// ResetDailyUsage zeroes the usage counter.
func (s *Service) ResetDailyUsage() {
	s.usage.Reset()
	s.logger.Info().Int("limit", s.usage.Limit()).Msg("Daily price request usage reset")
}

// RefreshBatchSize is the number of symbols refreshed per scheduler run.
func (s *Service) RefreshBatchSize() int {
	if s.clock.IsMarketHours(s.clock.Now()) {
		return s.config.MarketHoursBatch
	}
	return s.config.OffHoursBatch
}

// Maintain prunes old holiday attempts and rolls the usage counter over
// when the provider day has changed.
func (s *Service) Maintain(ctx context.Context) error {
	cutoff := s.clock.Today().Add(-s.config.GetAttemptRetention())
	pruned, err := s.storage.HolidayStore().PruneAttempts(ctx, cutoff)
	if err != nil {
		return err
	}

	rolled := s.usage.RolledOver()
	if rolled {
		s.usage.Reset()
	}
	s.memo.Delete(trackedKey)

	s.logger.For(ctx).Info().
		Int("attempts_pruned", pruned).
		Bool("usage_reset", rolled).
		Str("cutoff", common.FormatDate(cutoff)).
		Msg("Price cache maintenance complete")
	return nil
}

var _ interfaces.PriceService = (*Service)(nil)

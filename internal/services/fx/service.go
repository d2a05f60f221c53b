// Package fx resolves the USD/CAD rate used for combined totals
package fx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
	"github.com/bobmcallan/famfolio/internal/models"
)

// Compile-time interface check
var _ interfaces.FXService = (*Service)(nil)

// A stored rate at most this many days older than the requested date is
// used without asking the provider (covers weekends and long weekends).
const acceptableAgeDays = 4

// Service implements FXService. Rates come from the store first; missing
// ranges are fetched through the price coordinator so they share its budget.
type Service struct {
	storage interfaces.StorageManager
	prices  interfaces.PriceService
	config  common.FXConfig
	clock   *common.MarketClock
	logger  *common.Logger
	cache   *gocache.Cache
}

// NewService creates a new FX service
func NewService(storage interfaces.StorageManager, prices interfaces.PriceService, config common.FXConfig, clock *common.MarketClock, logger *common.Logger) *Service {
	if config.Base == "" {
		config.Base = models.CurrencyUSD
	}
	if config.Quote == "" {
		config.Quote = models.CurrencyCAD
	}
	if config.Symbol == "" {
		config.Symbol = config.Base + config.Quote + ".FOREX"
	}
	if config.LookbackDays <= 0 {
		config.LookbackDays = 10
	}
	ttl := config.GetCacheTTL()
	return &Service{
		storage: storage,
		prices:  prices,
		config:  config,
		clock:   clock,
		logger:  logger,
		cache:   gocache.New(ttl, 2*ttl),
	}
}

// RateAsOf returns the rate for date or the most recent one before it.
func (s *Service) RateAsOf(ctx context.Context, date time.Time) (*models.FXRate, error) {
	date = common.DateOnly(date)
	key := common.FormatDate(date)
	if v, ok := s.cache.Get(key); ok {
		rate := v.(models.FXRate)
		return &rate, nil
	}

	stored, err := s.storage.FXRateStore().RateOnOrBefore(ctx, s.config.Base, s.config.Quote, date)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("failed to read fx rate: %w", err)
	}
	if stored != nil && common.DaysBetween(stored.Date, date) <= acceptableAgeDays {
		s.cache.SetDefault(key, *stored)
		return stored, nil
	}

	fetched, fetchErr := s.fetch(ctx, date)
	if fetchErr == nil && fetched != nil {
		s.cache.SetDefault(key, *fetched)
		return fetched, nil
	}

	if stored != nil {
		s.logger.For(ctx).Warn().Str("date", key).Str("rate_date", common.FormatDate(stored.Date)).Err(fetchErr).Msg("Using older fx rate")
		s.cache.SetDefault(key, *stored)
		return stored, nil
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("%w for %s/%s on %s: %v", common.ErrFXRateUnavailable, s.config.Base, s.config.Quote, key, fetchErr)
	}
	return nil, fmt.Errorf("%w for %s/%s on %s", common.ErrFXRateUnavailable, s.config.Base, s.config.Quote, key)
}

// fetch pulls the lookback window ending at date, stores it, and returns the
// latest rate on or before date.
func (s *Service) fetch(ctx context.Context, date time.Time) (*models.FXRate, error) {
	end := date
	if today := s.clock.Today(); end.After(today) {
		end = today
	}
	start := end.AddDate(0, 0, -s.config.LookbackDays)

	series, err := s.prices.FetchSeries(ctx, s.config.Symbol, start, end)
	if err != nil {
		return nil, err
	}

	rates := make([]*models.FXRate, 0, len(series))
	var best *models.FXRate
	for _, p := range series {
		if !p.Close.IsPositive() {
			continue
		}
		r := &models.FXRate{
			Base:  strings.ToUpper(s.config.Base),
			Quote: strings.ToUpper(s.config.Quote),
			Date:  common.DateOnly(p.Date),
			Rate:  p.Close,
		}
		rates = append(rates, r)
		if !r.Date.After(date) && (best == nil || r.Date.After(best.Date)) {
			best = r
		}
	}
	if len(rates) > 0 {
		if err := s.storage.FXRateStore().PutRates(ctx, rates); err != nil {
			s.logger.For(ctx).Warn().Err(err).Msg("Failed to store fx rates")
		}
	}
	s.logger.For(ctx).Debug().Str("symbol", s.config.Symbol).Int("rates", len(rates)).Msg("FX rates fetched")
	return best, nil
}

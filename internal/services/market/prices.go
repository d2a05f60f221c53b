package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/models"
)

// Quote reasons.
const (
	ReasonWeekend       = "weekend"
	ReasonHoliday       = "market_holiday"
	ReasonCalendar      = "exchange_calendar"
	ReasonNoData        = "no_data"
	ReasonRateLimited   = "rate_limited"
	ReasonProviderError = "provider_error"
)

func quoteFrom(date time.Time, e *models.PriceEntry) *models.Quote {
	return &models.Quote{
		Symbol:     e.Symbol,
		Date:       date,
		PriceDate:  e.Date,
		Close:      e.Close,
		Provenance: e.Provenance,
	}
}

// GetPrice resolves a close for (symbol, date). The cache is consulted first,
// then closures are carried forward from the prior close, and only then is
// the provider called. Budget exhaustion and provider failures fall back to
// the most recent cached close marked Stale.
func (s *Service) GetPrice(ctx context.Context, symbol string, date time.Time) (*models.Quote, error) {
	symbol = normalizeSymbol(symbol)
	date = common.DateOnly(date)
	today := s.clock.Today()
	if date.After(today) {
		date = today
	}

	ps := s.storage.PriceStore()
	if e, err := ps.GetPrice(ctx, symbol, date); err == nil {
		s.logger.For(ctx).Debug().Str("symbol", symbol).Str("date", common.FormatDate(date)).Msg("Price cache hit")
		return quoteFrom(date, e), nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	ts := s.symbolInfo(ctx, symbol)
	if !ts.FirstTradeDate.IsZero() && date.Before(ts.FirstTradeDate) {
		return nil, fmt.Errorf("no price for %s on %s before first trade date %s: %w",
			symbol, common.FormatDate(date), common.FormatDate(ts.FirstTradeDate), common.ErrNotFound)
	}

	if reason, closed := s.closure(ctx, ts.Market, date); closed {
		if q, err := s.carryForward(ctx, symbol, date, reason); err == nil {
			return q, nil
		}
	}

	unlock := s.lockSymbol(symbol)
	defer unlock()

	// Another caller may have filled the cache while we waited.
	if e, err := ps.GetPrice(ctx, symbol, date); err == nil {
		return quoteFrom(date, e), nil
	}

	start, end := s.expandGap(date, date, ts.FirstTradeDate, today)
	if _, err := s.fetchAndStore(ctx, ts, start, end); err != nil {
		return s.staleFallback(ctx, symbol, date, err)
	}

	if e, err := ps.GetPrice(ctx, symbol, date); err == nil {
		return quoteFrom(date, e), nil
	}
	if reason, closed := s.closure(ctx, ts.Market, date); closed {
		if q, err := s.carryForward(ctx, symbol, date, reason); err == nil {
			return q, nil
		}
	}

	// The provider has no bar for a trading day, e.g. today's close is not
	// published yet or the symbol was halted.
	prev, err := ps.PriceOnOrBefore(ctx, symbol, date)
	if err != nil {
		return nil, fmt.Errorf("no price for %s on or before %s: %w", symbol, common.FormatDate(date), err)
	}
	q := quoteFrom(date, prev)
	q.Stale = true
	q.Reason = ReasonNoData
	return q, nil
}

// carryForward answers a closure with the prior close. Holiday answers are
// written back as INFERRED_HOLIDAY entries so later lookups hit the cache;
// a real fetch for the date later overwrites them.
func (s *Service) carryForward(ctx context.Context, symbol string, date time.Time, reason string) (*models.Quote, error) {
	ps := s.storage.PriceStore()
	prev, err := ps.PriceOnOrBefore(ctx, symbol, date.AddDate(0, 0, -1))
	if err != nil {
		return nil, err
	}

	if reason != ReasonWeekend {
		if _, err := ps.GetPrice(ctx, symbol, date); errors.Is(err, common.ErrNotFound) {
			entry := &models.PriceEntry{
				Symbol:     symbol,
				Date:       date,
				Close:      prev.Close,
				Provenance: models.ProvenanceInferredHoliday,
				UpdatedAt:  time.Now(),
			}
			if err := ps.PutPrice(ctx, entry); err != nil {
				s.logger.For(ctx).Warn().Str("symbol", symbol).Err(err).Msg("Failed to cache holiday carry-forward")
			}
		}
	}

	q := quoteFrom(date, prev)
	q.Reason = reason
	return q, nil
}

// staleFallback serves the most recent cached close after a failed fetch.
// The fetch error is returned only when nothing is cached.
func (s *Service) staleFallback(ctx context.Context, symbol string, date time.Time, fetchErr error) (*models.Quote, error) {
	reason := ReasonProviderError
	if common.IsRateLimited(fetchErr) {
		reason = ReasonRateLimited
	}

	prev, err := s.storage.PriceStore().PriceOnOrBefore(ctx, symbol, date)
	if err != nil {
		return nil, fmt.Errorf("failed to price %s on %s: %w", symbol, common.FormatDate(date), fetchErr)
	}

	s.logger.For(ctx).Warn().
		Str("symbol", symbol).
		Str("date", common.FormatDate(date)).
		Str("price_date", common.FormatDate(prev.Date)).
		Str("reason", reason).
		Err(fetchErr).
		Msg("Serving stale cached price")

	q := quoteFrom(date, prev)
	q.Stale = true
	q.Reason = reason
	return q, nil
}

// GetPrices prices several symbols for one date, in order. Once the budget
// runs out or the provider refuses with a rate limit, the remainder are
// answered from the cache without further calls.
func (s *Service) GetPrices(ctx context.Context, symbols []string, date time.Time) (map[string]*models.Quote, map[string]error) {
	quotes := make(map[string]*models.Quote, len(symbols))
	errs := make(map[string]error)
	limited := false
	for _, sym := range symbols {
		symbol := normalizeSymbol(sym)
		if limited {
			q, err := s.cachedOnly(ctx, symbol, date)
			if err != nil {
				errs[symbol] = err
				continue
			}
			quotes[symbol] = q
			continue
		}

		q, err := s.GetPrice(ctx, symbol, date)
		switch {
		case err != nil:
			errs[symbol] = err
			limited = common.IsRateLimited(err)
		default:
			quotes[symbol] = q
			limited = q.Reason == ReasonRateLimited
		}
	}
	return quotes, errs
}

// cachedOnly prices symbol from the cache after rate limiting. A gap that is
// not a closure is reported as rate limited.
func (s *Service) cachedOnly(ctx context.Context, symbol string, date time.Time) (*models.Quote, error) {
	q, err := s.PriceAsOf(ctx, symbol, date)
	if err != nil {
		return nil, fmt.Errorf("failed to price %s on %s: %w", symbol, common.FormatDate(date), common.ErrRateLimitExceeded)
	}
	if q.Stale {
		q.Reason = ReasonRateLimited
	}
	return q, nil
}

// PriceAsOf answers from the cache only: the latest close on or before date.
func (s *Service) PriceAsOf(ctx context.Context, symbol string, date time.Time) (*models.Quote, error) {
	symbol = normalizeSymbol(symbol)
	date = common.DateOnly(date)
	prev, err := s.storage.PriceStore().PriceOnOrBefore(ctx, symbol, date)
	if err != nil {
		return nil, err
	}
	q := quoteFrom(date, prev)
	if prev.Date.Before(date) {
		ts := s.symbolInfo(ctx, symbol)
		if reason, closed := s.closure(ctx, ts.Market, date); closed {
			q.Reason = reason
		} else {
			q.Stale = true
			q.Reason = ReasonNoData
		}
	}
	return q, nil
}

// MissingDates lists trading days in [start, end] with no cached close.
// Weekends, recorded market holidays and scheduled closures are excluded, and
// the range is clamped to the first trade date and today.
func (s *Service) MissingDates(ctx context.Context, symbol string, start, end time.Time) ([]time.Time, error) {
	symbol = normalizeSymbol(symbol)
	start, end = common.DateOnly(start), common.DateOnly(end)
	ts := s.symbolInfo(ctx, symbol)
	if !ts.FirstTradeDate.IsZero() && start.Before(ts.FirstTradeDate) {
		start = ts.FirstTradeDate
	}
	if today := s.clock.Today(); end.After(today) {
		end = today
	}
	if start.After(end) {
		return nil, nil
	}

	cached, err := s.storage.PriceStore().ListPrices(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	have := make(map[time.Time]bool, len(cached))
	for _, e := range cached {
		have[e.Date] = true
	}

	holidays, err := s.storage.HolidayStore().ListHolidays(ctx, ts.Market, start, end)
	if err != nil {
		return nil, err
	}
	for _, h := range holidays {
		have[h.Date] = true
	}

	var missing []time.Time
	for _, d := range common.Weekdays(start, end) {
		if have[d] {
			continue
		}
		if _, closed := CalendarHoliday(ts.Market, d); closed {
			continue
		}
		missing = append(missing, d)
	}
	return missing, nil
}

// CacheStats summarizes the cached history for symbol.
func (s *Service) CacheStats(ctx context.Context, symbol string) (*models.CacheStats, error) {
	symbol = normalizeSymbol(symbol)
	entries, err := s.storage.PriceStore().ListPrices(ctx, symbol, time.Time{}, s.clock.Today())
	if err != nil {
		return nil, err
	}

	stats := &models.CacheStats{Symbol: symbol, Records: len(entries)}
	for i, e := range entries {
		if i == 0 || e.Date.Before(stats.Earliest) {
			stats.Earliest = e.Date
		}
		if e.Date.After(stats.Latest) {
			stats.Latest = e.Date
		}
		if e.UpdatedAt.After(stats.LastUpdated) {
			stats.LastUpdated = e.UpdatedAt
		}
	}
	return stats, nil
}

package market

import (
	"context"
	"errors"
	"time"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/models"
)

// TriggerPriceUpdate refreshes symbols (all tracked symbols when empty).
// Symbols still inside the freshness window are skipped, so an immediate
// re-run makes no provider calls. Once the budget is spent or the provider
// answers with a rate limit, the current and remaining symbols are reported
// as skipped and keep their cached prices.
func (s *Service) TriggerPriceUpdate(ctx context.Context, symbols []string) (*models.PriceUpdateResult, error) {
	result := models.NewPriceUpdateResult()

	if len(symbols) == 0 {
		tracked, err := s.trackedList(ctx)
		if err != nil {
			return nil, err
		}
		for _, ts := range tracked {
			symbols = append(symbols, ts.Symbol)
		}
	}

	started := time.Now()
	ttl := s.clock.StalenessTTL(s.config.GetFreshMarketHours(), s.config.GetFreshOffHours())
	today := s.clock.Today()
	ps := s.storage.PriceStore()

	for i, raw := range symbols {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		symbol := normalizeSymbol(raw)

		latest, err := ps.LatestPrice(ctx, symbol)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			result.Failed[symbol] = err.Error()
			continue
		}
		if latest != nil && s.clock.IsFresh(latest.UpdatedAt, ttl) {
			result.Fresh = append(result.Fresh, symbol)
			continue
		}

		ts := s.symbolInfo(ctx, symbol)
		start, end := s.refreshWindow(ts, latest, today)

		unlock := s.lockSymbol(symbol)
		_, err = s.fetchAndStore(ctx, ts, start, end)
		unlock()

		switch {
		case err == nil:
			result.Updated = append(result.Updated, symbol)
		case common.IsRateLimited(err):
			for _, rest := range symbols[i:] {
				result.SkippedRateLimited = append(result.SkippedRateLimited, normalizeSymbol(rest))
			}
			s.logger.For(ctx).Warn().
				Int("skipped", len(symbols)-i).
				Int("limit", s.usage.Limit()).
				Err(err).
				Msg("Price requests rate limited, remaining symbols keep cached prices")
			return s.logRefresh(ctx, result, started), nil
		default:
			result.Failed[symbol] = err.Error()
		}
	}

	return s.logRefresh(ctx, result, started), nil
}

func (s *Service) logRefresh(ctx context.Context, result *models.PriceUpdateResult, started time.Time) *models.PriceUpdateResult {
	s.logger.For(ctx).Info().
		Int("updated", len(result.Updated)).
		Int("fresh", len(result.Fresh)).
		Int("failed", len(result.Failed)).
		Int("skipped_rate_limited", len(result.SkippedRateLimited)).
		Int("used_today", s.usage.Used()).
		Dur("elapsed", time.Since(started)).
		Msg("Price update complete")
	return result
}

// refreshWindow starts at the latest cached bar so it is re-stamped even
// when the provider has nothing newer. Without a cache the window starts at
// the first trade date, or one year back for untracked symbols.
func (s *Service) refreshWindow(ts models.TrackedSymbol, latest *models.PriceEntry, today time.Time) (time.Time, time.Time) {
	var gapStart time.Time
	switch {
	case latest != nil:
		gapStart = latest.Date
	case !ts.FirstTradeDate.IsZero():
		gapStart = ts.FirstTradeDate
	default:
		gapStart = today.AddDate(-1, 0, 0)
	}
	return s.expandGap(gapStart, today, ts.FirstTradeDate, today)
}

// StocksNeedingUpdate lists tracked symbols whose cache is empty, older than
// the freshness window, or missing recent trading days that are not already
// explained by holiday attempts.
func (s *Service) StocksNeedingUpdate(ctx context.Context) ([]models.StaleSymbol, error) {
	tracked, err := s.trackedList(ctx)
	if err != nil {
		return nil, err
	}

	ttl := s.clock.StalenessTTL(s.config.GetFreshMarketHours(), s.config.GetFreshOffHours())
	today := s.clock.Today()
	ps := s.storage.PriceStore()

	var stale []models.StaleSymbol
	for _, ts := range tracked {
		latest, err := ps.LatestPrice(ctx, ts.Symbol)
		if errors.Is(err, common.ErrNotFound) {
			stale = append(stale, models.StaleSymbol{Symbol: ts.Symbol, Reason: models.StaleNoData})
			continue
		}
		if err != nil {
			return nil, err
		}
		if !s.clock.IsFresh(latest.UpdatedAt, ttl) {
			stale = append(stale, models.StaleSymbol{
				Symbol:      ts.Symbol,
				Reason:      models.StaleOutdated,
				LastUpdated: latest.UpdatedAt,
			})
			continue
		}

		// Today's bar may legitimately be absent until the close.
		from := today.AddDate(0, 0, -s.config.ShortGapDays)
		to := today.AddDate(0, 0, -1)
		missing, err := s.MissingDates(ctx, ts.Symbol, from, to)
		if err != nil {
			return nil, err
		}
		if len(missing) == 0 {
			continue
		}
		attempts, err := s.storage.HolidayStore().ListSymbolAttempts(ctx, ts.Symbol, from, to)
		if err != nil {
			return nil, err
		}
		explained := make(map[time.Time]bool, len(attempts))
		for _, a := range attempts {
			explained[a.Date] = true
		}
		for _, d := range missing {
			if !explained[d] {
				stale = append(stale, models.StaleSymbol{
					Symbol:      ts.Symbol,
					Reason:      models.StaleMissing,
					LastUpdated: latest.UpdatedAt,
				})
				break
			}
		}
	}
	return stale, nil
}

package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/models"
)

// FetchSeries fetches a raw daily series under the daily budget without
// touching the price cache. The FX service uses it for currency pairs.
func (s *Service) FetchSeries(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyPrice, error) {
	return s.fetch(ctx, normalizeSymbol(symbol), common.DateOnly(start), common.DateOnly(end))
}

// fetch makes one provider call per attempt, each charged to the budget.
// Transient failures and timeouts are retried with backoff; an exhausted
// budget, rate limiting and not-found answers stop immediately.
func (s *Service) fetch(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyPrice, error) {
	attempt := 0
	op := func() ([]models.DailyPrice, error) {
		attempt++
		if !s.usage.TryAcquire() {
			return nil, backoff.Permanent(common.ErrRateLimitExceeded)
		}

		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		started := time.Now()
		series, err := s.provider.FetchDailyPrices(callCtx, symbol, start, end)
		if err != nil {
			err = classifyFetchError(ctx, symbol, err)
			s.logger.For(ctx).Warn().
				Str("symbol", symbol).
				Int("attempt", attempt).
				Dur("elapsed", time.Since(started)).
				Err(err).
				Msg("Price provider call failed")
			if !common.IsRetryable(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}

		s.logger.For(ctx).Debug().
			Str("symbol", symbol).
			Str("from", common.FormatDate(start)).
			Str("to", common.FormatDate(end)).
			Int("bars", len(series)).
			Int("used", s.usage.Used()).
			Dur("elapsed", time.Since(started)).
			Msg("Fetched daily prices")
		return series, nil
	}

	var b backoff.BackOff = s.newBackOff()
	if s.maxRetries >= 0 {
		b = backoff.WithMaxRetries(b, uint64(s.maxRetries))
	}
	return backoff.RetryWithData(op, backoff.WithContext(b, ctx))
}

// classifyFetchError makes sure a per-call deadline reads as a provider
// timeout rather than a cancelled request.
func classifyFetchError(ctx context.Context, symbol string, err error) error {
	var pe *common.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return common.NewProviderError(common.ProviderTimedOut, symbol, 0, err)
	}
	if ctx.Err() != nil {
		return err
	}
	return common.NewProviderError(common.ProviderTransient, symbol, 0, err)
}

// fetchAndStore fetches [start, end], writes every returned close to the
// cache and feeds the holiday heuristic. Nothing is recorded on failure.
func (s *Service) fetchAndStore(ctx context.Context, ts models.TrackedSymbol, start, end time.Time) ([]models.DailyPrice, error) {
	series, err := s.fetch(ctx, ts.Symbol, start, end)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	entries := make([]*models.PriceEntry, 0, len(series))
	for _, p := range series {
		d := common.DateOnly(p.Date)
		if d.Before(start) || d.After(end) {
			continue
		}
		entries = append(entries, &models.PriceEntry{
			Symbol:     ts.Symbol,
			Date:       d,
			Close:      p.Close,
			Provenance: models.ProvenanceFetched,
			UpdatedAt:  now,
		})
	}
	if err := s.storage.PriceStore().PutPrices(ctx, entries); err != nil {
		return nil, fmt.Errorf("failed to cache prices for %s: %w", ts.Symbol, err)
	}

	if err := s.recordEvidence(ctx, ts, entries, start, end); err != nil {
		s.logger.For(ctx).Warn().Str("symbol", ts.Symbol).Err(err).Msg("Failed to record holiday evidence")
	}
	return series, nil
}

// expandGap widens a short gap on both sides so one call also returns the
// bracketing bars holiday inference needs. The window never extends past
// today or before the first trade date.
func (s *Service) expandGap(gapStart, gapEnd, firstTrade, today time.Time) (time.Time, time.Time) {
	start, end := gapStart, gapEnd
	if common.DaysBetween(gapStart, gapEnd) <= s.config.ShortGapDays {
		start = gapStart.AddDate(0, 0, -s.config.GapExpansionDays)
		end = gapEnd.AddDate(0, 0, s.config.GapExpansionDays)
	}
	if end.After(today) {
		end = today
	}
	if !firstTrade.IsZero() && start.Before(firstTrade) {
		start = firstTrade
	}
	if start.After(end) {
		start = end
	}
	return start, end
}

package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/models"
)

// lookbackDays is how far a missing weekday may sit from the nearest bar on
// each side and still count as a bracketed gap.
func lookbackDays(span int) int {
	lb := span / 2
	if span >= 20 {
		lb = span / 4
	}
	if lb < 5 {
		lb = 5
	}
	if lb > 30 {
		lb = 30
	}
	return lb
}

// findGaps returns weekdays in [start, end] missing from have that are
// bracketed by bars on both sides within the lookback window. Scheduled
// exchange closures are included.
func findGaps(have []time.Time, start, end time.Time) []time.Time {
	if len(have) < 2 {
		return nil
	}
	sorted := append([]time.Time(nil), have...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	present := make(map[time.Time]bool, len(sorted))
	for _, d := range sorted {
		present[d] = true
	}

	lb := lookbackDays(common.DaysBetween(start, end))
	var gaps []time.Time
	for _, d := range common.Weekdays(start, end) {
		if present[d] {
			continue
		}
		i := sort.Search(len(sorted), func(i int) bool { return sorted[i].After(d) })
		if i == 0 || i == len(sorted) {
			continue
		}
		prev, next := sorted[i-1], sorted[i]
		if common.DaysBetween(prev, d) > lb || common.DaysBetween(d, next) > lb {
			continue
		}
		gaps = append(gaps, d)
	}
	return gaps
}

// recordEvidence updates the attempt ledger after a successful fetch: dates
// that now have data are corrected, bracketed gaps become attempts, and
// attempts that reach the threshold promote the date to a MarketHoliday.
func (s *Service) recordEvidence(ctx context.Context, ts models.TrackedSymbol, entries []*models.PriceEntry, start, end time.Time) error {
	hs := s.storage.HolidayStore()

	have := make([]time.Time, len(entries))
	present := make(map[time.Time]bool, len(entries))
	for i, e := range entries {
		have[i] = e.Date
		present[e.Date] = true
	}

	prior, err := hs.ListSymbolAttempts(ctx, ts.Symbol, start, end)
	if err != nil {
		return fmt.Errorf("failed to list attempts: %w", err)
	}
	for _, a := range prior {
		if !a.HasData && present[a.Date] {
			if err := hs.MarkHasData(ctx, ts.Symbol, a.Date); err != nil {
				return err
			}
			s.logger.For(ctx).Info().Str("symbol", ts.Symbol).Str("date", common.FormatDate(a.Date)).
				Msg("Holiday attempt corrected by later data")
		}
	}

	for _, d := range findGaps(have, start, end) {
		inserted, err := hs.RecordAttempt(ctx, &models.HolidayAttempt{
			Date:       d,
			Symbol:     ts.Symbol,
			Market:     ts.Market,
			RecordedAt: time.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to record attempt: %w", err)
		}
		if !inserted {
			continue
		}
		if err := s.promote(ctx, ts.Market, d); err != nil {
			return err
		}
	}
	return nil
}

// promote creates or strengthens the MarketHoliday for (market, date) once
// enough distinct symbols have a standing attempt for it.
func (s *Service) promote(ctx context.Context, market models.Market, date time.Time) error {
	hs := s.storage.HolidayStore()
	attempts, err := hs.ListAttempts(ctx, market, date)
	if err != nil {
		return fmt.Errorf("failed to count attempts: %w", err)
	}

	symbols := make(map[string]bool)
	for _, a := range attempts {
		if !a.HasData {
			symbols[a.Symbol] = true
		}
	}
	count := len(symbols)
	if count < s.config.HolidayThreshold {
		return nil
	}

	existing, err := hs.GetHoliday(ctx, market, date)
	switch {
	case errors.Is(err, common.ErrNotFound):
		s.logger.For(ctx).Info().
			Str("market", string(market)).
			Str("date", common.FormatDate(date)).
			Int("confidence", count).
			Msg("Market holiday inferred")
		return hs.UpsertHoliday(ctx, &models.MarketHoliday{
			Date:       date,
			Market:     market,
			Confidence: count,
			Source:     models.HolidayInferred,
			CreatedAt:  time.Now(),
		})
	case err != nil:
		return err
	case count > existing.Confidence:
		existing.Confidence = count
		return hs.UpsertHoliday(ctx, existing)
	}
	return nil
}

// closure reports why date has no trading for market, if it has none.
func (s *Service) closure(ctx context.Context, market models.Market, date time.Time) (string, bool) {
	if common.IsWeekend(date) {
		return "weekend", true
	}
	if _, err := s.storage.HolidayStore().GetHoliday(ctx, market, date); err == nil {
		return "market_holiday", true
	}
	if _, ok := CalendarHoliday(market, date); ok {
		return "exchange_calendar", true
	}
	return "", false
}

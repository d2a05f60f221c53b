package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
	"github.com/bobmcallan/famfolio/internal/models"
)

type attemptRecord struct {
	Date       string `badgerhold:"index"`
	Symbol     string `badgerhold:"index"`
	Market     string
	HasData    bool
	RecordedAt time.Time
}

func (r *attemptRecord) toModel() *models.HolidayAttempt {
	d, _ := common.ParseDate(r.Date)
	return &models.HolidayAttempt{
		Date:       d,
		Symbol:     r.Symbol,
		Market:     models.Market(r.Market),
		HasData:    r.HasData,
		RecordedAt: r.RecordedAt,
	}
}

type holidayRecord struct {
	Date       string
	Market     string `badgerhold:"index"`
	Confidence int
	Source     string
	CreatedAt  time.Time
}

func (r *holidayRecord) toModel() *models.MarketHoliday {
	d, _ := common.ParseDate(r.Date)
	return &models.MarketHoliday{
		Date:       d,
		Market:     models.Market(r.Market),
		Confidence: r.Confidence,
		Source:     models.HolidaySource(r.Source),
		CreatedAt:  r.CreatedAt,
	}
}

func attemptKey(date time.Time, symbol string) string {
	return common.FormatDate(date) + keySep + symbol
}

func holidayKey(market models.Market, date time.Time) string {
	return string(market) + keySep + common.FormatDate(date)
}

// HolidayStore implements interfaces.HolidayStore.
type HolidayStore struct {
	db     *badgerhold.Store
	logger *common.Logger
}

func (s *HolidayStore) RecordAttempt(_ context.Context, a *models.HolidayAttempt) (bool, error) {
	rec := &attemptRecord{
		Date:       common.FormatDate(a.Date),
		Symbol:     a.Symbol,
		Market:     string(a.Market),
		HasData:    a.HasData,
		RecordedAt: a.RecordedAt,
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	err := s.db.Insert(attemptKey(a.Date, a.Symbol), rec)
	if err == badgerhold.ErrKeyExists {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to record holiday attempt %s %s: %w", rec.Date, a.Symbol, err)
	}
	return true, nil
}

func (s *HolidayStore) findAttempts(q *badgerhold.Query) ([]*models.HolidayAttempt, error) {
	var recs []attemptRecord
	if err := s.db.Find(&recs, q); err != nil {
		return nil, fmt.Errorf("failed to query holiday attempts: %w", err)
	}
	out := make([]*models.HolidayAttempt, len(recs))
	for i := range recs {
		out[i] = recs[i].toModel()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out, nil
}

func (s *HolidayStore) ListAttempts(_ context.Context, market models.Market, date time.Time) ([]*models.HolidayAttempt, error) {
	return s.findAttempts(badgerhold.Where("Date").Eq(common.FormatDate(date)).And("Market").Eq(string(market)))
}

func (s *HolidayStore) ListSymbolAttempts(_ context.Context, symbol string, start, end time.Time) ([]*models.HolidayAttempt, error) {
	return s.findAttempts(badgerhold.Where("Symbol").Eq(symbol).
		And("Date").Ge(common.FormatDate(start)).
		And("Date").Le(common.FormatDate(end)))
}

func (s *HolidayStore) MarkHasData(_ context.Context, symbol string, date time.Time) error {
	key := attemptKey(date, symbol)
	var rec attemptRecord
	if err := s.db.Get(key, &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to get holiday attempt: %w", err)
	}
	if rec.HasData {
		return nil
	}
	rec.HasData = true
	if err := s.db.Update(key, &rec); err != nil {
		return fmt.Errorf("failed to mark holiday attempt: %w", err)
	}
	return nil
}

func (s *HolidayStore) PruneAttempts(_ context.Context, cutoff time.Time) (int, error) {
	q := badgerhold.Where("Date").Lt(common.FormatDate(cutoff))
	n, err := s.db.Count(&attemptRecord{}, q)
	if err != nil {
		return 0, fmt.Errorf("failed to count old holiday attempts: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.db.DeleteMatching(&attemptRecord{}, q); err != nil {
		return 0, fmt.Errorf("failed to prune holiday attempts: %w", err)
	}
	return int(n), nil
}

func (s *HolidayStore) GetHoliday(_ context.Context, market models.Market, date time.Time) (*models.MarketHoliday, error) {
	var rec holidayRecord
	if err := s.db.Get(holidayKey(market, date), &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get market holiday: %w", err)
	}
	return rec.toModel(), nil
}

func (s *HolidayStore) UpsertHoliday(_ context.Context, h *models.MarketHoliday) error {
	rec := &holidayRecord{
		Date:       common.FormatDate(h.Date),
		Market:     string(h.Market),
		Confidence: h.Confidence,
		Source:     string(h.Source),
		CreatedAt:  h.CreatedAt,
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if err := s.db.Upsert(holidayKey(h.Market, h.Date), rec); err != nil {
		return fmt.Errorf("failed to upsert market holiday: %w", err)
	}
	return nil
}

func (s *HolidayStore) ListHolidays(_ context.Context, market models.Market, start, end time.Time) ([]*models.MarketHoliday, error) {
	var recs []holidayRecord
	q := badgerhold.Where("Market").Eq(string(market)).
		And("Date").Ge(common.FormatDate(start)).
		And("Date").Le(common.FormatDate(end))
	if err := s.db.Find(&recs, q); err != nil {
		return nil, fmt.Errorf("failed to list market holidays: %w", err)
	}
	out := make([]*models.MarketHoliday, len(recs))
	for i := range recs {
		out[i] = recs[i].toModel()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

var _ interfaces.HolidayStore = (*HolidayStore)(nil)

package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
	"github.com/bobmcallan/famfolio/internal/models"
)

const (
	attemptSelectFields = "date, symbol, market, has_data, recorded_at"
	holidaySelectFields = "date, market, confidence, source, created_at"
)

type attemptDoc struct {
	Date       string    `json:"date"`
	Symbol     string    `json:"symbol"`
	Market     string    `json:"market"`
	HasData    bool      `json:"has_data"`
	RecordedAt time.Time `json:"recorded_at"`
}

func (d attemptDoc) toModel() *models.HolidayAttempt {
	day, _ := common.ParseDate(d.Date)
	return &models.HolidayAttempt{
		Date: day, Symbol: d.Symbol, Market: models.Market(d.Market),
		HasData: d.HasData, RecordedAt: d.RecordedAt,
	}
}

type holidayDoc struct {
	Date       string    `json:"date"`
	Market     string    `json:"market"`
	Confidence int       `json:"confidence"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

func (d holidayDoc) toModel() *models.MarketHoliday {
	day, _ := common.ParseDate(d.Date)
	return &models.MarketHoliday{
		Date: day, Market: models.Market(d.Market), Confidence: d.Confidence,
		Source: models.HolidaySource(d.Source), CreatedAt: d.CreatedAt,
	}
}

func attemptRID(date time.Time, symbol string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(tableAttempts, common.FormatDate(date)+"|"+symbol)
}

func holidayRID(market models.Market, date time.Time) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(tableHolidays, string(market)+"|"+common.FormatDate(date))
}

// HolidayStore implements interfaces.HolidayStore.
type HolidayStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func (s *HolidayStore) RecordAttempt(ctx context.Context, a *models.HolidayAttempt) (bool, error) {
	rid := attemptRID(a.Date, a.Symbol)
	existing, err := queryRows[attemptDoc](ctx, s.db, "SELECT "+attemptSelectFields+" FROM $rid", map[string]any{"rid": rid})
	if err != nil {
		return false, fmt.Errorf("failed to check holiday attempt: %w", err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	recorded := a.RecordedAt
	if recorded.IsZero() {
		recorded = time.Now()
	}
	doc := attemptDoc{
		Date: common.FormatDate(a.Date), Symbol: a.Symbol, Market: string(a.Market),
		HasData: a.HasData, RecordedAt: recorded,
	}
	if err := upsert(ctx, s.db, rid, doc); err != nil {
		return false, fmt.Errorf("failed to record holiday attempt: %w", err)
	}
	return true, nil
}

func (s *HolidayStore) attempts(ctx context.Context, where string, vars map[string]any) ([]*models.HolidayAttempt, error) {
	sql := "SELECT " + attemptSelectFields + " FROM " + tableAttempts + " WHERE " + where + " ORDER BY date ASC, symbol ASC"
	rows, err := queryRows[attemptDoc](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query holiday attempts: %w", err)
	}
	out := make([]*models.HolidayAttempt, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *HolidayStore) ListAttempts(ctx context.Context, market models.Market, date time.Time) ([]*models.HolidayAttempt, error) {
	return s.attempts(ctx, "market = $market AND date = $date", map[string]any{
		"market": string(market),
		"date":   common.FormatDate(date),
	})
}

func (s *HolidayStore) ListSymbolAttempts(ctx context.Context, symbol string, start, end time.Time) ([]*models.HolidayAttempt, error) {
	return s.attempts(ctx, "symbol = $symbol AND date >= $start AND date <= $end", map[string]any{
		"symbol": symbol,
		"start":  common.FormatDate(start),
		"end":    common.FormatDate(end),
	})
}

func (s *HolidayStore) MarkHasData(ctx context.Context, symbol string, date time.Time) error {
	// UPDATE never creates a record, so unknown attempts are left alone.
	sql := "UPDATE $rid SET has_data = true"
	if _, err := surrealdb.Query[any](ctx, s.db, sql, map[string]any{"rid": attemptRID(date, symbol)}); err != nil {
		return fmt.Errorf("failed to mark holiday attempt: %w", err)
	}
	return nil
}

func (s *HolidayStore) PruneAttempts(ctx context.Context, cutoff time.Time) (int, error) {
	sql := "DELETE " + tableAttempts + " WHERE date < $cutoff RETURN BEFORE"
	rows, err := queryRows[attemptDoc](ctx, s.db, sql, map[string]any{"cutoff": common.FormatDate(cutoff)})
	if err != nil {
		return 0, fmt.Errorf("failed to prune holiday attempts: %w", err)
	}
	return len(rows), nil
}

func (s *HolidayStore) GetHoliday(ctx context.Context, market models.Market, date time.Time) (*models.MarketHoliday, error) {
	rows, err := queryRows[holidayDoc](ctx, s.db, "SELECT "+holidaySelectFields+" FROM $rid",
		map[string]any{"rid": holidayRID(market, date)})
	if err != nil {
		return nil, fmt.Errorf("failed to get market holiday: %w", err)
	}
	if len(rows) == 0 {
		return nil, common.ErrNotFound
	}
	return rows[0].toModel(), nil
}

func (s *HolidayStore) UpsertHoliday(ctx context.Context, h *models.MarketHoliday) error {
	created := h.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	doc := holidayDoc{
		Date: common.FormatDate(h.Date), Market: string(h.Market), Confidence: h.Confidence,
		Source: string(h.Source), CreatedAt: created,
	}
	if err := upsert(ctx, s.db, holidayRID(h.Market, h.Date), doc); err != nil {
		return fmt.Errorf("failed to save market holiday: %w", err)
	}
	return nil
}

func (s *HolidayStore) ListHolidays(ctx context.Context, market models.Market, start, end time.Time) ([]*models.MarketHoliday, error) {
	sql := "SELECT " + holidaySelectFields + " FROM " + tableHolidays +
		" WHERE market = $market AND date >= $start AND date <= $end ORDER BY date ASC"
	rows, err := queryRows[holidayDoc](ctx, s.db, sql, map[string]any{
		"market": string(market),
		"start":  common.FormatDate(start),
		"end":    common.FormatDate(end),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list market holidays: %w", err)
	}
	out := make([]*models.MarketHoliday, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

var _ interfaces.HolidayStore = (*HolidayStore)(nil)

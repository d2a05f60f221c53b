package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
	"github.com/bobmcallan/famfolio/internal/models"
)

// HolidayStore implements interfaces.HolidayStore.
type HolidayStore struct {
	db *sql.DB
}

func (s *HolidayStore) RecordAttempt(ctx context.Context, a *models.HolidayAttempt) (bool, error) {
	recorded := a.RecordedAt
	if recorded.IsZero() {
		recorded = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO holiday_attempts (date, symbol, market, has_data, recorded_at)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT (date, symbol) DO NOTHING`,
		common.FormatDate(a.Date), a.Symbol, string(a.Market), a.HasData, formatTime(recorded))
	if err != nil {
		return false, fmt.Errorf("failed to record holiday attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *HolidayStore) queryAttempts(ctx context.Context, query string, args ...any) ([]*models.HolidayAttempt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query holiday attempts: %w", err)
	}
	defer rows.Close()

	var out []*models.HolidayAttempt
	for rows.Next() {
		var date, symbol, market, recorded string
		var hasData bool
		if err := rows.Scan(&date, &symbol, &market, &hasData, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan holiday attempt: %w", err)
		}
		d, _ := common.ParseDate(date)
		out = append(out, &models.HolidayAttempt{
			Date: d, Symbol: symbol, Market: models.Market(market), HasData: hasData, RecordedAt: parseTime(recorded),
		})
	}
	return out, rows.Err()
}

func (s *HolidayStore) ListAttempts(ctx context.Context, market models.Market, date time.Time) ([]*models.HolidayAttempt, error) {
	return s.queryAttempts(ctx,
		`SELECT date, symbol, market, has_data, recorded_at FROM holiday_attempts
		 WHERE market = ? AND date = ? ORDER BY symbol`,
		string(market), common.FormatDate(date))
}

func (s *HolidayStore) ListSymbolAttempts(ctx context.Context, symbol string, start, end time.Time) ([]*models.HolidayAttempt, error) {
	return s.queryAttempts(ctx,
		`SELECT date, symbol, market, has_data, recorded_at FROM holiday_attempts
		 WHERE symbol = ? AND date >= ? AND date <= ? ORDER BY date`,
		symbol, common.FormatDate(start), common.FormatDate(end))
}

func (s *HolidayStore) MarkHasData(ctx context.Context, symbol string, date time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE holiday_attempts SET has_data = 1 WHERE symbol = ? AND date = ?",
		symbol, common.FormatDate(date)); err != nil {
		return fmt.Errorf("failed to mark holiday attempt: %w", err)
	}
	return nil
}

func (s *HolidayStore) PruneAttempts(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM holiday_attempts WHERE date < ?", common.FormatDate(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune holiday attempts: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *HolidayStore) GetHoliday(ctx context.Context, market models.Market, date time.Time) (*models.MarketHoliday, error) {
	var confidence int
	var source, created string
	err := s.db.QueryRowContext(ctx,
		"SELECT confidence, source, created_at FROM market_holidays WHERE market = ? AND date = ?",
		string(market), common.FormatDate(date)).Scan(&confidence, &source, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get market holiday: %w", err)
	}
	return &models.MarketHoliday{
		Date: common.DateOnly(date), Market: market, Confidence: confidence,
		Source: models.HolidaySource(source), CreatedAt: parseTime(created),
	}, nil
}

func (s *HolidayStore) UpsertHoliday(ctx context.Context, h *models.MarketHoliday) error {
	created := h.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO market_holidays (date, market, confidence, source, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (market, date) DO UPDATE SET confidence = excluded.confidence, source = excluded.source`,
		common.FormatDate(h.Date), string(h.Market), h.Confidence, string(h.Source), formatTime(created)); err != nil {
		return fmt.Errorf("failed to upsert market holiday: %w", err)
	}
	return nil
}

func (s *HolidayStore) ListHolidays(ctx context.Context, market models.Market, start, end time.Time) ([]*models.MarketHoliday, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, confidence, source, created_at FROM market_holidays
		 WHERE market = ? AND date >= ? AND date <= ? ORDER BY date`,
		string(market), common.FormatDate(start), common.FormatDate(end))
	if err != nil {
		return nil, fmt.Errorf("failed to list market holidays: %w", err)
	}
	defer rows.Close()

	var out []*models.MarketHoliday
	for rows.Next() {
		var date, source, created string
		var confidence int
		if err := rows.Scan(&date, &confidence, &source, &created); err != nil {
			return nil, fmt.Errorf("failed to scan market holiday: %w", err)
		}
		d, _ := common.ParseDate(date)
		out = append(out, &models.MarketHoliday{
			Date: d, Market: market, Confidence: confidence,
			Source: models.HolidaySource(source), CreatedAt: parseTime(created),
		})
	}
	return out, rows.Err()
}

var _ interfaces.HolidayStore = (*HolidayStore)(nil)

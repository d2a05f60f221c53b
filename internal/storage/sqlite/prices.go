package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
	"github.com/bobmcallan/famfolio/internal/models"
)

// PriceStore implements interfaces.PriceStore.
type PriceStore struct {
	db *sql.DB
}

const priceColumns = "symbol, date, close, provenance, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrice(row rowScanner) (*models.PriceEntry, error) {
	var symbol, date, closeStr, prov, updated string
	if err := row.Scan(&symbol, &date, &closeStr, &prov, &updated); err != nil {
		return nil, err
	}
	d, err := common.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("bad date %q: %w", date, err)
	}
	c, err := decimal.NewFromString(closeStr)
	if err != nil {
		return nil, fmt.Errorf("bad close %q: %w", closeStr, err)
	}
	return &models.PriceEntry{
		Symbol:     symbol,
		Date:       d,
		Close:      c,
		Provenance: models.Provenance(prov),
		UpdatedAt:  parseTime(updated),
	}, nil
}

func (s *PriceStore) queryOne(ctx context.Context, query string, args ...any) (*models.PriceEntry, error) {
	entry, err := scanPrice(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query price: %w", err)
	}
	return entry, nil
}

func (s *PriceStore) GetPrice(ctx context.Context, symbol string, date time.Time) (*models.PriceEntry, error) {
	return s.queryOne(ctx,
		"SELECT "+priceColumns+" FROM price_cache WHERE symbol = ? AND date = ?",
		symbol, common.FormatDate(date))
}

func (s *PriceStore) PutPrice(ctx context.Context, entry *models.PriceEntry) error {
	return s.PutPrices(ctx, []*models.PriceEntry{entry})
}

func (s *PriceStore) PutPrices(ctx context.Context, entries []*models.PriceEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin price upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_cache (`+priceColumns+`) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (symbol, date) DO UPDATE SET
			close = excluded.close,
			provenance = excluded.provenance,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare price upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, e := range entries {
		updated := e.UpdatedAt
		if updated.IsZero() {
			updated = now
		}
		if _, err := stmt.ExecContext(ctx, e.Symbol, common.FormatDate(e.Date), e.Close.String(), string(e.Provenance), formatTime(updated)); err != nil {
			return fmt.Errorf("failed to upsert price %s %s: %w", e.Symbol, common.FormatDate(e.Date), err)
		}
	}
	return tx.Commit()
}

func (s *PriceStore) ListPrices(ctx context.Context, symbol string, start, end time.Time) ([]*models.PriceEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+priceColumns+" FROM price_cache WHERE symbol = ? AND date >= ? AND date <= ? ORDER BY date",
		symbol, common.FormatDate(start), common.FormatDate(end))
	if err != nil {
		return nil, fmt.Errorf("failed to list prices for %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []*models.PriceEntry
	for rows.Next() {
		e, err := scanPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PriceStore) PriceOnOrBefore(ctx context.Context, symbol string, date time.Time) (*models.PriceEntry, error) {
	return s.queryOne(ctx,
		"SELECT "+priceColumns+" FROM price_cache WHERE symbol = ? AND date <= ? ORDER BY date DESC LIMIT 1",
		symbol, common.FormatDate(date))
}

func (s *PriceStore) LatestPrice(ctx context.Context, symbol string) (*models.PriceEntry, error) {
	return s.queryOne(ctx,
		"SELECT "+priceColumns+" FROM price_cache WHERE symbol = ? ORDER BY date DESC LIMIT 1",
		symbol)
}

func (s *PriceStore) CountPrices(ctx context.Context, symbol string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM price_cache WHERE symbol = ?", symbol).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count prices for %s: %w", symbol, err)
	}
	return n, nil
}

var _ interfaces.PriceStore = (*PriceStore)(nil)

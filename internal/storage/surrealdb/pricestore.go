package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
	"github.com/bobmcallan/famfolio/internal/models"
)

const priceSelectFields = "symbol, date, close, provenance, updated_at"

// priceDoc is the stored document. Decimals travel as strings so no
// precision is lost in CBOR.
type priceDoc struct {
	Symbol     string    `json:"symbol"`
	Date       string    `json:"date"`
	Close      string    `json:"close"`
	Provenance string    `json:"provenance"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (d priceDoc) toModel() *models.PriceEntry {
	day, _ := common.ParseDate(d.Date)
	c, _ := decimal.NewFromString(d.Close)
	return &models.PriceEntry{
		Symbol:     d.Symbol,
		Date:       day,
		Close:      c,
		Provenance: models.Provenance(d.Provenance),
		UpdatedAt:  d.UpdatedAt,
	}
}

func priceRID(symbol string, date time.Time) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(tablePrices, symbol+"|"+common.FormatDate(date))
}

// PriceStore implements interfaces.PriceStore.
type PriceStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func (s *PriceStore) one(ctx context.Context, sql string, vars map[string]any) (*models.PriceEntry, error) {
	rows, err := queryRows[priceDoc](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query price: %w", err)
	}
	if len(rows) == 0 {
		return nil, common.ErrNotFound
	}
	return rows[0].toModel(), nil
}

func (s *PriceStore) GetPrice(ctx context.Context, symbol string, date time.Time) (*models.PriceEntry, error) {
	sql := "SELECT " + priceSelectFields + " FROM $rid"
	return s.one(ctx, sql, map[string]any{"rid": priceRID(symbol, date)})
}

func (s *PriceStore) PutPrice(ctx context.Context, entry *models.PriceEntry) error {
	return s.PutPrices(ctx, []*models.PriceEntry{entry})
}

func (s *PriceStore) PutPrices(ctx context.Context, entries []*models.PriceEntry) error {
	now := time.Now()
	for _, e := range entries {
		updated := e.UpdatedAt
		if updated.IsZero() {
			updated = now
		}
		doc := priceDoc{
			Symbol:     e.Symbol,
			Date:       common.FormatDate(e.Date),
			Close:      e.Close.String(),
			Provenance: string(e.Provenance),
			UpdatedAt:  updated,
		}
		if err := upsert(ctx, s.db, priceRID(e.Symbol, e.Date), doc); err != nil {
			return fmt.Errorf("failed to save price %s %s: %w", e.Symbol, doc.Date, err)
		}
	}
	return nil
}

func (s *PriceStore) ListPrices(ctx context.Context, symbol string, start, end time.Time) ([]*models.PriceEntry, error) {
	sql := "SELECT " + priceSelectFields + " FROM " + tablePrices +
		" WHERE symbol = $symbol AND date >= $start AND date <= $end ORDER BY date ASC"
	rows, err := queryRows[priceDoc](ctx, s.db, sql, map[string]any{
		"symbol": symbol,
		"start":  common.FormatDate(start),
		"end":    common.FormatDate(end),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list prices for %s: %w", symbol, err)
	}
	out := make([]*models.PriceEntry, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *PriceStore) PriceOnOrBefore(ctx context.Context, symbol string, date time.Time) (*models.PriceEntry, error) {
	sql := "SELECT " + priceSelectFields + " FROM " + tablePrices +
		" WHERE symbol = $symbol AND date <= $date ORDER BY date DESC LIMIT 1"
	return s.one(ctx, sql, map[string]any{"symbol": symbol, "date": common.FormatDate(date)})
}

func (s *PriceStore) LatestPrice(ctx context.Context, symbol string) (*models.PriceEntry, error) {
	sql := "SELECT " + priceSelectFields + " FROM " + tablePrices +
		" WHERE symbol = $symbol ORDER BY date DESC LIMIT 1"
	return s.one(ctx, sql, map[string]any{"symbol": symbol})
}

func (s *PriceStore) CountPrices(ctx context.Context, symbol string) (int, error) {
	sql := "SELECT count() AS cnt FROM " + tablePrices + " WHERE symbol = $symbol GROUP ALL"
	n, err := queryCount(ctx, s.db, sql, map[string]any{"symbol": symbol})
	if err != nil {
		return 0, fmt.Errorf("failed to count prices for %s: %w", symbol, err)
	}
	return n, nil
}

var _ interfaces.PriceStore = (*PriceStore)(nil)

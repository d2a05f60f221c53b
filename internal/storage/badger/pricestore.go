package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/shopspring/decimal"
	"github.com/timshannon/badgerhold/v4"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
	"github.com/bobmcallan/famfolio/internal/models"
)

// priceRecord is the persisted form of models.PriceEntry. Date is stored as
// YYYY-MM-DD so string comparison orders by date.
type priceRecord struct {
	Symbol     string `badgerhold:"index"`
	Date       string
	Close      decimal.Decimal
	Provenance string
	UpdatedAt  time.Time
}

func priceKey(symbol string, date time.Time) string {
	return symbol + keySep + common.FormatDate(date)
}

func (r *priceRecord) toModel() *models.PriceEntry {
	d, _ := common.ParseDate(r.Date)
	return &models.PriceEntry{
		Symbol:     r.Symbol,
		Date:       d,
		Close:      r.Close,
		Provenance: models.Provenance(r.Provenance),
		UpdatedAt:  r.UpdatedAt,
	}
}

// PriceStore implements interfaces.PriceStore.
type PriceStore struct {
	db     *badgerhold.Store
	logger *common.Logger
}

func (s *PriceStore) GetPrice(_ context.Context, symbol string, date time.Time) (*models.PriceEntry, error) {
	var rec priceRecord
	if err := s.db.Get(priceKey(symbol, date), &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get price %s %s: %w", symbol, common.FormatDate(date), err)
	}
	return rec.toModel(), nil
}

func (s *PriceStore) PutPrice(ctx context.Context, entry *models.PriceEntry) error {
	return s.PutPrices(ctx, []*models.PriceEntry{entry})
}

func (s *PriceStore) PutPrices(_ context.Context, entries []*models.PriceEntry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now()
	return s.db.Badger().Update(func(tx *badgerdb.Txn) error {
		for _, e := range entries {
			updated := e.UpdatedAt
			if updated.IsZero() {
				updated = now
			}
			rec := &priceRecord{
				Symbol:     e.Symbol,
				Date:       common.FormatDate(e.Date),
				Close:      e.Close,
				Provenance: string(e.Provenance),
				UpdatedAt:  updated,
			}
			if err := s.db.TxUpsert(tx, priceKey(e.Symbol, e.Date), rec); err != nil {
				return fmt.Errorf("failed to upsert price %s %s: %w", e.Symbol, rec.Date, err)
			}
		}
		return nil
	})
}

func (s *PriceStore) find(symbol string, q *badgerhold.Query) ([]*models.PriceEntry, error) {
	var recs []priceRecord
	if err := s.db.Find(&recs, q); err != nil {
		return nil, fmt.Errorf("failed to query prices for %s: %w", symbol, err)
	}
	out := make([]*models.PriceEntry, len(recs))
	for i := range recs {
		out[i] = recs[i].toModel()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *PriceStore) ListPrices(_ context.Context, symbol string, start, end time.Time) ([]*models.PriceEntry, error) {
	q := badgerhold.Where("Symbol").Eq(symbol).
		And("Date").Ge(common.FormatDate(start)).
		And("Date").Le(common.FormatDate(end))
	return s.find(symbol, q)
}

func (s *PriceStore) PriceOnOrBefore(_ context.Context, symbol string, date time.Time) (*models.PriceEntry, error) {
	q := badgerhold.Where("Symbol").Eq(symbol).And("Date").Le(common.FormatDate(date))
	entries, err := s.find(symbol, q)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, common.ErrNotFound
	}
	return entries[len(entries)-1], nil
}

func (s *PriceStore) LatestPrice(_ context.Context, symbol string) (*models.PriceEntry, error) {
	entries, err := s.find(symbol, badgerhold.Where("Symbol").Eq(symbol))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, common.ErrNotFound
	}
	return entries[len(entries)-1], nil
}

func (s *PriceStore) CountPrices(_ context.Context, symbol string) (int, error) {
	n, err := s.db.Count(&priceRecord{}, badgerhold.Where("Symbol").Eq(symbol))
	if err != nil {
		return 0, fmt.Errorf("failed to count prices for %s: %w", symbol, err)
	}
	return int(n), nil
}

var _ interfaces.PriceStore = (*PriceStore)(nil)

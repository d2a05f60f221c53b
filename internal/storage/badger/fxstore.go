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

type fxRecord struct {
	Pair string `badgerhold:"index"`
	Date string
	Rate decimal.Decimal
}

// FXRateStore implements interfaces.FXRateStore.
type FXRateStore struct {
	db     *badgerhold.Store
	logger *common.Logger
}

func (s *FXRateStore) PutRates(_ context.Context, rates []*models.FXRate) error {
	if len(rates) == 0 {
		return nil
	}
	return s.db.Badger().Update(func(tx *badgerdb.Txn) error {
		for _, r := range rates {
			pair := r.Base + r.Quote
			rec := &fxRecord{Pair: pair, Date: common.FormatDate(r.Date), Rate: r.Rate}
			if err := s.db.TxUpsert(tx, pair+keySep+rec.Date, rec); err != nil {
				return fmt.Errorf("failed to upsert fx rate %s %s: %w", pair, rec.Date, err)
			}
		}
		return nil
	})
}

func (s *FXRateStore) RateOnOrBefore(_ context.Context, base, quote string, date time.Time) (*models.FXRate, error) {
	var recs []fxRecord
	q := badgerhold.Where("Pair").Eq(base + quote).And("Date").Le(common.FormatDate(date))
	if err := s.db.Find(&recs, q); err != nil {
		return nil, fmt.Errorf("failed to query fx rates: %w", err)
	}
	if len(recs) == 0 {
		return nil, common.ErrNotFound
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Date < recs[j].Date })
	last := recs[len(recs)-1]
	d, _ := common.ParseDate(last.Date)
	return &models.FXRate{Base: base, Quote: quote, Date: d, Rate: last.Rate}, nil
}

var _ interfaces.FXRateStore = (*FXRateStore)(nil)

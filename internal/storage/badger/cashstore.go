package badger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
	"github.com/bobmcallan/famfolio/internal/models"
)

// CashSnapshotStore implements interfaces.CashSnapshotStore.
type CashSnapshotStore struct {
	db     *badgerhold.Store
	logger *common.Logger
}

func cashKey(accountID, currency string) string {
	return accountID + keySep + strings.ToUpper(currency)
}

func (s *CashSnapshotStore) GetSnapshot(_ context.Context, accountID, currency string) (*models.CashSnapshot, error) {
	var snap models.CashSnapshot
	if err := s.db.Get(cashKey(accountID, currency), &snap); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cash snapshot: %w", err)
	}
	return &snap, nil
}

func (s *CashSnapshotStore) PutSnapshot(_ context.Context, snap *models.CashSnapshot) error {
	rec := *snap
	rec.Currency = strings.ToUpper(rec.Currency)
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	if err := s.db.Upsert(cashKey(rec.AccountID, rec.Currency), &rec); err != nil {
		return fmt.Errorf("failed to save cash snapshot: %w", err)
	}
	return nil
}

var _ interfaces.CashSnapshotStore = (*CashSnapshotStore)(nil)

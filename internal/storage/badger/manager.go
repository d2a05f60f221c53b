// Package badger implements the famfolio stores on an embedded BadgerHold database.
package badger

import (
	"fmt"
	"os"

	"github.com/timshannon/badgerhold/v4"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
)

// keySep separates composite key parts. A null byte cannot appear in symbols
// or account ids, so "a\x00b" never collides with another pair.
const keySep = "\x00"

// Manager implements interfaces.StorageManager using BadgerHold.
type Manager struct {
	db     *badgerhold.Store
	logger *common.Logger

	prices       *PriceStore
	holidays     *HolidayStore
	transactions *TransactionStore
	cash         *CashSnapshotStore
	fx           *FXRateStore
}

// NewManager opens (or creates) the database directory at path.
func NewManager(logger *common.Logger, path string) (*Manager, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create badger path %s: %w", path, err)
	}
	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil
	db, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db at %s: %w", path, err)
	}

	txStore, err := newTransactionStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	m := &Manager{
		db:           db,
		logger:       logger,
		prices:       &PriceStore{db: db, logger: logger},
		holidays:     &HolidayStore{db: db, logger: logger},
		transactions: txStore,
		cash:         &CashSnapshotStore{db: db, logger: logger},
		fx:           &FXRateStore{db: db, logger: logger},
	}

	logger.Info().Str("path", path).Msg("Badger storage manager initialized")
	return m, nil
}

func (m *Manager) PriceStore() interfaces.PriceStore {
	return m.prices
}

func (m *Manager) HolidayStore() interfaces.HolidayStore {
	return m.holidays
}

func (m *Manager) TransactionStore() interfaces.TransactionStore {
	return m.transactions
}

func (m *Manager) CashSnapshotStore() interfaces.CashSnapshotStore {
	return m.cash
}

func (m *Manager) FXRateStore() interfaces.FXRateStore {
	return m.fx
}

func (m *Manager) Backend() string {
	return "badger"
}

func (m *Manager) Close() error {
	return m.db.Close()
}

var _ interfaces.StorageManager = (*Manager)(nil)

package badger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
	"github.com/bobmcallan/famfolio/internal/models"
)

// txRecord wraps a transaction with indexed lookup fields.
type txRecord struct {
	ID        string
	AccountID string `badgerhold:"index"`
	Trade     bool   `badgerhold:"index"`
	Tx        models.Transaction
}

// TransactionStore implements interfaces.TransactionStore. Sequence numbers
// are allocated under a mutex from the highest stored value.
type TransactionStore struct {
	db     *badgerhold.Store
	logger *common.Logger

	mu      sync.Mutex
	lastSeq int64
}

func newTransactionStore(db *badgerhold.Store, logger *common.Logger) (*TransactionStore, error) {
	var recs []txRecord
	if err := db.Find(&recs, nil); err != nil {
		return nil, fmt.Errorf("failed to scan transactions: %w", err)
	}
	var last int64
	for _, r := range recs {
		if r.Tx.Seq > last {
			last = r.Tx.Seq
		}
	}
	return &TransactionStore{db: db, logger: logger, lastSeq: last}, nil
}

func (s *TransactionStore) Append(_ context.Context, tx *models.Transaction) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *tx
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	stored.Seq = s.lastSeq + 1
	stored.TradeDate = common.DateOnly(stored.TradeDate)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	rec := &txRecord{ID: stored.ID, AccountID: stored.AccountID, Trade: stored.Type.IsTrade(), Tx: stored}
	if err := s.db.Insert(stored.ID, rec); err != nil {
		if err == badgerhold.ErrKeyExists {
			return nil, fmt.Errorf("transaction %s already exists", stored.ID)
		}
		return nil, fmt.Errorf("failed to append transaction: %w", err)
	}
	s.lastSeq = stored.Seq

	s.logger.Debug().Str("account", stored.AccountID).Str("type", string(stored.Type)).Int64("seq", stored.Seq).Msg("Transaction appended")
	return &stored, nil
}

func (s *TransactionStore) find(q *badgerhold.Query) ([]*models.Transaction, error) {
	var recs []txRecord
	if err := s.db.Find(&recs, q); err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	out := make([]*models.Transaction, len(recs))
	for i := range recs {
		tx := recs[i].Tx
		out[i] = &tx
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}

func (s *TransactionStore) ListByAccount(_ context.Context, accountID string) ([]*models.Transaction, error) {
	return s.find(badgerhold.Where("AccountID").Eq(accountID))
}

func (s *TransactionStore) ListTrades(_ context.Context) ([]*models.Transaction, error) {
	return s.find(badgerhold.Where("Trade").Eq(true))
}

func (s *TransactionStore) ListAccounts(_ context.Context) ([]string, error) {
	txs, err := s.find(nil)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, tx := range txs {
		if !seen[tx.AccountID] {
			seen[tx.AccountID] = true
			out = append(out, tx.AccountID)
		}
	}
	sort.Strings(out)
	return out, nil
}

var _ interfaces.TransactionStore = (*TransactionStore)(nil)

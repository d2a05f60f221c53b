package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
	"github.com/bobmcallan/famfolio/internal/models"
)

type importTransactionsFile struct {
	Transactions []importTransaction `json:"transactions"`
}

type importTransaction struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Symbol    string          `json:"symbol"`
	Type      string          `json:"type"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Fee       decimal.Decimal `json:"fee"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	TradeDate string          `json:"trade_date"`
	Note      string          `json:"note"`
}

// ImportTransactionsFromFile reads a transactions JSON file and records each
// entry through the ledger in trade-date order. Entries whose id already
// exists in the account are skipped, as are entries the ledger rejects.
// Returns (imported count, skipped count, error).
func ImportTransactionsFromFile(ctx context.Context, ledger interfaces.LedgerService, store interfaces.TransactionStore, logger *common.Logger, filePath string) (int, int, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read transactions file %s: %w", filePath, err)
	}

	var file importTransactionsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return 0, 0, fmt.Errorf("failed to parse transactions file %s: %w", filePath, err)
	}

	imported, skipped := 0, 0
	txs := make([]*models.Transaction, 0, len(file.Transactions))
	for i, in := range file.Transactions {
		date, err := common.ParseDate(in.TradeDate)
		if err != nil {
			logger.Warn().Int("index", i).Str("trade_date", in.TradeDate).Msg("Skipping transaction with invalid date")
			skipped++
			continue
		}
		txs = append(txs, &models.Transaction{
			ID:        in.ID,
			AccountID: in.AccountID,
			Symbol:    in.Symbol,
			Type:      models.TransactionType(in.Type),
			Quantity:  in.Quantity,
			Price:     in.Price,
			Fee:       in.Fee,
			Amount:    in.Amount,
			Currency:  in.Currency,
			TradeDate: date,
			Note:      in.Note,
		})
	}
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].TradeDate.Before(txs[j].TradeDate) })

	known := map[string]map[string]bool{}
	for _, tx := range txs {
		if tx.ID != "" {
			ids, ok := known[tx.AccountID]
			if !ok {
				existing, err := store.ListByAccount(ctx, tx.AccountID)
				if err != nil {
					return imported, skipped, fmt.Errorf("failed to load transactions for %s: %w", tx.AccountID, err)
				}
				ids = make(map[string]bool, len(existing))
				for _, e := range existing {
					ids[e.ID] = true
				}
				known[tx.AccountID] = ids
			}
			if ids[tx.ID] {
				skipped++
				continue
			}
		}

		stored, err := ledger.RecordTransaction(ctx, tx)
		if err != nil {
			logger.Warn().Err(err).Str("account", tx.AccountID).Str("symbol", tx.Symbol).Msg("Failed to import transaction")
			skipped++
			continue
		}
		if ids, ok := known[stored.AccountID]; ok {
			ids[stored.ID] = true
		}
		imported++
	}

	logger.Info().Int("imported", imported).Int("skipped", skipped).Str("file", filePath).Msg("Transactions imported")
	return imported, skipped, nil
}

package cash

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/models"
)

// Impact is the signed cash effect of a transaction in its own currency.
// BUY costs quantity x price plus fee, SELL returns quantity x price less
// fee, DEPOSIT, DIVIDEND and INTEREST add the amount, WITHDRAW and FEE remove it.
func Impact(tx *models.Transaction) decimal.Decimal {
	switch tx.Type {
	case models.TxBuy:
		return tx.Quantity.Mul(tx.Price).Add(tx.Fee).Neg()
	case models.TxSell:
		return tx.Quantity.Mul(tx.Price).Sub(tx.Fee)
	case models.TxDeposit, models.TxDividend, models.TxInterest:
		return tx.Amount
	case models.TxWithdraw, models.TxFee:
		return tx.Amount.Neg()
	}
	return decimal.Zero
}

// Replay sums the cash impact of every transaction dated on or before asOf.
// Balances are not clamped; a negative result means funding that was never
// recorded.
func Replay(txs []*models.Transaction, asOf time.Time) (models.CashBalance, error) {
	asOf = common.DateOnly(asOf)

	ordered := make([]*models.Transaction, 0, len(txs))
	for _, tx := range txs {
		if !common.DateOnly(tx.TradeDate).After(asOf) {
			ordered = append(ordered, tx)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Less(ordered[j]) })

	balance := models.CashBalance{CAD: decimal.Zero, USD: decimal.Zero}
	for _, tx := range ordered {
		next, err := balance.Add(tx.Currency, Impact(tx))
		if err != nil {
			return balance, fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
		balance = next
	}
	return balance, nil
}

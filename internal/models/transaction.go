package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// TransactionType categorizes a ledger transaction.
type TransactionType string

const (
	TxBuy      TransactionType = "BUY"
	TxSell     TransactionType = "SELL"
	TxDeposit  TransactionType = "DEPOSIT"
	TxWithdraw TransactionType = "WITHDRAW"
	TxDividend TransactionType = "DIVIDEND"
	TxInterest TransactionType = "INTEREST"
	TxFee      TransactionType = "FEE"
)

var validTransactionTypes = map[TransactionType]bool{
	TxBuy:      true,
	TxSell:     true,
	TxDeposit:  true,
	TxWithdraw: true,
	TxDividend: true,
	TxInterest: true,
	TxFee:      true,
}

// ValidTransactionType returns true if t is a known transaction type.
func ValidTransactionType(t TransactionType) bool {
	return validTransactionTypes[t]
}

// IsTrade returns true for BUY and SELL, the types that move share quantities.
func (t TransactionType) IsTrade() bool {
	return t == TxBuy || t == TxSell
}

// Supported currencies for cash balances and valuation totals.
const (
	CurrencyCAD = "CAD"
	CurrencyUSD = "USD"
)

// ValidCurrency returns true if code is an ISO 4217 currency known to go-money.
func ValidCurrency(code string) bool {
	return money.GetCurrency(strings.ToUpper(code)) != nil
}

// SupportedCurrency returns true if code is one of the ledger currencies.
func SupportedCurrency(code string) bool {
	c := strings.ToUpper(code)
	return c == CurrencyCAD || c == CurrencyUSD
}

// RoundToCurrency rounds amount to the currency's minor unit (2 places for CAD/USD).
func RoundToCurrency(amount decimal.Decimal, code string) decimal.Decimal {
	cur := money.GetCurrency(strings.ToUpper(code))
	if cur == nil {
		return amount
	}
	return amount.Round(int32(cur.Fraction))
}

// Transaction is an immutable ledger entry. Seq is assigned on insert and
// breaks ties between transactions on the same trade date.
type Transaction struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Seq       int64           `json:"seq"`
	Symbol    string          `json:"symbol,omitempty"`
	Type      TransactionType `json:"type"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Fee       decimal.Decimal `json:"fee"`
	Currency  string          `json:"currency"`
	TradeDate time.Time       `json:"trade_date"`
	Amount    decimal.Decimal `json:"amount"` // settlement amount for cash movements
	Note      string          `json:"note,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Validate checks the fields required by the transaction's type.
func (t *Transaction) Validate() error {
	if t.AccountID == "" {
		return fmt.Errorf("account_id is required")
	}
	if !ValidTransactionType(t.Type) {
		return fmt.Errorf("invalid transaction type %q", t.Type)
	}
	if !ValidCurrency(t.Currency) {
		return fmt.Errorf("invalid currency code %q", t.Currency)
	}
	if !SupportedCurrency(t.Currency) {
		return fmt.Errorf("unsupported currency %q", t.Currency)
	}
	if t.TradeDate.IsZero() {
		return fmt.Errorf("trade_date is required")
	}
	if t.Fee.IsNegative() {
		return fmt.Errorf("fee must not be negative")
	}
	if t.Type.IsTrade() {
		if t.Symbol == "" {
			return fmt.Errorf("%s requires a symbol", t.Type)
		}
		if !t.Quantity.IsPositive() {
			return fmt.Errorf("%s quantity must be positive", t.Type)
		}
		if t.Price.IsNegative() {
			return fmt.Errorf("%s price must not be negative", t.Type)
		}
		return nil
	}
	if t.Type == TxFee {
		if t.Amount.IsNegative() {
			return fmt.Errorf("FEE amount must not be negative")
		}
		return nil
	}
	if !t.Amount.IsPositive() {
		return fmt.Errorf("%s amount must be positive", t.Type)
	}
	return nil
}

// Less orders transactions by (trade date, insertion sequence).
func (t *Transaction) Less(o *Transaction) bool {
	if !t.TradeDate.Equal(o.TradeDate) {
		return t.TradeDate.Before(o.TradeDate)
	}
	return t.Seq < o.Seq
}

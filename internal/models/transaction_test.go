package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTransaction_Validate(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	buy := Transaction{
		AccountID: "a1", Symbol: "AAPL", Type: TxBuy, Currency: "USD", TradeDate: day,
		Quantity: decimal.NewFromInt(10), Price: decimal.NewFromInt(100),
	}

	tests := []struct {
		name    string
		mutate  func(tx *Transaction)
		wantErr bool
	}{
		{"valid buy", func(tx *Transaction) {}, false},
		{"missing account", func(tx *Transaction) { tx.AccountID = "" }, true},
		{"unknown type", func(tx *Transaction) { tx.Type = "SPLIT" }, true},
		{"unsupported currency", func(tx *Transaction) { tx.Currency = "EUR" }, true},
		{"not a currency", func(tx *Transaction) { tx.Currency = "XXQ" }, true},
		{"zero quantity", func(tx *Transaction) { tx.Quantity = decimal.Zero }, true},
		{"no symbol", func(tx *Transaction) { tx.Symbol = "" }, true},
		{"negative fee", func(tx *Transaction) { tx.Fee = decimal.NewFromInt(-1) }, true},
		{"deposit needs amount", func(tx *Transaction) { tx.Type = TxDeposit; tx.Symbol = "" }, true},
		{"deposit with amount", func(tx *Transaction) {
			tx.Type = TxDeposit
			tx.Symbol = ""
			tx.Amount = decimal.NewFromInt(500)
		}, false},
		{"fee with zero amount", func(tx *Transaction) { tx.Type = TxFee }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := buy
			tt.mutate(&tx)
			err := tx.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTransaction_ValidateCurrencyMessages(t *testing.T) {
	tx := Transaction{
		AccountID: "a1", Type: TxDeposit, Amount: decimal.NewFromInt(5),
		TradeDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	tx.Currency = "XXQ"
	assert.ErrorContains(t, tx.Validate(), "invalid currency code")

	tx.Currency = "EUR"
	assert.ErrorContains(t, tx.Validate(), "unsupported currency")
}

func TestTransaction_Less(t *testing.T) {
	d1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)

	a := &Transaction{TradeDate: d1, Seq: 5}
	b := &Transaction{TradeDate: d2, Seq: 1}
	c := &Transaction{TradeDate: d1, Seq: 6}

	assert.True(t, a.Less(b), "earlier date sorts first")
	assert.True(t, a.Less(c), "same date falls back to sequence")
	assert.False(t, c.Less(a))
}

func TestDetectMarket(t *testing.T) {
	tests := []struct {
		symbol, currency string
		want             Market
	}{
		{"AAPL", "USD", MarketUS},
		{"SHOP.TO", "USD", MarketCA},
		{"abc.v", "", MarketCA},
		{"XYZ-T", "", MarketCA},
		{"BNS", "CAD", MarketCA},
		{"VFV.TSXV", "", MarketCA},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectMarket(tt.symbol, tt.currency), tt.symbol)
	}
}

func TestCurrencyHelpers(t *testing.T) {
	assert.True(t, ValidCurrency("eur"))
	assert.False(t, ValidCurrency("XXQ"))
	assert.True(t, SupportedCurrency("cad"))
	assert.False(t, SupportedCurrency("EUR"))

	got := RoundToCurrency(decimal.RequireFromString("10.005"), "USD")
	assert.True(t, got.Equal(decimal.RequireFromString("10.01")), "got %s", got)
}

func TestCashBalance_Add(t *testing.T) {
	var b CashBalance
	b, err := b.Add("cad", decimal.NewFromInt(-200))
	assert.NoError(t, err)
	assert.True(t, b.Get("CAD").Equal(decimal.NewFromInt(-200)))
	assert.True(t, b.Get("USD").IsZero())

	_, err = b.Add("EUR", decimal.NewFromInt(1))
	assert.Error(t, err)
}

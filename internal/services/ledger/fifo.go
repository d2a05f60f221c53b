package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/models"
)

// openLot carries the total cost of the remaining shares so partial sales
// take a proportional share of it rather than a rounded unit cost.
type openLot struct {
	date     time.Time
	quantity decimal.Decimal
	cost     decimal.Decimal
	currency string
}

// Position is the replayed state of one symbol in one account.
type Position struct {
	Symbol   string
	Currency string
	lots     []openLot

	// Realized gain per currency of the sells that produced it.
	Realized map[string]decimal.Decimal
}

// Quantity is the sum of open lot quantities.
func (p *Position) Quantity() decimal.Decimal {
	q := decimal.Zero
	for _, l := range p.lots {
		q = q.Add(l.quantity)
	}
	return q
}

// CostBasis is the total cost of the open lots.
func (p *Position) CostBasis() decimal.Decimal {
	c := decimal.Zero
	for _, l := range p.lots {
		c = c.Add(l.cost)
	}
	return c
}

func (p *Position) buy(tx *models.Transaction) {
	p.lots = append(p.lots, openLot{
		date:     tx.TradeDate,
		quantity: tx.Quantity,
		cost:     tx.Quantity.Mul(tx.Price).Add(tx.Fee),
		currency: tx.Currency,
	})
}

// sell consumes lots oldest first and books proceeds net of the sell fee
// minus the cost of every lot portion consumed.
func (p *Position) sell(accountID string, tx *models.Transaction) error {
	available := p.Quantity()
	if tx.Quantity.GreaterThan(available) {
		return &common.DataIntegrityError{
			Account:   accountID,
			Symbol:    tx.Symbol,
			Date:      tx.TradeDate,
			Requested: tx.Quantity.String(),
			Available: available.String(),
		}
	}

	remaining := tx.Quantity
	costSold := decimal.Zero
	for len(p.lots) > 0 && remaining.IsPositive() {
		lot := &p.lots[0]
		if lot.quantity.GreaterThan(remaining) {
			portion := lot.cost.Mul(remaining).Div(lot.quantity)
			costSold = costSold.Add(portion)
			lot.cost = lot.cost.Sub(portion)
			lot.quantity = lot.quantity.Sub(remaining)
			remaining = decimal.Zero
			break
		}
		costSold = costSold.Add(lot.cost)
		remaining = remaining.Sub(lot.quantity)
		p.lots = p.lots[1:]
	}

	proceeds := tx.Quantity.Mul(tx.Price).Sub(tx.Fee)
	p.Realized[tx.Currency] = p.Realized[tx.Currency].Add(proceeds.Sub(costSold))
	return nil
}

// Book is the FIFO replay of one account's trades up to a date.
type Book struct {
	AccountID string
	AsOf      time.Time
	Positions map[string]*Position
}

// Replay rebuilds FIFO lots from the account's BUY and SELL transactions with
// trade date on or before asOf, in (trade date, seq) order. Other
// transaction types are ignored. A SELL larger than the open quantity aborts
// the replay with a *common.DataIntegrityError.
func Replay(accountID string, txs []*models.Transaction, asOf time.Time) (*Book, error) {
	asOf = common.DateOnly(asOf)

	trades := make([]*models.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Type.IsTrade() && !common.DateOnly(tx.TradeDate).After(asOf) {
			trades = append(trades, tx)
		}
	}
	sort.SliceStable(trades, func(i, j int) bool { return trades[i].Less(trades[j]) })

	book := &Book{AccountID: accountID, AsOf: asOf, Positions: make(map[string]*Position)}
	for _, tx := range trades {
		pos, ok := book.Positions[tx.Symbol]
		if !ok {
			pos = &Position{Symbol: tx.Symbol, Currency: tx.Currency, Realized: make(map[string]decimal.Decimal)}
			book.Positions[tx.Symbol] = pos
		}

		switch tx.Type {
		case models.TxBuy:
			pos.buy(tx)
		case models.TxSell:
			if err := pos.sell(accountID, tx); err != nil {
				return nil, err
			}
		}
	}
	return book, nil
}

// Lots lists open lots by symbol, then oldest first.
func (b *Book) Lots() []models.Lot {
	var out []models.Lot
	for _, sym := range b.symbols() {
		for _, l := range b.Positions[sym].lots {
			out = append(out, models.Lot{
				AccountID: b.AccountID,
				Symbol:    sym,
				OpenDate:  l.date,
				Quantity:  l.quantity,
				UnitCost:  l.cost.Div(l.quantity),
				Currency:  l.currency,
			})
		}
	}
	return out
}

// Holdings returns open positions keyed by symbol. Fully sold symbols are omitted.
func (b *Book) Holdings() map[string]*models.Holding {
	out := make(map[string]*models.Holding)
	for sym, pos := range b.Positions {
		qty := pos.Quantity()
		if qty.IsZero() {
			continue
		}
		out[sym] = &models.Holding{
			Symbol:    sym,
			Quantity:  qty,
			CostBasis: pos.CostBasis(),
			Currency:  pos.Currency,
		}
	}
	return out
}

func (b *Book) symbols() []string {
	syms := make([]string, 0, len(b.Positions))
	for sym := range b.Positions {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}

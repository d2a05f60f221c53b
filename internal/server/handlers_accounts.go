package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/models"
	"github.com/bobmcallan/famfolio/internal/services/ledger"
)

func (s *Server) handleAccountList(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	accounts, err := s.app.Storage.TransactionStore().ListAccounts(r.Context())
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request, accountID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	asOf, ok := s.asOf(w, r)
	if !ok {
		return
	}
	holdings, err := s.app.LedgerService.GetHoldings(r.Context(), accountID, asOf)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"as_of":      common.FormatDate(asOf),
		"holdings":   holdings,
	})
}

func (s *Server) handleLots(w http.ResponseWriter, r *http.Request, accountID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	asOf, ok := s.asOf(w, r)
	if !ok {
		return
	}
	lots, err := s.app.LedgerService.GetLots(r.Context(), accountID, asOf)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"as_of":      common.FormatDate(asOf),
		"lots":       lots,
	})
}

// handleGain handles GET /api/accounts/{id}/gain?symbol=&as_of=.
func (s *Server) handleGain(w http.ResponseWriter, r *http.Request, accountID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	asOf, ok := s.asOf(w, r)
	if !ok {
		return
	}
	gains, err := s.app.LedgerService.GetGain(r.Context(), accountID, r.URL.Query().Get("symbol"), asOf)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"as_of":      common.FormatDate(asOf),
		"gains":      gains,
	})
}

type cashSnapshotRequest struct {
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
}

// handleCash handles GET (balance as of) and PUT (set today's snapshot).
func (s *Server) handleCash(w http.ResponseWriter, r *http.Request, accountID string) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPut) {
		return
	}
	ctx := r.Context()

	if r.Method == http.MethodPut {
		var req cashSnapshotRequest
		if !DecodeJSON(w, r, &req) {
			return
		}
		if !models.SupportedCurrency(req.Currency) {
			WriteError(w, http.StatusBadRequest, fmt.Sprintf("unsupported currency %q", req.Currency))
			return
		}
		if err := s.app.CashService.SetSnapshot(ctx, accountID, req.Currency, req.Balance); err != nil {
			s.serviceError(w, r, err)
			return
		}
	}

	asOf, ok := s.asOf(w, r)
	if !ok {
		return
	}
	bal, err := s.app.CashService.GetCashBalance(ctx, accountID, asOf)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"as_of":      common.FormatDate(asOf),
		"cash":       bal,
	})
}

func (s *Server) handleCashDrift(w http.ResponseWriter, r *http.Request, accountID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	drift, err := s.app.CashService.CheckDrift(r.Context(), accountID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, drift)
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request, accountID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	asOf, ok := s.asOf(w, r)
	if !ok {
		return
	}
	total, err := s.app.ValuationService.GetTotalAssets(r.Context(), accountID, asOf)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, total)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, accountID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	asOf, ok := s.asOf(w, r)
	if !ok {
		return
	}
	snap, err := s.app.ValuationService.GetAssetSnapshot(r.Context(), accountID, asOf)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

type transactionRequest struct {
	ID        string          `json:"id"`
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

// handleTransactions handles GET (list) and POST (record) for an account.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request, accountID string) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	ctx := r.Context()

	if r.Method == http.MethodGet {
		txs, err := s.app.Storage.TransactionStore().ListByAccount(ctx, accountID)
		if err != nil {
			s.serviceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"account_id":   accountID,
			"transactions": txs,
		})
		return
	}

	var req transactionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	date, err := common.ParseDate(strings.TrimSpace(req.TradeDate))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "trade_date must be YYYY-MM-DD")
		return
	}

	tx := &models.Transaction{
		ID:        req.ID,
		AccountID: accountID,
		Symbol:    req.Symbol,
		Type:      models.TransactionType(req.Type),
		Quantity:  req.Quantity,
		Price:     req.Price,
		Fee:       req.Fee,
		Amount:    req.Amount,
		Currency:  req.Currency,
		TradeDate: date,
		Note:      req.Note,
	}
	ledger.Normalize(tx)
	if err := tx.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, err := s.app.LedgerService.RecordTransaction(ctx, tx)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, stored)
}

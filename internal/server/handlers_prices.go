package server

import (
	"net/http"
	"strings"

	"github.com/bobmcallan/famfolio/internal/common"
)

type priceUpdateRequest struct {
	Symbols []string `json:"symbols"`
}

// handlePricesUpdate handles POST /api/prices/update. With no symbols in the
// body it refreshes the next batch of stale symbols.
func (s *Server) handlePricesUpdate(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	ctx := r.Context()

	var req priceUpdateRequest
	if r.ContentLength != 0 && !DecodeJSON(w, r, &req) {
		return
	}

	symbols := req.Symbols
	if len(symbols) == 0 {
		stale, err := s.app.PriceService.StocksNeedingUpdate(ctx)
		if err != nil {
			s.serviceError(w, r, err)
			return
		}
		batch := s.app.PriceService.RefreshBatchSize()
		for i, st := range stale {
			if i >= batch {
				break
			}
			symbols = append(symbols, st.Symbol)
		}
	}

	result, err := s.app.PriceService.TriggerPriceUpdate(ctx, symbols)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handlePricesStale(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	stale, err := s.app.PriceService.StocksNeedingUpdate(r.Context())
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"symbols": stale,
		"count":   len(stale),
	})
}

// handlePricesUsage handles GET (report) and POST (reset) /api/prices/usage.
func (s *Server) handlePricesUsage(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method == http.MethodPost {
		if s.app.Config.IsProduction() {
			WriteError(w, http.StatusForbidden, "Usage reset disabled in production")
			return
		}
		s.app.PriceService.ResetDailyUsage()
	}
	WriteJSON(w, http.StatusOK, s.app.PriceService.APIUsage())
}

// handlePrice handles GET /api/prices/{symbol}/{date}. cached=true answers
// from the cache without calling the provider.
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request, symbol, date string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	d, err := s.app.ResolveDate(date)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	lookup := s.app.PriceService.GetPrice
	if strings.EqualFold(r.URL.Query().Get("cached"), "true") {
		lookup = s.app.PriceService.PriceAsOf
	}
	q, err := lookup(r.Context(), symbol, d)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, q)
}

func (s *Server) handlePriceStats(w http.ResponseWriter, r *http.Request, symbol string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	stats, err := s.app.PriceService.CacheStats(r.Context(), symbol)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// handlePriceMissing handles GET /api/prices/{symbol}/missing?start=&end=.
func (s *Server) handlePriceMissing(w http.ResponseWriter, r *http.Request, symbol string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	start, err := common.ParseDate(q.Get("start"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
		return
	}
	end, err := s.app.ResolveDate(q.Get("end"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if end.Before(start) {
		WriteError(w, http.StatusBadRequest, "end must not be before start")
		return
	}

	missing, err := s.app.PriceService.MissingDates(r.Context(), symbol, start, end)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	dates := make([]string, len(missing))
	for i, d := range missing {
		dates[i] = common.FormatDate(d)
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":  symbol,
		"missing": dates,
	})
}

// handleFXRate handles GET /api/fx?as_of=.
func (s *Server) handleFXRate(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	asOf, ok := s.asOf(w, r)
	if !ok {
		return
	}
	rate, err := s.app.FXService.RateAsOf(r.Context(), asOf)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, rate)
}

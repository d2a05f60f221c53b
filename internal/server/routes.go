package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bobmcallan/famfolio/internal/common"
)

// handleShutdown handles POST /api/shutdown (dev mode only).
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if s.app.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}

	s.logger.Info().Msg("Shutdown requested via HTTP endpoint")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Shutting down gracefully...\n"))

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if s.shutdownChan != nil {
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.shutdownChan <- struct{}{}
		}()
	}
}

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/diagnostics", s.handleDiagnostics)
	mux.HandleFunc("/api/shutdown", s.handleShutdown)

	// Prices
	mux.HandleFunc("/api/prices/update", s.handlePricesUpdate)
	mux.HandleFunc("/api/prices/stale", s.handlePricesStale)
	mux.HandleFunc("/api/prices/usage", s.handlePricesUsage)
	mux.HandleFunc("/api/prices/", s.routePrices)

	// FX
	mux.HandleFunc("/api/fx", s.handleFXRate)

	// Accounts
	mux.HandleFunc("/api/accounts/", s.routeAccounts)
	mux.HandleFunc("/api/accounts", s.handleAccountList)
}

// routePrices dispatches /api/prices/{symbol}/{date|stats|missing}.
func (s *Server) routePrices(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/prices/")
	parts := strings.SplitN(path, "/", 2)
	if parts[0] == "" || len(parts) < 2 || parts[1] == "" {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}
	symbol := strings.ToUpper(parts[0])

	switch parts[1] {
	case "stats":
		s.handlePriceStats(w, r, symbol)
	case "missing":
		s.handlePriceMissing(w, r, symbol)
	default:
		s.handlePrice(w, r, symbol, parts[1])
	}
}

// routeAccounts dispatches /api/accounts/{id}/* to the appropriate handler.
func (s *Server) routeAccounts(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/accounts/")
	if path == "" {
		s.handleAccountList(w, r)
		return
	}

	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	subpath := ""
	if len(parts) > 1 {
		subpath = parts[1]
	}

	switch subpath {
	case "holdings":
		s.handleHoldings(w, r, id)
	case "lots":
		s.handleLots(w, r, id)
	case "gain":
		s.handleGain(w, r, id)
	case "cash":
		s.handleCash(w, r, id)
	case "cash/drift":
		s.handleCashDrift(w, r, id)
	case "assets":
		s.handleAssets(w, r, id)
	case "snapshot":
		s.handleSnapshot(w, r, id)
	case "transactions":
		s.handleTransactions(w, r, id)
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.Build,
		"commit":  common.GitCommit,
	})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":    common.GetVersion(),
		"build":      common.Build,
		"commit":     common.GitCommit,
		"uptime":     time.Since(s.app.StartupTime).Round(time.Second).String(),
		"started_at": s.app.StartupTime,
		"backend":    s.app.Storage.Backend(),
		"api_usage":  s.app.PriceService.APIUsage(),
		"market_now": s.app.Clock.Now(),
	})
}

// asOf reads the optional as_of query parameter. It writes a 400 and
// returns false when the value is malformed.
func (s *Server) asOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	d, err := s.app.ResolveDate(r.URL.Query().Get("as_of"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return time.Time{}, false
	}
	return d, true
}

package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/models"
)

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t, notFoundProvider())

	rec := doRequest(t, srv, http.MethodGet, "/api/health", nil)
	assertStatus(t, rec, http.StatusOK)
	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "ok", body["status"])

	rec = doRequest(t, srv, http.MethodPost, "/api/health", nil)
	assertStatus(t, rec, http.StatusMethodNotAllowed)
	assert.Equal(t, "GET, HEAD", rec.Header().Get("Allow"))
}

func TestHandleVersion(t *testing.T) {
	srv, _ := newTestServer(t, notFoundProvider())

	rec := doRequest(t, srv, http.MethodGet, "/api/version", nil)
	assertStatus(t, rec, http.StatusOK)
	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, common.GetVersion(), body["version"])
}

func TestHandleDiagnostics(t *testing.T) {
	srv, _ := newTestServer(t, notFoundProvider())

	rec := doRequest(t, srv, http.MethodGet, "/api/diagnostics", nil)
	assertStatus(t, rec, http.StatusOK)
	var body map[string]interface{}
	decodeBody(t, rec, &body)
	assert.Equal(t, "badger", body["backend"])
	assert.Contains(t, body, "api_usage")
}

func TestHandleHoldings(t *testing.T) {
	srv, a := newTestServer(t, notFoundProvider())
	seedAccount(t, a)

	rec := doRequest(t, srv, http.MethodGet, "/api/accounts/family/holdings?as_of=2024-03-19", nil)
	assertStatus(t, rec, http.StatusOK)

	var body struct {
		AccountID string                    `json:"account_id"`
		AsOf      string                    `json:"as_of"`
		Holdings  map[string]models.Holding `json:"holdings"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "2024-03-19", body.AsOf)
	require.Contains(t, body.Holdings, "AAPL")
	assert.True(t, body.Holdings["AAPL"].Quantity.Equal(dec("6")))
	assert.True(t, body.Holdings["AAPL"].CostBasis.Equal(dec("600")))
	assert.True(t, body.Holdings["RY.TO"].Quantity.Equal(dec("10")))
}

func TestHandleHoldings_BadDate(t *testing.T) {
	srv, _ := newTestServer(t, notFoundProvider())

	rec := doRequest(t, srv, http.MethodGet, "/api/accounts/family/holdings?as_of=19-03-2024", nil)
	assertStatus(t, rec, http.StatusBadRequest)
}

func TestHandleLots(t *testing.T) {
	srv, a := newTestServer(t, notFoundProvider())
	seedAccount(t, a)

	rec := doRequest(t, srv, http.MethodGet, "/api/accounts/family/lots?as_of=2024-02-01", nil)
	assertStatus(t, rec, http.StatusOK)
	var body struct {
		Lots []models.Lot `json:"lots"`
	}
	decodeBody(t, rec, &body)
	assert.Len(t, body.Lots, 2)
}

func TestHandleGain(t *testing.T) {
	srv, a := newTestServer(t, notFoundProvider())
	seedAccount(t, a)
	putPrice(t, a, "AAPL", common.Date(2024, 3, 19), "150")

	rec := doRequest(t, srv, http.MethodGet, "/api/accounts/family/gain?symbol=aapl&as_of=2024-03-19", nil)
	assertStatus(t, rec, http.StatusOK)
	var body struct {
		Gains map[string]models.Gain `json:"gains"`
	}
	decodeBody(t, rec, &body)
	require.Contains(t, body.Gains, "USD")
	assert.True(t, body.Gains["USD"].Realized.Equal(dec("80")))
	assert.True(t, body.Gains["USD"].Unrealized.Equal(dec("300")))
	assert.False(t, body.Gains["USD"].PriceStale)
}

func TestHandleTransactions(t *testing.T) {
	srv, a := newTestServer(t, notFoundProvider())
	seedAccount(t, a)

	t.Run("records a valid trade", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/api/accounts/family/transactions", map[string]string{
			"symbol": "aapl", "type": "sell", "quantity": "2", "price": "130", "currency": "usd", "trade_date": "2024-03-05",
		})
		assertStatus(t, rec, http.StatusCreated)
		var tx models.Transaction
		decodeBody(t, rec, &tx)
		assert.Equal(t, "AAPL", tx.Symbol)
		assert.Equal(t, models.TxSell, tx.Type)
		assert.NotEmpty(t, tx.ID)
	})

	t.Run("rejects an oversell", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/api/accounts/family/transactions", map[string]string{
			"symbol": "AAPL", "type": "SELL", "quantity": "50", "price": "130", "currency": "USD", "trade_date": "2024-03-06",
		})
		assertStatus(t, rec, http.StatusConflict)
		var body ErrorResponse
		decodeBody(t, rec, &body)
		assert.Equal(t, "data_integrity", body.Code)
	})

	t.Run("rejects an unsupported currency", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/api/accounts/family/transactions", map[string]string{
			"type": "DEPOSIT", "amount": "10", "currency": "EUR", "trade_date": "2024-03-06",
		})
		assertStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("rejects a bad date", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/api/accounts/family/transactions", map[string]string{
			"type": "DEPOSIT", "amount": "10", "currency": "CAD", "trade_date": "March 6",
		})
		assertStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("lists the log", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/accounts/family/transactions", nil)
		assertStatus(t, rec, http.StatusOK)
		var body struct {
			Transactions []models.Transaction `json:"transactions"`
		}
		decodeBody(t, rec, &body)
		assert.Len(t, body.Transactions, 5)
	})
}

func TestHandleCash(t *testing.T) {
	srv, a := newTestServer(t, notFoundProvider())
	seedAccount(t, a)

	// Historical: replayed.
	rec := doRequest(t, srv, http.MethodGet, "/api/accounts/family/cash?as_of=2024-03-19", nil)
	assertStatus(t, rec, http.StatusOK)
	var body struct {
		Cash models.CashBalance `json:"cash"`
	}
	decodeBody(t, rec, &body)
	assert.True(t, body.Cash.CAD.Equal(dec("-200")), "CAD %s", body.Cash.CAD)
	assert.True(t, body.Cash.USD.Equal(dec("-520")), "USD %s", body.Cash.USD)

	// Today: snapshot.
	rec = doRequest(t, srv, http.MethodPut, "/api/accounts/family/cash", map[string]string{"currency": "CAD", "balance": "250.00"})
	assertStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &body)
	assert.True(t, body.Cash.CAD.Equal(dec("250")))
	assert.True(t, body.Cash.USD.IsZero())

	rec = doRequest(t, srv, http.MethodPut, "/api/accounts/family/cash", map[string]string{"currency": "GBP", "balance": "1"})
	assertStatus(t, rec, http.StatusBadRequest)
}

func TestHandleCashDrift(t *testing.T) {
	srv, a := newTestServer(t, notFoundProvider())
	seedAccount(t, a)

	rec := doRequest(t, srv, http.MethodGet, "/api/accounts/family/cash/drift", nil)
	assertStatus(t, rec, http.StatusOK)
	var drift models.CashDrift
	decodeBody(t, rec, &drift)
	assert.False(t, drift.InSync)
	assert.True(t, drift.Drift.CAD.Equal(dec("200")))
}

func TestHandleAssets(t *testing.T) {
	srv, a := newTestServer(t, notFoundProvider())
	seedAccount(t, a)
	day := common.Date(2024, 3, 19)
	putPrice(t, a, "RY.TO", day, "130")
	putPrice(t, a, "AAPL", day, "150")
	putRate(t, a, day, "1.35")

	rec := doRequest(t, srv, http.MethodGet, "/api/accounts/family/assets?as_of=2024-03-19", nil)
	assertStatus(t, rec, http.StatusOK)
	var total models.TotalAssets
	decodeBody(t, rec, &total)

	// CAD 1300 - 200, USD 900 - 520, combined 1100 + 380 x 1.35.
	assert.True(t, total.CADTotal.Equal(dec("1100")), "CAD %s", total.CADTotal)
	assert.True(t, total.USDTotal.Equal(dec("380")), "USD %s", total.USDTotal)
	require.NotNil(t, total.CombinedCAD)
	assert.True(t, total.CombinedCAD.Equal(dec("1613")), "combined %s", total.CombinedCAD)
}

func TestHandleAssets_NoFXRate(t *testing.T) {
	srv, a := newTestServer(t, notFoundProvider())
	seedAccount(t, a)
	day := common.Date(2024, 3, 19)
	putPrice(t, a, "RY.TO", day, "130")
	putPrice(t, a, "AAPL", day, "150")

	rec := doRequest(t, srv, http.MethodGet, "/api/accounts/family/snapshot?as_of=2024-03-19", nil)
	assertStatus(t, rec, http.StatusOK)
	var snap models.AssetSnapshot
	decodeBody(t, rec, &snap)
	assert.Nil(t, snap.CombinedCAD)
	assert.NotEmpty(t, snap.FXError)
	assert.Len(t, snap.Holdings, 2)
}

func TestHandlePrice(t *testing.T) {
	provider := &stubProvider{close: dec("42.5")}
	srv, _ := newTestServer(t, provider)

	rec := doRequest(t, srv, http.MethodGet, "/api/prices/msft/2024-03-19", nil)
	assertStatus(t, rec, http.StatusOK)
	var q models.Quote
	decodeBody(t, rec, &q)
	assert.Equal(t, "MSFT", q.Symbol)
	assert.True(t, q.Close.Equal(dec("42.5")))
	assert.False(t, q.Stale)
	assert.Equal(t, 1, provider.calls)

	// Second lookup is a cache hit.
	rec = doRequest(t, srv, http.MethodGet, "/api/prices/MSFT/2024-03-18", nil)
	assertStatus(t, rec, http.StatusOK)
	assert.Equal(t, 1, provider.calls)
}

func TestHandlePrice_CachedOnly(t *testing.T) {
	provider := &stubProvider{close: dec("1")}
	srv, _ := newTestServer(t, provider)

	rec := doRequest(t, srv, http.MethodGet, "/api/prices/MSFT/2024-03-19?cached=true", nil)
	assertStatus(t, rec, http.StatusNotFound)
	assert.Equal(t, 0, provider.calls)
}

func TestHandlePriceStatsAndMissing(t *testing.T) {
	srv, a := newTestServer(t, notFoundProvider())
	putPrice(t, a, "AAPL", common.Date(2024, 3, 18), "150")
	putPrice(t, a, "AAPL", common.Date(2024, 3, 20), "151")

	rec := doRequest(t, srv, http.MethodGet, "/api/prices/AAPL/stats", nil)
	assertStatus(t, rec, http.StatusOK)
	var stats models.CacheStats
	decodeBody(t, rec, &stats)
	assert.Equal(t, 2, stats.Records)

	rec = doRequest(t, srv, http.MethodGet, "/api/prices/AAPL/missing?start=2024-03-18&end=2024-03-19", nil)
	assertStatus(t, rec, http.StatusOK)
	var body struct {
		Missing []string `json:"missing"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, []string{"2024-03-19"}, body.Missing)

	rec = doRequest(t, srv, http.MethodGet, "/api/prices/AAPL/missing?start=nope", nil)
	assertStatus(t, rec, http.StatusBadRequest)
}

func TestHandlePricesUpdate(t *testing.T) {
	provider := &stubProvider{close: dec("10")}
	srv, a := newTestServer(t, provider)
	seedAccount(t, a)

	rec := doRequest(t, srv, http.MethodGet, "/api/prices/stale", nil)
	assertStatus(t, rec, http.StatusOK)
	var stale struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &stale)
	assert.Equal(t, 2, stale.Count)

	rec = doRequest(t, srv, http.MethodPost, "/api/prices/update", map[string][]string{"symbols": {"AAPL"}})
	assertStatus(t, rec, http.StatusOK)
	var result models.PriceUpdateResult
	decodeBody(t, rec, &result)
	assert.Equal(t, []string{"AAPL"}, result.Updated)

	rec = doRequest(t, srv, http.MethodPost, "/api/prices/update", nil)
	assertStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &result)
	assert.Equal(t, []string{"RY.TO"}, result.Updated)

	rec = doRequest(t, srv, http.MethodGet, "/api/prices/usage", nil)
	assertStatus(t, rec, http.StatusOK)
	var usage models.APIUsage
	decodeBody(t, rec, &usage)
	assert.Equal(t, 2, usage.UsedToday)
	assert.Equal(t, 200, usage.Limit)

	rec = doRequest(t, srv, http.MethodPost, "/api/prices/usage", nil)
	assertStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &usage)
	assert.Equal(t, 0, usage.UsedToday)
}

func TestHandleFXRate(t *testing.T) {
	srv, a := newTestServer(t, notFoundProvider())

	rec := doRequest(t, srv, http.MethodGet, "/api/fx?as_of=2024-03-19", nil)
	assertStatus(t, rec, http.StatusServiceUnavailable)

	putRate(t, a, common.Date(2024, 3, 18), "1.36")
	rec = doRequest(t, srv, http.MethodGet, "/api/fx?as_of=2024-03-19", nil)
	assertStatus(t, rec, http.StatusOK)
	var rate models.FXRate
	decodeBody(t, rec, &rate)
	assert.True(t, rate.Rate.Equal(dec("1.36")))
}

func TestHandleAccountList(t *testing.T) {
	srv, a := newTestServer(t, notFoundProvider())
	seedAccount(t, a)

	rec := doRequest(t, srv, http.MethodGet, "/api/accounts", nil)
	assertStatus(t, rec, http.StatusOK)
	var body struct {
		Accounts []string `json:"accounts"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, []string{"family"}, body.Accounts)
}

func TestUnknownRoutes(t *testing.T) {
	srv, _ := newTestServer(t, notFoundProvider())

	for _, path := range []string{"/api/accounts/family/unknown", "/api/prices/AAPL", "/api/prices/"} {
		rec := doRequest(t, srv, http.MethodGet, path, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, rec.Code)
		}
	}
}

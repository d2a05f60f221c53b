package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/famfolio/internal/app"
	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/models"
	badgerstore "github.com/bobmcallan/famfolio/internal/storage/badger"
)

// Wednesday 2024-03-20, after the New York close.
var testNow = time.Date(2024, 3, 20, 20, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// stubProvider serves a flat close for every weekday, or fails with err.
type stubProvider struct {
	close decimal.Decimal
	err   error
	calls int
}

func (p *stubProvider) FetchDailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyPrice, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	var out []models.DailyPrice
	for _, d := range common.Weekdays(start, end) {
		out = append(out, models.DailyPrice{Date: d, Close: p.close})
	}
	return out, nil
}

func notFoundProvider() *stubProvider {
	return &stubProvider{err: common.NewProviderError(common.ProviderNotFound, "", 404, errors.New("not found"))}
}

func newTestServer(t *testing.T, provider *stubProvider) (*Server, *app.App) {
	t.Helper()
	logger := common.NewSilentLogger()
	store, err := badgerstore.NewManager(logger, filepath.Join(t.TempDir(), "badger"))
	require.NoError(t, err)

	a := app.New(common.NewDefaultConfig(), logger, store, provider)
	a.Clock.WithNow(func() time.Time { return testNow })
	t.Cleanup(a.Close)
	return NewServer(a), a
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), "body: %s", rec.Body.String())
}

func seedAccount(t *testing.T, a *app.App) {
	t.Helper()
	ctx := context.Background()
	txs := []*models.Transaction{
		{Type: models.TxDeposit, Currency: "CAD", Amount: dec("1000"), TradeDate: common.Date(2024, 1, 2)},
		{Symbol: "RY.TO", Type: models.TxBuy, Currency: "CAD", Quantity: dec("10"), Price: dec("120"), TradeDate: common.Date(2024, 1, 3)},
		{Symbol: "AAPL", Type: models.TxBuy, Currency: "USD", Quantity: dec("10"), Price: dec("100"), TradeDate: common.Date(2024, 1, 5)},
		{Symbol: "AAPL", Type: models.TxSell, Currency: "USD", Quantity: dec("4"), Price: dec("120"), TradeDate: common.Date(2024, 3, 1)},
	}
	for _, tx := range txs {
		tx.AccountID = "family"
		_, err := a.LedgerService.RecordTransaction(ctx, tx)
		require.NoError(t, err)
	}
}

func putPrice(t *testing.T, a *app.App, symbol string, date time.Time, close string) {
	t.Helper()
	require.NoError(t, a.Storage.PriceStore().PutPrice(context.Background(), &models.PriceEntry{
		Symbol: symbol, Date: date, Close: dec(close), Provenance: models.ProvenanceFetched, UpdatedAt: time.Now(),
	}))
}

func putRate(t *testing.T, a *app.App, date time.Time, rate string) {
	t.Helper()
	require.NoError(t, a.Storage.FXRateStore().PutRates(context.Background(), []*models.FXRate{
		{Base: "USD", Quote: "CAD", Date: date, Rate: dec(rate)},
	}))
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, want, rec.Body.String())
	}
}

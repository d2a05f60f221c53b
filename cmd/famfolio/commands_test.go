package main

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/famfolio/internal/app"
	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/models"
	badgerstore "github.com/bobmcallan/famfolio/internal/storage/badger"
)

var testNow = time.Date(2024, 3, 20, 20, 0, 0, 0, time.UTC)

type flatProvider struct{ calls int }

func (p *flatProvider) FetchDailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyPrice, error) {
	p.calls++
	var out []models.DailyPrice
	for _, d := range common.Weekdays(start, end) {
		out = append(out, models.DailyPrice{Date: d, Close: decimal.NewFromInt(50)})
	}
	return out, nil
}

// newTestEnv opens a fresh app on the same badger directory for every
// command, the way separate CLI invocations would.
func newTestEnv(t *testing.T) (*cliEnv, *bytes.Buffer, *flatProvider) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "badger")
	provider := &flatProvider{}
	out := &bytes.Buffer{}
	env := &cliEnv{
		out: out,
		open: func() (*app.App, error) {
			logger := common.NewSilentLogger()
			store, err := badgerstore.NewManager(logger, dir)
			if err != nil {
				return nil, err
			}
			a := app.New(common.NewDefaultConfig(), logger, store, provider)
			a.Clock.WithNow(func() time.Time { return testNow })
			return a, nil
		},
	}
	return env, out, provider
}

func execute(t *testing.T, env *cliEnv, args ...string) subcommands.ExitStatus {
	t.Helper()
	fs := flag.NewFlagSet("famfolio", flag.ContinueOnError)
	commander := subcommands.NewCommander(fs, "famfolio")
	register(commander)
	require.NoError(t, fs.Parse(args))
	return commander.Execute(context.Background(), env)
}

func writeImportFile(t *testing.T) string {
	t.Helper()
	data := `{"transactions": [
  {"id": "d1", "account_id": "rrsp", "type": "DEPOSIT", "amount": "2000", "currency": "USD", "trade_date": "2024-01-02"},
  {"id": "b1", "account_id": "rrsp", "symbol": "MSFT", "type": "BUY", "quantity": "10", "price": "100", "fee": "5", "currency": "USD", "trade_date": "2024-01-03"}
]}`
	path := filepath.Join(t.TempDir(), "txs.json")
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	return path
}

func TestImportThenHoldings(t *testing.T) {
	env, out, _ := newTestEnv(t)
	file := writeImportFile(t)

	assert.Equal(t, subcommands.ExitSuccess, execute(t, env, "import", file))
	assert.Equal(t, "imported 2, skipped 0\n", out.String())

	out.Reset()
	assert.Equal(t, subcommands.ExitSuccess, execute(t, env, "import", file))
	assert.Equal(t, "imported 0, skipped 2\n", out.String())

	out.Reset()
	assert.Equal(t, subcommands.ExitSuccess, execute(t, env, "holdings", "-a", "rrsp", "-d", "2024-03-19"))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"MSFT", "10", "1005.00", "USD"}, strings.Fields(lines[1]))
}

func TestCashCommand(t *testing.T) {
	env, out, _ := newTestEnv(t)
	require.Equal(t, subcommands.ExitSuccess, execute(t, env, "import", writeImportFile(t)))

	out.Reset()
	assert.Equal(t, subcommands.ExitSuccess, execute(t, env, "cash", "-a", "rrsp", "-d", "2024-02-01"))
	assert.Contains(t, out.String(), "995.00")

	out.Reset()
	assert.Equal(t, subcommands.ExitSuccess, execute(t, env, "cash", "-a", "rrsp", "-set", "USD=990"))
	assert.Contains(t, out.String(), "990.00")

	out.Reset()
	assert.Equal(t, subcommands.ExitSuccess, execute(t, env, "cash", "-a", "rrsp", "-drift"))
	assert.Contains(t, out.String(), "-5.00")

	assert.Equal(t, subcommands.ExitFailure, execute(t, env, "cash", "-a", "rrsp", "-set", "990"))
	assert.Equal(t, subcommands.ExitUsageError, execute(t, env, "cash"))
}

func TestRefreshAndGain(t *testing.T) {
	env, out, provider := newTestEnv(t)
	require.Equal(t, subcommands.ExitSuccess, execute(t, env, "import", writeImportFile(t)))

	out.Reset()
	assert.Equal(t, subcommands.ExitSuccess, execute(t, env, "stale"))
	assert.Contains(t, out.String(), "MSFT")
	assert.Contains(t, out.String(), models.StaleNoData)

	out.Reset()
	assert.Equal(t, subcommands.ExitSuccess, execute(t, env, "refresh"))
	assert.Equal(t, 1, provider.calls)
	assert.Contains(t, out.String(), "provider calls: 1 of 200")

	out.Reset()
	assert.Equal(t, subcommands.ExitSuccess, execute(t, env, "gain", "-a", "rrsp", "-d", "2024-03-19"))
	// 10 x 50 - 1005
	assert.Contains(t, out.String(), "-505.00")

	out.Reset()
	assert.Equal(t, subcommands.ExitSuccess, execute(t, env, "missing", "-s", "2024-03-11", "-e", "2024-03-15", "MSFT"))
	assert.Empty(t, out.String())
}

func TestAssetsCommand(t *testing.T) {
	env, out, _ := newTestEnv(t)
	require.Equal(t, subcommands.ExitSuccess, execute(t, env, "import", writeImportFile(t)))

	out.Reset()
	assert.Equal(t, subcommands.ExitSuccess, execute(t, env, "assets", "-a", "rrsp", "-d", "2024-03-19"))
	assert.Contains(t, out.String(), `"usd_total": "1495"`)
}

func TestUsageErrors(t *testing.T) {
	env, _, _ := newTestEnv(t)

	assert.Equal(t, subcommands.ExitUsageError, execute(t, env, "holdings"))
	assert.Equal(t, subcommands.ExitUsageError, execute(t, env, "import"))
	assert.Equal(t, subcommands.ExitUsageError, execute(t, env, "missing", "MSFT"))
	assert.Equal(t, subcommands.ExitFailure, execute(t, env, "holdings", "-a", "x", "-d", "tomorrow"))
}

func TestVersionCommand(t *testing.T) {
	env, out, _ := newTestEnv(t)
	assert.Equal(t, subcommands.ExitSuccess, execute(t, env, "version"))
	assert.Equal(t, common.GetFullVersion()+"\n", out.String())
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/famfolio/internal/app"
	"github.com/bobmcallan/famfolio/internal/common"
)

// run opens the app, calls fn and maps the outcome to an exit status.
func run(env *cliEnv, fn func(a *app.App) error) subcommands.ExitStatus {
	a, err := env.open()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := fn(a); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// accountFlags are shared by the per-account commands.
type accountFlags struct {
	account string
	date    string
}

func (f *accountFlags) set(fs *flag.FlagSet) {
	fs.StringVar(&f.account, "a", "", "account id (required)")
	fs.StringVar(&f.date, "d", "", "as-of date YYYY-MM-DD (defaults to today)")
}

func (f *accountFlags) usageError() subcommands.ExitStatus {
	if f.account == "" {
		fmt.Fprintln(os.Stderr, "-a <account> is required")
		return subcommands.ExitUsageError
	}
	return subcommands.ExitSuccess
}

// --- holdings ---

type holdingsCmd struct{ accountFlags }

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "list open positions from the FIFO ledger" }
func (*holdingsCmd) Usage() string {
	return `famfolio holdings -a <account> [-d <date>]
`
}
func (c *holdingsCmd) SetFlags(f *flag.FlagSet) { c.set(f) }

func (c *holdingsCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if st := c.usageError(); st != subcommands.ExitSuccess {
		return st
	}
	env := envFrom(args)
	return run(env, func(a *app.App) error {
		asOf, err := a.ResolveDate(c.date)
		if err != nil {
			return err
		}
		holdings, err := a.LedgerService.GetHoldings(ctx, c.account, asOf)
		if err != nil {
			return err
		}

		symbols := make([]string, 0, len(holdings))
		for sym := range holdings {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)

		tw := newTable(env.out)
		fmt.Fprintln(tw, "SYMBOL\tQUANTITY\tCOST BASIS\tCURRENCY")
		for _, sym := range symbols {
			h := holdings[sym]
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", h.Symbol, h.Quantity, h.CostBasis.StringFixed(2), h.Currency)
		}
		return tw.Flush()
	})
}

// --- gain ---

type gainCmd struct {
	accountFlags
	symbol string
}

func (*gainCmd) Name() string     { return "gain" }
func (*gainCmd) Synopsis() string { return "realized and unrealized gain per currency" }
func (*gainCmd) Usage() string {
	return `famfolio gain -a <account> [-s <symbol>] [-d <date>]
`
}
func (c *gainCmd) SetFlags(f *flag.FlagSet) {
	c.set(f)
	f.StringVar(&c.symbol, "s", "", "restrict to one symbol")
}

func (c *gainCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if st := c.usageError(); st != subcommands.ExitSuccess {
		return st
	}
	env := envFrom(args)
	return run(env, func(a *app.App) error {
		asOf, err := a.ResolveDate(c.date)
		if err != nil {
			return err
		}
		gains, err := a.LedgerService.GetGain(ctx, c.account, c.symbol, asOf)
		if err != nil {
			return err
		}

		currencies := make([]string, 0, len(gains))
		for cur := range gains {
			currencies = append(currencies, cur)
		}
		sort.Strings(currencies)

		tw := newTable(env.out)
		fmt.Fprintln(tw, "CURRENCY\tREALIZED\tUNREALIZED\tSTALE")
		for _, cur := range currencies {
			g := gains[cur]
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", cur, g.Realized.StringFixed(2), g.Unrealized.StringFixed(2), g.PriceStale)
		}
		return tw.Flush()
	})
}

// --- cash ---

type cashCmd struct {
	accountFlags
	snapshot string
	drift    bool
}

func (*cashCmd) Name() string     { return "cash" }
func (*cashCmd) Synopsis() string { return "show, set or reconcile cash balances" }
func (*cashCmd) Usage() string {
	return `famfolio cash -a <account> [-d <date>] [-set CUR=AMOUNT] [-drift]

  Without flags prints the CAD and USD balances. Past dates are replayed
  from the ledger; today reads the cash snapshot, which -set overwrites.
  -drift compares the snapshot with a ledger replay to today.
`
}
func (c *cashCmd) SetFlags(f *flag.FlagSet) {
	c.set(f)
	f.StringVar(&c.snapshot, "set", "", "set today's snapshot, e.g. CAD=1234.56")
	f.BoolVar(&c.drift, "drift", false, "report snapshot vs replay drift")
}

func (c *cashCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if st := c.usageError(); st != subcommands.ExitSuccess {
		return st
	}
	env := envFrom(args)
	return run(env, func(a *app.App) error {
		if c.snapshot != "" {
			cur, amount, ok := strings.Cut(c.snapshot, "=")
			if !ok {
				return fmt.Errorf("-set wants CUR=AMOUNT, got %q", c.snapshot)
			}
			balance, err := decimal.NewFromString(strings.TrimSpace(amount))
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", amount, err)
			}
			if err := a.CashService.SetSnapshot(ctx, c.account, strings.TrimSpace(cur), balance); err != nil {
				return err
			}
		}

		if c.drift {
			drift, err := a.CashService.CheckDrift(ctx, c.account)
			if err != nil {
				return err
			}
			tw := newTable(env.out)
			fmt.Fprintln(tw, "CURRENCY\tSNAPSHOT\tREPLAYED\tDRIFT")
			fmt.Fprintf(tw, "CAD\t%s\t%s\t%s\n", drift.Snapshot.CAD.StringFixed(2), drift.Replayed.CAD.StringFixed(2), drift.Drift.CAD.StringFixed(2))
			fmt.Fprintf(tw, "USD\t%s\t%s\t%s\n", drift.Snapshot.USD.StringFixed(2), drift.Replayed.USD.StringFixed(2), drift.Drift.USD.StringFixed(2))
			return tw.Flush()
		}

		asOf, err := a.ResolveDate(c.date)
		if err != nil {
			return err
		}
		bal, err := a.CashService.GetCashBalance(ctx, c.account, asOf)
		if err != nil {
			return err
		}
		tw := newTable(env.out)
		fmt.Fprintln(tw, "CURRENCY\tBALANCE")
		fmt.Fprintf(tw, "CAD\t%s\n", bal.CAD.StringFixed(2))
		fmt.Fprintf(tw, "USD\t%s\n", bal.USD.StringFixed(2))
		return tw.Flush()
	})
}

// --- assets ---

type assetsCmd struct {
	accountFlags
	detail bool
}

func (*assetsCmd) Name() string     { return "assets" }
func (*assetsCmd) Synopsis() string { return "total assets per currency and combined in CAD" }
func (*assetsCmd) Usage() string {
	return `famfolio assets -a <account> [-d <date>] [-detail]

  Prints the valuation as JSON. -detail includes every valued holding and
  the cash balances.
`
}
func (c *assetsCmd) SetFlags(f *flag.FlagSet) {
	c.set(f)
	f.BoolVar(&c.detail, "detail", false, "include per-holding valuation")
}

func (c *assetsCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if st := c.usageError(); st != subcommands.ExitSuccess {
		return st
	}
	env := envFrom(args)
	return run(env, func(a *app.App) error {
		asOf, err := a.ResolveDate(c.date)
		if err != nil {
			return err
		}
		if c.detail {
			snap, err := a.ValuationService.GetAssetSnapshot(ctx, c.account, asOf)
			if err != nil {
				return err
			}
			return printJSON(env.out, snap)
		}
		total, err := a.ValuationService.GetTotalAssets(ctx, c.account, asOf)
		if err != nil {
			return err
		}
		return printJSON(env.out, total)
	})
}

// --- import ---

type importCmd struct{}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "record transactions from a JSON file" }
func (*importCmd) Usage() string {
	return `famfolio import <file.json>

  The file holds {"transactions": [...]}. Entries whose id already exists
  are skipped, so re-running an import is safe.
`
}
func (*importCmd) SetFlags(*flag.FlagSet) {}

func (*importCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "import wants exactly one file")
		return subcommands.ExitUsageError
	}
	env := envFrom(args)
	return run(env, func(a *app.App) error {
		imported, skipped, err := app.ImportTransactionsFromFile(ctx, a.LedgerService, a.Storage.TransactionStore(), a.Logger, f.Arg(0))
		if err != nil {
			return err
		}
		fmt.Fprintf(env.out, "imported %d, skipped %d\n", imported, skipped)
		return nil
	})
}

// --- refresh ---

type refreshCmd struct{}

func (*refreshCmd) Name() string     { return "refresh" }
func (*refreshCmd) Synopsis() string { return "fetch prices for stale symbols within the daily budget" }
func (*refreshCmd) Usage() string {
	return `famfolio refresh [symbol...]

  With no symbols, refreshes every tracked symbol whose cache is stale.
`
}
func (*refreshCmd) SetFlags(*flag.FlagSet) {}

func (*refreshCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	env := envFrom(args)
	return run(env, func(a *app.App) error {
		symbols := f.Args()
		if len(symbols) == 0 {
			stale, err := a.PriceService.StocksNeedingUpdate(ctx)
			if err != nil {
				return err
			}
			if len(stale) == 0 {
				fmt.Fprintln(env.out, "all symbols fresh")
				return nil
			}
			for _, s := range stale {
				symbols = append(symbols, s.Symbol)
			}
		}
		result, err := a.PriceService.TriggerPriceUpdate(ctx, symbols)
		if err != nil {
			return err
		}
		if err := printJSON(env.out, result); err != nil {
			return err
		}
		usage := a.PriceService.APIUsage()
		fmt.Fprintf(env.out, "provider calls: %d of %d\n", usage.UsedToday, usage.Limit)
		return nil
	})
}

// --- stale ---

type staleCmd struct{}

func (*staleCmd) Name() string     { return "stale" }
func (*staleCmd) Synopsis() string { return "list tracked symbols whose cached prices need refreshing" }
func (*staleCmd) Usage() string {
	return `famfolio stale
`
}
func (*staleCmd) SetFlags(*flag.FlagSet) {}

func (*staleCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	env := envFrom(args)
	return run(env, func(a *app.App) error {
		stale, err := a.PriceService.StocksNeedingUpdate(ctx)
		if err != nil {
			return err
		}
		tw := newTable(env.out)
		fmt.Fprintln(tw, "SYMBOL\tREASON\tLAST UPDATED")
		for _, s := range stale {
			last := "-"
			if !s.LastUpdated.IsZero() {
				last = s.LastUpdated.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Symbol, s.Reason, last)
		}
		return tw.Flush()
	})
}

// --- missing ---

type missingCmd struct {
	start string
	end   string
}

func (*missingCmd) Name() string     { return "missing" }
func (*missingCmd) Synopsis() string { return "list trading days with no cached close" }
func (*missingCmd) Usage() string {
	return `famfolio missing -s <start> [-e <end>] <symbol>
`
}
func (c *missingCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.start, "s", "", "start date YYYY-MM-DD (required)")
	f.StringVar(&c.end, "e", "", "end date YYYY-MM-DD (defaults to today)")
}

func (c *missingCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 || c.start == "" {
		fmt.Fprintln(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	env := envFrom(args)
	return run(env, func(a *app.App) error {
		start, err := common.ParseDate(c.start)
		if err != nil {
			return fmt.Errorf("invalid start date %q", c.start)
		}
		end, err := a.ResolveDate(c.end)
		if err != nil {
			return err
		}
		missing, err := a.PriceService.MissingDates(ctx, f.Arg(0), start, end)
		if err != nil {
			return err
		}
		for _, d := range missing {
			fmt.Fprintln(env.out, common.FormatDate(d))
		}
		return nil
	})
}

// --- version ---

type versionCmd struct{}

func (*versionCmd) Name() string           { return "version" }
func (*versionCmd) Synopsis() string       { return "print build information" }
func (*versionCmd) Usage() string          { return "famfolio version\n" }
func (*versionCmd) SetFlags(*flag.FlagSet) {}

func (*versionCmd) Execute(_ context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	fmt.Fprintln(envFrom(args).out, common.GetFullVersion())
	return subcommands.ExitSuccess
}

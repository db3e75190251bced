// Command btracker-report prints the budget dashboard for one selection.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"btracker/internal/backend"
	"btracker/internal/cli"
	"btracker/internal/core"
	"btracker/internal/ledger"
	applog "btracker/internal/log"
)

func main() {
	cli.LoadEnvFile()

	month := flag.String("month", core.FilterAll, "month to report, YYYY-MM or All")
	category := flag.String("category", core.FilterAll, "category to report, or All")
	net := flag.Bool("net", false, "show monthly income minus expense instead of raw totals")
	flag.Parse()

	cfg := cli.LoadAndValidateConfig()
	// Keep stdout for the report itself.
	cfg.LogLevel = "warn"
	logger := cli.SetupLogger(cfg)

	if err := run(context.Background(), os.Stdout, cfg.DataBackend, cfg.LedgerFile, cfg.SQLiteDBPath, *month, *category, *net, logger); err != nil {
		fmt.Fprintf(os.Stderr, "btracker-report: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, backendType, ledgerFile, dbPath, month, category string, net bool, logger *applog.Logger) error {
	store, err := backend.NewFactory(logger).CreateStore(ctx, backend.Config{
		Type:         backend.Type(backendType),
		LedgerFile:   ledgerFile,
		SQLiteDBPath: dbPath,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	svc := ledger.New(store.Store, ledger.WithLogger(logger))
	res, err := svc.Load(ctx)
	if err != nil {
		return err
	}

	d, err := svc.Dashboard(ctx, month, category)
	if err != nil {
		return err
	}
	monthly := d.Monthly
	if net {
		monthly = svc.MonthlyNet(svc.Transactions())
	}
	return render(out, d, monthly, res.Dropped)
}

func render(out io.Writer, d core.Dashboard, monthly []core.MonthAmount, dropped int) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintf(out, "Month: %s  Category: %s  Transactions: %d\n", d.Month, d.Category, d.Count)
	if dropped > 0 {
		fmt.Fprintf(out, "(%d unreadable rows skipped)\n", dropped)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(tw, "Income\t%s\t\n", core.FormatAmount(d.Summary.Income))
	fmt.Fprintf(tw, "Expense\t%s\t\n", core.FormatAmount(d.Summary.Expense))
	fmt.Fprintf(tw, "Balance\t%s\t\n", core.FormatAmount(d.Summary.Balance))
	if err := tw.Flush(); err != nil {
		return err
	}

	section(out, "Expenses by category")
	if len(d.Breakdown) == 0 {
		fmt.Fprintln(out, "no expenses")
	}
	for _, ca := range d.Breakdown {
		fmt.Fprintf(tw, "%s\t%s\t\n", ca.Category, core.FormatAmount(ca.Amount))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	section(out, "Monthly")
	if len(monthly) == 0 {
		fmt.Fprintln(out, "no data")
	}
	for _, ma := range monthly {
		fmt.Fprintf(tw, "%s\t%s\t\n", ma.Month, core.FormatAmount(ma.Amount))
	}
	return tw.Flush()
}

func section(out io.Writer, title string) {
	fmt.Fprintf(out, "\n%s\n%s\n", title, strings.Repeat("-", len(title)))
}

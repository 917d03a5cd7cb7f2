package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/GiGurra/boa/pkg/boa"

	"casheye/internal/backend"
	"casheye/internal/cli"
	"casheye/internal/config"
	"casheye/internal/core"
	"casheye/internal/ledger"
	"casheye/internal/log"
	"casheye/internal/report"
	"casheye/internal/services"
)

type Params struct {
	Action          string `descr:"What to do" positional:"true" alts:"import,export,report,xlsx,rules,recurring" strict:"true"`
	File            string `descr:"Input file (import, rules) or output file (export, xlsx)" optional:"true"`
	DB              string `descr:"SQLite database path, overrides SQLITE_DB_PATH" optional:"true"`
	Period          string `descr:"Restrict export and report to one month (YYYY-MM)" optional:"true"`
	AllowDuplicates bool   `descr:"Import every parsed line without de-duplication" optional:"true"`
	Verbose         bool   `descr:"Log at debug level" optional:"true"`
}

func main() {
	boa.NewCmdT[Params]("ledgerctl").
		WithShort("Manage the casheye receipt ledger from the command line").
		WithLong("Imports delimited or JSON receipt text, exports the ledger, prints the monthly and category analysis, writes it to an xlsx workbook, seeds recurring rules from YAML and projects them into the ledger.").
		WithRunFunc(func(params *Params) {
			if err := run(context.Background(), params); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}).
		Run()
}

func run(ctx context.Context, p *Params) error {
	cli.LoadEnvFile()
	logCfg := log.DefaultConfig()
	logCfg.Output = os.Stderr
	logCfg.Level = log.LevelFromString(os.Getenv("LOG_LEVEL"))
	if p.Verbose {
		logCfg.Level = log.LevelFromString("debug")
	}
	logger := log.New(logCfg)

	cfg := config.Load()
	if p.DB != "" {
		cfg.DataBackend = string(backend.SQLiteBackend)
		cfg.SQLiteDBPath = p.DB
	}
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	// The CLI never scans receipts.
	bcfg.OCR.APIKey = ""

	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return err
	}
	defer res.Close()
	svc := res.Service

	lines := func() ([]core.ReceiptLine, error) {
		all, err := svc.Ledger(ctx)
		if err != nil || p.Period == "" {
			return all, err
		}
		period, err := core.ParsePeriod(p.Period)
		if err != nil {
			return nil, err
		}
		return report.FilterPeriod(all, period), nil
	}

	switch p.Action {
	case "import":
		return runImport(ctx, svc, p)
	case "export":
		ls, err := lines()
		if err != nil {
			return err
		}
		return writeOutput(p.File, ledger.Export(ls))
	case "report":
		ls, err := lines()
		if err != nil {
			return err
		}
		for _, t := range svc.Engine().ExportFullAnalysis(ls) {
			fmt.Println(t.Name)
			report.RenderTable(os.Stdout, t)
			fmt.Println()
		}
		return nil
	case "xlsx":
		if p.File == "" {
			return fmt.Errorf("--file is required for xlsx")
		}
		ls, err := lines()
		if err != nil {
			return err
		}
		if err := report.SaveXLSX(p.File, svc.Engine().ExportFullAnalysis(ls)); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", p.File)
		return nil
	case "rules":
		return runRules(ctx, svc, p)
	case "recurring":
		today := core.DateOf(time.Now().In(cfg.Location()))
		added, err := svc.RunRecurring(ctx, today)
		if err != nil {
			return err
		}
		fmt.Printf("Projected %d lines up to %s\n", len(added), today)
		return nil
	}
	return fmt.Errorf("unknown action %q", p.Action)
}

func runImport(ctx context.Context, svc *services.LedgerService, p *Params) error {
	var (
		data []byte
		err  error
	)
	if p.File == "" || p.File == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(p.File)
	}
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	res, err := svc.Import(ctx, string(data), services.ImportOptions{
		AllowDuplicates: p.AllowDuplicates,
		Source:          services.SourceImport,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Parsed %d lines (%s): %d added, %d duplicates, %d skipped\n",
		res.Parsed, res.Strategy, len(res.Added), res.Duplicates, len(res.Skipped))
	for _, s := range res.Skipped {
		fmt.Fprintf(os.Stderr, "  skipped row %d: %s\n", s.Line, s.Reason)
	}
	if len(res.UnknownCategories) > 0 {
		fmt.Fprintf(os.Stderr, "Unknown categories: %s\n", strings.Join(res.UnknownCategories, ", "))
	}
	return nil
}

func runRules(ctx context.Context, svc *services.LedgerService, p *Params) error {
	if p.File != "" {
		f, err := LoadRuleFile(p.File)
		if err != nil {
			return err
		}
		rules, err := f.RecurringRules()
		if err != nil {
			return err
		}
		for _, r := range rules {
			if _, err := svc.PutRule(ctx, r); err != nil {
				return fmt.Errorf("saving rule %s: %w", r.Title, err)
			}
		}
		fmt.Printf("Saved %d rules\n", len(rules))
	}

	rules, err := svc.Rules(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%-36s  %-20s  %10s  %3s  %-7s  %-7s  %s\n", "ID", "TITLE", "AMOUNT", "DAY", "START", "END", "CATEGORY")
	fmt.Println(strings.Repeat("-", 110))
	for _, r := range rules {
		end := "-"
		if r.EndPeriod != nil {
			end = r.EndPeriod.String()
		}
		fmt.Printf("%-36s  %-20s  %10d  %3d  %-7s  %-7s  %s/%s\n",
			r.ID, r.Title, r.Amount, r.DayOfMonth, r.StartPeriod, end, r.MajorCategory, r.MinorCategory)
	}
	return nil
}

func writeOutput(path, content string) error {
	if path == "" || path == "-" {
		_, err := fmt.Print(content)
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
	return nil
}

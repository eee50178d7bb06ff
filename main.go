package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron"
	"github.com/shopspring/decimal"
	"k8s.io/klog"

	"github.com/nonatech-uk/finance/internal/config"
	"github.com/nonatech-uk/finance/internal/csvingest"
	"github.com/nonatech-uk/finance/internal/influxstats"
	"github.com/nonatech-uk/finance/internal/postgresutils"
	"github.com/nonatech-uk/finance/pkg/dedup"
	"github.com/nonatech-uk/finance/pkg/ledger"
)

type Runner interface {
	Run() error
}

var runner Runner

func main() {
	singleRun := flag.Bool("single-run", false, "run the task once (disable cron)")
	configFile := flag.String("config", "./config.yml", "configuration file")
	secretsFile := flag.String("secrets", "./secrets.ejson", "secrets file")
	institution := flag.String("institution", "", "limit scope to one institution")
	account := flag.String("account", "", "limit scope to one account ref")
	from := flag.String("from", "", "scope start date, YYYY-MM-DD inclusive")
	to := flag.String("to", "", "scope end date, YYYY-MM-DD exclusive")
	dryRun := flag.Bool("dry-run", false, "compute and report without writing groups")
	csvFile := flag.String("csv", "", "csv file to import (import-csv task)")
	currency := flag.String("currency", "", "limit active listing to one currency")
	txID := flag.String("tx", "", "transaction id to audit (audit task)")
	help := flag.Bool("help", false, "show command help")

	flag.Parse()

	if *help || flag.NArg() == 0 {
		fmt.Println("transaction dedup pipeline")
		fmt.Println("finance [options] run|reset|stats|active|audit|import-csv")
		flag.PrintDefaults()

		if *help {
			return
		}

		os.Exit(1)
	}

	err := config.ReadConfig(*configFile, *secretsFile)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	scope, err := parseScope(*institution, *account, *from, *to)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	task := flag.Arg(0)

	switch task {
	case "run", "reset", "stats":
		runner = &dedupRunner{
			configFile:  *configFile,
			secretsFile: *secretsFile,
			task:        task,
			scope:       scope,
			dryRun:      *dryRun,
		}
	case "active":
		runner = &activeViewRunner{scope: scope, currency: *currency}
	case "audit":
		if *txID == "" {
			fmt.Println("audit requires -tx")
			os.Exit(1)
		}

		runner = &auditRunner{txID: *txID}
	case "import-csv":
		if *csvFile == "" {
			fmt.Println("import-csv requires -csv")
			os.Exit(1)
		}

		runner, err = csvingest.NewImportCSVRunner(*csvFile, *account)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	default:
		fmt.Printf("Unknown task %s\n", task)
		os.Exit(1)
	}

	err = run()

	if *singleRun || task != "run" {
		if err != nil {
			os.Exit(1)
		}

		return
	}

	c := cron.New()
	c.AddFunc(config.CurrentConfig().UpdateFrequency, func() { run() })

	c.Start()

	select {}
}

func run() error {
	fmt.Println(time.Now().Format(time.RFC850))

	err := runner.Run()
	if err != nil {
		fmt.Println(err)
	}

	return err
}

func parseScope(institution, account, from, to string) (dedup.Scope, error) {
	scope := dedup.Scope{
		Institution: institution,
		AccountRef:  account,
	}

	var err error

	if from != "" {
		scope.From, err = time.Parse("2006-01-02", from)
		if err != nil {
			return scope, fmt.Errorf("invalid -from date: %w", err)
		}
	}

	if to != "" {
		scope.To, err = time.Parse("2006-01-02", to)
		if err != nil {
			return scope, fmt.Errorf("invalid -to date: %w", err)
		}
	}

	return scope, nil
}

// activeViewRunner lists the deduplicated projection — what downstream
// reporting sees.
type activeViewRunner struct {
	scope    dedup.Scope
	currency string
}

func (r *activeViewRunner) Run() error {
	db, err := postgresutils.CreatePostgresClient(config.CurrentSQLConfig().FinanceDatabase)
	if err != nil {
		return fmt.Errorf("Error connecting to postgres DB: %s", err)
	}
	defer db.Close()

	txns, err := ledger.ActiveTransactions(context.Background(), db, ledger.ActiveFilter{
		Institution: r.scope.Institution,
		AccountRef:  r.scope.AccountRef,
		Currency:    r.currency,
		From:        r.scope.From,
		To:          r.scope.To,
	})
	if err != nil {
		return err
	}

	sum := decimal.Zero

	for _, t := range txns {
		fmt.Printf("%s  %-22s %-12s %10s %s  %s\n",
			t.PostedAt.Format("2006-01-02"), t.Source, t.AccountRef,
			t.Amount.StringFixed(2), t.Currency, t.RawMerchant)
		sum = sum.Add(t.Amount)
	}

	fmt.Printf("\n  %d active transactions, sum %s\n", len(txns), sum.StringFixed(2))

	return nil
}

// auditRunner explains one transaction's dedup decision: the rule that grouped
// it and every member with its preferred flag.
type auditRunner struct {
	txID string
}

func (r *auditRunner) Run() error {
	id, err := uuid.Parse(r.txID)
	if err != nil {
		return fmt.Errorf("invalid transaction id %q: %w", r.txID, err)
	}

	db, err := postgresutils.CreatePostgresClient(config.CurrentSQLConfig().FinanceDatabase)
	if err != nil {
		return fmt.Errorf("Error connecting to postgres DB: %s", err)
	}
	defer db.Close()

	detail, err := ledger.GroupFor(context.Background(), db, id)
	if err != nil {
		return err
	}

	if detail == nil {
		fmt.Println("Transaction is not in any dedup group (active).")
		return nil
	}

	fmt.Printf("Group %s  rule=%s confidence=%s\n", detail.Group.ID, detail.Group.MatchRule, detail.Group.Confidence)

	for _, m := range detail.Members {
		marker := "suppressed"
		if m.IsPreferred {
			marker = "preferred"
		}

		fmt.Printf("  [%s] %s %s %s %s %s\n", marker,
			m.Transaction.ID, m.Transaction.Source,
			m.Transaction.PostedAt.Format("2006-01-02"),
			m.Transaction.Amount.StringFixed(2), m.Transaction.RawMerchant)
	}

	return nil
}

// dedupRunner wires one dedup task end to end. The configuration is re-read on
// every Run so rule changes take effect between scheduled runs without a
// redeploy.
type dedupRunner struct {
	configFile  string
	secretsFile string
	task        string
	scope       dedup.Scope
	dryRun      bool
}

func (r *dedupRunner) Run() error {
	if err := config.ReadConfig(r.configFile, r.secretsFile); err != nil {
		return err
	}

	db, err := postgresutils.CreatePostgresClient(config.CurrentSQLConfig().FinanceDatabase)
	if err != nil {
		return fmt.Errorf("Error connecting to postgres DB: %s", err)
	}
	defer db.Close()

	ctx := context.Background()

	if err := ledger.EnsureSchema(ctx, db); err != nil {
		return err
	}

	pipeline := dedup.New(db, config.CurrentDedupConfig())

	switch r.task {
	case "reset":
		deleted, err := pipeline.Reset(ctx, r.scope)
		if err != nil {
			return err
		}

		fmt.Printf("Deleted %d dedup groups in scope %s\n", deleted, r.scope)

		return nil
	case "stats":
		stats, err := pipeline.Stats(ctx)
		if err != nil {
			return err
		}

		fmt.Println("=== Dedup Statistics ===")
		stats.Report(os.Stdout)

		return nil
	}

	mode := ""
	if r.dryRun {
		mode = "[DRY RUN] "
	}

	fmt.Printf("=== %sDedup Pipeline (scope %s) ===\n", mode, r.scope)

	result, err := pipeline.Run(ctx, r.scope, r.dryRun)
	if err != nil {
		return err
	}

	fmt.Printf("  Transactions in scope:  %d\n", result.Transactions)
	fmt.Printf("  Groups created:         %d\n", result.GroupsCreated)
	fmt.Printf("  Transactions grouped:   %d\n", result.TransactionsGrouped)

	for _, rule := range []string{
		ledger.RuleSourceSuperseded,
		ledger.RuleDeclined,
		ledger.RuleSameSourceDuplicate,
		ledger.RuleCrossSourcePositional,
	} {
		fmt.Printf("    %-30s %5d groups\n", rule, result.GroupsByRule[rule])
	}

	if r.dryRun {
		return nil
	}

	stats, err := pipeline.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Println("\n=== Post-run state ===")
	stats.Report(os.Stdout)

	if influxstats.Enabled() {
		client, err := influxstats.CreateInfluxClient()
		if err != nil {
			klog.Warningf("failed to create influx client: %v", err)
			return nil
		}
		defer client.Close()

		if err := influxstats.WriteRunStats(client, result, stats); err != nil {
			klog.Warningf("failed to write run stats to influx: %v", err)
		}
	}

	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/smartcash-reconciler/internal/api"
	"github.com/eshaffer321/smartcash-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/smartcash-reconciler/internal/cli"
	"github.com/eshaffer321/smartcash-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/smartcash-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/smartcash-reconciler/internal/infrastructure/metrics"
	"github.com/eshaffer321/smartcash-reconciler/internal/infrastructure/storage"
)

const usage = `usage: ledger <command> [flags]

commands:
  verify                  walk the hash chain and report the first breach
  list [-newest-first]    print ledger entries
  append -type T -invoice ID -amount A -operator NAME
                          record a MANUAL_OVERRIDE or DISPUTE
  runs [-limit N]         print reconciliation run history
  serve [-addr :9090]     serve health, metrics, ledger and runs over HTTP`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	_ = godotenv.Load()

	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	command := args[0]
	switch command {
	case "verify", "list", "append", "runs", "serve":
	default:
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}

	flags, err := cli.ParseLedgerFlags(command, args[1:], os.Stderr)
	if err != nil {
		return 2
	}

	cfg, err := cli.LoadConfig(flags.ConfigPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger := cli.NewLogger(cfg, flags.Verbose, "ledger")

	ctx, cancel := cli.SignalContext()
	defer cancel()

	store, err := cli.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	m := metrics.New(prometheus.NewRegistry())
	chain := ledger.NewChain(store, ledger.WithLogger(logger))
	runs, _ := store.(storage.RunRepository)
	svc := reconcile.NewService(
		matcher.NewMatcher(cfg.Matching.MatcherConfig(), nil, logger),
		chain,
		reconcile.Options{Runs: runs, Metrics: m, Logger: logger, Operator: cfg.Ledger.Operator},
	)

	switch command {
	case "verify":
		return verify(ctx, svc)
	case "list":
		return list(ctx, chain, flags)
	case "append":
		return appendEvent(ctx, svc, flags)
	case "serve":
		deps := api.Deps{Ledger: chain, Verifier: svc, Runs: runs, Metrics: m.Handler()}
		if err := cli.ServeOps(ctx, flags.Addr, deps, logger); err != nil {
			logger.Error("Server error", "error", err)
			return 1
		}
		return 0
	default:
		return listRuns(ctx, runs, flags.Limit)
	}
}

func verify(ctx context.Context, svc *reconcile.Service) int {
	report, err := svc.VerifyLedger(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify: %v\n", err)
		return 1
	}
	cli.PrintReport(os.Stdout, report)
	if !report.Valid {
		return 3
	}
	return 0
}

func list(ctx context.Context, chain *ledger.Chain, flags cli.LedgerFlags) int {
	var (
		entries []ledger.Entry
		err     error
	)
	if flags.NewestFirst {
		entries, err = chain.GetAllNewestFirst(ctx)
	} else {
		entries, err = chain.GetAll(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "list: %v\n", err)
		return 1
	}
	if flags.Limit > 0 && len(entries) > flags.Limit {
		entries = entries[:flags.Limit]
	}
	if err := cli.PrintEntries(os.Stdout, entries, flags.JSON); err != nil {
		fmt.Fprintf(os.Stderr, "list: %v\n", err)
		return 1
	}
	return 0
}

func appendEvent(ctx context.Context, svc *reconcile.Service, flags cli.LedgerFlags) int {
	eventType := ledger.EventType(strings.ToUpper(strings.TrimSpace(flags.EventType)))
	if eventType != ledger.EventManualOverride && eventType != ledger.EventDispute {
		fmt.Fprintf(os.Stderr, "append: -type must be %s or %s\n", ledger.EventManualOverride, ledger.EventDispute)
		return 2
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(flags.Amount))
	if err != nil {
		fmt.Fprintf(os.Stderr, "append: invalid amount %q\n", flags.Amount)
		return 2
	}

	record := svc.RecordOverride
	if eventType == ledger.EventDispute {
		record = svc.RecordDispute
	}
	entry, err := record(ctx, flags.SubjectID, amount, flags.Operator)
	if errors.Is(err, reconcile.ErrSubjectRequired) || errors.Is(err, reconcile.ErrOperatorRequired) {
		fmt.Fprintf(os.Stderr, "append: %v\n", err)
		return 2
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "append: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stdout, "Committed %s for %s: %s\n", entry.EventType, entry.SubjectID, entry.PayloadHash)
	return 0
}

func listRuns(ctx context.Context, runs storage.RunRepository, limit int) int {
	if runs == nil {
		fmt.Fprintln(os.Stderr, "runs: the configured storage driver does not keep run history")
		return 1
	}
	history, err := runs.ListRuns(ctx, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "runs: %v\n", err)
		return 1
	}
	cli.PrintRuns(os.Stdout, history)
	return 0
}

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/eshaffer321/smartcash-reconciler/internal/adapters/bankfeed"
	"github.com/eshaffer321/smartcash-reconciler/internal/adapters/erp"
	"github.com/eshaffer321/smartcash-reconciler/internal/api"
	"github.com/eshaffer321/smartcash-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/smartcash-reconciler/internal/cli"
	"github.com/eshaffer321/smartcash-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/smartcash-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/smartcash-reconciler/internal/infrastructure/metrics"
	"github.com/eshaffer321/smartcash-reconciler/internal/infrastructure/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	// .env is optional; the environment may already be set
	_ = godotenv.Load()

	flags, err := cli.ParseReconcileFlags(os.Args[1:], os.Stderr)
	if err != nil {
		return 2
	}
	if flags.BankFeed == "" || flags.Invoices == "" {
		fmt.Fprintln(os.Stderr, "usage: reconcile -bank <statement.xml|bank.csv> -invoices <invoices.csv> [-dry-run]")
		return 2
	}

	cfg, err := cli.LoadConfig(flags.ConfigPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger := cli.NewLogger(cfg, flags.Verbose, "reconcile")

	ctx, cancel := cli.SignalContext()
	defer cancel()

	store, err := cli.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", slog.String("error", err.Error()))
		return 1
	}
	defer func() { _ = store.Close() }()

	resolver, loader, err := cli.LoadAliases(cfg, logger)
	if err != nil {
		logger.Error("Failed to load aliases", slog.String("error", err.Error()))
		return 1
	}

	if flags.Watch && loader == nil {
		logger.Warn("-watch has no effect without aliases.file configured")
	}

	m := metrics.New(prometheus.NewRegistry())
	runs, _ := store.(storage.RunRepository)
	chain := ledger.NewChain(store, ledger.WithLogger(cli.NewLogger(cfg, flags.Verbose, "ledger")))
	svc := reconcile.NewService(
		matcher.NewMatcher(cfg.Matching.MatcherConfig(), resolver, cli.NewLogger(cfg, flags.Verbose, "matcher")),
		chain,
		reconcile.Options{
			Runs:     runs,
			Metrics:  m,
			Logger:   logger,
			Operator: cfg.Ledger.Operator,
		},
	)

	opsDone := make(chan struct{})
	if addr := cfg.Observability.Metrics.Addr; addr != "" {
		deps := api.Deps{Ledger: chain, Verifier: svc, Runs: runs, Metrics: m.Handler()}
		go func() {
			defer close(opsDone)
			if err := cli.ServeOps(ctx, addr, deps, cli.NewLogger(cfg, flags.Verbose, "api")); err != nil {
				logger.Error("Operations server failed", slog.String("error", err.Error()))
			}
		}()
	} else {
		close(opsDone)
	}

	entries, err := bankfeed.ParseFile(flags.BankFeed)
	if err != nil {
		logger.Error("Failed to read bank feed", slog.String("file", flags.BankFeed), slog.String("error", err.Error()))
		return 1
	}
	payments := bankfeed.Payments(entries, flags.IncludePending)
	logger.Debug("Parsed bank feed", "entries", len(entries), "payments", len(payments))

	records, err := erp.LoadInvoices(flags.Invoices)
	if err != nil {
		logger.Error("Failed to read invoices", slog.String("file", flags.Invoices), slog.String("error", err.Error()))
		return 1
	}

	cli.PrintHeader(os.Stdout, "reconcile", flags.DryRun)

	result, err := svc.ReconcileBatch(ctx, reconcile.BatchRequest{
		Source:   filepath.Base(flags.BankFeed),
		Payments: payments,
		Invoices: records,
		DryRun:   flags.DryRun,
	})
	if result == nil {
		logger.Error("Reconciliation failed", slog.String("error", err.Error()))
		return 1
	}

	cli.PrintOutcomes(os.Stdout, result)
	cli.PrintSummary(os.Stdout, result, flags.DryRun)

	if flags.Watch && loader != nil && err == nil {
		// Review and unmatched payments are re-scored on every alias reload
		wait := cli.RematchOnReload(ctx, loader, svc, result, os.Stdout, logger)
		stop, watchErr := loader.Watch()
		if watchErr != nil {
			logger.Error("Failed to watch alias file", slog.String("error", watchErr.Error()))
			cancel()
			<-opsDone
			return 1
		}
		logger.Info("Watching for alias changes, press Ctrl+C to exit")
		<-ctx.Done()
		stop()
		wait()
	}
	cancel()
	<-opsDone

	if err != nil || result.Stats.Errors > 0 {
		return 1
	}
	return 0
}

package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/smartcash-reconciler/internal/api"
	"github.com/eshaffer321/smartcash-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/smartcash-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/smartcash-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/smartcash-reconciler/internal/infrastructure/config"
	"github.com/eshaffer321/smartcash-reconciler/internal/infrastructure/metrics"
	"github.com/eshaffer321/smartcash-reconciler/internal/infrastructure/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseReconcileFlags(t *testing.T) {
	flags, err := ParseReconcileFlags([]string{"-bank", "stmt.xml", "-invoices", "inv.csv", "-dry-run"}, io.Discard)

	require.NoError(t, err)
	assert.Equal(t, "stmt.xml", flags.BankFeed)
	assert.Equal(t, "inv.csv", flags.Invoices)
	assert.True(t, flags.DryRun)
	assert.Equal(t, "config.yaml", flags.ConfigPath)

	_, err = ParseReconcileFlags([]string{"-nope"}, io.Discard)
	assert.Error(t, err)
}

func TestParseLedgerFlags_PerCommand(t *testing.T) {
	list, err := ParseLedgerFlags("list", []string{"-newest-first", "-limit", "5"}, io.Discard)
	require.NoError(t, err)
	assert.True(t, list.NewestFirst)
	assert.Equal(t, 5, list.Limit)

	app, err := ParseLedgerFlags("append", []string{"-type", "DISPUTE", "-invoice", "INV-1", "-operator", "j.doe"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "DISPUTE", app.EventType)
	assert.Equal(t, "0", app.Amount)

	serve, err := ParseLedgerFlags("serve", nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, ":9090", serve.Addr)

	// append flags are not accepted by verify
	_, err = ParseLedgerFlags("verify", []string{"-type", "DISPUTE"}, io.Discard)
	assert.Error(t, err)
}

func TestStorageOptions(t *testing.T) {
	opts := StorageOptions(config.StorageConfig{
		Driver: "redis",
		Redis:  config.RedisConfig{Addr: "localhost:6379", DB: 2, Key: "k"},
	}, nil)

	assert.Equal(t, storage.BackendRedis, opts.Backend)
	assert.Equal(t, "localhost:6379", opts.Redis.Addr)
	assert.Equal(t, 2, opts.Redis.DB)
	assert.Equal(t, "k", opts.Redis.Key)
}

func TestOpenStore_Memory(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = storage.BackendMemory

	store, err := OpenStore(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.(storage.RunRepository)
	assert.True(t, ok)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("matching: [\n"), 0o644))
	_, err = LoadConfig(bad)
	assert.ErrorContains(t, err, "load configuration")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("storage:\n  driver: mongo\n"), 0o644))
	_, err = LoadConfig(invalid)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestLoadAliases(t *testing.T) {
	cfg := config.Default()
	cfg.Aliases.Table = map[string]string{"tsla": "tesla inc"}

	resolver, loader, err := LoadAliases(cfg, discardLogger())
	require.NoError(t, err)
	assert.Nil(t, loader)
	assert.Equal(t, "tesla inc", resolver.Resolve("TSLA"))

	path := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("aliases:\n  gb tax free: global blue se\n"), 0o644))
	cfg.Aliases.File = path

	resolver, loader, err = LoadAliases(cfg, discardLogger())
	require.NoError(t, err)
	require.NotNil(t, loader)
	assert.Equal(t, "global blue se", resolver.Resolve("GB Tax Free"))
	assert.Equal(t, "tesla inc", resolver.Resolve("tsla"), "inline table is merged under the file")

	cfg.Aliases.File = filepath.Join(t.TempDir(), "missing.yaml")
	_, _, err = LoadAliases(cfg, discardLogger())
	assert.Error(t, err)
}

func TestPrintSummaryAndOutcomes(t *testing.T) {
	p := matcher.NewPayment(decimal.RequireFromString("50000"), "USD", "Tesla Motors")
	p.BankRef = "TX-1"
	result := &reconcile.BatchResult{
		RunID: "run-1",
		Outcomes: []reconcile.Outcome{{
			Payment: p,
			Status:  metrics.OutcomeAutoPosted,
			Candidates: []matcher.MatchCandidate{
				{InvoiceID: "INV-001", Confidence: 1, Tier: matcher.TierAutoPost},
			},
		}},
		Stats: storage.RunStats{Payments: 1, AutoPosted: 1},
	}

	var buf bytes.Buffer
	PrintOutcomes(&buf, result)
	PrintSummary(&buf, result, true)

	out := buf.String()
	assert.Contains(t, out, "50000.00")
	assert.Contains(t, out, "INV-001 (1.0000 STP: Auto-Match)")
	assert.Contains(t, out, "Summary: Payments=1 AutoPosted=1 Review=0 Unmatched=0 Errors=0")
	assert.Contains(t, out, "Dry run: no ledger entries were written.")
}

func TestRematchOnReload(t *testing.T) {
	// Arrange
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("aliases:\n  gb tax free: global blue se\n"), 0o644))
	cfg := config.Default()
	cfg.Aliases.File = path
	resolver, loader, err := LoadAliases(cfg, discardLogger())
	require.NoError(t, err)
	require.NotNil(t, loader)

	store := storage.NewMemoryStore()
	chain := ledger.NewChain(store, ledger.WithLogger(discardLogger()))
	svc := reconcile.NewService(matcher.NewMatcher(matcher.DefaultConfig(), resolver, discardLogger()), chain, reconcile.Options{
		Runs:   store,
		Logger: discardLogger(),
	})
	p := matcher.NewPayment(decimal.RequireFromString("50000.00"), "USD", "Zeta Payments")
	p.BankRef = "TX-1"
	result, err := svc.ReconcileBatch(ctx, reconcile.BatchRequest{
		Payments: []matcher.Payment{p},
		Invoices: []matcher.Record{
			{"Invoice_ID": "INV-001", "Customer": "Tesla Inc", "Amount": "50000.00", "Currency": "USD", "Status": "Open"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 0, result.Stats.AutoPosted)

	var buf bytes.Buffer
	wait := RematchOnReload(ctx, loader, svc, result, &buf, discardLogger())

	// Act
	require.NoError(t, os.WriteFile(path, []byte("aliases:\n  zeta payments: tesla inc\n"), 0o644))
	_, err = loader.Reload()
	require.NoError(t, err)
	wait()

	// Assert
	out := buf.String()
	assert.Contains(t, out, "Alias reload: 1 outcome(s) changed")
	assert.Contains(t, out, "INV-001")
	assert.Contains(t, out, "Now: AutoPosted=1 Review=0 Unmatched=0 Errors=0")
	assert.Equal(t, 1, result.Stats.AutoPosted)

	entries, err := chain.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "INV-001", entries[0].SubjectID)

	// A second reload with nothing left to gain reports no change
	buf.Reset()
	_, err = loader.Reload()
	require.NoError(t, err)
	wait()
	assert.Equal(t, "Alias reload: no outcome changed\n", buf.String())
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, ledger.IntegrityReport{Valid: true, Detail: "Chain verified: 3 entries"})
	PrintReport(&buf, ledger.IntegrityReport{Detail: "Integrity Breach at row 1", Reason: ledger.BreachPayload, Entries: 3})

	assert.Contains(t, buf.String(), "OK   Chain verified: 3 entries")
	assert.Contains(t, buf.String(), "FAIL Integrity Breach at row 1 (payload_hash mismatch, 3 entries)")
}

func TestPrintEntries(t *testing.T) {
	entries := []ledger.Entry{{
		Timestamp:    time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		EventType:    ledger.EventAutoSTP,
		SubjectID:    "INV-001",
		Operator:     ledger.SystemOperator,
		Amount:       decimal.RequireFromString("45000"),
		PayloadHash:  "abcdef0123456789",
		PreviousHash: ledger.GenesisHash,
	}}

	var table bytes.Buffer
	require.NoError(t, PrintEntries(&table, entries, false))
	assert.Contains(t, table.String(), "AUTO_STP")
	assert.Contains(t, table.String(), "45000.00")
	assert.Contains(t, table.String(), "abcdef012345")
	assert.Contains(t, table.String(), "1 entries")

	var js bytes.Buffer
	require.NoError(t, PrintEntries(&js, entries, true))
	assert.Contains(t, js.String(), `"Event_Type": "AUTO_STP"`)
}

func TestServeOps_StopsOnCancel(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- ServeOps(ctx, "127.0.0.1:0", api.Deps{Runs: store}, discardLogger())
	}()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ServeOps did not return after cancel")
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "Global ...", truncate("Global Blue SE", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}

package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/smartcash-reconciler/internal/domain/alias"
	"github.com/eshaffer321/smartcash-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/smartcash-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/smartcash-reconciler/internal/infrastructure/metrics"
	"github.com/eshaffer321/smartcash-reconciler/internal/infrastructure/storage"
)

type fixture struct {
	svc     *Service
	store   *storage.MemoryStore
	chain   *ledger.Chain
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := alias.NewResolver(map[string]string{
		"tsla motors gmbh": "tesla inc",
		"GB Tax Free":      "Global Blue SE",
	})
	store := storage.NewMemoryStore()
	chain := ledger.NewChain(store, ledger.WithLogger(logger))
	m := metrics.New(prometheus.NewRegistry())

	svc := NewService(matcher.NewMatcher(matcher.DefaultConfig(), resolver, logger), chain, Options{
		Runs:    store,
		Metrics: m,
		Logger:  logger,
	})
	return &fixture{svc: svc, store: store, chain: chain, metrics: m}
}

func invoiceSet() []matcher.Invoice {
	return []matcher.Invoice{
		{ID: "INV-001", CustomerName: "Tesla Inc", Amount: "50000.00", Currency: "USD", Status: "Open"},
		{ID: "INV-002", CustomerName: "Global Blue SE", Amount: "1500.00", Currency: "EUR", Status: "Open"},
		{ID: "INV-003", CustomerName: "Saurabh Soft", Amount: "2500.00", Currency: "USD", Status: "Paid"},
	}
}

func invoiceRecords() []matcher.Record {
	var records []matcher.Record
	for _, inv := range invoiceSet() {
		records = append(records, matcher.Record{
			"Invoice_ID": inv.ID,
			"Customer":   inv.CustomerName,
			"Amount":     inv.Amount,
			"Currency":   inv.Currency,
			"Status":     inv.Status,
		})
	}
	return records
}

func pay(ref, amount, currency, payer string) matcher.Payment {
	p := matcher.NewPayment(decimal.RequireFromString(amount), currency, payer)
	p.BankRef = ref
	return p
}

func TestReconcile_AutoPostCommitsLedgerEntry(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()

	// Act
	out, err := f.svc.Reconcile(ctx, pay("TX-1", "50000.00", "USD", "tsla motors gmbh"), invoiceSet())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeAutoPosted, out.Status)
	require.NotNil(t, out.Entry)
	assert.Equal(t, ledger.EventAutoSTP, out.Entry.EventType)
	assert.Equal(t, "INV-001", out.Entry.SubjectID)
	assert.Equal(t, ledger.SystemOperator, out.Entry.Operator)
	assert.True(t, decimal.RequireFromString("50000").Equal(out.Entry.Amount))
	assert.Equal(t, ledger.GenesisHash, out.Entry.PreviousHash)

	entries, err := f.chain.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, out.Entry.PayloadHash, entries[0].PayloadHash)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Payments.WithLabelValues(metrics.OutcomeAutoPosted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LedgerAppends.WithLabelValues("AUTO_STP", "ok")))
}

func TestReconcile_ReviewAndUnmatchedDoNotWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	review, err := f.svc.Reconcile(ctx, pay("TX-2", "49985.00", "USD", "Tesla Inc"), invoiceSet())
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeReview, review.Status)
	assert.Nil(t, review.Entry)
	require.NotNil(t, review.Top())
	assert.Equal(t, matcher.TierHighConfidenceReview, review.Top().Tier)

	none, err := f.svc.Reconcile(ctx, pay("TX-3", "12.34", "JPY", "Nobody Known"), invoiceSet())
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeUnmatched, none.Status)
	assert.Nil(t, none.Top())

	entries, err := f.chain.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReconcile_InvalidPayment(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.Reconcile(context.Background(), matcher.Payment{Currency: "USD", PayerName: "Tesla"}, invoiceSet())

	require.Error(t, err)
	assert.True(t, errors.Is(err, matcher.ErrInvalidInput))
	assert.Equal(t, metrics.OutcomeInvalid, out.Status)
}

func TestReconcile_StoreFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.store.AppendErr = ledger.ErrStoreUnavailable

	out, err := f.svc.Reconcile(context.Background(), pay("TX-1", "50000.00", "USD", "tsla motors gmbh"), invoiceSet())

	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrStoreUnavailable)
	assert.Equal(t, metrics.OutcomeError, out.Status)
	assert.Nil(t, out.Entry)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LedgerAppends.WithLabelValues("AUTO_STP", "error")))
}

func TestReconcileBatch(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()
	payments := []matcher.Payment{
		pay("TX-1", "50000.00", "USD", "tsla motors gmbh"),
		pay("TX-2", "1500.00", "EUR", "GB Tax Free"),
		pay("TX-3", "50000.00", "USD", "Tesla Inc"), // INV-001 already settled in this batch
		{BankRef: "TX-4", Currency: "USD", PayerName: "Broken Amount"},
	}

	// Act
	res, err := f.svc.ReconcileBatch(ctx, BatchRequest{
		Source:   "statement.xml",
		Payments: payments,
		Invoices: invoiceRecords(),
	})

	// Assert
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 4)
	assert.Equal(t, metrics.OutcomeAutoPosted, res.Outcomes[0].Status)
	assert.Equal(t, metrics.OutcomeAutoPosted, res.Outcomes[1].Status)
	assert.Equal(t, "INV-002", res.Outcomes[1].Top().InvoiceID)
	assert.Equal(t, metrics.OutcomeUnmatched, res.Outcomes[2].Status)
	assert.Equal(t, metrics.OutcomeInvalid, res.Outcomes[3].Status)

	assert.Equal(t, storage.RunStats{Payments: 4, AutoPosted: 2, Unmatched: 1, Errors: 1}, res.Stats)

	run, err := f.store.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunStatusCompleted, run.Status)
	assert.Equal(t, "statement.xml", run.Source)
	assert.Equal(t, res.Stats, run.RunStats)
	assert.NotNil(t, run.CompletedAt)

	report, err := f.svc.VerifyLedger(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 2, report.Entries)
}

func TestReconcileBatch_PaddedInvoiceIDPostedOnce(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()
	records := []matcher.Record{
		{"Invoice_ID": " INV-1", "Customer": "Acme Corp", "Amount": "100.00", "Currency": "USD", "Status": "Open"},
	}

	// Act
	res, err := f.svc.ReconcileBatch(ctx, BatchRequest{
		Payments: []matcher.Payment{
			pay("TX-1", "100.00", "USD", "Acme Corp"),
			pay("TX-2", "100.00", "USD", "Acme Corp"),
		},
		Invoices: records,
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.AutoPosted)
	assert.Equal(t, metrics.OutcomeAutoPosted, res.Outcomes[0].Status)
	assert.Equal(t, metrics.OutcomeUnmatched, res.Outcomes[1].Status)

	entries, err := f.chain.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "INV-1", entries[0].SubjectID)
}

func TestReconcileBatch_DryRunSkipsLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.ReconcileBatch(ctx, BatchRequest{
		Payments: []matcher.Payment{pay("TX-1", "50000.00", "USD", "tsla motors gmbh")},
		Invoices: invoiceRecords(),
		DryRun:   true,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.AutoPosted)
	assert.Nil(t, res.Outcomes[0].Entry)

	entries, err := f.chain.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	run, err := f.store.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.True(t, run.DryRun)
}

func TestReconcileBatch_SchemaError(t *testing.T) {
	f := newFixture(t)

	records := []matcher.Record{{"Invoice_ID": "INV-1", "Customer": "Acme", "Amount": "10.00"}}
	_, err := f.svc.ReconcileBatch(context.Background(), BatchRequest{
		Payments: []matcher.Payment{pay("TX-1", "10.00", "USD", "Acme")},
		Invoices: records,
	})

	assert.ErrorIs(t, err, ErrInvoiceSchema)
	runs, err := f.store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs, "no run is recorded for a rejected feed")
}

func TestReconcileBatch_StartRunFailure(t *testing.T) {
	f := newFixture(t)
	f.store.StartRunErr = errors.New("locked")

	_, err := f.svc.ReconcileBatch(context.Background(), BatchRequest{Invoices: invoiceRecords()})
	assert.ErrorContains(t, err, "locked")
}

func TestReconcileBatch_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.svc.ReconcileBatch(ctx, BatchRequest{
		Payments: []matcher.Payment{pay("TX-1", "50000.00", "USD", "tsla motors gmbh")},
		Invoices: invoiceRecords(),
	})

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Outcomes)

	run, getErr := f.store.GetRun(context.Background(), res.RunID)
	require.NoError(t, getErr)
	assert.Equal(t, storage.RunStatusCompleted, run.Status)
}

func TestRecordOverrideAndDispute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	override, err := f.svc.RecordOverride(ctx, "INV-002", decimal.RequireFromString("1485.00"), "j.doe")
	require.NoError(t, err)
	assert.Equal(t, ledger.EventManualOverride, override.EventType)
	assert.Equal(t, "j.doe", override.Operator)

	dispute, err := f.svc.RecordDispute(ctx, "INV-003", decimal.Zero, "a.smith")
	require.NoError(t, err)
	assert.Equal(t, ledger.EventDispute, dispute.EventType)
	assert.Equal(t, override.PayloadHash, dispute.PreviousHash)

	newest, err := f.chain.GetAllNewestFirst(ctx)
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, ledger.EventDispute, newest[0].EventType)
}

func TestRecordManual_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RecordOverride(ctx, "INV-1", decimal.Zero, "  ")
	assert.ErrorIs(t, err, ErrOperatorRequired)

	_, err = f.svc.RecordDispute(ctx, "", decimal.Zero, "j.doe")
	assert.ErrorIs(t, err, ErrSubjectRequired)

	entries, err := f.chain.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestVerifyLedger_ReportsBreach(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RecordOverride(ctx, "INV-1", decimal.RequireFromString("10"), "j.doe")
	require.NoError(t, err)
	_, err = f.svc.RecordOverride(ctx, "INV-2", decimal.RequireFromString("20"), "j.doe")
	require.NoError(t, err)

	f.store.Mutate(1, func(e *ledger.Entry) { e.Amount = decimal.RequireFromString("2000") })

	report, err := f.svc.VerifyLedger(ctx)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, 1, report.BreachRow)
	assert.Equal(t, "Integrity Breach at row 1", report.Detail)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IntegrityChecks.WithLabelValues("breach")))
}

func TestSwapResolver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payment := pay("TX-9", "50000.00", "USD", "Zeta Payments")

	before, err := f.svc.Reconcile(ctx, payment, invoiceSet())
	require.NoError(t, err)
	assert.NotEqual(t, metrics.OutcomeAutoPosted, before.Status)

	f.svc.SwapResolver(alias.NewResolver(map[string]string{"zeta payments": "tesla inc"}))

	after, err := f.svc.Reconcile(ctx, payment, invoiceSet())
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeAutoPosted, after.Status)
	assert.Equal(t, matcher.DefaultConfig(), f.svc.currentMatcher().Config())
}

func TestRematch_AutoPostsAfterAliasSwap(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.ReconcileBatch(ctx, BatchRequest{
		Payments: []matcher.Payment{
			pay("TX-1", "50000.00", "USD", "Zeta Payments"),
			pay("TX-2", "1500.00", "EUR", "GB Tax Free"),
		},
		Invoices: invoiceRecords(),
	})
	require.NoError(t, err)
	require.Contains(t, []string{metrics.OutcomeReview, metrics.OutcomeUnmatched}, res.Outcomes[0].Status)
	require.Equal(t, metrics.OutcomeAutoPosted, res.Outcomes[1].Status)

	// Act
	f.svc.SwapResolver(alias.NewResolver(map[string]string{"zeta payments": "tesla inc"}))
	changed, err := f.svc.Rematch(ctx, res)

	// Assert
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, "TX-1", changed[0].Payment.BankRef)
	assert.Equal(t, metrics.OutcomeAutoPosted, changed[0].Status)
	assert.Equal(t, "INV-001", changed[0].Top().InvoiceID)
	require.NotNil(t, changed[0].Entry)

	assert.Equal(t, metrics.OutcomeAutoPosted, res.Outcomes[0].Status)
	assert.Equal(t, storage.RunStats{Payments: 2, AutoPosted: 2}, res.Stats)

	run, err := f.store.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.Stats, run.RunStats)

	report, err := f.svc.VerifyLedger(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 2, report.Entries)

	again, err := f.svc.Rematch(ctx, res)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestRematch_PostedInvoiceNotOfferedAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.ReconcileBatch(ctx, BatchRequest{
		Payments: []matcher.Payment{
			pay("TX-1", "50000.00", "USD", "Tesla Inc"),
			pay("TX-2", "50000.00", "USD", "Zeta Payments"),
		},
		Invoices: invoiceRecords(),
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Stats.AutoPosted)

	f.svc.SwapResolver(alias.NewResolver(map[string]string{"zeta payments": "tesla inc"}))
	changed, err := f.svc.Rematch(ctx, res)

	require.NoError(t, err)
	assert.Empty(t, changed)
	assert.Equal(t, 1, res.Stats.AutoPosted)
	entries, err := f.chain.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRematch_DryRunWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.ReconcileBatch(ctx, BatchRequest{
		Payments: []matcher.Payment{pay("TX-1", "50000.00", "USD", "Zeta Payments")},
		Invoices: invoiceRecords(),
		DryRun:   true,
	})
	require.NoError(t, err)

	f.svc.SwapResolver(alias.NewResolver(map[string]string{"zeta payments": "tesla inc"}))
	changed, err := f.svc.Rematch(ctx, res)

	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, metrics.OutcomeAutoPosted, changed[0].Status)
	assert.Nil(t, changed[0].Entry)
	entries, err := f.chain.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

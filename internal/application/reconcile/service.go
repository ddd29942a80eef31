// Package reconcile composes the matcher and the audit ledger: payments are
// scored against open invoices and every decision worth keeping is chained.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/smartcash-reconciler/internal/domain/alias"
	"github.com/eshaffer321/smartcash-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/smartcash-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/smartcash-reconciler/internal/infrastructure/metrics"
	"github.com/eshaffer321/smartcash-reconciler/internal/infrastructure/storage"
)

var (
	// ErrInvoiceSchema is returned when the invoice feed lacks a required column
	ErrInvoiceSchema = errors.New("invoice feed is missing a required column")

	// ErrOperatorRequired is returned when a manual event has no operator
	ErrOperatorRequired = errors.New("operator is required for manual ledger events")

	// ErrSubjectRequired is returned when a manual event has no invoice ID
	ErrSubjectRequired = errors.New("invoice id is required")
)

// Options holds the optional collaborators of a Service
type Options struct {
	Runs     storage.RunRepository // nil disables run history
	Metrics  *metrics.Metrics      // nil disables metrics
	Logger   *slog.Logger
	Operator string // Operator recorded on AUTO_STP entries; defaults to ledger.SystemOperator
}

// Service runs reconciliation and records decisions on the ledger
type Service struct {
	mu      sync.RWMutex
	matcher *matcher.Matcher

	rematchMu sync.Mutex

	chain    *ledger.Chain
	runs     storage.RunRepository
	metrics  *metrics.Metrics
	logger   *slog.Logger
	operator string
}

// NewService creates a reconciliation service
func NewService(m *matcher.Matcher, chain *ledger.Chain, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	operator := strings.TrimSpace(opts.Operator)
	if operator == "" {
		operator = ledger.SystemOperator
	}
	return &Service{
		matcher:  m,
		chain:    chain,
		runs:     opts.Runs,
		metrics:  opts.Metrics,
		logger:   logger,
		operator: operator,
	}
}

// Outcome is what happened to one payment
type Outcome struct {
	Payment    matcher.Payment
	Status     string // one of the metrics.Outcome* values
	Candidates []matcher.MatchCandidate
	Skipped    []matcher.SkippedRow
	Entry      *ledger.Entry // Set when an AUTO_STP entry was committed
	Err        error
}

// Top returns the best candidate, or nil
func (o Outcome) Top() *matcher.MatchCandidate {
	if len(o.Candidates) == 0 {
		return nil
	}
	return &o.Candidates[0]
}

// Reconcile scores one payment and, when the best candidate is AutoPost,
// commits an AUTO_STP entry for it
func (s *Service) Reconcile(ctx context.Context, payment matcher.Payment, invoices []matcher.Invoice) (Outcome, error) {
	out := s.reconcile(ctx, payment, invoices, false)
	return out, out.Err
}

func (s *Service) reconcile(ctx context.Context, payment matcher.Payment, invoices []matcher.Invoice, dryRun bool) Outcome {
	out := Outcome{Payment: payment}

	start := time.Now()
	result, err := s.currentMatcher().Match(payment, invoices)
	if err != nil {
		out.Status = metrics.OutcomeInvalid
		out.Err = err
		s.metrics.ObservePayment(out.Status)
		s.logger.Warn("Payment rejected before matching",
			"bank_ref", payment.BankRef,
			"error", err,
		)
		return out
	}
	s.metrics.ObserveMatch(result, time.Since(start))

	out.Candidates = result.Candidates
	out.Skipped = result.Skipped

	top := result.Top()
	switch {
	case top == nil:
		out.Status = metrics.OutcomeUnmatched
		s.logger.Info("No plausible invoice for payment",
			"bank_ref", payment.BankRef,
			"payer", payment.PayerName,
			"amount", payment.Amount.Decimal.String(),
		)

	case top.Tier == matcher.TierAutoPost:
		out.Status = metrics.OutcomeAutoPosted
		if dryRun {
			s.logger.Info("[DRY RUN] Would auto-post payment",
				"bank_ref", payment.BankRef,
				"invoice_id", top.InvoiceID,
				"confidence", top.Confidence,
			)
			break
		}
		entry, err := s.append(ctx, ledger.Event{
			Type:      ledger.EventAutoSTP,
			SubjectID: top.InvoiceID,
			Amount:    payment.Amount.Decimal,
			Operator:  s.operator,
		})
		if err != nil {
			out.Status = metrics.OutcomeError
			out.Err = fmt.Errorf("auto-post %s: %w", top.InvoiceID, err)
			break
		}
		out.Entry = &entry
		s.logger.Info("Auto-posted payment",
			"bank_ref", payment.BankRef,
			"invoice_id", top.InvoiceID,
			"confidence", top.Confidence,
			"hash", entry.PayloadHash,
		)

	default:
		out.Status = metrics.OutcomeReview
		s.logger.Info("Payment queued for review",
			"bank_ref", payment.BankRef,
			"invoice_id", top.InvoiceID,
			"tier", top.Tier,
			"confidence", top.Confidence,
		)
	}

	s.metrics.ObservePayment(out.Status)
	return out
}

// BatchRequest is one bank feed to reconcile against one invoice feed
type BatchRequest struct {
	Source   string // Feed name recorded on the run, e.g. the statement file
	Payments []matcher.Payment
	Invoices []matcher.Record
	DryRun   bool
}

// BatchResult holds the per-payment outcomes of a batch
type BatchResult struct {
	RunID    string
	Outcomes []Outcome
	Stats    storage.RunStats

	invoices []matcher.Invoice // open invoices of the batch
	posted   map[string]bool   // trimmed IDs auto-posted so far
	dryRun   bool
}

// ReconcileBatch reconciles every payment of a feed against the open invoices.
// An invoice auto-posted earlier in the batch is not offered to later payments. Per-payment failures
// are reported in the outcomes; the returned error is reserved for problems
// with the batch as a whole.
func (s *Service) ReconcileBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	all, ok := matcher.InvoicesFromRecords(req.Invoices)
	if !ok {
		return nil, ErrInvoiceSchema
	}

	// Rows without a status column are treated as open
	invoices := make([]matcher.Invoice, 0, len(all))
	for _, inv := range all {
		if inv.Status == "" || inv.IsOpen() {
			invoices = append(invoices, inv)
		}
	}

	res := &BatchResult{
		RunID:    uuid.New().String(),
		Outcomes: make([]Outcome, 0, len(req.Payments)),
		invoices: invoices,
		posted:   make(map[string]bool),
		dryRun:   req.DryRun,
	}

	if s.runs != nil {
		run := &storage.ReconciliationRun{
			ID:        res.RunID,
			Source:    req.Source,
			StartedAt: time.Now(),
			DryRun:    req.DryRun,
			Status:    storage.RunStatusRunning,
		}
		if err := s.runs.StartRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to start run: %w", err)
		}
	}

	s.logger.Info("Starting reconciliation run",
		"run_id", res.RunID,
		"source", req.Source,
		"payments", len(req.Payments),
		"invoices", len(invoices),
		"dry_run", req.DryRun,
	)

	for _, payment := range req.Payments {
		if err := ctx.Err(); err != nil {
			s.completeRun(res)
			return res, err
		}

		out := s.reconcile(ctx, payment, res.available(), req.DryRun)
		res.markPosted(out)
		res.Outcomes = append(res.Outcomes, out)
		countOutcome(&res.Stats, out.Status, 1)
	}

	s.completeRun(res)

	s.logger.Info("Reconciliation run complete",
		"run_id", res.RunID,
		"auto_posted", res.Stats.AutoPosted,
		"review", res.Stats.Review,
		"unmatched", res.Stats.Unmatched,
		"errors", res.Stats.Errors,
	)
	return res, nil
}

// Rematch re-scores the review and unmatched payments of res with the
// current alias table, against the batch invoices not yet auto-posted.
// Payments that now auto-post are committed unless the batch was a dry run.
// res is updated in place and the outcomes whose status changed are returned.
func (s *Service) Rematch(ctx context.Context, res *BatchResult) ([]Outcome, error) {
	s.rematchMu.Lock()
	defer s.rematchMu.Unlock()

	var changed []Outcome
	for i, prev := range res.Outcomes {
		if prev.Status != metrics.OutcomeReview && prev.Status != metrics.OutcomeUnmatched {
			continue
		}
		if err := ctx.Err(); err != nil {
			return changed, err
		}

		out := s.reconcile(ctx, prev.Payment, res.available(), res.dryRun)
		if out.Status == prev.Status {
			continue
		}
		res.markPosted(out)
		res.Outcomes[i] = out
		countOutcome(&res.Stats, prev.Status, -1)
		countOutcome(&res.Stats, out.Status, 1)
		changed = append(changed, out)
	}

	if len(changed) > 0 {
		s.completeRun(res)
		s.logger.Info("Rematch changed outcomes",
			"run_id", res.RunID,
			"changed", len(changed),
			"auto_posted", res.Stats.AutoPosted,
			"review", res.Stats.Review,
			"unmatched", res.Stats.Unmatched,
		)
	}
	return changed, nil
}

// available returns the batch invoices not yet auto-posted
func (r *BatchResult) available() []matcher.Invoice {
	if len(r.posted) == 0 {
		return r.invoices
	}
	out := make([]matcher.Invoice, 0, len(r.invoices))
	for _, inv := range r.invoices {
		if !r.posted[strings.TrimSpace(inv.ID)] {
			out = append(out, inv)
		}
	}
	return out
}

func (r *BatchResult) markPosted(out Outcome) {
	if out.Status != metrics.OutcomeAutoPosted {
		return
	}
	if r.posted == nil {
		r.posted = make(map[string]bool)
	}
	r.posted[strings.TrimSpace(out.Top().InvoiceID)] = true
}

func (s *Service) completeRun(res *BatchResult) {
	if s.runs == nil {
		return
	}
	// Run bookkeeping must land even if the caller's context was cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.runs.CompleteRun(ctx, res.RunID, res.Stats); err != nil {
		s.logger.Error("Failed to complete run", "run_id", res.RunID, "error", err)
	}
}

// RecordOverride commits a MANUAL_OVERRIDE entry attributed to operator
func (s *Service) RecordOverride(ctx context.Context, invoiceID string, amount decimal.Decimal, operator string) (ledger.Entry, error) {
	return s.recordManual(ctx, ledger.EventManualOverride, invoiceID, amount, operator)
}

// RecordDispute commits a DISPUTE entry attributed to operator
func (s *Service) RecordDispute(ctx context.Context, invoiceID string, amount decimal.Decimal, operator string) (ledger.Entry, error) {
	return s.recordManual(ctx, ledger.EventDispute, invoiceID, amount, operator)
}

func (s *Service) recordManual(ctx context.Context, eventType ledger.EventType, invoiceID string, amount decimal.Decimal, operator string) (ledger.Entry, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	operator = strings.TrimSpace(operator)
	if invoiceID == "" {
		return ledger.Entry{}, ErrSubjectRequired
	}
	if operator == "" {
		return ledger.Entry{}, ErrOperatorRequired
	}

	entry, err := s.append(ctx, ledger.Event{
		Type:      eventType,
		SubjectID: invoiceID,
		Amount:    amount,
		Operator:  operator,
	})
	if err != nil {
		return ledger.Entry{}, err
	}

	s.logger.Info("Recorded manual ledger event",
		"event_type", eventType,
		"invoice_id", invoiceID,
		"operator", operator,
		"hash", entry.PayloadHash,
	)
	return entry, nil
}

// VerifyLedger walks the whole chain
func (s *Service) VerifyLedger(ctx context.Context) (ledger.IntegrityReport, error) {
	report, err := s.chain.VerifyIntegrity(ctx)
	if err != nil {
		return report, err
	}
	s.metrics.ObserveIntegrity(report)
	if !report.Valid {
		s.logger.Error("Ledger integrity breach",
			"row", report.BreachRow,
			"reason", report.Reason,
		)
	}
	return report, nil
}

// SwapResolver installs a new alias table; in-flight matches finish with the old one
func (s *Service) SwapResolver(r *alias.Resolver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matcher = matcher.NewMatcher(s.matcher.Config(), r, s.logger)
	s.logger.Info("Alias table swapped", "aliases", r.Len())
}

func (s *Service) currentMatcher() *matcher.Matcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matcher
}

func (s *Service) append(ctx context.Context, ev ledger.Event) (ledger.Entry, error) {
	start := time.Now()
	entry, err := s.chain.Append(ctx, ev)
	s.metrics.ObserveAppend(ev.Type, err, time.Since(start))
	return entry, err
}

// countOutcome adds n (negative to retract) to the counter for status
func countOutcome(stats *storage.RunStats, status string, n int) {
	if n > 0 {
		stats.Payments += n
	}
	switch status {
	case metrics.OutcomeAutoPosted:
		stats.AutoPosted += n
	case metrics.OutcomeReview:
		stats.Review += n
	case metrics.OutcomeUnmatched:
		stats.Unmatched += n
	default:
		stats.Errors += n
	}
}

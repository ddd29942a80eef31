package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/eshaffer321/smartcash-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/smartcash-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/smartcash-reconciler/internal/infrastructure/storage"
)

// PrintHeader prints the application header
func PrintHeader(w io.Writer, command string, dryRun bool) {
	mode := "PRODUCTION"
	if dryRun {
		mode = "DRY-RUN"
	}
	fmt.Fprintf(w, "smartcash: %s (%s mode)\n", command, mode)
}

// PrintOutcomes prints one line per payment
func PrintOutcomes(w io.Writer, result *reconcile.BatchResult) {
	for _, out := range result.Outcomes {
		printOutcome(w, out)
	}
}

func printOutcome(w io.Writer, out reconcile.Outcome) {
	p := out.Payment
	line := fmt.Sprintf("%-14s %12s %-3s %-28s %-12s",
		truncate(p.BankRef, 14),
		p.Amount.Decimal.StringFixed(2),
		p.Currency,
		truncate(p.PayerName, 28),
		out.Status,
	)
	if top := out.Top(); top != nil {
		line += fmt.Sprintf(" %s (%.4f %s)", top.InvoiceID, top.Confidence, top.Tier.Label())
	}
	if out.Err != nil {
		line += fmt.Sprintf(" error: %v", out.Err)
	}
	fmt.Fprintln(w, line)
}

// PrintRematch prints the outcomes changed by an alias reload and the new totals
func PrintRematch(w io.Writer, changed []reconcile.Outcome, result *reconcile.BatchResult) {
	if len(changed) == 0 {
		fmt.Fprintln(w, "Alias reload: no outcome changed")
		return
	}
	fmt.Fprintf(w, "Alias reload: %d outcome(s) changed\n", len(changed))
	for _, out := range changed {
		printOutcome(w, out)
	}
	fmt.Fprintf(w, "Now: AutoPosted=%d Review=%d Unmatched=%d Errors=%d\n",
		result.Stats.AutoPosted,
		result.Stats.Review,
		result.Stats.Unmatched,
		result.Stats.Errors)
}

// PrintSummary prints the batch result summary
func PrintSummary(w io.Writer, result *reconcile.BatchResult, dryRun bool) {
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Summary: Payments=%d AutoPosted=%d Review=%d Unmatched=%d Errors=%d\n",
		result.Stats.Payments,
		result.Stats.AutoPosted,
		result.Stats.Review,
		result.Stats.Unmatched,
		result.Stats.Errors)
	fmt.Fprintf(w, "Run: %s\n", result.RunID)

	if dryRun && result.Stats.AutoPosted > 0 {
		fmt.Fprintln(w, "\nDry run: no ledger entries were written.")
	}
}

// PrintReport prints an integrity verification result
func PrintReport(w io.Writer, report ledger.IntegrityReport) {
	if report.Valid {
		fmt.Fprintf(w, "OK   %s\n", report.Detail)
		return
	}
	fmt.Fprintf(w, "FAIL %s (%s, %d entries)\n", report.Detail, report.Reason, report.Entries)
}

// PrintEntries prints ledger entries as a table or JSON
func PrintEntries(w io.Writer, entries []ledger.Entry, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %-15s %-14s %-20s %12s  %s\n",
			ledger.FormatTimestamp(e.Timestamp),
			e.EventType,
			truncate(e.SubjectID, 14),
			truncate(e.Operator, 20),
			e.Amount.StringFixed(2),
			shortHash(e.PayloadHash),
		)
	}
	fmt.Fprintf(w, "%d entries\n", len(entries))
	return nil
}

// PrintRuns prints reconciliation run history
func PrintRuns(w io.Writer, runs []storage.ReconciliationRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No reconciliation runs recorded.")
		return
	}
	for _, r := range runs {
		mode := ""
		if r.DryRun {
			mode = " [dry-run]"
		}
		fmt.Fprintf(w, "%s  %s  %-9s payments=%d auto=%d review=%d unmatched=%d errors=%d  %s%s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.ID,
			r.Status,
			r.Payments, r.AutoPosted, r.Review, r.Unmatched, r.Errors,
			r.Source, mode,
		)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

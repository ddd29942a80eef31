// Package metrics exposes Prometheus instruments for matching and the ledger.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eshaffer321/smartcash-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/smartcash-reconciler/internal/domain/matcher"
)

// Payment outcomes
const (
	OutcomeAutoPosted = "auto_posted"
	OutcomeReview     = "review"
	OutcomeUnmatched  = "unmatched"
	OutcomeInvalid    = "invalid"
	OutcomeError      = "error"
)

// Metrics holds every instrument
type Metrics struct {
	Candidates       *prometheus.CounterVec
	SkippedRows      *prometheus.CounterVec
	Payments         *prometheus.CounterVec
	LedgerAppends    *prometheus.CounterVec
	AppendDuration   prometheus.Histogram
	IntegrityChecks  *prometheus.CounterVec
	LedgerEntries    prometheus.Gauge
	MatchingDuration prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New registers the instruments with reg. Pass prometheus.NewRegistry()
// in tests to keep counts isolated.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Candidates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smartcash_match_candidates_total",
			Help: "Match candidates produced, labelled by tier.",
		}, []string{"tier"}),

		SkippedRows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smartcash_invoice_rows_skipped_total",
			Help: "Invoice rows excluded from scoring, labelled by reason.",
		}, []string{"reason"}),

		Payments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smartcash_payments_total",
			Help: "Payments reconciled, labelled by outcome.",
		}, []string{"outcome"}),

		LedgerAppends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smartcash_ledger_appends_total",
			Help: "Ledger append attempts, labelled by event type and status.",
		}, []string{"event_type", "status"}),

		AppendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartcash_ledger_append_duration_seconds",
			Help:    "Latency of a durable ledger append.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),

		IntegrityChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smartcash_ledger_integrity_checks_total",
			Help: "Ledger verifications, labelled by result.",
		}, []string{"result"}),

		LedgerEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "smartcash_ledger_entries",
			Help: "Entries seen at the last integrity check.",
		}),

		MatchingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartcash_matching_duration_seconds",
			Help:    "Time to score one payment against the invoice set.",
			Buckets: prometheus.DefBuckets,
		}),

		gatherer: reg,
	}
}

// ObserveMatch records the candidates and skipped rows of one matching pass
func (m *Metrics) ObserveMatch(result *matcher.Result, elapsed time.Duration) {
	if m == nil || result == nil {
		return
	}
	for _, c := range result.Candidates {
		m.Candidates.WithLabelValues(string(c.Tier)).Inc()
	}
	if result.Rejected > 0 {
		m.Candidates.WithLabelValues(string(matcher.TierRejected)).Add(float64(result.Rejected))
	}
	for _, s := range result.Skipped {
		m.SkippedRows.WithLabelValues(string(s.Reason)).Inc()
	}
	m.MatchingDuration.Observe(elapsed.Seconds())
}

// ObservePayment records the final outcome of one payment
func (m *Metrics) ObservePayment(outcome string) {
	if m == nil {
		return
	}
	m.Payments.WithLabelValues(outcome).Inc()
}

// ObserveAppend records one ledger append attempt
func (m *Metrics) ObserveAppend(eventType ledger.EventType, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.LedgerAppends.WithLabelValues(string(eventType), status).Inc()
	if err == nil {
		m.AppendDuration.Observe(elapsed.Seconds())
	}
}

// ObserveIntegrity records the result of a verification
func (m *Metrics) ObserveIntegrity(report ledger.IntegrityReport) {
	if m == nil {
		return
	}
	result := "valid"
	if !report.Valid {
		result = "breach"
	}
	m.IntegrityChecks.WithLabelValues(result).Inc()
	m.LedgerEntries.Set(float64(report.Entries))
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/smartcash-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/smartcash-reconciler/internal/domain/matcher"
)

func TestObserveMatch(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveMatch(&matcher.Result{
		Candidates: []matcher.MatchCandidate{
			{InvoiceID: "A", Tier: matcher.TierAutoPost},
			{InvoiceID: "B", Tier: matcher.TierLowConfidenceReview},
		},
		Skipped:  []matcher.SkippedRow{{Reason: matcher.SkipInvalidAmount}},
		Rejected: 3,
	}, 2*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Candidates.WithLabelValues("AutoPost")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Candidates.WithLabelValues("LowConfidenceReview")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Candidates.WithLabelValues("Rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SkippedRows.WithLabelValues("invalid_amount")))
}

func TestObserveAppendAndIntegrity(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveAppend(ledger.EventAutoSTP, nil, time.Millisecond)
	m.ObserveAppend(ledger.EventAutoSTP, errors.New("disk"), time.Millisecond)
	m.ObserveIntegrity(ledger.IntegrityReport{Valid: false, Entries: 7})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerAppends.WithLabelValues("AUTO_STP", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerAppends.WithLabelValues("AUTO_STP", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IntegrityChecks.WithLabelValues("breach")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.LedgerEntries))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObservePayment(OutcomeUnmatched)
		m.ObserveMatch(&matcher.Result{}, 0)
		m.ObserveAppend(ledger.EventDispute, nil, 0)
		m.ObserveIntegrity(ledger.IntegrityReport{Valid: true})
	})
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObservePayment(OutcomeAutoPosted)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `smartcash_payments_total{outcome="auto_posted"} 1`)
}

package matcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds matcher configuration
type Config struct {
	AmountWeight float64 // Default: 0.5
	NameWeight   float64 // Default: 0.5

	// FeeTolerance is the relative short-pay accepted as a near match (0.02 = 2%)
	FeeTolerance float64

	// NearAmountScore is awarded when the difference is within FeeTolerance
	NearAmountScore float64

	AutoPostThreshold   float64 // Default: 0.95
	HighReviewThreshold float64 // Default: 0.70
	LowReviewThreshold  float64 // Default: 0.50
	CorporateSuffixes   []string
}

// DefaultCorporateSuffixes are legal-form tokens ignored by name similarity
var DefaultCorporateSuffixes = []string{
	"ag", "bv", "co", "company", "corp", "corporation", "gmbh", "group",
	"holdings", "inc", "incorporated", "kg", "limited", "llc", "llp", "ltd",
	"nv", "plc", "pte", "pty", "sa", "sarl", "se", "spa", "srl",
}

// DefaultConfig returns the canonical 0.5/0.5 weighting with 0.95/0.70/0.50 tiers
func DefaultConfig() Config {
	suffixes := make([]string, len(DefaultCorporateSuffixes))
	copy(suffixes, DefaultCorporateSuffixes)
	return Config{
		AmountWeight:        0.5,
		NameWeight:          0.5,
		FeeTolerance:        0.02,
		NearAmountScore:     0.7,
		AutoPostThreshold:   0.95,
		HighReviewThreshold: 0.70,
		LowReviewThreshold:  0.50,
		CorporateSuffixes:   suffixes,
	}
}

// Validate checks that weights and thresholds are usable
func (c Config) Validate() error {
	if c.AmountWeight < 0 || c.NameWeight < 0 {
		return fmt.Errorf("weights must be non-negative (amount=%.2f, name=%.2f)", c.AmountWeight, c.NameWeight)
	}
	if sum := c.AmountWeight + c.NameWeight; sum <= 0 || sum > 1.0000001 {
		return fmt.Errorf("weights must sum to (0, 1], got %.4f", sum)
	}
	if c.FeeTolerance < 0 || c.FeeTolerance >= 1 {
		return fmt.Errorf("fee tolerance must be in [0, 1), got %.4f", c.FeeTolerance)
	}
	if c.NearAmountScore < 0 || c.NearAmountScore > 1 {
		return fmt.Errorf("near amount score must be in [0, 1], got %.4f", c.NearAmountScore)
	}
	if !(c.AutoPostThreshold >= c.HighReviewThreshold && c.HighReviewThreshold >= c.LowReviewThreshold && c.LowReviewThreshold >= 0) {
		return fmt.Errorf("thresholds must satisfy auto_post >= high_review >= low_review >= 0 (got %.2f/%.2f/%.2f)",
			c.AutoPostThreshold, c.HighReviewThreshold, c.LowReviewThreshold)
	}
	return nil
}

// Tier classifies how actionable a candidate is
type Tier string

const (
	TierAutoPost             Tier = "AutoPost"
	TierHighConfidenceReview Tier = "HighConfidenceReview"
	TierLowConfidenceReview  Tier = "LowConfidenceReview"
	TierRejected             Tier = "Rejected"
)

// Label returns the operator-facing status text for a tier
func (t Tier) Label() string {
	switch t {
	case TierAutoPost:
		return "STP: Auto-Match"
	case TierHighConfidenceReview:
		return "Exception: High Confidence"
	case TierLowConfidenceReview:
		return "Exception: Low Confidence"
	default:
		return "Rejected"
	}
}

// Classify maps a confidence onto a tier using the configured thresholds
func (c Config) Classify(confidence float64) Tier {
	switch {
	case confidence >= c.AutoPostThreshold:
		return TierAutoPost
	case confidence >= c.HighReviewThreshold:
		return TierHighConfidenceReview
	case confidence >= c.LowReviewThreshold:
		return TierLowConfidenceReview
	default:
		return TierRejected
	}
}

// ESGTier is an ordinal counterparty-risk rating (AAA best, D worst).
// The matcher carries it through to candidates but never scores on it.
type ESGTier string

const (
	ESGAAA ESGTier = "AAA"
	ESGAA  ESGTier = "AA"
	ESGA   ESGTier = "A"
	ESGB   ESGTier = "B"
	ESGC   ESGTier = "C"
	ESGD   ESGTier = "D"
)

var esgRank = map[ESGTier]int{ESGAAA: 6, ESGAA: 5, ESGA: 4, ESGB: 3, ESGC: 2, ESGD: 1}

// ParseESGTier validates an ESG rating
func ParseESGTier(s string) (ESGTier, bool) {
	tier := ESGTier(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := esgRank[tier]
	return tier, ok
}

// Rank returns 6 for AAA down to 1 for D, and 0 for an unknown tier
func (t ESGTier) Rank() int {
	return esgRank[t]
}

// Invoice is an open receivable supplied by the ERP feed.
// Amount is kept as the feed's raw text so a single bad row can be skipped.
type Invoice struct {
	ID           string
	CustomerName string
	Amount       string
	Currency     string
	ESGScore     string
	Status       string
}

// IsOpen reports whether the invoice still carries a receivable balance
func (i Invoice) IsOpen() bool {
	return strings.EqualFold(strings.TrimSpace(i.Status), "open")
}

// Payment is an incoming bank remittance to be reconciled
type Payment struct {
	BankRef     string
	Amount      decimal.NullDecimal
	Currency    string
	PayerName   string
	Reference   string
	BookingDate time.Time
}

// NewPayment builds a payment with the mandatory fields set
func NewPayment(amount decimal.Decimal, currency, payerName string) Payment {
	return Payment{
		Amount:    decimal.NullDecimal{Decimal: amount, Valid: true},
		Currency:  currency,
		PayerName: payerName,
	}
}

// MatchCandidate is the scored opinion linking one payment to one invoice
type MatchCandidate struct {
	InvoiceID    string  `json:"invoice_id"`
	CustomerName string  `json:"customer_name"`
	Currency     string  `json:"currency"`
	ESGScore     string  `json:"esg_score,omitempty"`
	AmountScore  float64 `json:"amount_score"`
	NameScore    float64 `json:"name_score"`
	Confidence   float64 `json:"confidence"`
	Tier         Tier    `json:"tier"`
}

// SkipReason explains why an invoice row was left out of scoring
type SkipReason string

const (
	SkipMissingField  SkipReason = "missing_field"
	SkipInvalidAmount SkipReason = "invalid_amount"
)

// SkippedRow records a data-quality problem with one invoice row
type SkippedRow struct {
	Index     int
	InvoiceID string
	Reason    SkipReason
	Detail    string
}

// Result contains everything one matching pass produced
type Result struct {
	Candidates []MatchCandidate // Plausible candidates, best first
	Skipped    []SkippedRow     // Rows excluded for data-quality reasons
	Rejected   int              // Rows scored below the lowest review threshold
}

// Top returns the best candidate, or nil when nothing is plausible
func (r *Result) Top() *MatchCandidate {
	if r == nil || len(r.Candidates) == 0 {
		return nil
	}
	return &r.Candidates[0]
}

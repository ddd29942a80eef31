// Package matcher scores incoming payments against open invoices.
//
// Every invoice is scored on two equally weighted signals:
//   - Amount: 1.0 on an exact same-currency match, 0.7 when a short-pay is
//     within the fee tolerance (default 2%), 0.0 otherwise or on any
//     currency mismatch
//   - Name: token-set similarity of the alias-resolved payer and customer
//
// The weighted confidence is classified into AutoPost, HighConfidenceReview
// or LowConfidenceReview; anything below the lowest threshold is dropped.
//
// Example usage:
//
//	m := matcher.NewMatcher(matcher.DefaultConfig(), alias.NewResolver(table), logger)
//	candidates, err := m.RunMatch(payment, invoices)
//	if len(candidates) > 0 && candidates[0].Tier == matcher.TierAutoPost {
//		// Safe for straight-through processing
//	}
package matcher

import (
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/smartcash-reconciler/internal/domain/alias"
)

// Matcher matches payments with open invoices.
// It holds no mutable state and is safe for concurrent use.
type Matcher struct {
	config    Config
	resolver  *alias.Resolver
	tokenizer tokenizer
	tolerance decimal.Decimal
	logger    *slog.Logger
}

// NewMatcher creates a new matcher with the given config and alias table.
// A nil resolver resolves every name to its normalized form.
func NewMatcher(config Config, resolver *alias.Resolver, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	if resolver == nil {
		resolver = alias.NewResolver(nil)
	}
	return &Matcher{
		config:    config,
		resolver:  resolver,
		tokenizer: newTokenizer(config.CorporateSuffixes),
		tolerance: decimal.NewFromFloat(config.FeeTolerance),
		logger:    logger,
	}
}

// Config returns the matcher configuration
func (m *Matcher) Config() Config {
	return m.config
}

// Resolver returns the alias resolver used for name scoring
func (m *Matcher) Resolver() *alias.Resolver {
	return m.resolver
}

// RunMatch returns the plausible candidates for payment, best first.
// An empty slice means no plausible match; an InvalidInputError means the
// payment itself is malformed.
func (m *Matcher) RunMatch(payment Payment, invoices []Invoice) ([]MatchCandidate, error) {
	result, err := m.Match(payment, invoices)
	if err != nil {
		return nil, err
	}
	return result.Candidates, nil
}

// Match scores every invoice and also reports skipped and rejected rows
func (m *Matcher) Match(payment Payment, invoices []Invoice) (*Result, error) {
	if err := ValidatePayment(payment); err != nil {
		return nil, err
	}

	result := &Result{
		Candidates: make([]MatchCandidate, 0),
	}

	payCurrency := normalizeCurrency(payment.Currency)
	payer := m.resolver.Resolve(payment.PayerName)

	for i, inv := range invoices {
		if field := missingField(inv); field != "" {
			m.logger.Warn("Skipping invoice with missing field",
				"row", i,
				"invoice_id", inv.ID,
				"field", field,
			)
			result.Skipped = append(result.Skipped, SkippedRow{
				Index:     i,
				InvoiceID: inv.ID,
				Reason:    SkipMissingField,
				Detail:    field,
			})
			continue
		}

		invAmount, err := parseAmount(inv.Amount)
		if err != nil {
			m.logger.Warn("Skipping invoice with unparseable amount",
				"row", i,
				"invoice_id", inv.ID,
				"amount", inv.Amount,
			)
			result.Skipped = append(result.Skipped, SkippedRow{
				Index:     i,
				InvoiceID: inv.ID,
				Reason:    SkipInvalidAmount,
				Detail:    inv.Amount,
			})
			continue
		}

		candidate := m.score(payment.Amount.Decimal, payCurrency, payer, inv, invAmount)
		if candidate.Tier == TierRejected {
			result.Rejected++
			continue
		}
		result.Candidates = append(result.Candidates, candidate)
	}

	sort.SliceStable(result.Candidates, func(i, j int) bool {
		a, b := result.Candidates[i], result.Candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.InvoiceID < b.InvoiceID
	})

	m.logger.Debug("Matched payment",
		"payer", payment.PayerName,
		"amount", payment.Amount.Decimal.String(),
		"currency", payCurrency,
		"invoices", len(invoices),
		"candidates", len(result.Candidates),
		"skipped", len(result.Skipped),
	)

	return result, nil
}

// score computes the weighted confidence for one payment/invoice pair
func (m *Matcher) score(
	payAmount decimal.Decimal,
	payCurrency string,
	payer string,
	inv Invoice,
	invAmount decimal.Decimal,
) MatchCandidate {
	invCurrency := normalizeCurrency(inv.Currency)

	amountScore := m.amountScore(payAmount, payCurrency, invAmount, invCurrency)
	nameScore := m.tokenizer.Similarity(payer, m.resolver.Resolve(inv.CustomerName))

	confidence := roundScore(m.config.AmountWeight*amountScore + m.config.NameWeight*nameScore)

	return MatchCandidate{
		InvoiceID:    strings.TrimSpace(inv.ID),
		CustomerName: inv.CustomerName,
		Currency:     invCurrency,
		ESGScore:     inv.ESGScore,
		AmountScore:  amountScore,
		NameScore:    nameScore,
		Confidence:   confidence,
		Tier:         m.config.Classify(confidence),
	}
}

// amountScore never rewards a cross-currency pair, even on numeric equality
func (m *Matcher) amountScore(pay decimal.Decimal, payCurrency string, inv decimal.Decimal, invCurrency string) float64 {
	if payCurrency != invCurrency {
		return 0
	}
	if pay.Equal(inv) {
		return 1
	}
	if inv.IsZero() {
		return 0
	}
	relDiff := pay.Sub(inv).Abs().Div(inv.Abs())
	if relDiff.LessThan(m.tolerance) {
		return m.config.NearAmountScore
	}
	return 0
}

// missingField returns the first required invoice field that is blank
func missingField(inv Invoice) string {
	switch {
	case strings.TrimSpace(inv.ID) == "":
		return "id"
	case strings.TrimSpace(inv.CustomerName) == "":
		return "customer_name"
	case strings.TrimSpace(inv.Amount) == "":
		return "amount"
	case normalizeCurrency(inv.Currency) == "":
		return "currency"
	}
	return ""
}

func parseAmount(raw string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(raw))
}

func normalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

// roundScore keeps confidences at four decimals so threshold comparisons
// are not decided by float noise
func roundScore(v float64) float64 {
	return math.Round(v*10000) / 10000
}

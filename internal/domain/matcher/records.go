package matcher

import "strings"

// Record is one invoice row from an upstream feed, keyed by column name
type Record map[string]string

// Canonical column names
const (
	ColumnID       = "id"
	ColumnCustomer = "customer_name"
	ColumnAmount   = "amount"
	ColumnCurrency = "currency"
	ColumnESG      = "esg_score"
	ColumnStatus   = "status"
)

// RequiredColumns must be present in a batch for matching to run
var RequiredColumns = []string{ColumnID, ColumnCustomer, ColumnAmount, ColumnCurrency}

// columnAliases maps squashed header spellings onto canonical columns
var columnAliases = map[string]string{
	"id":           ColumnID,
	"invoiceid":    ColumnID,
	"invoice":      ColumnID,
	"customer":     ColumnCustomer,
	"customername": ColumnCustomer,
	"amount":       ColumnAmount,
	"currency":     ColumnCurrency,
	"ccy":          ColumnCurrency,
	"esg":          ColumnESG,
	"esgscore":     ColumnESG,
	"status":       ColumnStatus,
}

// CanonicalColumn maps a header such as "Invoice_ID" or "Customer Name" to
// its canonical column, or "" when the header is not recognized
func CanonicalColumn(header string) string {
	squashed := strings.Map(func(r rune) rune {
		if r == '_' || r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(header)))
	return columnAliases[squashed]
}

// InvoicesFromRecords converts feed rows into invoices.
// ok is false when the batch schema lacks a required column; a column only
// counts as present when every record carries it.
func InvoicesFromRecords(records []Record) (invoices []Invoice, ok bool) {
	if len(records) == 0 {
		return nil, true
	}

	rows := make([]map[string]string, len(records))
	for i, rec := range records {
		row := make(map[string]string, len(rec))
		for header, value := range rec {
			if col := CanonicalColumn(header); col != "" {
				row[col] = value
			}
		}
		rows[i] = row
	}

	for _, col := range RequiredColumns {
		for _, row := range rows {
			if _, present := row[col]; !present {
				return nil, false
			}
		}
	}

	invoices = make([]Invoice, len(rows))
	for i, row := range rows {
		invoices[i] = Invoice{
			ID:           strings.TrimSpace(row[ColumnID]),
			CustomerName: row[ColumnCustomer],
			Amount:       row[ColumnAmount],
			Currency:     row[ColumnCurrency],
			ESGScore:     row[ColumnESG],
			Status:       row[ColumnStatus],
		}
	}
	return invoices, true
}

// RunMatchRecords matches against rows of a heterogeneous upstream schema.
// A batch missing a required column yields an empty list rather than an error.
func (m *Matcher) RunMatchRecords(payment Payment, records []Record) ([]MatchCandidate, error) {
	if err := ValidatePayment(payment); err != nil {
		return nil, err
	}

	invoices, ok := InvoicesFromRecords(records)
	if !ok {
		m.logger.Warn("Invoice batch is missing required columns",
			"required", strings.Join(RequiredColumns, ","),
			"rows", len(records),
		)
		return []MatchCandidate{}, nil
	}
	return m.RunMatch(payment, invoices)
}

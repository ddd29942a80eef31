package bankfeed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/smartcash-reconciler/internal/domain/matcher"
)

// Bank CSV export headers
const (
	ColumnTxID     = "bank_tx_id"
	ColumnAmount   = "amount_received"
	ColumnCurrency = "currency"
	ColumnPayer    = "payer_name"
	ColumnDate     = "date"
	ColumnRef      = "reference"
)

var csvDateLayouts = []string{"2006-01-02", "02/01/2006", "2006-01-02T15:04:05Z07:00"}

// ParseCSV reads a bank CSV export. Header names are matched case-insensitively.
func ParseCSV(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("bank csv: empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("bank csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{ColumnAmount, ColumnCurrency, ColumnPayer} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("bank csv: missing column %q", required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var entries []Entry
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("bank csv line %d: %w", line, err)
		}
		if isBlank(row) {
			continue
		}

		p := matcher.Payment{
			BankRef:   firstNonEmpty(field(row, ColumnTxID), fmt.Sprintf("CSV-%d", len(entries))),
			Currency:  field(row, ColumnCurrency),
			PayerName: firstNonEmpty(field(row, ColumnPayer), UnknownPayer),
			Reference: field(row, ColumnRef),
		}
		if amount, err := decimal.NewFromString(field(row, ColumnAmount)); err == nil {
			p.Amount = decimal.NullDecimal{Decimal: amount, Valid: true}
		}
		p.BookingDate = parseCSVDate(field(row, ColumnDate))

		entries = append(entries, Entry{Payment: p, Status: StatusBooked, Credit: true})
	}
	return entries, nil
}

// ParseFile picks the parser from the file extension (.xml or .csv)
func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bank feed: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml", ".053":
		return ParseCAMT053(f)
	case ".csv":
		return ParseCSV(f)
	default:
		return nil, fmt.Errorf("unsupported bank feed format: %s", filepath.Base(path))
	}
}

// Payments filters parsed entries down to what should be matched.
// Debit entries are dropped; pending entries are kept only when includePending is set.
func Payments(entries []Entry, includePending bool) []matcher.Payment {
	out := make([]matcher.Payment, 0, len(entries))
	for _, e := range entries {
		if !e.Credit {
			continue
		}
		if strings.EqualFold(e.Status, StatusPending) && !includePending {
			continue
		}
		out = append(out, e.Payment)
	}
	return out
}

func parseCSVDate(s string) time.Time {
	for _, layout := range csvDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

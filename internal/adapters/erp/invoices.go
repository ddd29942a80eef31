// Package erp loads open-invoice exports from the accounting system.
//
// Rows are returned as matcher.Record keyed by the file's own headers, so the
// matcher decides whether the schema is usable for a batch.
package erp

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/eshaffer321/smartcash-reconciler/internal/domain/matcher"
)

// ReadInvoices parses an invoice CSV such as
// Invoice_ID,Customer,Amount,Currency,Due_Date,Status,ESG_Score
func ReadInvoices(r io.Reader) ([]matcher.Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invoice csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var records []matcher.Record
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("invoice csv line %d: %w", line, err)
		}
		if blankRow(row) {
			continue
		}

		// Short rows leave trailing columns absent rather than empty
		rec := make(matcher.Record, len(header))
		for i, h := range header {
			if i < len(row) && h != "" {
				rec[h] = strings.TrimSpace(row[i])
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// LoadInvoices reads an invoice CSV from disk
func LoadInvoices(path string) ([]matcher.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open invoices: %w", err)
	}
	defer f.Close()
	return ReadInvoices(f)
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

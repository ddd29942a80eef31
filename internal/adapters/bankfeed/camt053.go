// Package bankfeed turns bank statements into payments for matching.
//
// Two formats are supported:
//   - ISO 20022 camt.053 XML statements (any schema version)
//   - Flat CSV exports with Bank_TX_ID, Amount_Received, Currency, Payer_Name, Date
//
// Parsing is lenient per entry: an entry with an unreadable amount is still
// returned, with an invalid Amount, so the reconciliation run can report it
// instead of silently dropping money.
package bankfeed

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/smartcash-reconciler/internal/domain/matcher"
)

// UnknownPayer is used when a statement entry carries no debtor name
const UnknownPayer = "Unknown Payer"

// Statement entry status codes
const (
	StatusBooked  = "BOOK"
	StatusPending = "PDNG"
)

// camtEntry mirrors the parts of <Ntry> we read. Element names are matched
// without namespace so camt.053.001.02 through .08 all decode.
type camtEntry struct {
	Ref         string     `xml:"NtryRef"`
	AcctSvcrRef string     `xml:"AcctSvcrRef"`
	Amt         camtAmount `xml:"Amt"`
	CdtDbtInd   string     `xml:"CdtDbtInd"`
	Sts         camtStatus `xml:"Sts"`
	BookgDt     camtDate   `xml:"BookgDt"`
	Details     []struct {
		Refs struct {
			EndToEndID string `xml:"EndToEndId"`
		} `xml:"Refs"`
		Debtor struct {
			Name string `xml:"Nm"`
		} `xml:"RltdPties>Dbtr"`
		Ustrd []string `xml:"RmtInf>Ustrd"`
	} `xml:"NtryDtls>TxDtls"`
	// Some exports omit NtryDtls and put parties directly under Ntry
	FlatDebtor string   `xml:"RltdPties>Dbtr>Nm"`
	FlatUstrd  []string `xml:"RmtInf>Ustrd"`
}

type camtAmount struct {
	Value    string `xml:",chardata"`
	Currency string `xml:"Ccy,attr"`
}

// camtStatus accepts both <Sts>BOOK</Sts> and <Sts><Cd>BOOK</Cd></Sts>
type camtStatus struct {
	Text string `xml:",chardata"`
	Code string `xml:"Cd"`
}

func (s camtStatus) String() string {
	if c := strings.TrimSpace(s.Code); c != "" {
		return c
	}
	return strings.TrimSpace(s.Text)
}

type camtDate struct {
	Date     string `xml:"Dt"`
	DateTime string `xml:"DtTm"`
}

// Entry is a parsed statement line before it becomes a payment
type Entry struct {
	Payment matcher.Payment
	Status  string
	Credit  bool
}

// ParseCAMT053 reads every <Ntry> in a camt.053 document
func ParseCAMT053(r io.Reader) ([]Entry, error) {
	dec := xml.NewDecoder(r)
	var entries []Entry
	sawDocument := false

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("camt.053: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local == "Document" || start.Name.Local == "BkToCstmrStmt" {
			sawDocument = true
		}
		if start.Name.Local != "Ntry" {
			continue
		}

		var ce camtEntry
		if err := dec.DecodeElement(&ce, &start); err != nil {
			return nil, fmt.Errorf("camt.053 entry %d: %w", len(entries), err)
		}
		entries = append(entries, ce.toEntry(len(entries)))
	}

	if !sawDocument && len(entries) == 0 {
		return nil, fmt.Errorf("camt.053: no statement document found")
	}
	return entries, nil
}

func (ce camtEntry) toEntry(index int) Entry {
	p := matcher.Payment{
		Currency: strings.TrimSpace(ce.Amt.Currency),
	}

	if amount, err := decimal.NewFromString(strings.TrimSpace(ce.Amt.Value)); err == nil {
		p.Amount = decimal.NullDecimal{Decimal: amount, Valid: true}
	}

	payer := ce.FlatDebtor
	var endToEnd string
	var remittance []string
	for _, d := range ce.Details {
		if payer == "" {
			payer = d.Debtor.Name
		}
		if endToEnd == "" && d.Refs.EndToEndID != "NOTPROVIDED" {
			endToEnd = d.Refs.EndToEndID
		}
		remittance = append(remittance, d.Ustrd...)
	}
	remittance = append(remittance, ce.FlatUstrd...)

	p.BankRef = firstNonEmpty(ce.Ref, ce.AcctSvcrRef, endToEnd, fmt.Sprintf("ISO-%d", index))

	p.PayerName = strings.TrimSpace(payer)
	if p.PayerName == "" {
		p.PayerName = UnknownPayer
	}
	p.Reference = strings.TrimSpace(strings.Join(remittance, " "))
	p.BookingDate = parseBookingDate(ce.BookgDt)

	return Entry{
		Payment: p,
		Status:  ce.Sts.String(),
		Credit:  !strings.EqualFold(strings.TrimSpace(ce.CdtDbtInd), "DBIT"),
	}
}

func parseBookingDate(d camtDate) time.Time {
	if d.Date != "" {
		if t, err := time.Parse("2006-01-02", strings.TrimSpace(d.Date)); err == nil {
			return t
		}
	}
	if d.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(d.DateTime)); err == nil {
			return t
		}
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

package storage

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/smartcash-reconciler/internal/domain/ledger"
)

// ledgerRecord is the persisted form of a ledger entry.
// Every field is text so a round trip reproduces the hashed bytes exactly.
type ledgerRecord struct {
	ID           uint64 `json:"-" gorm:"primaryKey;autoIncrement"`
	Timestamp    string `json:"Timestamp" gorm:"not null"`
	EventType    string `json:"Event_Type" gorm:"size:32;not null"`
	SubjectID    string `json:"Subject_ID" gorm:"index"`
	Operator     string `json:"Operator" gorm:"not null"`
	Amount       string `json:"Amount" gorm:"not null"`
	PayloadHash  string `json:"Payload_Hash" gorm:"size:64;not null"`
	PreviousHash string `json:"Previous_Hash" gorm:"size:64;not null"`
}

// TableName pins the gorm table name to the one the SQL migrations create
func (ledgerRecord) TableName() string {
	return "audit_ledger"
}

func toRecord(e ledger.Entry) ledgerRecord {
	return ledgerRecord{
		Timestamp:    ledger.FormatTimestamp(e.Timestamp),
		EventType:    string(e.EventType),
		SubjectID:    e.SubjectID,
		Operator:     e.Operator,
		Amount:       e.Amount.String(),
		PayloadHash:  e.PayloadHash,
		PreviousHash: e.PreviousHash,
	}
}

func (r ledgerRecord) toEntry() (ledger.Entry, error) {
	ts, err := ledger.ParseTimestamp(r.Timestamp)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("invalid timestamp %q: %w", r.Timestamp, err)
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("invalid amount %q: %w", r.Amount, err)
	}
	return ledger.Entry{
		Timestamp:    ts,
		EventType:    ledger.EventType(r.EventType),
		SubjectID:    r.SubjectID,
		Operator:     r.Operator,
		Amount:       amount,
		PayloadHash:  r.PayloadHash,
		PreviousHash: r.PreviousHash,
		Stored:       ledger.StoredText{Timestamp: r.Timestamp, Amount: r.Amount},
	}, nil
}

// values returns the record in ledger.Columns order
func (r ledgerRecord) values() []string {
	return []string{r.Timestamp, r.EventType, r.SubjectID, r.Operator, r.Amount, r.PayloadHash, r.PreviousHash}
}

func recordFromValues(v []string) (ledgerRecord, error) {
	if len(v) != len(ledger.Columns) {
		return ledgerRecord{}, fmt.Errorf("expected %d fields, got %d", len(ledger.Columns), len(v))
	}
	return ledgerRecord{
		Timestamp:    v[0],
		EventType:    v[1],
		SubjectID:    v[2],
		Operator:     v[3],
		Amount:       v[4],
		PayloadHash:  v[5],
		PreviousHash: v[6],
	}, nil
}

func recordsToEntries(records []ledgerRecord) ([]ledger.Entry, error) {
	entries := make([]ledger.Entry, 0, len(records))
	for i, r := range records {
		e, err := r.toEntry()
		if err != nil {
			return nil, fmt.Errorf("ledger row %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Package ledger implements the append-only, SHA-256 hash-chained audit trail
// for reconciliation decisions.
//
// Each entry stores the hash of its own canonical payload concatenated with
// the previous entry's hash. Changing any stored field of any entry breaks
// either that entry's own hash or the next entry's link, and VerifyIntegrity
// reports the first broken row.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// GenesisHash is the previous hash of the first entry in every chain
	GenesisHash = "0x000"

	// SystemOperator is recorded when no human operator is involved
	SystemOperator = "SMARTCASH_AI_ENGINE"
)

// EventType names the kind of decision being recorded
type EventType string

const (
	EventAutoSTP        EventType = "AUTO_STP"
	EventManualOverride EventType = "MANUAL_OVERRIDE"
	EventDispute        EventType = "DISPUTE"
)

// Entry is one committed audit record. Field names in the csv/json tags are
// the persisted wire names shared with external audit tooling.
type Entry struct {
	Timestamp    time.Time       `json:"Timestamp" csv:"Timestamp"`
	EventType    EventType       `json:"Event_Type" csv:"Event_Type"`
	SubjectID    string          `json:"Subject_ID" csv:"Subject_ID"`
	Operator     string          `json:"Operator" csv:"Operator"`
	Amount       decimal.Decimal `json:"Amount" csv:"Amount"`
	PayloadHash  string          `json:"Payload_Hash" csv:"Payload_Hash"`
	PreviousHash string          `json:"Previous_Hash" csv:"Previous_Hash"`

	// Stored holds the persisted text of the typed fields when the entry was
	// read back from a store. Hashing uses it in preference to the parsed
	// values so a rewrite such as "100" to "100.00" is still detected.
	Stored StoredText `json:"-" csv:"-"`
}

// StoredText is the verbatim persisted form of fields that parse lossily
type StoredText struct {
	Timestamp string
	Amount    string
}

// Columns is the persisted column order
var Columns = []string{
	"Timestamp", "Event_Type", "Subject_ID", "Operator", "Amount", "Payload_Hash", "Previous_Hash",
}

// Event is the input to Append
type Event struct {
	Type      EventType
	SubjectID string
	Amount    decimal.Decimal // Zero when not applicable
	Operator  string          // Empty means SystemOperator
}

// FormatTimestamp renders a timestamp in its canonical persisted form
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp is the inverse of FormatTimestamp
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// CanonicalPayload serializes the hashed fields of e with lexicographically
// ordered keys. The hashes themselves are not part of the payload. Amount and
// timestamp come from e.Stored when set, otherwise from their canonical
// rendering, which is also what every store persists.
func CanonicalPayload(e Entry) []byte {
	amount := e.Stored.Amount
	if amount == "" {
		amount = e.Amount.String()
	}
	timestamp := e.Stored.Timestamp
	if timestamp == "" {
		timestamp = FormatTimestamp(e.Timestamp)
	}

	// encoding/json writes map keys in sorted order
	payload := map[string]string{
		"amount":     amount,
		"event_type": string(e.EventType),
		"operator":   e.Operator,
		"subject_id": e.SubjectID,
		"timestamp":  timestamp,
	}
	data, _ := json.Marshal(payload)
	return data
}

// ComputeHash returns hex(SHA-256(canonical_payload || previousHash))
func ComputeHash(e Entry, previousHash string) string {
	h := sha256.New()
	h.Write(CanonicalPayload(e))
	h.Write([]byte(previousHash))
	return hex.EncodeToString(h.Sum(nil))
}

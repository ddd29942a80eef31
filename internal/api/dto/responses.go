package dto

import (
	"time"

	"github.com/eshaffer321/smartcash-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/smartcash-reconciler/internal/infrastructure/storage"
)

// Health statuses
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// HealthResponse is returned by the health check endpoint. LedgerTip is the
// newest payload hash, or the genesis hash for an empty ledger.
type HealthResponse struct {
	Status    string `json:"status"`
	LedgerTip string `json:"ledger_tip,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewHealthResponse creates a healthy response stamped with the current time.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    HealthOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// LedgerEntryResponse is one audit ledger row. Amount is kept as a decimal string.
type LedgerEntryResponse struct {
	Timestamp    string `json:"timestamp"`
	EventType    string `json:"event_type"`
	SubjectID    string `json:"subject_id"`
	Operator     string `json:"operator"`
	Amount       string `json:"amount"`
	PayloadHash  string `json:"payload_hash"`
	PreviousHash string `json:"previous_hash"`
}

// LedgerListResponse is returned when listing ledger entries.
type LedgerListResponse struct {
	Entries     []LedgerEntryResponse `json:"entries"`
	Count       int                   `json:"count"`
	Total       int                   `json:"total"`
	NewestFirst bool                  `json:"newest_first"`
}

// IntegrityResponse is returned by the verification endpoint.
type IntegrityResponse struct {
	Valid     bool   `json:"valid"`
	Detail    string `json:"detail"`
	BreachRow *int   `json:"breach_row,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Entries   int    `json:"entries"`
}

// RunResponse represents a reconciliation run in API responses.
type RunResponse struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
	DryRun      bool   `json:"dry_run"`
	Status      string `json:"status"`
	Payments    int    `json:"payments"`
	AutoPosted  int    `json:"auto_posted"`
	Review      int    `json:"review"`
	Unmatched   int    `json:"unmatched"`
	Errors      int    `json:"errors"`
}

// RunListResponse is returned when listing reconciliation runs.
type RunListResponse struct {
	Runs  []RunResponse `json:"runs"`
	Count int           `json:"count"`
}

// FromEntry converts a ledger entry to its API form.
func FromEntry(e ledger.Entry) LedgerEntryResponse {
	return LedgerEntryResponse{
		Timestamp:    ledger.FormatTimestamp(e.Timestamp),
		EventType:    string(e.EventType),
		SubjectID:    e.SubjectID,
		Operator:     e.Operator,
		Amount:       e.Amount.String(),
		PayloadHash:  e.PayloadHash,
		PreviousHash: e.PreviousHash,
	}
}

// FromReport converts an integrity report to its API form.
func FromReport(r ledger.IntegrityReport) IntegrityResponse {
	resp := IntegrityResponse{
		Valid:   r.Valid,
		Detail:  r.Detail,
		Reason:  string(r.Reason),
		Entries: r.Entries,
	}
	if !r.Valid {
		row := r.BreachRow
		resp.BreachRow = &row
	}
	return resp
}

// FromRun converts a stored run to its API form.
func FromRun(run storage.ReconciliationRun) RunResponse {
	resp := RunResponse{
		ID:         run.ID,
		Source:     run.Source,
		StartedAt:  run.StartedAt.UTC().Format(time.RFC3339),
		DryRun:     run.DryRun,
		Status:     run.Status,
		Payments:   run.Payments,
		AutoPosted: run.AutoPosted,
		Review:     run.Review,
		Unmatched:  run.Unmatched,
		Errors:     run.Errors,
	}
	if run.CompletedAt != nil {
		resp.CompletedAt = run.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

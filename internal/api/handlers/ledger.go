package handlers

import (
	"context"
	"net/http"

	"github.com/eshaffer321/smartcash-reconciler/internal/api/dto"
	"github.com/eshaffer321/smartcash-reconciler/internal/domain/ledger"
)

// LedgerReader lists committed ledger entries.
type LedgerReader interface {
	TipReader
	GetAll(ctx context.Context) ([]ledger.Entry, error)
	GetAllNewestFirst(ctx context.Context) ([]ledger.Entry, error)
}

// LedgerVerifier walks the hash chain.
type LedgerVerifier interface {
	VerifyLedger(ctx context.Context) (ledger.IntegrityReport, error)
}

// LedgerHandler handles audit ledger HTTP requests.
type LedgerHandler struct {
	Base
	reader   LedgerReader
	verifier LedgerVerifier
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(reader LedgerReader, verifier LedgerVerifier) *LedgerHandler {
	return &LedgerHandler{reader: reader, verifier: verifier}
}

// List handles GET /api/ledger - returns entries, oldest first unless newest_first=true.
func (h *LedgerHandler) List(w http.ResponseWriter, r *http.Request) {
	newestFirst := QueryBool(r, "newest_first")
	limit, err := QueryLimit(r, 0)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadQueryError("limit", "must be a non-negative integer"))
		return
	}

	var entries []ledger.Entry
	if newestFirst {
		entries, err = h.reader.GetAllNewestFirst(r.Context())
	} else {
		entries, err = h.reader.GetAll(r.Context())
	}
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	total := len(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	response := dto.LedgerListResponse{
		Entries:     make([]dto.LedgerEntryResponse, 0, len(entries)),
		Count:       len(entries),
		Total:       total,
		NewestFirst: newestFirst,
	}
	for _, e := range entries {
		response.Entries = append(response.Entries, dto.FromEntry(e))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// Verify handles GET /api/ledger/verify. A breach is reported with 409 Conflict.
func (h *LedgerHandler) Verify(w http.ResponseWriter, r *http.Request) {
	report, err := h.verifier.VerifyLedger(r.Context())
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	status := http.StatusOK
	if !report.Valid {
		status = http.StatusConflict
	}
	h.WriteJSON(w, status, dto.FromReport(report))
}

package handlers

import (
	"context"
	"net/http"

	"github.com/eshaffer321/smartcash-reconciler/internal/api/dto"
)

// TipReader returns the hash of the newest ledger entry.
type TipReader interface {
	Tip(ctx context.Context) (string, error)
}

// HealthHandler answers load balancer health checks. With a TipReader it also
// checks that the ledger store is readable.
type HealthHandler struct {
	Base
	tips TipReader
}

// NewHealthHandler creates a health handler; tips may be nil.
func NewHealthHandler(tips TipReader) *HealthHandler {
	return &HealthHandler{tips: tips}
}

// ServeHTTP returns 200 when healthy and 503 when the ledger store cannot be read.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := dto.NewHealthResponse()
	if h.tips == nil {
		h.WriteJSON(w, http.StatusOK, response)
		return
	}

	tip, err := h.tips.Tip(r.Context())
	if err != nil {
		response.Status = dto.HealthDegraded
		h.WriteJSON(w, http.StatusServiceUnavailable, response)
		return
	}
	response.LedgerTip = tip
	h.WriteJSON(w, http.StatusOK, response)
}

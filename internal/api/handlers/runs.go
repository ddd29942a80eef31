package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/smartcash-reconciler/internal/api/dto"
	"github.com/eshaffer321/smartcash-reconciler/internal/infrastructure/storage"
)

// RunsHandler handles reconciliation run HTTP requests.
type RunsHandler struct {
	Base
	repo storage.RunRepository
}

// NewRunsHandler creates a new runs handler. repo may be nil when the
// storage backend keeps no run history.
func NewRunsHandler(repo storage.RunRepository) *RunsHandler {
	return &RunsHandler{repo: repo}
}

// List handles GET /api/runs - returns recent reconciliation runs.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		h.WriteError(w, http.StatusNotImplemented, dto.UnavailableError("run history"))
		return
	}

	limit, err := QueryLimit(r, 20)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadQueryError("limit", "must be a non-negative integer"))
		return
	}

	runs, err := h.repo.ListRuns(r.Context(), limit)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.RunListResponse{
		Runs:  make([]dto.RunResponse, 0, len(runs)),
		Count: len(runs),
	}
	for _, run := range runs {
		response.Runs = append(response.Runs, dto.FromRun(run))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/runs/{id} - returns a single run by ID.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		h.WriteError(w, http.StatusNotImplemented, dto.UnavailableError("run history"))
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadQueryError("id", "run ID is required"))
		return
	}

	run, err := h.repo.GetRun(r.Context(), id)
	if errors.Is(err, storage.ErrRunNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("reconciliation run", id))
		return
	}
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.FromRun(*run))
}

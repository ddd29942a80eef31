package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/eshaffer321/smartcash-reconciler/internal/api/dto"
)

// Base provides the response helpers shared by handlers.
type Base struct{}

// WriteJSON writes data with the given status. Ledger and run views change
// with every append, so responses are never cached.
func (b *Base) WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an APIError with the given status.
func (b *Base) WriteError(w http.ResponseWriter, status int, err dto.APIError) {
	b.WriteJSON(w, status, err)
}

// QueryLimit reads a non-negative "limit" query parameter. Absent means def.
func QueryLimit(r *http.Request, def int) (int, error) {
	val := r.URL.Query().Get("limit")
	if val == "" {
		return def, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

// QueryBool reads a boolean query parameter; anything strconv.ParseBool
// rejects counts as false.
func QueryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

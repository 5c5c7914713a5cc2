// Package handlers serves the /v1 HTTP API. Handlers stay thin: decode,
// delegate to the owning service, map sentinel errors to status codes.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/chatpesa/backend/internal/ledger"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// pathID parses the {id} path value set by the Go 1.22 mux patterns.
func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	return id, err == nil
}

func isInsufficientFunds(err error) bool {
	return errors.Is(err, ledger.ErrInsufficientFunds)
}

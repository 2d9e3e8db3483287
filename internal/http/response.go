package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"bankos/internal/core"
	"bankos/internal/event"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders an error as {"error": "..."} with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusForError maps domain errors onto HTTP statuses. Validation errors
// are the caller's fault; unknown entities are 404; anything else is a 500
// with the detail kept out of the response body.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrAccountNotFound),
		errors.Is(err, core.ErrCustomerNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidType),
		errors.Is(err, core.ErrEmptyDisplayName),
		errors.Is(err, core.ErrEmptyProductType),
		errors.Is(err, core.ErrEmptyCustomerID),
		errors.Is(err, core.ErrEmptyAccountID),
		errors.Is(err, core.ErrEmptyDomain),
		errors.Is(err, core.ErrEmptyAction):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, event.ErrPublish):
		return http.StatusServiceUnavailable, "event transport unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
)

// errorBody extends the shared error shape with the fields clients act on.
type errorBody struct {
	Error         string `json:"error"`
	Code          string `json:"code"`
	Field         string `json:"field,omitempty"`
	Rule          string `json:"rule,omitempty"`
	ConflictingID string `json:"conflicting_id,omitempty"`
}

// writeError maps the engine's error taxonomy onto HTTP statuses. Store failures are
// logged; their details never reach the client.
func (h *BookingHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *booking.ValidationError
		pe *booking.PolicyError
		ce *booking.ConflictError
		ne *booking.NotFoundError
		te *booking.TransitionError
		se *booking.StoreError
	)
	switch {
	case errors.As(err, &ve):
		httpx.WriteJSON(w, http.StatusBadRequest, errorBody{Error: ve.Error(), Code: "validation_error", Field: ve.Field})
	case errors.As(err, &ne):
		httpx.WriteJSON(w, http.StatusNotFound, errorBody{Error: ne.Error(), Code: "not_found"})
	case errors.As(err, &ce):
		httpx.WriteJSON(w, http.StatusConflict, errorBody{Error: ce.Error(), Code: "conflict", ConflictingID: ce.ConflictingID})
	case errors.As(err, &te):
		httpx.WriteJSON(w, http.StatusConflict, errorBody{Error: te.Error(), Code: "invalid_transition"})
	case errors.As(err, &pe):
		status, code := http.StatusUnprocessableEntity, "policy_violation"
		if pe.Rule == "permission" {
			status, code = http.StatusForbidden, "forbidden"
		}
		httpx.WriteJSON(w, status, errorBody{Error: pe.Error(), Code: code, Rule: pe.Rule})
	case errors.As(err, &se) && se.Retryable:
		h.logger.WarnContext(r.Context(), "retryable store failure", "op", se.Op, "err", se.Err, "path", r.URL.Path)
		w.Header().Set("Retry-After", "1")
		httpx.WriteError(w, http.StatusServiceUnavailable, "busy", "the calendar is busy; retry shortly")
	case errors.As(err, &se):
		h.logger.ErrorContext(r.Context(), "store failure", "op", se.Op, "err", se.Err, "path", r.URL.Path)
		httpx.WriteError(w, http.StatusServiceUnavailable, "store_unavailable", "booking storage is unavailable")
	default:
		h.logger.ErrorContext(r.Context(), "unexpected error", "err", err, "path", r.URL.Path)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

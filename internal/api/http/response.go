package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"storage-booking-backend/internal/domain"
)

type errorResponse struct {
	Error  string `json:"error"`
	ItemID string `json:"item_id,omitempty"`
}

type messageResponse struct {
	Message string          `json:"message"`
	Booking *domain.Booking `json:"booking,omitempty"`
}

type listResponse struct {
	Bookings []domain.Booking `json:"bookings"`
	Total    int32            `json:"total"`
	Page     int32            `json:"page"`
	PageSize int32            `json:"page_size"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Error: message})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation, domain.KindInsufficientStock, domain.KindIllegalTransition:
		return http.StatusBadRequest
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err for the client. Integrity and infrastructure
// failures are logged and answered with a generic 500.
func writeError(w http.ResponseWriter, log *slog.Logger, r *http.Request, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}

	code := statusFor(de.Kind)
	if code == http.StatusInternalServerError {
		log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMessage(w, code, "internal server error")
		return
	}
	writeJSON(w, code, errorResponse{Error: de.Message, ItemID: de.ItemID})
}

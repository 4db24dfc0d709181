package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/logger"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrLeadUnavailable),
		errors.Is(err, domain.ErrLeadSold),
		errors.Is(err, domain.ErrDuplicateDeposit),
		errors.Is(err, domain.ErrExternalRefConflict),
		errors.Is(err, domain.ErrAlreadyRefunded),
		errors.Is(err, domain.ErrEmailTaken),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrAccountFrozen), errors.Is(err, domain.ErrLedgerMismatch):
		return http.StatusLocked
	case errors.Is(err, domain.ErrTransactionFailed), errors.Is(err, domain.ErrConcurrentModification):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Unhandled request error", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal server error"
	} else if status == http.StatusServiceUnavailable {
		logger.WarnContext(r.Context(), "Retryable request failure", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeValidationError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: "validation failed"}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		resp.Details = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			resp.Details[fe.Field()] = fmt.Sprintf("failed on '%s' tag", fe.Tag())
		}
	} else {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

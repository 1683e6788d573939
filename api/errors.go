package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/warp/leave-ledger/generic"
	"go.uber.org/zap"
)

// =============================================================================
// ERROR MAPPING
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// statusFor maps domain errors to an HTTP status and a stable code.
// Order matters: InsufficientBalance is also a client error.
func statusFor(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest, "validation_failed"
	case generic.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, generic.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, generic.ErrLedgerInvariant):
		return http.StatusUnprocessableEntity, "ledger_invariant"
	case errors.Is(err, generic.ErrInvalidDateRange):
		return http.StatusBadRequest, "invalid_date_range"
	case errors.Is(err, generic.ErrUnknownAction):
		return http.StatusBadRequest, "unknown_action"
	case generic.IsClientError(err):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, generic.ErrJobLocked):
		return http.StatusConflict, "job_locked"
	case generic.IsConflict(err):
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, "internal"
}

// writeDomainError writes err with its mapped status. Server-side failures
// are logged and their details withheld from the client.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeJSON(w, status, ErrorResponse{Error: "internal error", Code: code})
		return
	}

	resp := ErrorResponse{Error: err.Error(), Code: code}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		resp.Error = "validation failed"
		resp.Details = describeValidation(verrs)
	}
	writeJSON(w, status, resp)
}

func describeValidation(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Field() + " failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, "; ")
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

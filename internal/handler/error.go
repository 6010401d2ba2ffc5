// Package handler provides shared HTTP response helpers.
package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/vanir/internal/domain"
	"github.com/dukerupert/vanir/internal/middleware"
)

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized
	case domain.EPAYMENT:
		return http.StatusPaymentRequired
	case domain.EFORBIDDEN:
		return http.StatusForbidden
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.ECONFLICT, domain.ETRANSITION:
		return http.StatusConflict
	case domain.ENOTIMPL:
		return http.StatusNotImplemented
	case domain.EINTERNAL:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields,omitempty"`
	} `json:"error"`
}

// ErrorResponse writes an error to the client. Validation errors carry
// their field map; internal errors are logged with detail but reported
// with a generic message. JSON is the default; clients that only accept
// text get plain text.
func ErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var code, message string
	var fields map[string]string

	if domain.IsValidationError(err) {
		code = domain.EINVALID
		message = "validation failed"
		fields = domain.GetValidationFields(err)
	} else {
		code = domain.ErrorCode(err)
		message = domain.ErrorMessage(err)
	}
	status := ErrorCodeToHTTPStatus(code)

	logger := middleware.GetLogger(r.Context())
	if status >= 500 {
		logger.Error("request failed", "op", domain.ErrorOp(err), "error", err)
	} else {
		logger.Info("request rejected", "op", domain.ErrorOp(err), "code", code, "error", err)
	}

	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "text/html") || strings.Contains(accept, "text/plain") {
		http.Error(w, message, status)
		return
	}

	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	body.Error.Fields = fields

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}

// JSON writes a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

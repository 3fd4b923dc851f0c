// Package respond writes JSON responses and maps domain errors to HTTP.
package respond

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/kevin07696/purchase-gateway/internal/domain"
)

// MaxBodyBytes caps request bodies
const MaxBodyBytes = 1 << 20

// ErrorBody is the JSON shape of every error response
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON writes v with status
func JSON(w http.ResponseWriter, logger *zap.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Error writes err as an ErrorBody. Errors without a domain code are
// reported as internal and their detail is not leaked.
func Error(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status := StatusFor(err)
	body := ErrorBody{Code: string(domain.ErrorCodeInternalError), Message: "internal error"}

	var de *domain.DomainError
	if errors.As(err, &de) {
		body.Code = string(de.Code)
		if status < http.StatusInternalServerError || domain.IsUpstreamError(err) {
			body.Message = de.Message
		}
	}

	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("code", body.Code),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", fields...)
	} else {
		logger.Warn("Request rejected", fields...)
	}
	JSON(w, logger, status, body)
}

// StatusFor maps an error to its HTTP status
func StatusFor(err error) int {
	code := domain.GetErrorCode(err)
	switch {
	case code == "":
		return http.StatusInternalServerError
	case domain.IsValidationError(err):
		return http.StatusBadRequest
	case domain.IsNotFoundError(err):
		return http.StatusNotFound
	case code == domain.ErrorCodeTokenInvalid || code == domain.ErrorCodeTokenExpired:
		return http.StatusForbidden
	case domain.IsStateError(err):
		return http.StatusConflict
	case code == domain.ErrorCodeGatewayTimeout:
		return http.StatusGatewayTimeout
	case domain.IsUpstreamError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Decode reads a JSON body into v
func Decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewDomainError(domain.ErrorCodeValidationFailed, "request body is required")
		}
		return domain.WrapError(domain.ErrorCodeValidationFailed, "malformed request body", err)
	}
	return nil
}

package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Validation Errors: the caller's data was wrong
	ErrorCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationAmountInvalid ErrorCode = "VALIDATION_AMOUNT_INVALID"
	ErrorCodeValidationDaysInvalid   ErrorCode = "VALIDATION_DAYS_INVALID"
	ErrorCodeValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"
	ErrorCodeSiteNotFound            ErrorCode = "SITE_NOT_FOUND"
	ErrorCodeCrossSaleSiteNotFound   ErrorCode = "CROSS_SALE_SITE_NOT_FOUND"
	ErrorCodeMissingRedirectURL      ErrorCode = "MISSING_REDIRECT_URL"
	ErrorCodeInvalidForceCascade     ErrorCode = "INVALID_FORCE_CASCADE"
	ErrorCodeInvalidPaymentType      ErrorCode = "INVALID_PAYMENT_TYPE"
	ErrorCodeNoBillersAvailable      ErrorCode = "NO_BILLERS_AVAILABLE"

	// State Errors: the session can no longer be acted on this way
	ErrorCodeSessionNotFound         ErrorCode = "SESSION_NOT_FOUND"
	ErrorCodeSessionAlreadyProcessed ErrorCode = "SESSION_ALREADY_PROCESSED"
	ErrorCodeSessionExpired          ErrorCode = "SESSION_EXPIRED"
	ErrorCodeIllegalStateTransition  ErrorCode = "ILLEGAL_STATE_TRANSITION"
	ErrorCodeSessionConflict         ErrorCode = "SESSION_CONFLICT"
	ErrorCodeSessionAlreadyExists    ErrorCode = "SESSION_ALREADY_EXISTS"
	ErrorCodeTokenInvalid            ErrorCode = "TOKEN_INVALID"
	ErrorCodeTokenExpired            ErrorCode = "TOKEN_EXPIRED"
	ErrorCodeTransactionNotFound     ErrorCode = "TRANSACTION_NOT_FOUND"
	ErrorCodeSubmitBudgetExhausted   ErrorCode = "SUBMIT_BUDGET_EXHAUSTED"

	// Upstream Errors (collaborator services)
	ErrorCodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	ErrorCodeGatewayError        ErrorCode = "GATEWAY_ERROR"
	ErrorCodeGatewayTimeout      ErrorCode = "GATEWAY_TIMEOUT"

	// Internal Errors
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches on error code so sentinel values work with errors.Is
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	switch GetErrorCode(err) {
	case ErrorCodeValidationFailed,
		ErrorCodeValidationAmountInvalid,
		ErrorCodeValidationDaysInvalid,
		ErrorCodeValidationMissingField,
		ErrorCodeSiteNotFound,
		ErrorCodeCrossSaleSiteNotFound,
		ErrorCodeMissingRedirectURL,
		ErrorCodeInvalidForceCascade,
		ErrorCodeInvalidPaymentType,
		ErrorCodeNoBillersAvailable:
		return true
	}
	return false
}

// IsStateError checks if an error means the session can no longer be acted on
func IsStateError(err error) bool {
	switch GetErrorCode(err) {
	case ErrorCodeSessionNotFound,
		ErrorCodeSessionAlreadyProcessed,
		ErrorCodeSessionExpired,
		ErrorCodeIllegalStateTransition,
		ErrorCodeSessionConflict,
		ErrorCodeSessionAlreadyExists,
		ErrorCodeTokenInvalid,
		ErrorCodeTokenExpired,
		ErrorCodeTransactionNotFound,
		ErrorCodeSubmitBudgetExhausted:
		return true
	}
	return false
}

// IsUpstreamError checks if an error came from a collaborator service
func IsUpstreamError(err error) bool {
	switch GetErrorCode(err) {
	case ErrorCodeUpstreamUnavailable, ErrorCodeGatewayError, ErrorCodeGatewayTimeout:
		return true
	}
	return false
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeSessionNotFound || code == ErrorCodeTransactionNotFound
}

// Sentinel instances for errors.Is comparisons. Do not mutate; use WrapError
// or NewDomainError(...).WithDetail to attach context.
var (
	ErrValidationFailed        = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrValidationAmountInvalid = NewDomainError(ErrorCodeValidationAmountInvalid, "invalid amount")
	ErrValidationDaysInvalid   = NewDomainError(ErrorCodeValidationDaysInvalid, "invalid day range")
	ErrValidationMissingField  = NewDomainError(ErrorCodeValidationMissingField, "required field missing")
	ErrSiteNotFound            = NewDomainError(ErrorCodeSiteNotFound, "site not found")
	ErrCrossSaleSiteNotFound   = NewDomainError(ErrorCodeCrossSaleSiteNotFound, "cross-sale site not found")
	ErrMissingRedirectURL      = NewDomainError(ErrorCodeMissingRedirectURL, "redirect url is required for third-party billers")
	ErrInvalidForceCascade     = NewDomainError(ErrorCodeInvalidForceCascade, "invalid force-cascade")
	ErrInvalidPaymentType      = NewDomainError(ErrorCodeInvalidPaymentType, "invalid payment type")
	ErrNoBillersAvailable      = NewDomainError(ErrorCodeNoBillersAvailable, "no billers available for purchase")

	ErrSessionNotFound         = NewDomainError(ErrorCodeSessionNotFound, "purchase session not found")
	ErrSessionAlreadyProcessed = NewDomainError(ErrorCodeSessionAlreadyProcessed, "purchase session already processed")
	ErrSessionExpired          = NewDomainError(ErrorCodeSessionExpired, "purchase session expired")
	ErrIllegalStateTransition  = NewDomainError(ErrorCodeIllegalStateTransition, "illegal state transition")
	ErrSessionConflict         = NewDomainError(ErrorCodeSessionConflict, "purchase session was modified concurrently")
	ErrSessionAlreadyExists    = NewDomainError(ErrorCodeSessionAlreadyExists, "purchase session already exists")
	ErrTokenInvalid            = NewDomainError(ErrorCodeTokenInvalid, "invalid resume token")
	ErrTokenExpired            = NewDomainError(ErrorCodeTokenExpired, "resume token expired")
	ErrTransactionNotFound     = NewDomainError(ErrorCodeTransactionNotFound, "transaction not found")
	ErrSubmitBudgetExhausted   = NewDomainError(ErrorCodeSubmitBudgetExhausted, "biller submit budget exhausted")

	ErrUpstreamUnavailable = NewDomainError(ErrorCodeUpstreamUnavailable, "upstream service unavailable")
	ErrGatewayError        = NewDomainError(ErrorCodeGatewayError, "payment gateway error")
	ErrGatewayTimedOut     = NewDomainError(ErrorCodeGatewayTimeout, "payment gateway timeout")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal server error")
	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)

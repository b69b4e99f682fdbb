// Package errors provides the standardized error taxonomy surfaced over HTTP.
package errors

import (
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeUnauthenticated     ErrorCode = "UNAUTHENTICATED"
	ErrCodeForbidden           ErrorCode = "FORBIDDEN"
	ErrCodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	ErrCodePayloadTooLarge     ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrCodeInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrCodeRepairFailed        ErrorCode = "REPAIR_FAILED"
	ErrCodeRepairInvalidOutput ErrorCode = "REPAIR_INVALID_OUTPUT"
	ErrCodeInternal            ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error. Message is safe to
// return to callers; Details is for logs only.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata attaches a log field to the error. Metadata never reaches the
// response body.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Status returns the HTTP status for the error code.
func (e *StandardError) Status() int {
	return HTTPStatus(e.Code)
}

// HTTPStatus maps an error code onto its HTTP status.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeInsufficientBalance:
		return http.StatusPaymentRequired
	case ErrCodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrCodeInvalidRequest:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func newError(code ErrorCode, message, details string) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnauthenticatedError is returned when no credential accompanies a metered request.
func NewUnauthenticatedError() *StandardError {
	return newError(ErrCodeUnauthenticated, "API key missing", "")
}

// NewForbiddenError covers both unknown credentials and failed lookups.
func NewForbiddenError(details string) *StandardError {
	return newError(ErrCodeForbidden, "Invalid API key", details)
}

func NewInsufficientBalanceError(details string) *StandardError {
	return newError(ErrCodeInsufficientBalance, "Insufficient credits", details)
}

// NewPayloadTooLargeError reports the limit that was exceeded. demo selects the demo wording.
func NewPayloadTooLargeError(limit int, demo bool) *StandardError {
	msg := "Input too large"
	if demo {
		msg = "Input too large for demo"
	}
	return newError(ErrCodePayloadTooLarge, msg, "").WithMetadata("limitChars", limit)
}

func NewInvalidRequestError(details string) *StandardError {
	return newError(ErrCodeInvalidRequest, "Invalid request body", details)
}

func NewRepairFailedError(err error) *StandardError {
	return newError(ErrCodeRepairFailed, "Repair failed", errDetails(err))
}

// NewRepairInvalidOutputError is used when the final parse of the fallback output fails.
func NewRepairInvalidOutputError(err error) *StandardError {
	return newError(ErrCodeRepairInvalidOutput, "Repair produced invalid JSON", errDetails(err))
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Internal server error", errDetails(err))
}

func errDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

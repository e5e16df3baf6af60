// Package errors provides the application error type, the data-store error
// taxonomy and HTTP error helpers.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	// Pipeline outcomes.
	CodeInputRejected = "INPUT_REJECTED"
	CodeLowConfidence = "LOW_CONFIDENCE"
	CodeDataStore     = "DATA_STORE_ERROR"
	CodeRender        = "RENDER_ERROR"
	CodeCache         = "CACHE_ERROR"
	CodeFallback      = "FALLBACK_ERROR"

	// Client errors (4xx).
	CodeValidation     = "VALIDATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeRateLimited    = "RATE_LIMITED"
	CodeInvalidRequest = "INVALID_REQUEST"

	// Server errors (5xx).
	CodeInternal    = "INTERNAL_ERROR"
	CodeUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout     = "TIMEOUT"
)

// Kind classifies a data-store failure.
type Kind string

const (
	KindNone          Kind = ""
	KindNetwork       Kind = "network"
	KindAuthorization Kind = "authorization"
	KindQuota         Kind = "quota"
	KindNotFound      Kind = "not_found"
	KindValidation    Kind = "validation"
	KindServer        Kind = "server"
	KindUnknown       Kind = "unknown"

	// Terminal pipeline outcomes reported through the same field.
	KindInputRejected Kind = "input_rejected"
	KindLowConfidence Kind = "low_confidence"
	KindRender        Kind = "render"
	KindFallback      Kind = "fallback"
)

// Retryable reports whether failures of this kind are transient.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindQuota, KindServer:
		return true
	default:
		return false
	}
}

// AppError represents an application error with code and details.
type AppError struct {
	Code    string            `json:"code"`
	Kind    Kind              `json:"kind,omitempty"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code for this error.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeValidation, CodeInvalidRequest, CodeInputRejected:
		return http.StatusBadRequest
	case CodeLowConfidence:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeDataStore, CodeFallback:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with an AppError.
func Wrap(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetail adds a single detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithKind sets the failure kind.
func (e *AppError) WithKind(kind Kind) *AppError {
	e.Kind = kind
	return e
}

// DataStoreError wraps a data-store failure with its classified kind.
func DataStoreError(kind Kind, err error) *AppError {
	return Wrap(CodeDataStore, "data store request failed", err).WithKind(kind)
}

// FallbackError wraps a failure of the fallback answerer.
func FallbackError(err error) *AppError {
	return Wrap(CodeFallback, "fallback answer failed", err).WithKind(KindFallback)
}

// ValidationError creates a validation error.
func ValidationError(message string) *AppError {
	return New(CodeValidation, message)
}

// InvalidRequestError creates an invalid request error.
func InvalidRequestError(message string) *AppError {
	return New(CodeInvalidRequest, message)
}

// RateLimitedError creates a rate limited error with retry information.
func RateLimitedError(retryAfterSeconds int) *AppError {
	err := New(CodeRateLimited, "rate limit exceeded")
	if retryAfterSeconds > 0 {
		err = err.WithDetail("retry_after", fmt.Sprintf("%d", retryAfterSeconds))
	}
	return err
}

// KindOf returns the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var appErr *AppError
	if stderrors.As(err, &appErr) && appErr.Kind != KindNone {
		return appErr.Kind
	}
	return KindUnknown
}

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

// ErrorResponse is the standard JSON error response structure.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Kind    Kind              `json:"kind,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteJSON writes a JSON error response to the ResponseWriter.
func WriteJSON(w http.ResponseWriter, status int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers already sent, nothing useful to do with an encoding error.
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteError writes an error response. Non-AppError messages are not leaked
// to the client.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		WriteJSON(w, appErr.HTTPStatus(), ErrorResponse{
			Error:   appErr.Message,
			Code:    appErr.Code,
			Kind:    appErr.Kind,
			Details: appErr.Details,
		})
		return
	}

	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: "internal server error",
		Code:  CodeInternal,
	})
}

package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error codes rendered to API consumers.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeRateLimited    = "RATE_LIMITED"
	CodeUpstream       = "UPSTREAM_ERROR"
	CodePartialFailure = "PARTIAL_FAILURE"
)

// AppError is a structured error with a plain-language message safe for callers.
// Internal carries the underlying cause for logging only.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal returns a copy with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Internal = err
	return &cpy
}

// Is matches AppErrors by code so sentinel comparisons survive WithInternal copies.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrValidation = &AppError{
		Code:       CodeValidation,
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}
	ErrNotFound = &AppError{
		Code:       CodeNotFound,
		Message:    "Registration not found",
		StatusCode: http.StatusNotFound,
	}
	ErrUnauthorized = &AppError{
		Code:       CodeUnauthorized,
		Message:    "Unauthorized",
		StatusCode: http.StatusUnauthorized,
	}
	ErrRateLimited = &AppError{
		Code:       CodeRateLimited,
		Message:    "Too many failed attempts, try again later",
		StatusCode: http.StatusTooManyRequests,
	}
	ErrUpstream = &AppError{
		Code:       CodeUpstream,
		Message:    "Server error, please try again",
		StatusCode: http.StatusInternalServerError,
	}
	ErrPartialFailure = &AppError{
		Code:       CodePartialFailure,
		Message:    "Request partially completed",
		StatusCode: http.StatusInternalServerError,
	}
)

// Validation builds a 400 error with the given message.
func Validation(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message, StatusCode: http.StatusBadRequest}
}

// NotFound builds a 404 error with the given message.
func NotFound(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message, StatusCode: http.StatusNotFound}
}

// Upstream wraps a store or provider failure. Deadline errors map to 503 so
// callers can tell a transient timeout from a hard failure.
func Upstream(err error, message string) *AppError {
	status := http.StatusInternalServerError
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusServiceUnavailable
	}
	return &AppError{Code: CodeUpstream, Message: message, StatusCode: status, Internal: err}
}

// FromError converts any error into an AppError, defaulting to ErrUpstream.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Upstream(err, ErrUpstream.Message)
}

package common

import (
	"errors"
	"net/http"
)

// Error codes shared across the API surface. The four families mirror how
// failures are recovered: validation and conflict errors are reported to the
// caller, dependency errors are retryable, integrity violations indicate a
// broken invariant and are alerting.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeConflict   = "CONFLICT"
	CodeDependency = "DEPENDENCY_ERROR"
	CodeIntegrity  = "INTEGRITY_VIOLATION"
	CodeNotFound   = "NOT_FOUND"
	CodeInternal   = "INTERNAL"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// ValidationError reports a user-correctable problem with a field-level message.
func ValidationError(message string, details any) *AppError {
	return &AppError{Code: CodeValidation, Message: message, HTTPStatus: http.StatusBadRequest, Details: details}
}

// ConflictError reports a state conflict (cap reached, cooldown active, replay).
func ConflictError(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message, HTTPStatus: http.StatusConflict}
}

// DependencyError reports an upstream collaborator failure. Nothing was
// mutated and the caller may retry the whole request.
func DependencyError(message string, err error) *AppError {
	return &AppError{Code: CodeDependency, Message: message, HTTPStatus: http.StatusBadGateway, Err: err}
}

// IntegrityError reports a broken invariant. These should never occur under
// correct concurrency control and are logged at error level by the boundary.
func IntegrityError(message string, err error) *AppError {
	return &AppError{Code: CodeIntegrity, Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}

// NotFoundError reports a missing entity.
func NotFoundError(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message, HTTPStatus: http.StatusNotFound}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// AsAppError extracts the AppError from an error chain, or wraps unknown
// errors as internal ones so handlers always have a renderable shape.
func AsAppError(err error) *AppError {
	var target *AppError
	if errors.As(err, &target) {
		return target
	}
	return &AppError{Code: CodeInternal, Message: "internal error", HTTPStatus: http.StatusInternalServerError, Err: err}
}

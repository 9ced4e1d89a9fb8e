package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data (e.g., unique constraint violation).
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
	// ErrCodeUnsupported indicates the configured provider cannot perform the operation.
	ErrCodeUnsupported ErrorCode = "unsupported"

	// ErrCodeNetwork indicates a provider or store call failed to complete.
	ErrCodeNetwork ErrorCode = "network"
	// ErrCodeInvalidCredentials indicates the identity provider rejected a sign-in.
	ErrCodeInvalidCredentials ErrorCode = "invalid_credentials"
	// ErrCodeRoleQuery indicates a role store read or write failed.
	ErrCodeRoleQuery ErrorCode = "role_query"
	// ErrCodeResolutionTimeout indicates role resolution exceeded its budget.
	ErrCodeResolutionTimeout ErrorCode = "resolution_timeout"
	// ErrCodeRedirectGuard indicates an internal redirect latch invariant was broken.
	ErrCodeRedirectGuard ErrorCode = "redirect_guard_violation"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newError(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError { return newError(ErrCodeNotFound, message) }

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return newError(ErrCodeNotFound, fmt.Sprintf(format, args...))
}

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError { return newError(ErrCodeConflict, message) }

// Validation creates a new Validation error.
func Validation(message string) *AppError { return newError(ErrCodeValidation, message) }

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
	}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError { return newError(ErrCodeInternal, message) }

// Unsupported creates a new Unsupported error.
func Unsupported(message string) *AppError { return newError(ErrCodeUnsupported, message) }

// InvalidCredentials creates the error surfaced verbatim to sign-in forms.
func InvalidCredentials(message string) *AppError {
	return newError(ErrCodeInvalidCredentials, message)
}

// Network wraps a failed provider or store round-trip.
func Network(err error, message string) *AppError { return Wrap(err, ErrCodeNetwork, message) }

// RoleQuery wraps a failed role store operation.
func RoleQuery(err error, message string) *AppError { return Wrap(err, ErrCodeRoleQuery, message) }

// ResolutionTimeout reports that role resolution exceeded its budget.
func ResolutionTimeout(message string) *AppError {
	return newError(ErrCodeResolutionTimeout, message)
}

// RedirectGuardViolation reports a broken redirect latch invariant.
func RedirectGuardViolation(message string) *AppError {
	return newError(ErrCodeRedirectGuard, message)
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool { return isCode(err, ErrCodeNotFound) }

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool { return isCode(err, ErrCodeConflict) }

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool { return isCode(err, ErrCodeValidation) }

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool { return isCode(err, ErrCodeTimeout) }

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool { return isCode(err, ErrCodeCanceled) }

// IsAppError checks if an error is an AppError carrying code.
func IsAppError(err error, code ErrorCode) bool { return isCode(err, code) }

// IsInvalidCredentials checks if an error is an InvalidCredentials error.
func IsInvalidCredentials(err error) bool { return isCode(err, ErrCodeInvalidCredentials) }

// IsUnsupported checks if an error is an Unsupported error.
func IsUnsupported(err error) bool { return isCode(err, ErrCodeUnsupported) }

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

// UserMessage returns the message intended for display. For AppErrors this
// is the Message without the wrapped cause; other errors yield fallback.
func UserMessage(err error, fallback string) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}

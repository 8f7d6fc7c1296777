package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a colorbook error code.
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"      // 400
	ErrMissingCredential   ErrorCode = "MISSING_CREDENTIAL"   // 401
	ErrNotFound            ErrorCode = "NOT_FOUND"            // 404
	ErrNoSelection         ErrorCode = "NO_SELECTION"         // 409
	ErrConflict            ErrorCode = "CONFLICT"             // 409
	ErrEmptyCanvas         ErrorCode = "EMPTY_CANVAS"         // 422
	ErrQuotaExceeded       ErrorCode = "QUOTA_EXCEEDED"       // 429
	ErrInternal            ErrorCode = "INTERNAL"             // 500
	ErrPlaybackFailed      ErrorCode = "PLAYBACK_FAILED"      // 500
	ErrServiceUnavailable  ErrorCode = "SERVICE_UNAVAILABLE"  // 502
	ErrDecodeFailed        ErrorCode = "DECODE_FAILED"        // 502
	ErrResourceUnavailable ErrorCode = "RESOURCE_UNAVAILABLE" // 503
)

// StudioError represents a structured error with code, status, and details.
type StudioError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *StudioError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *StudioError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *StudioError {
	return &StudioError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing history entry or artifact.
func NewNotFound(identifier string) *StudioError {
	return &StudioError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewNoSelection creates a 409 error for operations that need a selected history entry.
func NewNoSelection(op string) *StudioError {
	return &StudioError{
		Code:    ErrNoSelection,
		Status:  409,
		Message: fmt.Sprintf("%s requires a selected creation; pick one from history first", op),
		Details: map[string]any{"operation": op},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *StudioError {
	return &StudioError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewEmptyCanvas creates a 422 error when a surface has nothing drawn on it.
func NewEmptyCanvas() *StudioError {
	return &StudioError{
		Code:    ErrEmptyCanvas,
		Status:  422,
		Message: "the canvas is empty; draw something first",
	}
}

// NewMissingCredential creates a 401 error when a service key is not configured.
func NewMissingCredential(service, envVar string) *StudioError {
	return &StudioError{
		Code:    ErrMissingCredential,
		Status:  401,
		Message: fmt.Sprintf("%s is not configured; set %s", service, envVar),
		Details: map[string]any{"service": service, "env": envVar},
	}
}

// NewQuotaExceeded creates a 429 error when a service rejects a request for rate or quota reasons.
func NewQuotaExceeded(service string) *StudioError {
	return &StudioError{
		Code:    ErrQuotaExceeded,
		Status:  429,
		Message: fmt.Sprintf("%s is busy or out of quota; try again in a little while", service),
		Details: map[string]any{"service": service},
	}
}

// NewServiceUnavailable creates a 502 error for network or upstream failures.
func NewServiceUnavailable(service string, err error) *StudioError {
	return &StudioError{
		Code:    ErrServiceUnavailable,
		Status:  502,
		Message: fmt.Sprintf("could not reach %s; check your connection and try again", service),
		Details: map[string]any{"service": service},
		cause:   err,
	}
}

// NewDecodeFailed creates a 502 error when a service response cannot be decoded.
func NewDecodeFailed(what string, err error) *StudioError {
	return &StudioError{
		Code:    ErrDecodeFailed,
		Status:  502,
		Message: fmt.Sprintf("could not read the %s that came back", what),
		Details: map[string]any{"what": what},
		cause:   err,
	}
}

// NewResourceUnavailable creates a 503 error for a missing device, permission, or binary.
func NewResourceUnavailable(resource string, err error) *StudioError {
	msg := fmt.Sprintf("%s is not available", resource)
	if err != nil {
		msg = fmt.Sprintf("%s is not available: %v", resource, err)
	}
	return &StudioError{
		Code:    ErrResourceUnavailable,
		Status:  503,
		Message: msg,
		Details: map[string]any{"resource": resource},
		cause:   err,
	}
}

// NewPlaybackFailed creates a 500 error for audio playback failures.
func NewPlaybackFailed(err error) *StudioError {
	msg := "story playback failed"
	if err != nil {
		msg = fmt.Sprintf("story playback failed: %v", err)
	}
	return &StudioError{
		Code:    ErrPlaybackFailed,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *StudioError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &StudioError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error is (or wraps) a StudioError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *StudioError
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}

// As extracts a StudioError from err, wrapping unknown errors as internal.
func As(err error) *StudioError {
	if err == nil {
		return nil
	}
	var sErr *StudioError
	if stderrors.As(err, &sErr) {
		return sErr
	}
	return NewInternal(err)
}

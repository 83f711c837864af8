package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a ccpro error code.
type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"     // 400
	ErrUnauthorized      ErrorCode = "UNAUTHORIZED"        // 403
	ErrNotFound          ErrorCode = "NOT_FOUND"           // 404
	ErrFileNotFound      ErrorCode = "FILE_NOT_FOUND"      // 404
	ErrNameAlreadyExists ErrorCode = "NAME_ALREADY_EXISTS" // 409
	ErrUnsupportedQuery  ErrorCode = "UNSUPPORTED_QUERY"   // 422, recovered by search
	ErrRateLimited       ErrorCode = "RATE_LIMITED"        // 429
	ErrCancelled         ErrorCode = "CANCELLED"           // 499
	ErrInternal          ErrorCode = "INTERNAL"            // 500
	ErrUnavailable       ErrorCode = "UNAVAILABLE"         // 503
)

// CCError represents a structured error with code, status, and details.
type CCError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *CCError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *CCError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for a field constraint violation.
func NewInvalidRequest(msg string) *CCError {
	return &CCError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewInvalidField creates a 400 error naming the offending field.
func NewInvalidField(field, msg string) *CCError {
	return &CCError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: fmt.Sprintf("%s: %s", field, msg),
		Details: map[string]any{"field": field},
	}
}

// NewUnauthorized creates a 403 error. Terminal for the session when raised
// by the allow-list check.
func NewUnauthorized(msg string) *CCError {
	return &CCError{
		Code:    ErrUnauthorized,
		Status:  403,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing document.
func NewNotFound(collection, id string) *CCError {
	return &CCError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", collection, id),
		Details: map[string]any{"collection": collection, "id": id},
	}
}

// NewFileNotFound creates a 404 error for a missing import file.
func NewFileNotFound(path string) *CCError {
	return &CCError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewNameAlreadyExists creates a 409 error for duplicate titles.
func NewNameAlreadyExists(collection, name string) *CCError {
	return &CCError{
		Code:    ErrNameAlreadyExists,
		Status:  409,
		Message: fmt.Sprintf("%s with title %q already exists", collection, name),
		Details: map[string]any{"collection": collection, "name": name},
	}
}

// NewUnsupportedQuery creates a 422 error when the store cannot execute a
// filter/sort combination.
func NewUnsupportedQuery(reason string) *CCError {
	return &CCError{
		Code:    ErrUnsupportedQuery,
		Status:  422,
		Message: fmt.Sprintf("query not supported: %s", reason),
		Details: map[string]any{"reason": reason},
	}
}

// NewRateLimited creates a 429 error.
func NewRateLimited() *CCError {
	return &CCError{
		Code:    ErrRateLimited,
		Status:  429,
		Message: "too many requests, slow down",
	}
}

// NewCancelled creates a 499 error for operations interrupted by context cancellation.
func NewCancelled(op string) *CCError {
	return &CCError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
		Details: map[string]any{"operation": op},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *CCError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &CCError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// NewUnavailable creates a 503 error for transient I/O failures.
// These are surfaced to the user and never retried automatically.
func NewUnavailable(err error) *CCError {
	msg := "service unavailable"
	if err != nil {
		msg = err.Error()
	}
	return &CCError{
		Code:    ErrUnavailable,
		Status:  503,
		Message: msg,
		cause:   err,
	}
}

// Is checks if err (or anything it wraps) is a CCError with the given code.
func Is(err error, code ErrorCode) bool {
	var ccErr *CCError
	if stderrors.As(err, &ccErr) {
		return ccErr.Code == code
	}
	return false
}

// As extracts a *CCError from err, wrapping unknown errors as internal.
func As(err error) *CCError {
	var ccErr *CCError
	if stderrors.As(err, &ccErr) {
		return ccErr
	}
	return NewInternal(err)
}

package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/maruel/schemadb/internal/vfs"
)

// ErrorCode identifies an API error class.
type ErrorCode string

// Error codes.
const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeConflict         ErrorCode = "CONFLICT"
	ErrCodeNotSupported     ErrorCode = "NOT_SUPPORTED"
	ErrCodeRateLimited      ErrorCode = "RATE_LIMITED"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// ErrorWithStatus is an error that carries its HTTP status.
type ErrorWithStatus interface {
	error
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is an error with status code, code, and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// NewAPIError creates a new APIError.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{statusCode: statusCode, code: code, message: message}
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int { return e.statusCode }

// Code returns the error code.
func (e *APIError) Code() ErrorCode { return e.code }

// Details returns additional error details.
func (e *APIError) Details() map[string]any { return e.details }

func (e *APIError) Unwrap() error { return e.wrappedErr }

// BadRequest creates a 400 error.
func BadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrCodeValidationFailed, message)
}

// NotFound creates a 404 error.
func NotFound(resource string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrCodeNotFound, resource+" not found")
}

// fromVFS maps a projection error to an APIError.
func fromVFS(err error) *APIError {
	var e *APIError
	switch {
	case errors.Is(err, vfs.ErrFileNotFound):
		e = NewAPIError(http.StatusNotFound, ErrCodeNotFound, "file not found")
	case errors.Is(err, vfs.ErrFileExists):
		e = NewAPIError(http.StatusConflict, ErrCodeConflict, "file exists")
	case errors.Is(err, vfs.ErrUnsupported):
		e = NewAPIError(http.StatusMethodNotAllowed, ErrCodeNotSupported, "operation not supported")
	case errors.Is(err, vfs.ErrInvalidURI), errors.Is(err, vfs.ErrInvalidContent):
		e = BadRequest("invalid request")
	default:
		e = NewAPIError(http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
	var pe *vfs.PathError
	if errors.As(err, &pe) {
		e.WithDetail("op", pe.Op).WithDetail("uri", pe.URI.String())
	}
	return e.Wrap(err)
}

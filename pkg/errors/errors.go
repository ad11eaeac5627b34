package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details []string  `json:"details,omitempty"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error code to an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrBadRequest:
		return http.StatusBadRequest
	case ErrValidation:
		return http.StatusUnprocessableEntity
	case ErrTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Common error codes
const (
	ErrBadRequest ErrorCode = iota + 1000
	ErrValidation
	ErrTooManyRequests
	ErrInternal
)

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

// Validation reports a value that was well formed but rejected by a rule set.
func Validation(message string, details []string) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: message,
		Details: details,
	}
}

func TooManyRequests(policy string) *AppError {
	return &AppError{
		Code:    ErrTooManyRequests,
		Message: fmt.Sprintf("rate limit exceeded for %s policy", policy),
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

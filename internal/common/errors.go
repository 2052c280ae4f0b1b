package common

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents application-specific errors carrying the HTTP status to answer with.
type AppError struct {
	Code    int
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidFileType = errors.New("invalid file type")
	ErrTooLarge        = errors.New("file too large")
	ErrUnavailable     = errors.New("service unavailable")
	ErrInternal        = errors.New("internal error")
	ErrDatabase        = errors.New("database error")
	ErrValidation      = errors.New("validation failed")
)

// NewAppError builds an AppError.
func NewAppError(code int, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// MapError maps any error to an AppError with an appropriate HTTP status.
func MapError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrInvalidFileType):
		return NewAppError(http.StatusBadRequest, "Invalid file type", err)
	case errors.Is(err, ErrTooLarge):
		return NewAppError(http.StatusRequestEntityTooLarge, "File too large", err)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return NewAppError(http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, ErrNotFound):
		return NewAppError(http.StatusNotFound, "Resource not found", err)
	case errors.Is(err, ErrUnavailable):
		return NewAppError(http.StatusServiceUnavailable, "Service unavailable", err)
	}

	return NewAppError(http.StatusInternalServerError, fmt.Sprintf("Processing error: %v", err), err)
}

func InvalidInputErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func NotFoundErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

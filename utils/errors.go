package utils

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/lib/pq"
)

// AppError is an error with an HTTP status and optional field-level details.
// The ErrorHandler middleware turns it into the JSON error envelope.
type AppError struct {
	Status  int
	Message string
	Fields  map[string]string
	// Extra keys are merged into the top level of the envelope.
	Extra map[string]interface{}
	Err   error
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

func NewAppError(status int, message string) *AppError {
	return &AppError{Status: status, Message: message}
}

func BadRequest(message string) *AppError {
	return NewAppError(http.StatusBadRequest, message)
}

func Unauthorized(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return NewAppError(http.StatusForbidden, message)
}

func NotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, message)
}

func Conflict(message string) *AppError {
	return NewAppError(http.StatusConflict, message)
}

func TooManyRequests(message string) *AppError {
	return NewAppError(http.StatusTooManyRequests, message)
}

// ValidationError is a 400 carrying per-field messages.
func ValidationError(fields map[string]string) *AppError {
	return &AppError{Status: http.StatusBadRequest, Message: "Validation failed", Fields: fields}
}

// Internal wraps an unexpected error; its message is never shown to clients.
func Internal(err error) *AppError {
	return &AppError{Status: http.StatusInternalServerError, Message: "Internal server error", Err: err}
}

// FromDBError maps database errors to client-facing errors.
// Unique violations become 409, foreign key and check violations 400,
// sql.ErrNoRows 404. Anything else is internal.
func FromDBError(err error, notFoundMessage string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if errors.Is(err, sql.ErrNoRows) {
		return &AppError{Status: http.StatusNotFound, Message: notFoundMessage, Err: err}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return &AppError{Status: http.StatusConflict, Message: "Resource already exists", Err: err}
		case "23503":
			return &AppError{Status: http.StatusBadRequest, Message: "Referenced resource does not exist", Err: err}
		case "23514", "22P02":
			return &AppError{Status: http.StatusBadRequest, Message: "Invalid value", Err: err}
		}
	}

	return Internal(err)
}

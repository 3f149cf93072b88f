package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures so callers and the HTTP layer can react without
// string matching.
type ErrorType string

const (
	// ErrorTypeNotFound indicates a patient or session was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates missing or malformed input
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeInvalidState indicates a record lacks data required for a computation
	ErrorTypeInvalidState ErrorType = "INVALID_STATE"

	// ErrorTypePersist indicates a persistence gateway failure
	ErrorTypePersist ErrorType = "PERSIST"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"
)

// AppError carries a type, a human readable message and the underlying cause
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func newError(t ErrorType, message string, err error) *AppError {
	return &AppError{Type: t, Message: message, Err: err}
}

func NewNotFoundError(message string) *AppError {
	return newError(ErrorTypeNotFound, message, nil)
}

func NewValidationError(message string) *AppError {
	return newError(ErrorTypeValidation, message, nil)
}

// NewInvalidStateError reports a record that cannot support the requested computation
func NewInvalidStateError(message string) *AppError {
	return newError(ErrorTypeInvalidState, message, nil)
}

// NewPersistError wraps a storage, network or key failure from the persistence layer.
// Persist errors are the only ones the persister retries.
func NewPersistError(message string, err error) *AppError {
	return newError(ErrorTypePersist, message, err)
}

func NewInternalError(message string, err error) *AppError {
	return newError(ErrorTypeInternal, message, err)
}

// Is matches any AppError of the same type, so errors.Is(err, &AppError{Type: ErrorTypePersist}) works.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Message == "" && t.Type == e.Type
}

// TypeOf returns the ErrorType of the first AppError in err's chain, or "" if there is none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

func IsNotFound(err error) bool     { return TypeOf(err) == ErrorTypeNotFound }
func IsValidation(err error) bool   { return TypeOf(err) == ErrorTypeValidation }
func IsInvalidState(err error) bool { return TypeOf(err) == ErrorTypeInvalidState }
func IsPersist(err error) bool      { return TypeOf(err) == ErrorTypePersist }

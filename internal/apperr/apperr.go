package apperr

import (
	"errors"
	"fmt"
)

// Kinds. Every error a service returns to a handler wraps exactly one of these.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrConflict          = errors.New("conflict")
	ErrValidation        = errors.New("validation failed")
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	ErrInternal          = errors.New("internal error")
)

type Error struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, code, message string) error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func NotFound(code, message string) error {
	return newError(ErrNotFound, code, message)
}

func Forbidden(code, message string) error {
	return newError(ErrForbidden, code, message)
}

func Unauthenticated(code, message string) error {
	return newError(ErrUnauthenticated, code, message)
}

func Conflict(code, message string) error {
	return newError(ErrConflict, code, message)
}

func Validation(code, message string) error {
	return newError(ErrValidation, code, message)
}

// LedgerUnavailable keeps the underlying ledger error for logs.
func LedgerUnavailable(err error) error {
	return &Error{
		Kind:    ErrLedgerUnavailable,
		Code:    "ledger_unavailable",
		Message: "audit ledger is unavailable",
		Err:     err,
	}
}

// Internal wraps an unexpected store error. The message is safe to show to clients.
func Internal(message string, err error) error {
	return &Error{
		Kind:    ErrInternal,
		Code:    "internal_error",
		Message: message,
		Err:     err,
	}
}

// As returns the *Error carried by err, or an internal error wrapping it.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{
		Kind:    ErrInternal,
		Code:    "internal_error",
		Message: "Something went wrong",
		Err:     err,
	}
}

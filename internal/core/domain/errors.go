package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeInvalidTransition  ErrorCode = "INVALID_TRANSITION"
	CodeConflict           ErrorCode = "CONFLICT"
	CodeValidation         ErrorCode = "VALIDATION_FAILURE"
	CodeExternalDependency ErrorCode = "EXTERNAL_DEPENDENCY_FAILURE"
)

// Error is the error type surfaced by the core. Two errors are equal under
// errors.Is when their codes match, so callers compare against the sentinels
// below regardless of the message.
type Error struct {
	Code    ErrorCode
	Message string
	// Fatal marks conditions that signal a broken invariant rather than
	// ordinary contention. They should alert, not be retried.
	Fatal bool
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrNotFound           = &Error{Code: CodeNotFound, Message: "resource not found"}
	ErrInvalidTransition  = &Error{Code: CodeInvalidTransition, Message: "operation not allowed in current state"}
	ErrConflict           = &Error{Code: CodeConflict, Message: "resource already exists"}
	ErrValidation         = &Error{Code: CodeValidation, Message: "invalid input"}
	ErrExternalDependency = &Error{Code: CodeExternalDependency, Message: "external dependency failed"}

	// ErrReferenceExhausted is wrapped inside a fatal Conflict when no unused
	// order reference could be generated within the retry budget.
	ErrReferenceExhausted = errors.New("order reference space exhausted")
)

func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func InvalidTransition(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func ExternalDependency(err error, format string, args ...any) *Error {
	return &Error{Code: CodeExternalDependency, Message: fmt.Sprintf(format, args...), Err: err}
}

// IsFatal reports whether err carries a fatal core error.
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Fatal
	}
	return false
}

// CodeOf returns the core error code carried by err, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// MessageOf returns the human readable message of a core error, falling back
// to err.Error() for foreign errors.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Domain sentinels wrap exactly one of these so callers can
// classify failures with errors.Is without knowing every sentinel.
var (
	// ErrValidation indicates the request was rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a uniqueness or state conflict at the storage boundary.
	ErrConflict = errors.New("conflict")
	// ErrConfiguration indicates missing master data required to post.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated occurs when no actor identity accompanies a mutation.
	ErrUnauthenticated = errors.New("actor identity required")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// Validation builds a validation sentinel with the given message.
func Validation(msg string) error { return &kindError{kind: ErrValidation, msg: msg} }

// Conflict builds a conflict sentinel with the given message.
func Conflict(msg string) error { return &kindError{kind: ErrConflict, msg: msg} }

// Configuration builds a configuration sentinel with the given message.
func Configuration(msg string) error { return &kindError{kind: ErrConfiguration, msg: msg} }

// NotFound builds a not-found sentinel with the given message.
func NotFound(msg string) error { return &kindError{kind: ErrNotFound, msg: msg} }

// Validationf formats an ad-hoc validation error.
func Validationf(format string, args ...any) error {
	return &kindError{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// UserSafeMessage returns err's message for classified errors and a generic
// message for everything else.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConflict),
		errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnauthenticated):
		return err.Error()
	default:
		return "internal error"
	}
}

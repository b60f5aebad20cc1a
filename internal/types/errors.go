package types

import (
	"errors"
	"fmt"
)

// Kind classifies domain errors. The kind is machine readable and is what
// the tool surface reports to callers.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindIntegrity  Kind = "integrity"
	KindTransient  Kind = "transient"
)

// Sentinel errors for each kind.
//
// These can be checked using errors.Is() against any error returned by the
// domain components:
//
//	if errors.Is(err, types.ErrNotFound) {
//	    // The referenced id does not resolve to a live row
//	}
var (
	// ErrValidation is returned for malformed or missing required input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when an id does not resolve to a live row.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned for uniqueness violations and for stale
	// template imports.
	ErrConflict = errors.New("conflict")

	// ErrIntegrity is returned when a structural invariant would be
	// violated: hierarchy cycles, deletes blocked by dependents.
	ErrIntegrity = errors.New("integrity violation")

	// ErrTransient is returned when the store is busy, locked or timed out.
	// It is never retried internally.
	ErrTransient = errors.New("storage unavailable")
)

// Error is the concrete error type returned by the domain components.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Kind == KindTransient && e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return target == sentinel(e.Kind)
}

func sentinel(k Kind) error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindIntegrity:
		return ErrIntegrity
	case KindTransient:
		return ErrTransient
	}
	return nil
}

// Validationf returns a validation error naming the offending field.
func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound returns a not-found error for the given entity and id.
func NotFound(entity string, id int64) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %d not found", entity, id)}
}

// NotFoundf returns a not-found error with a custom message.
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflictf returns a conflict error.
func Conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Deleted returns the not-found error for a soft-deleted entity. It differs
// from NotFound only in its message.
func Deleted(entity string, id int64) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %d is deleted", entity, id)}
}

// Integrityf returns an integrity error.
func Integrityf(format string, args ...any) error {
	return &Error{Kind: KindIntegrity, Message: fmt.Sprintf(format, args...)}
}

// Transient wraps a storage failure that callers may retry.
func Transient(err error) error {
	return &Error{Kind: KindTransient, Message: "storage unavailable", Err: err}
}

// MessageOf returns the message of the domain error in err's chain, without
// the context added by wrapping. Other errors return their full text.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindTransient && e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
		return e.Message
	}
	return err.Error()
}

// KindOf returns the kind of err, or "" if err is not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable returns true if the error is likely to succeed on retry.
// Only transient storage errors qualify; retry policy belongs to callers.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTransient)
}

// Package errs provides the unified error type used across arcforge.
//
// Every layer (backends, the query engine, the DAO facade, the HTTP adapter)
// reports failures as *errs.Error or *errs.ValidationError. Callers use the
// Is* predicates to branch on the failure without importing driver packages.
//
// Usage:
//
//	// In a backend, wrap native errors:
//	return errs.Wrap(errs.ErrKindConflict, "foreign key violation", pgErr)
//
//	// In a handler, check the error kind:
//	if errs.IsNotFound(err) {
//	    http.Error(w, "not found", http.StatusNotFound)
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing backend-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no rows matched
	ErrKindConnectionFailed         // cannot reach the backend
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindQueryFailed              // SQL execution error
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindPermissionDenied         // access denied / auth failure
	ErrKindConflict                 // unique or foreign key constraint violated
	ErrKindTypeMismatch             // entity of the wrong type passed to an operation
	ErrKindUnknownField             // attribute not declared on the entity
	ErrKindMissingID                // operation needs a primary key that is absent
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindConflict:
		return "conflict"
	case ErrKindTypeMismatch:
		return "type_mismatch"
	case ErrKindUnknownField:
		return "unknown_field"
	case ErrKindMissingID:
		return "missing_id"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by every arcforge layer.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ValidationError reports a field-level contract violation: a null where the
// field is NOT NULL, a value of the wrong Go type, or a length/format breach.
// The triple is what the HTTP adapter renders as the client-facing body.
type ValidationError struct {
	Message   string
	FieldType string
	Value     any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[validation] %s (field type %s, value %v)", e.Message, e.FieldType, e.Value)
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a format string.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Validation creates a *ValidationError.
func Validation(msg, fieldType string, value any) *ValidationError {
	return &ValidationError{Message: msg, FieldType: fieldType, Value: value}
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a statement execution failure.
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// IsConflict reports whether err is a constraint violation (unique, foreign key,
// ON DELETE RESTRICT).
func IsConflict(err error) bool {
	return KindOf(err) == ErrKindConflict
}

// IsTypeMismatch reports whether an entity of the wrong type was supplied.
func IsTypeMismatch(err error) bool {
	return KindOf(err) == ErrKindTypeMismatch
}

// IsUnknownField reports whether an undeclared attribute was named.
func IsUnknownField(err error) bool {
	return KindOf(err) == ErrKindUnknownField
}

// IsMissingID reports whether an operation required a primary key that was absent.
func IsMissingID(err error) bool {
	return KindOf(err) == ErrKindMissingID
}

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}

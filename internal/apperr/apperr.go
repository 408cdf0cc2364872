// Package apperr defines the error kinds shared by the ledger core and its callers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers.
type Kind string

const (
	KindValidation  Kind = "VALIDATION_ERROR"
	KindNotFound    Kind = "NOT_FOUND"
	KindConflict    Kind = "CONFLICT"
	KindTransaction Kind = "TRANSACTION_ERROR"
)

// Sentinels for errors.Is checks.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrTransaction = errors.New("transaction failed")
)

// Error is a classified error. Op names the operation that failed.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrTransaction:
		return e.Kind == KindTransaction
	}
	return false
}

func newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Validation reports a missing or malformed field.
func Validation(op, format string, args ...any) *Error {
	return newf(KindValidation, op, format, args...)
}

// NotFound reports a referenced record that does not exist.
func NotFound(op, format string, args ...any) *Error {
	return newf(KindNotFound, op, format, args...)
}

// Conflict reports an invariant violation.
func Conflict(op, format string, args ...any) *Error {
	return newf(KindConflict, op, format, args...)
}

// Transaction wraps a failure of the underlying store.
func Transaction(op string, err error) *Error {
	return &Error{Kind: KindTransaction, Op: op, Message: "transaction aborted", Err: err}
}

// KindOf returns the kind of err, or KindTransaction for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransaction
}

// IsClassified reports whether err already carries one of the domain kinds.
func IsClassified(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// Classify keeps domain errors as they are and turns anything else into a
// transaction error for op.
func Classify(op string, err error) error {
	if err == nil || IsClassified(err) {
		return err
	}
	return Transaction(op, err)
}

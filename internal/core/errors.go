package core

import (
	"errors"
	"fmt"
)

// Code classifies ledger errors so callers can branch on them without
// matching strings.
type Code string

const (
	CodeConflict   Code = "conflict"
	CodeNotFound   Code = "not_found"
	CodeValidation Code = "validation"
	CodeStorage    Code = "storage"
)

// Error is the error type returned by the ledger and its storage adapters.
// Detail is meant to be shown to a user; Err keeps the underlying cause.
type Error struct {
	Code   Code
	Detail string
	Err    error
}

// Sentinels for errors.Is. They match any *Error with the same Code.
var (
	ErrConflict   = &Error{Code: CodeConflict}
	ErrNotFound   = &Error{Code: CodeNotFound}
	ErrValidation = &Error{Code: CodeValidation}
	ErrStorage    = &Error{Code: CodeStorage}
)

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the bare sentinels above by Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Detail == "" && t.Err == nil && t.Code == e.Code
}

// CodeOf returns the Code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// DetailOf returns a human readable description suitable for a consumer.
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Detail != "" {
		return e.Detail
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func Invalid(cause error, detail string) error {
	return &Error{Code: CodeValidation, Detail: detail, Err: cause}
}

func Conflict(id string) error {
	return &Error{Code: CodeConflict, Detail: fmt.Sprintf("transaction %s already exists", id)}
}

func NotFound(id string) error {
	return &Error{Code: CodeNotFound, Detail: fmt.Sprintf("transaction %s not found", id)}
}

// Storage wraps an I/O failure. Errors that already carry a Code are
// returned unchanged.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}
	return &Error{Code: CodeStorage, Detail: op, Err: err}
}

// Package errors defines the structured error taxonomy shared by the store,
// engine, exporter and command layers.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies a timebox error.
type Code string

const (
	CodeValidation         Code = "VALIDATION"
	CodePersistence        Code = "PERSISTENCE"
	CodeExport             Code = "EXPORT"
	CodeNothingToExport    Code = "NOTHING_TO_EXPORT"
	CodeSharingUnavailable Code = "SHARING_UNAVAILABLE"
	CodeNotFound           Code = "NOT_FOUND"
	CodeEngineClosed       Code = "ENGINE_CLOSED"
)

// Error is a classified error with an optional underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
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

// NewValidation reports rejected user input. No state was changed.
func NewValidation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// NewPersistence reports a gateway read or write failure. For writes, the
// in-memory state already reflects the attempted mutation.
func NewPersistence(op string, err error) *Error {
	return &Error{Code: CodePersistence, Message: op, Err: err}
}

// NewExport reports a failed file write or share invocation.
func NewExport(msg string, err error) *Error {
	return &Error{Code: CodeExport, Message: msg, Err: err}
}

// NewNothingToExport is returned when the history log is empty.
func NewNothingToExport() *Error {
	return &Error{Code: CodeNothingToExport, Message: "there is no history to export"}
}

// NewSharingUnavailable is returned when the export file was written but no
// share sink can take it.
func NewSharingUnavailable(path string) *Error {
	return &Error{Code: CodeSharingUnavailable, Message: "sharing is not available; export written to " + path}
}

// NewNotFound reports an unknown timer id or name.
func NewNotFound(identifier string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("timer not found: %s", identifier)}
}

// NewEngineClosed is returned by engine operations after Close.
func NewEngineClosed() *Error {
	return &Error{Code: CodeEngineClosed, Message: "engine is closed"}
}

// Is reports whether err, or any error it wraps, is an *Error with code.
func Is(err error, code Code) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code == code
	}
	return false
}

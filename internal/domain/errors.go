package domain

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes failures crossing package boundaries.
type ErrorCode string

const (
	// CodeLocalStorage is fatal to the caller; the operation did not happen.
	CodeLocalStorage ErrorCode = "LOCAL_STORAGE_FAILURE"

	// CodeRemoteUnreachable leaves dirty flags set and schedules a retry.
	CodeRemoteUnreachable ErrorCode = "REMOTE_UNREACHABLE"

	// CodeRemoteRejected is a per-record failure; the record stays dirty.
	CodeRemoteRejected ErrorCode = "REMOTE_REJECTED"

	// CodeConstraint is returned to the caller with no state mutated.
	CodeConstraint ErrorCode = "CONSTRAINT_VIOLATION"

	// CodeNotFound means the referenced record does not exist locally.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeInvalidInput means the caller supplied a value that failed validation.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// Error is the structured error used across pacer.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on code against a bare *Error{Code: ...}.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Op == "" && t.Message == "" && t.Err == nil
}

var (
	ErrActiveSessionExists = &Error{Code: CodeConstraint, Message: "active session already exists"}
	ErrNoActiveSession     = &Error{Code: CodeNotFound, Message: "no active session"}
	ErrSessionEnded        = &Error{Code: CodeConstraint, Message: "session already ended"}
)

// NewStorageError wraps a local storage failure.
func NewStorageError(op string, err error) *Error {
	return &Error{Code: CodeLocalStorage, Op: op, Err: err}
}

// NewNotFound reports a missing record.
func NewNotFound(kind RecordKind, id string) *Error {
	return &Error{Code: CodeNotFound, Op: string(kind), Message: fmt.Sprintf("%s %q not found", kind, id)}
}

// NewInvalidInput reports a validation failure.
func NewInvalidInput(field, message string) *Error {
	return &Error{Code: CodeInvalidInput, Op: field, Message: message}
}

// NewUnreachable reports that the remote store could not be reached.
func NewUnreachable(op string, err error) *Error {
	return &Error{Code: CodeRemoteUnreachable, Op: op, Err: err}
}

// NewRejected reports that the remote store refused a single record.
func NewRejected(op string, err error) *Error {
	return &Error{Code: CodeRemoteRejected, Op: op, Err: err}
}

// CodeOf extracts the error code, or "" when err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsLocalStorage(err error) bool { return CodeOf(err) == CodeLocalStorage }
func IsUnreachable(err error) bool  { return CodeOf(err) == CodeRemoteUnreachable }
func IsRejected(err error) bool     { return CodeOf(err) == CodeRemoteRejected }
func IsConstraint(err error) bool   { return CodeOf(err) == CodeConstraint }
func IsNotFound(err error) bool     { return CodeOf(err) == CodeNotFound }
func IsInvalidInput(err error) bool { return CodeOf(err) == CodeInvalidInput }

// Package gameerr defines the error codes shared by the store, the save
// orchestrator and the simulation drivers.
//
// None of these are process-fatal: the operation that detects one logs it and
// returns it to its caller, which skips the action.
package gameerr

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure.
type Code string

const (
	// Store errors
	StoreUnavailable Code = "STORE_UNAVAILABLE"
	DuplicateLiveRow Code = "DUPLICATE_LIVE_ROW"

	// Save/restore errors
	BackupNotFound Code = "BACKUP_NOT_FOUND"
	ReferentialGap Code = "REFERENTIAL_GAP"

	// Simulation errors
	InsufficientInventory Code = "INSUFFICIENT_INVENTORY"
	NotFound              Code = "NOT_FOUND"
	Rejected              Code = "REJECTED"
	Busy                  Code = "BUSY"
	Invalid               Code = "INVALID_INPUT"
)

// Error carries a Code alongside a message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with no cause.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an existing error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Is reports whether any error in err's chain carries code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

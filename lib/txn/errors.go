package txn

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	// RetCUsageViolation indicates a programming error: a context was used
	// from the wrong goroutine, a synchronous transaction was nested inside
	// another transaction, or a closed context or manager was used. These
	// errors are never recoverable by retrying.
	RetCUsageViolation RetCode = iota + 1
	// RetCValidation indicates that a mutation failed structural or schema
	// validation. Nothing was persisted.
	RetCValidation
	// RetCPersistence indicates that the store failed to persist a committed
	// change set.
	RetCPersistence
	// RetCFetch indicates that a query could not be executed.
	RetCFetch
)

func (c RetCode) String() string {
	switch c {
	case RetCUsageViolation:
		return "UsageViolation"
	case RetCValidation:
		return "Validation"
	case RetCPersistence:
		return "Persistence"
	case RetCFetch:
		return "Fetch"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and optionally an underlying cause.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
	Err  error   // The underlying cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("TxnError (code %s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("TxnError (code %s): %s", e.Code, e.Msg)
}

// Unwrap exposes the underlying cause for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new transaction Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// WrapError creates a new transaction Error wrapping an underlying cause.
func WrapError(code RetCode, msg string, err error) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
		Err:  err,
	}
}

// --------------------------------------------------------------------------
// Error Classification Helpers
// --------------------------------------------------------------------------

// codeOf extracts the RetCode from an error chain, 0 if none.
func codeOf(err error) RetCode {
	var txnErr *Error
	if errors.As(err, &txnErr) {
		return txnErr.Code
	}
	return 0
}

// IsUsageViolation reports whether err is a programming error. Callers
// should treat these as fatal instead of retrying.
func IsUsageViolation(err error) bool {
	return codeOf(err) == RetCUsageViolation
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return codeOf(err) == RetCValidation
}

// IsPersistence reports whether err is a persistence failure.
func IsPersistence(err error) bool {
	return codeOf(err) == RetCPersistence
}

// IsFetch reports whether err is a fetch failure.
func IsFetch(err error) bool {
	return codeOf(err) == RetCFetch
}

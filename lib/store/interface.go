package store

import (
	"fmt"
	"io"
	"strings"

	"github.com/ValentinKolb/tKV/lib/db"
	"github.com/ValentinKolb/tKV/lib/entity"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() db.RecordDB

// IStore is the generic interface for the entity store backing a context
// manager. All write operations return only an error (nil on success, *Error
// otherwise), while read operations return the requested data along with an
// error (nil on success).
type IStore interface {
	// Lookup returns the entity with the given type and key. The boolean
	// return value indicates whether the entity was found.
	Lookup(typ, key string) (e entity.Entity, loaded bool, err error)
	// Has returns whether an entity with the given type and key exists.
	Has(typ, key string) (loaded bool, err error)
	// Scan visits every entity of the given type. Iteration stops when fn
	// returns false. An empty type visits all entities. The visit order is
	// unspecified.
	Scan(typ string, fn func(e entity.Entity) bool) (err error)
	// Check validates mutations against the structural entity invariants and
	// any schema registered for their type, without persisting anything.
	// A validation failure is reported as an *Error with code RetCValidation
	// and the individual violations attached.
	Check(mutations []entity.Mutation) (err error)
	// Apply validates and persists all mutations of a change set as one
	// atomic unit. Either every mutation is persisted or none is. The change
	// set's sequence number becomes the engine write index, so replaying an
	// older change set never overwrites newer data.
	Apply(cs entity.ChangeSet) (err error)
	// DefineSchema registers a validation schema for an entity type.
	// Subsequent Check and Apply calls enforce it. Passing a zero Schema
	// removes the registration.
	DefineSchema(typ string, schema Schema) (err error)
	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)
	// Save persists the current state of the store to the provided io.Writer.
	Save(w io.Writer) (err error)
	// Load restores the store state from the data provided by an io.Reader.
	Load(r io.Reader) (err error)
	// Close closes the store and its underlying database.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Schema Type
// --------------------------------------------------------------------------

// Schema describes the validation rules for one entity type. A zero Schema
// accepts any fields.
type Schema struct {
	// Required lists field names that every insert or update must carry.
	Required []string
	// Allowed restricts the permitted field names to this list plus Required.
	// An empty list permits any field.
	Allowed []string
}

// IsZero reports whether the schema carries no rules.
func (s Schema) IsZero() bool {
	return len(s.Required) == 0 && len(s.Allowed) == 0
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and, for validation failures, the individual violations.
type Error struct {
	Code       RetCode  // The return code
	Msg        string   // The error message.
	Violations []string // Individual validation violations (RetCValidation only)
}

// Error implements the error interface.
func (e *Error) Error() string {
	errorCode := ""
	switch e.Code {
	case RetCInternalError:
		errorCode = "InternalError"
	case RetCUnsupportedOperation:
		errorCode = "UnsupportedOperation"
	case RetCInvalidOperation:
		errorCode = "InvalidOperation"
	case RetCValidation:
		errorCode = "Validation"
	default:
		errorCode = "Unknown"
	}

	if len(e.Violations) > 0 {
		return fmt.Sprintf("StoreError (code %s): %s: %s", errorCode, e.Msg, strings.Join(e.Violations, "; "))
	}
	return fmt.Sprintf("StoreError (code %s): %s", errorCode, e.Msg)
}

// NewError creates a new store Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// NewValidationError creates a new store Error carrying validation violations.
func NewValidationError(violations []string) *Error {
	return &Error{
		Code:       RetCValidation,
		Msg:        fmt.Sprintf("%d violation(s)", len(violations)),
		Violations: violations,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCValidation                          // 4: Mutation failed schema or structural validation.
)

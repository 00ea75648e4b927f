package db

import "io"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplGrove Implementation = "grove"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureSet        Feature = 1 << iota // Support for Set operations
	FeatureGet                            // Support for Get operations
	FeatureDelete                         // Support for Delete operations
	FeatureHas                            // Support for Has operations
	FeatureApplyBatch                     // Support for atomic batch application
	FeatureScan                           // Support for prefix scans
	FeatureSave                           // Support for Save operations
	FeatureLoad                           // Support for Load operations
)

func (f Feature) String() string {
	switch f {
	case FeatureSet:
		return "Set"
	case FeatureGet:
		return "Get"
	case FeatureDelete:
		return "Delete"
	case FeatureHas:
		return "Has"
	case FeatureApplyBatch:
		return "ApplyBatch"
	case FeatureScan:
		return "Scan"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// BatchEntry describes one record of an atomic batch.
// A nil Value together with Delete=true removes the record.
type BatchEntry struct {
	Key    string
	Value  []byte
	Delete bool
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// RecordDB defines an interface for record database implementations used as
// the persistence engine behind a tKV store. Implementations can vary in
// their feature support, which can be queried with SupportsFeature.
//
// The writeIndex parameter of all write operations is a logical timestamp;
// implementations must ignore stale writes (writeIndex older than the
// record's current index).
type RecordDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or updates a record with the given key and value.
	// If the key already exists, the old value is overwritten.
	Set(key string, value []byte, writeIndex uint64)

	// Delete removes the record with the specified key.
	// The key should not be findable afterwards.
	Delete(key string, writeIndex uint64)

	// ApplyBatch applies all entries as a single atomic unit: a concurrent
	// Scan or Save observes either none or all of the entries.
	ApplyBatch(entries []BatchEntry, writeIndex uint64)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	Get(key string) (value []byte, loaded bool)

	// Has checks whether a key exists in the database.
	Has(key string) (loaded bool)

	// Scan visits every record whose key starts with prefix. Iteration stops
	// when fn returns false. The visit order is unspecified.
	Scan(prefix string, fn func(key string, value []byte) bool)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load restores the database state from the data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the
	// specified feature. Multiple features can be checked at once using the
	// bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// --------------------------------------------------------------------------
	// Write Index Operations
	// --------------------------------------------------------------------------

	// SetWriteIdx sets the current index of the database only if the provided
	// index is greater than the current index.
	SetWriteIdx(index uint64)

	// WriteIdx returns the current index of the database.
	WriteIdx() (index uint64)

	// Close closes the database.
	Close() (err error)
}

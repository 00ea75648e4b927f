package internal

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (record with metadata)
// --------------------------------------------------------------------------

// Entry stores a record value with metadata
type Entry struct {
	Value []byte // record data
	Index uint64 // write index when this entry was created/updated
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database.
// Records are kept under their full string key so prefix scans and
// snapshots can recover the original keys.
type Shard struct {
	Data *xsync.MapOf[string, Entry]
}

// NewShard creates a new empty shard
func NewShard() *Shard {
	return &Shard{
		Data: xsync.NewMapOf[string, Entry](),
	}
}

// GetShard returns the appropriate shard for a given key hash
//
// Thread-safety: This function is thread-safe and can be called concurrently.
func GetShard[T any](keyHash uint64, shards []*T) *T {
	// shift right by 7 bits to use higher-quality bits for distribution
	shardPos := (keyHash >> 7) % uint64(len(shards))
	return shards[shardPos]
}

package entity

import (
	"fmt"
	"strings"
)

// TypeSeparator separates the entity type from the entity key in the flat
// engine key space. Entity types must not contain it; keys may.
const TypeSeparator = "/"

// --------------------------------------------------------------------------
// Entity Type
// --------------------------------------------------------------------------

// Entity is a typed record. Its identity is the (Type, Key) pair, its data
// the Fields map.
type Entity struct {
	Type   string            `json:"type"`
	Key    string            `json:"key"`
	Fields map[string]string `json:"fields,omitempty"`
}

// StorageKey returns the flat engine key for this entity ("<type>/<key>").
func (e Entity) StorageKey() string {
	return StorageKey(e.Type, e.Key)
}

// Clone returns a deep copy of the entity. The copy shares no state with
// the original, so it is safe to hand across goroutine boundaries.
func (e Entity) Clone() Entity {
	clone := Entity{Type: e.Type, Key: e.Key}
	if e.Fields != nil {
		clone.Fields = make(map[string]string, len(e.Fields))
		for k, v := range e.Fields {
			clone.Fields[k] = v
		}
	}
	return clone
}

// Validate checks the structural invariants of an entity identity.
func (e Entity) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("entity type must not be empty")
	}
	if strings.Contains(e.Type, TypeSeparator) {
		return fmt.Errorf("entity type %q must not contain %q", e.Type, TypeSeparator)
	}
	if e.Key == "" {
		return fmt.Errorf("entity key must not be empty (type %q)", e.Type)
	}
	return nil
}

// StorageKey builds the flat engine key for an entity identity.
func StorageKey(typ, key string) string {
	return typ + TypeSeparator + key
}

// TypePrefix returns the engine key prefix covering all entities of a type.
func TypePrefix(typ string) string {
	return typ + TypeSeparator
}

// SplitStorageKey recovers the entity identity from a flat engine key.
// The boolean return value reports whether the key has the expected shape.
func SplitStorageKey(storageKey string) (typ, key string, ok bool) {
	idx := strings.Index(storageKey, TypeSeparator)
	if idx <= 0 || idx == len(storageKey)-1 {
		return "", "", false
	}
	return storageKey[:idx], storageKey[idx+1:], true
}

// --------------------------------------------------------------------------
// Mutation Type
// --------------------------------------------------------------------------

// MutationOp identifies the kind of change a mutation carries
type MutationOp uint8

const (
	OpInsert MutationOp = iota + 1
	OpUpdate
	OpDelete
)

func (op MutationOp) String() string {
	switch op {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Mutation is one pending change recorded by a transaction context. For
// OpDelete the entity carries only its identity; Fields are ignored.
type Mutation struct {
	Op     MutationOp `json:"op"`
	Entity Entity     `json:"entity"`
}

// Clone returns a deep copy of the mutation.
func (m Mutation) Clone() Mutation {
	return Mutation{Op: m.Op, Entity: m.Entity.Clone()}
}

// --------------------------------------------------------------------------
// ChangeSet Type
// --------------------------------------------------------------------------

// ChangeSet carries the accepted mutations of one committed transaction.
// Seq is the commit sequence number; change sets are merged into the main
// view in ascending Seq order.
type ChangeSet struct {
	Seq       uint64     `json:"seq"`
	Mutations []Mutation `json:"mutations"`
}

// Clone returns a deep copy of the change set.
func (cs ChangeSet) Clone() ChangeSet {
	clone := ChangeSet{Seq: cs.Seq}
	if cs.Mutations != nil {
		clone.Mutations = make([]Mutation, len(cs.Mutations))
		for i, m := range cs.Mutations {
			clone.Mutations[i] = m.Clone()
		}
	}
	return clone
}

// Package store defines the interface for the entity store that backs a tKV
// context manager, together with its error model and validation schema type.
//
// The package focuses on:
//   - A unified interface (IStore) that hides the persistence engine and the
//     entity codec from the transaction layer
//   - Atomic change set application: a committed transaction's mutations are
//     persisted all-or-nothing via Apply
//   - Schema validation through DefineSchema and Check, so a commit can be
//     rejected before anything is persisted
//   - A typed error model (Error with RetCode) that the transaction layer
//     maps onto its own error taxonomy
//
// Implementations:
//
//	The local store (lib/store/localstore) is the single-process
//	implementation: it binds a RecordDB engine to an entity codec and owns
//	the write-index progression.
package store

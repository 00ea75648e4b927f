// Package entity defines the record model shared by every layer of tKV.
//
// The package focuses on:
//   - Entity: a typed record identified by (Type, Key) with string fields
//   - Mutation: one pending change to an entity (insert, update or delete)
//   - ChangeSet: the committed mutations of a single transaction, tagged
//     with the commit sequence number
//
// Entities are value-oriented: contexts and the commit engine pass copies
// (via Clone) across goroutine boundaries, so no entity is ever shared
// mutable between a transaction and the main view.
//
// Key Components:
//
//   - StorageKey: maps an entity identity to its flat engine key
//     ("<type>/<key>"). The separator makes per-type prefix scans possible
//     on any RecordDB.
//
//   - Validate: the structural checks every mutation must pass before a
//     commit accepts it (non-empty type and key, no separator in the type).
//
// The codec subpackage serializes entities for the persistence layer.
package entity

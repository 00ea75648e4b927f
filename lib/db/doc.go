// Package db defines the interface for the persistence engines that back a
// tKV store, together with shared helper types.
//
// The package focuses on:
//   - A unified interface (RecordDB) for record storage across different
//     engine implementations
//   - Feature discovery through bit flags, so higher layers can check
//     support before relying on an operation
//   - Standardized engine introspection via DatabaseInfo
//
// Key Components:
//
//   - RecordDB Interface: basic point operations (Set, Get, Delete, Has),
//     atomic batch application (the commit engine persists a transaction's
//     accepted mutations as one ApplyBatch call), prefix scans for the query
//     collaborator, and snapshot Save/Load for durability.
//
//   - Write Index: every write carries a logical timestamp. Engines must
//     ignore stale writes, which gives the store's last-committed-wins
//     conflict policy its engine-level foundation.
//
//   - BatchEntry: one record of an atomic batch, either an upsert or a
//     deletion.
//
// Implementations:
//
//	The grove engine (lib/db/engines/grove) is the reference implementation:
//	an in-memory sharded record table with concurrent maps, seeded hashing
//	for shard distribution, and a binary snapshot format for Save/Load.
//
// The conformance suite in lib/db/testing exercises any RecordDB
// implementation against the interface contract.
package db

// Package localstore provides the single-process implementation of the
// store.IStore interface.
//
// The local store binds a RecordDB engine (created through a store.DBFactory)
// to an entity codec. Entities are stored under their flat storage key
// ("<type>/<key>"), which makes per-type scans a prefix scan on the engine.
//
// Write indexing:
//
//	The store owns a monotonically increasing write index. Change sets
//	applied through Apply use their commit sequence number as the engine
//	write index; the internal index is advanced past it so the two never
//	diverge. Together with the engine's stale-write protection this gives
//	last-committed-wins semantics at the record level.
//
// Schemas:
//
//	Validation schemas registered with DefineSchema live in memory only.
//	They are meant to be registered during startup, before transactions
//	run; they are not part of Save/Load snapshots.
package localstore

// Package grove implements the reference persistence engine for tKV.
//
// Grove is an in-memory sharded record table:
//
//   - Records are partitioned across shards by a seeded FNV-1a hash of the
//     key; each shard is a concurrent map (puzpuzpuz/xsync), so point reads
//     and writes scale across cores without a global lock.
//
//   - Every write carries a logical write index. Stale writes are ignored,
//     which makes concurrent commit application last-committed-wins at the
//     record level.
//
//   - ApplyBatch applies a set of upserts and deletions as one atomic unit
//     with respect to Scan and Save. This is the primitive the commit engine
//     relies on for the all-or-nothing persist step.
//
//   - Save/Load serialize the full table to a small binary snapshot format
//     (magic number, version, length-prefixed keys and values), the same
//     framing style used throughout tKV's binary codecs.
//
// Grove keeps everything in memory; durability is explicit via Save. The
// local store (lib/store/localstore) wires grove behind the store interface
// and owns the write-index progression.
package grove

// Package util provides the low-level building blocks shared by the tKV
// storage engine and the transaction core.
//
// The package contains:
//
//   - LockFreeMPSC: an unbounded, lock-free multi-producer single-consumer
//     queue. The transaction scheduler uses it as the substrate for the
//     private serial execution queue owned by every transaction context, and
//     the commit engine uses it as the inbox that carries committed change
//     sets to the main view.
//
//   - MapHeap: a binary heap combined with a hash map, giving O(log n)
//     priority operations and O(1) key access. The main-view merge loop uses
//     it to replay change sets strictly in commit order even when the inbox
//     delivers them slightly out of order under producer contention.
//
//   - Hashing and seed helpers used by the grove engine to distribute
//     records across shards.
//
//   - Distribution statistics and size histograms used for engine
//     introspection (DatabaseInfo).
//
// Typical consumers:
//   - The grove engine (sharding, statistics)
//   - The transaction scheduler and commit/merge engine (queues, ordering)
//   - Monitoring surfaces that report database size and shard balance
package util

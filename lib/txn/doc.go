// Package txn implements the transaction-context layer of tKV: goroutine
// confined unit-of-work contexts over an entity store, scheduled by a
// manager that merges committed changes back into the shared state.
//
// The package focuses on:
//   - Confined contexts: every context owns a private serial queue with a
//     dedicated worker goroutine, and entity operations may only run on
//     that worker. Misuse is detected at runtime and reported as a typed
//     usage violation instead of corrupting state.
//   - Isolated mutation overlays: a context accumulates inserts, updates
//     and deletes in a private overlay; its reads see the overlay first and
//     fall through to the committed state. Nothing becomes visible to other
//     contexts before Commit.
//   - Ordered commits: committed change sets receive a global sequence
//     number and are merged into the store strictly in sequence order,
//     giving last-committed-wins semantics at the entity level.
//   - Change notifications: observers subscribe to the stream of applied
//     change sets, in merge order.
//
// Key Components:
//
//   - IManager: created once per store via NewManager. Owns the main
//     context, creates transaction contexts, runs the commit engine.
//
//   - Context: the unit-of-work view. The main context (KindMain) lives as
//     long as the manager; transaction contexts (KindTransaction) live for
//     one Transact call. External goroutines schedule work onto a context
//     with Sync (blocking) and Async (fire and forget); inside a block the
//     entity operations Insert, Update, Delete, Lookup, Has and Scan are
//     available directly.
//
//   - Commit engine: commits flow through a multi-producer single-consumer
//     inbox into the merge loop, which restores sequence order with a
//     reorder buffer, validates and persists each change set atomically via
//     the store, and broadcasts applied change sets to subscribers.
//
// Error Taxonomy:
//
//	All errors carry a RetCode. Usage violations (wrong goroutine, illegal
//	nesting, closed context or manager) indicate programming errors and
//	should not be retried. Validation failures report rejected mutations;
//	nothing was persisted. Persistence failures indicate the store could
//	not apply an accepted change set. Fetch failures indicate a read could
//	not be served. The IsUsageViolation, IsValidation, IsPersistence and
//	IsFetch helpers classify errors across wrapping.
//
// Usage:
//
//	s := localstore.NewLocalStore(func() db.RecordDB {
//		return grove.NewGroveDB(nil)
//	}, codec.NewBinaryCodec())
//	mgr := txn.NewManager(s)
//	defer mgr.Close()
//
//	err := mgr.TransactAndWait(func(c *txn.Context) error {
//		if err := c.Insert(entity.Entity{
//			Type:   "user",
//			Key:    "alice",
//			Fields: map[string]string{"name": "Alice"},
//		}); err != nil {
//			return err
//		}
//		return c.Commit()
//	})
//
// Durability requires an explicit Commit. A body that returns without
// committing is rolled back by discard: its remaining mutations vanish
// silently at teardown, whether the body returned nil or an error.
package txn

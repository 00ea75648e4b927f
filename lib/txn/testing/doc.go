// Package testing provides a reusable conformance suite for transaction
// manager implementations, in the same style as the engine suite in
// lib/db/testing.
//
// The suite verifies the manager contract independent of the store and
// engine behind it: commit visibility, discard on error, discard of
// uncommitted mutations, isolation,
// context confinement, nesting rules, the main context singleton, ordered
// change notifications and concurrent commits. Implementations invoke it
// from their own _test.go files:
//
//	func TestLocalManager(t *testing.T) {
//		txntesting.RunManagerTests(t, "localstore", func() txn.IManager {
//			return txn.NewManager(newEmptyStore())
//		})
//	}
package testing

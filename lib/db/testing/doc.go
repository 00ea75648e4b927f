// Package testing provides a reusable conformance suite for RecordDB
// implementations.
//
// The suite verifies the interface contract that the store and commit layers
// depend on: point operations, stale-write rejection, atomic batch
// application, prefix scans and snapshot round trips. Engine packages invoke
// the suite from their own _test.go files:
//
//	func TestGroveInterface(t *testing.T) {
//		dbtesting.RunRecordDBTests(t, "grove", func() db.RecordDB {
//			return grove.NewGroveDB(nil)
//		})
//	}
//
// Tests for features an engine does not support are skipped based on
// SupportsFeature.
package testing

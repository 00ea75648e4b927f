package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/tKV/lib/db"
)

// DBFactory is a function that creates a new instance of a RecordDB implementation
type DBFactory func() db.RecordDB

// RunRecordDBTests runs a comprehensive test suite for a RecordDB implementation.
func RunRecordDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("StaleWrites", func(t *testing.T) {
			testStaleWrites(t, factory())
		})

		t.Run("ApplyBatch", func(t *testing.T) {
			testApplyBatch(t, factory())
		})

		t.Run("BatchAtomicity", func(t *testing.T) {
			testBatchAtomicity(t, factory())
		})

		t.Run("Scan", func(t *testing.T) {
			testScan(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("WriteIdx", func(t *testing.T) {
			testWriteIdx(t, factory())
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.RecordDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.RecordDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	database.Set(testKey, testValue1, 1)

	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	database.Set(testKey, testValue2, 2)

	result, exists = database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, exists = database.Get("nonexistent-key")
	if exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	// mutating the returned slice must not leak into the database
	retrievedValue, _ := database.Get(testKey)
	retrievedValue[0] = 'X'

	result, _ = database.Get(testKey)
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Database value was modified through returned slice")
	}
}

func testDelete(t *testing.T, database db.RecordDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureDelete)

	testKey := "delete-key"
	database.Set(testKey, []byte("value"), 1)

	if _, exists := database.Get(testKey); !exists {
		t.Fatalf("Expected key %s to exist before Delete", testKey)
	}

	database.Delete(testKey, 2)

	if _, exists := database.Get(testKey); exists {
		t.Errorf("Expected key %s to be gone after Delete", testKey)
	}

	// deleting a nonexistent key must be a no-op
	database.Delete("nonexistent-key", 3)
}

func testHas(t *testing.T, database db.RecordDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureHas)

	database.Set("present", []byte("v"), 1)

	if !database.Has("present") {
		t.Errorf("Expected Has to return true for existing key")
	}

	if database.Has("absent") {
		t.Errorf("Expected Has to return false for missing key")
	}
}

func testStaleWrites(t *testing.T, database db.RecordDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureDelete)

	testKey := "stale-key"

	database.Set(testKey, []byte("new"), 10)

	// a write with an older index must be ignored
	database.Set(testKey, []byte("old"), 5)

	result, exists := database.Get(testKey)
	if !exists {
		t.Fatalf("Expected key %s to exist", testKey)
	}
	if !bytes.Equal(result, []byte("new")) {
		t.Errorf("Stale Set overwrote newer value: got %s", result)
	}

	// a stale delete must be ignored too
	database.Delete(testKey, 5)

	if _, exists := database.Get(testKey); !exists {
		t.Errorf("Stale Delete removed a newer value")
	}

	// equal index wins (last-committed-wins at the same logical time)
	database.Set(testKey, []byte("same-idx"), 10)
	result, _ = database.Get(testKey)
	if !bytes.Equal(result, []byte("same-idx")) {
		t.Errorf("Equal-index Set was rejected: got %s", result)
	}
}

func testApplyBatch(t *testing.T, database db.RecordDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureApplyBatch)

	database.Set("pre-existing", []byte("old"), 1)

	entries := []db.BatchEntry{
		{Key: "batch-a", Value: []byte("a")},
		{Key: "batch-b", Value: []byte("b")},
		{Key: "pre-existing", Delete: true},
	}

	database.ApplyBatch(entries, 2)

	if v, ok := database.Get("batch-a"); !ok || !bytes.Equal(v, []byte("a")) {
		t.Errorf("Expected batch-a to be set")
	}
	if v, ok := database.Get("batch-b"); !ok || !bytes.Equal(v, []byte("b")) {
		t.Errorf("Expected batch-b to be set")
	}
	if _, ok := database.Get("pre-existing"); ok {
		t.Errorf("Expected pre-existing to be deleted by batch")
	}

	// empty batch is a no-op
	database.ApplyBatch(nil, 3)
}

func testBatchAtomicity(t *testing.T, database db.RecordDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureApplyBatch)
	requireFeature(t, database, db.FeatureScan)

	// Writers apply batches that always set "pair/x" and "pair/y" to the
	// same value. Readers scanning concurrently must never observe a torn
	// batch (differing values for the pair).
	const iterations = 200

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= iterations; i++ {
			v := []byte(fmt.Sprintf("gen-%d", i))
			database.ApplyBatch([]db.BatchEntry{
				{Key: "pair/x", Value: v},
				{Key: "pair/y", Value: v},
			}, uint64(i))
		}
		close(stop)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}

			seen := map[string][]byte{}
			database.Scan("pair/", func(key string, value []byte) bool {
				seen[key] = value
				return true
			})

			if len(seen) == 2 && !bytes.Equal(seen["pair/x"], seen["pair/y"]) {
				t.Errorf("Observed torn batch: x=%s y=%s", seen["pair/x"], seen["pair/y"])
				return
			}
		}
	}()

	wg.Wait()
}

func testScan(t *testing.T, database db.RecordDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureScan)

	database.Set("user/alice", []byte("1"), 1)
	database.Set("user/bob", []byte("2"), 2)
	database.Set("order/1", []byte("3"), 3)

	found := map[string]string{}
	database.Scan("user/", func(key string, value []byte) bool {
		found[key] = string(value)
		return true
	})

	if len(found) != 2 {
		t.Errorf("Expected 2 keys with prefix user/, got %d", len(found))
	}
	if found["user/alice"] != "1" || found["user/bob"] != "2" {
		t.Errorf("Unexpected scan results: %v", found)
	}

	// early termination
	count := 0
	database.Scan("user/", func(key string, value []byte) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("Expected scan to stop after first result, visited %d", count)
	}

	// empty prefix visits everything
	total := 0
	database.Scan("", func(key string, value []byte) bool {
		total++
		return true
	})
	if total != 3 {
		t.Errorf("Expected full scan to visit 3 keys, visited %d", total)
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	source := factory()
	defer source.Close()

	requireFeature(t, source, db.FeatureSet)
	requireFeature(t, source, db.FeatureSave)
	requireFeature(t, source, db.FeatureLoad)

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("key-%d", i)
		value := []byte(fmt.Sprintf("value-%d", i))
		source.Set(key, value, uint64(i+1))
	}
	source.Delete("key-50", 200)

	var buf bytes.Buffer
	if err := source.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	target := factory()
	defer target.Close()

	if err := target.Load(&buf); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	for i := 0; i < 100; i++ {
		if i == 50 {
			continue
		}
		key := fmt.Sprintf("key-%d", i)
		want := []byte(fmt.Sprintf("value-%d", i))

		got, exists := target.Get(key)
		if !exists {
			t.Errorf("Expected key %s to exist after Load", key)
			continue
		}
		if !bytes.Equal(got, want) {
			t.Errorf("Expected %s=%s after Load, got %s", key, want, got)
		}
	}

	if _, exists := target.Get("key-50"); exists {
		t.Errorf("Deleted key resurrected by Save/Load round trip")
	}

	// the write index must survive the round trip so later writes are not
	// treated as stale
	if target.WriteIdx() < 100 {
		t.Errorf("Expected write index >= 100 after Load, got %d", target.WriteIdx())
	}

	// loading garbage must fail cleanly
	corrupt := factory()
	defer corrupt.Close()
	if err := corrupt.Load(bytes.NewReader([]byte("not a snapshot"))); err == nil {
		t.Errorf("Expected Load of corrupt data to fail")
	}
}

func testWriteIdx(t *testing.T, database db.RecordDB) {
	defer database.Close()

	database.SetWriteIdx(10)
	if got := database.WriteIdx(); got != 10 {
		t.Errorf("Expected write index 10, got %d", got)
	}

	// lower values must not regress the index
	database.SetWriteIdx(5)
	if got := database.WriteIdx(); got != 10 {
		t.Errorf("Write index regressed to %d", got)
	}

	database.SetWriteIdx(20)
	if got := database.WriteIdx(); got != 20 {
		t.Errorf("Expected write index 20, got %d", got)
	}
}

func testEdgeCases(t *testing.T, database db.RecordDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)

	// empty value
	database.Set("empty-value", []byte{}, 1)
	v, exists := database.Get("empty-value")
	if !exists {
		t.Errorf("Expected empty-value key to exist")
	}
	if len(v) != 0 {
		t.Errorf("Expected empty value, got %d bytes", len(v))
	}

	// empty key
	database.Set("", []byte("empty-key"), 2)
	v, exists = database.Get("")
	if !exists || !bytes.Equal(v, []byte("empty-key")) {
		t.Errorf("Expected empty key to round trip")
	}

	// large value
	large := make([]byte, 1<<20)
	for i := range large {
		large[i] = byte(i % 251)
	}
	database.Set("large", large, 3)
	v, exists = database.Get("large")
	if !exists || !bytes.Equal(v, large) {
		t.Errorf("Large value did not round trip")
	}

	// binary keys with separators
	weird := "a/b\x00c/d"
	database.Set(weird, []byte("weird"), 4)
	if _, exists = database.Get(weird); !exists {
		t.Errorf("Expected binary key to round trip")
	}
}

func testRealisticUsage(t *testing.T, database db.RecordDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeatureDelete)

	const (
		numWorkers = 8
		numKeys    = 500
	)

	var wg sync.WaitGroup

	// each worker owns a disjoint key range, mirroring how the commit
	// engine serializes writes per record
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			base := worker * numKeys
			for i := 0; i < numKeys; i++ {
				key := fmt.Sprintf("worker-%d/key-%d", worker, i)
				database.Set(key, []byte(fmt.Sprintf("v-%d", base+i)), uint64(base+i+1))
			}

			for i := 0; i < numKeys; i += 2 {
				key := fmt.Sprintf("worker-%d/key-%d", worker, i)
				database.Delete(key, uint64(base+numKeys+i+1))
			}
		}(w)
	}

	wg.Wait()

	for w := 0; w < numWorkers; w++ {
		for i := 0; i < numKeys; i++ {
			key := fmt.Sprintf("worker-%d/key-%d", w, i)
			_, exists := database.Get(key)

			if i%2 == 0 && exists {
				t.Errorf("Expected %s to be deleted", key)
			}
			if i%2 == 1 && !exists {
				t.Errorf("Expected %s to exist", key)
			}
		}
	}
}

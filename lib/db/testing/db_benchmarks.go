package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/tKV/lib/db"
)

// RunRecordDBBenchmarks runs all benchmarks for a RecordDB implementation
func RunRecordDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Set", func(b *testing.B) {
		benchmarkSet(b, factory())
	})

	b.Run("SetExisting", func(b *testing.B) {
		benchmarkSetExisting(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("Has", func(b *testing.B) {
		benchmarkHas(b, factory())
	})

	b.Run("Delete", func(b *testing.B) {
		benchmarkDelete(b, factory())
	})

	b.Run("ApplyBatch", func(b *testing.B) {
		benchmarkApplyBatch(b, factory())
	})

	b.Run("Scan", func(b *testing.B) {
		benchmarkScan(b, factory())
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Set operation
func benchmarkSet(b *testing.B, database db.RecordDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)

	var idx atomic.Uint64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter)
			value := []byte(fmt.Sprintf("test-value-%d", counter))
			database.Set(key, value, idx.Add(1))
			counter++
		}
	})
}

// Benchmark for Set operation with existing keys
func benchmarkSetExisting(b *testing.B, database db.RecordDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)

	// Prepare data
	numKeys := 10_000
	for i := 0; i < numKeys; i++ {
		database.Set(fmt.Sprintf("test-key-%d", i), []byte("initial"), 1)
	}

	var idx atomic.Uint64
	idx.Store(1)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter%numKeys)
			database.Set(key, []byte("updated"), idx.Add(1))
			counter++
		}
	})
}

// Benchmark for Get operation
func benchmarkGet(b *testing.B, database db.RecordDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)
	requireFeature(b, database, db.FeatureGet)

	numKeys := 10_000
	for i := 0; i < numKeys; i++ {
		database.Set(fmt.Sprintf("test-key-%d", i), []byte(fmt.Sprintf("test-value-%d", i)), 1)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			database.Get(fmt.Sprintf("test-key-%d", rand.Intn(numKeys)))
		}
	})
}

// Benchmark for Has operation
func benchmarkHas(b *testing.B, database db.RecordDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)
	requireFeature(b, database, db.FeatureHas)

	numKeys := 10_000
	for i := 0; i < numKeys; i++ {
		database.Set(fmt.Sprintf("test-key-%d", i), []byte("v"), 1)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			database.Has(fmt.Sprintf("test-key-%d", rand.Intn(numKeys*2)))
		}
	})
}

// Benchmark for Delete operation
func benchmarkDelete(b *testing.B, database db.RecordDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)
	requireFeature(b, database, db.FeatureDelete)

	numKeys := 100_000
	for i := 0; i < numKeys; i++ {
		database.Set(fmt.Sprintf("test-key-%d", i), []byte("v"), 1)
	}

	var idx atomic.Uint64
	idx.Store(1)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Delete(fmt.Sprintf("test-key-%d", counter%numKeys), idx.Add(1))
			counter++
		}
	})
}

// Benchmark for atomic batch application (the commit engine's persist path)
func benchmarkApplyBatch(b *testing.B, database db.RecordDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureApplyBatch)

	const batchSize = 16

	var idx atomic.Uint64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			entries := make([]db.BatchEntry, batchSize)
			for i := range entries {
				entries[i] = db.BatchEntry{
					Key:   fmt.Sprintf("batch-key-%d-%d", counter, i),
					Value: []byte("batch-value"),
				}
			}
			database.ApplyBatch(entries, idx.Add(1))
			counter++
		}
	})
}

// Benchmark for prefix scans
func benchmarkScan(b *testing.B, database db.RecordDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)
	requireFeature(b, database, db.FeatureScan)

	numKeys := 10_000
	for i := 0; i < numKeys; i++ {
		database.Set(fmt.Sprintf("type-%d/key-%d", i%10, i), []byte("v"), 1)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		count := 0
		database.Scan(fmt.Sprintf("type-%d/", i%10), func(key string, value []byte) bool {
			count++
			return true
		})
	}
}

// Benchmark for Save/Load round trips
func benchmarkSaveLoad(b *testing.B, factory DBFactory) {

	source := factory()
	b.Cleanup(func() {
		source.Close()
	})

	requireFeature(b, source, db.FeatureSet)
	requireFeature(b, source, db.FeatureSave)
	requireFeature(b, source, db.FeatureLoad)

	numKeys := 10_000
	for i := 0; i < numKeys; i++ {
		source.Set(fmt.Sprintf("test-key-%d", i), []byte(fmt.Sprintf("test-value-%d", i)), 1)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		if err := source.Save(&buf); err != nil {
			b.Fatalf("Save failed: %v", err)
		}

		target := factory()
		if err := target.Load(&buf); err != nil {
			b.Fatalf("Load failed: %v", err)
		}
		target.Close()
	}
}

// Benchmark simulating mixed realistic usage
func benchmarkMixedUsage(b *testing.B, database db.RecordDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)
	requireFeature(b, database, db.FeatureGet)
	requireFeature(b, database, db.FeatureDelete)
	requireFeature(b, database, db.FeatureHas)

	numKeys := 10_000
	for i := 0; i < numKeys; i++ {
		database.Set(fmt.Sprintf("test-key-%d", i), []byte("v"), 1)
	}

	var idx atomic.Uint64
	idx.Store(1)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", rand.Intn(numKeys))
			switch rand.Intn(10) {
			case 0:
				database.Delete(key, idx.Add(1))
			case 1, 2:
				database.Set(key, []byte("updated"), idx.Add(1))
			case 3, 4:
				database.Has(key)
			default:
				database.Get(key)
			}
		}
	})
}

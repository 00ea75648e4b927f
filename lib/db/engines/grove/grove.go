package grove

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/ValentinKolb/tKV/lib/db"
	"github.com/ValentinKolb/tKV/lib/db/engines/grove/internal"
	"github.com/ValentinKolb/tKV/lib/db/util"
	"sync/atomic"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for database behavior and structure
const (
	magicNum     = "GROVEDB\x00" // file format identifier
	groveVersion = 1             // snapshot format version
)

// --------------------------------------------------------------------------
// Core grove database structure
// --------------------------------------------------------------------------

// groveImpl implements db.RecordDB with sharded data.
//
// Point operations run lock-free against the shard maps. Batch application,
// scans and snapshots coordinate through batchMu so that a batch is observed
// either completely or not at all.
type groveImpl struct {
	numShards int               // number of shards
	seed      uint64            // seed for the shard hash function
	shards    []*internal.Shard // array of shards
	currIndex atomic.Uint64     // current logical write index

	batchMu sync.RWMutex // batch/scan/snapshot coordination
}

// DBOptions configures the grove engine during initialization
type DBOptions struct {
	NumShards int // number of shards (0 = auto)
}

// DefaultOptions returns the default grove options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards: runtime.NumCPU(),
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewGroveDB creates a new grove instance with the specified options (optional)
//
// Thread-safety: This function is not thread-safe and should only be called
// once during initialization.
func NewGroveDB(opts *DBOptions) db.RecordDB {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}

	shards := make([]*internal.Shard, opts.NumShards)
	for i := 0; i < opts.NumShards; i++ {
		shards[i] = internal.NewShard()
	}

	newDB := &groveImpl{
		numShards: opts.NumShards,
		seed:      util.GenerateSeed(),
		shards:    shards,
	}
	newDB.currIndex.Store(0)

	return newDB
}

// shardFor returns the shard responsible for the given key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (g *groveImpl) shardFor(key string) *internal.Shard {
	return internal.GetShard(util.HashString(key, g.seed), g.shards)
}

// --------------------------------------------------------------------------
// Core RecordDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates a record with the given key and value.
// Stale writes (writeIndex older than the stored entry) are ignored.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (g *groveImpl) Set(key string, value []byte, writeIndex uint64) {
	g.batchMu.RLock()
	defer g.batchMu.RUnlock()

	g.SetWriteIdx(writeIndex)
	g.set(key, value, writeIndex)
}

// set performs the actual store without touching batchMu or the write index
func (g *groveImpl) set(key string, value []byte, writeIndex uint64) {
	// copy value to prevent corruption through caller-retained slices
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	g.shardFor(key).Data.Compute(key, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		if loaded && writeIndex < old.Index {
			// stale write, keep the newer entry
			return old, false
		}
		return internal.Entry{Value: valueCopy, Index: writeIndex}, false
	})
}

// Delete removes the record with the specified key.
// Stale deletes are ignored.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (g *groveImpl) Delete(key string, writeIndex uint64) {
	g.batchMu.RLock()
	defer g.batchMu.RUnlock()

	g.SetWriteIdx(writeIndex)
	g.delete(key, writeIndex)
}

// delete performs the actual removal without touching batchMu or the write index
func (g *groveImpl) delete(key string, writeIndex uint64) {
	g.shardFor(key).Data.Compute(key, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		if !loaded {
			// nothing to remove, also don't create an entry
			return old, true
		}
		if writeIndex < old.Index {
			return old, false
		}
		return internal.Entry{}, true
	})
}

// ApplyBatch applies all entries as one atomic unit.
// Concurrent Scan and Save calls observe either none or all entries of the
// batch; concurrent point reads may observe a prefix of it.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (g *groveImpl) ApplyBatch(entries []db.BatchEntry, writeIndex uint64) {
	g.batchMu.Lock()
	defer g.batchMu.Unlock()

	g.SetWriteIdx(writeIndex)
	for _, e := range entries {
		if e.Delete {
			g.delete(e.Key, writeIndex)
		} else {
			g.set(e.Key, e.Value, writeIndex)
		}
	}
}

// --------------------------------------------------------------------------
// Core RecordDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves the value for a key.
// The returned value is a copy of the stored data and therefore safe to
// use and modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (g *groveImpl) Get(key string) ([]byte, bool) {
	entry, ok := g.shardFor(key).Data.Load(key)
	if !ok {
		return nil, false
	}

	data := make([]byte, len(entry.Value))
	copy(data, entry.Value)
	return data, true
}

// Has checks if a key exists in the database.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (g *groveImpl) Has(key string) bool {
	_, ok := g.shardFor(key).Data.Load(key)
	return ok
}

// Scan visits every record whose key starts with prefix.
// The scan holds the batch lock, so a concurrently applied batch is observed
// either completely or not at all.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (g *groveImpl) Scan(prefix string, fn func(key string, value []byte) bool) {
	g.batchMu.RLock()
	defer g.batchMu.RUnlock()

	for _, shard := range g.shards {
		stop := false
		shard.Data.Range(func(key string, entry internal.Entry) bool {
			if !strings.HasPrefix(key, prefix) {
				return true
			}

			data := make([]byte, len(entry.Value))
			copy(data, entry.Value)

			if !fn(key, data) {
				stop = true
				return false
			}
			return true
		})
		if stop {
			return
		}
	}
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save persists the database to the writer.
//
// Thread-safety: This method takes a consistent snapshot; concurrent batch
// application is blocked for the duration of the copy phase.
func (g *groveImpl) Save(w io.Writer) error {
	type entryToSave struct {
		key   string
		entry internal.Entry
	}

	// snapshot phase under the batch lock
	g.batchMu.RLock()
	var dataEntries []entryToSave
	for _, shard := range g.shards {
		shard.Data.Range(func(key string, entry internal.Entry) bool {
			entryCopy := internal.Entry{
				Index: entry.Index,
				Value: make([]byte, len(entry.Value)),
			}
			copy(entryCopy.Value, entry.Value)

			dataEntries = append(dataEntries, entryToSave{key, entryCopy})
			return true
		})
	}
	g.batchMu.RUnlock()

	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	// file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(groveVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(dataEntries))); err != nil {
		return err
	}

	// data entries
	for _, item := range dataEntries {
		keyBytes := []byte(item.key)
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(keyBytes))); err != nil {
			return err
		}
		if _, err := bw.Write(keyBytes); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, item.entry.Index); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.entry.Value))); err != nil {
			return err
		}
		if _, err := bw.Write(item.entry.Value); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Load restores a database from the reader.
//
// Thread-safety: This method is not safe for concurrent use with writes and
// should only be called during initialization.
func (g *groveImpl) Load(r io.Reader) error {
	g.batchMu.Lock()
	defer g.batchMu.Unlock()

	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	// read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != groveVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, groveVersion)
	}

	// recreate empty shards
	shards := make([]*internal.Shard, g.numShards)
	for i := 0; i < g.numShards; i++ {
		shards[i] = internal.NewShard()
	}
	g.shards = shards
	g.currIndex.Store(0)

	var dataCount uint64
	if err := binary.Read(br, binary.LittleEndian, &dataCount); err != nil {
		return err
	}

	// track the highest index seen during load
	var maxIndex uint64 = 0

	for i := uint64(0); i < dataCount; i++ {
		var keyLen uint32
		if err := binary.Read(br, binary.LittleEndian, &keyLen); err != nil {
			return err
		}

		keyBytes := make([]byte, keyLen)
		if _, err := io.ReadFull(br, keyBytes); err != nil {
			return err
		}
		key := string(keyBytes)

		var index uint64
		if err := binary.Read(br, binary.LittleEndian, &index); err != nil {
			return err
		}
		if index > maxIndex {
			maxIndex = index
		}

		var valueLen uint32
		if err := binary.Read(br, binary.LittleEndian, &valueLen); err != nil {
			return err
		}

		value := make([]byte, valueLen)
		if _, err := io.ReadFull(br, value); err != nil {
			return err
		}

		g.shardFor(key).Data.Store(key, internal.Entry{
			Value: value,
			Index: index,
		})
	}

	g.SetWriteIdx(maxIndex)

	return nil
}

// --------------------------------------------------------------------------
// RecordDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (g *groveImpl) GetInfo() db.DatabaseInfo {
	// create a size histogram for the info
	histogram := util.NewSizeHistogram()
	samplesPerShard := 100
	wg := sync.WaitGroup{}
	wg.Add(len(g.shards))

	mu := sync.Mutex{}
	shardSizes := make([]float64, len(g.shards))

	// concurrently collect samples from all shards
	for shardIndex, shard := range g.shards {
		go func(i int, s *internal.Shard) {
			defer wg.Done()
			count := 0
			s.Data.Range(func(key string, entry internal.Entry) bool {
				histogram.AddSample(len(entry.Value))

				// only sample a few entries per shard
				count++
				return count < samplesPerShard
			})

			mu.Lock()
			defer mu.Unlock()
			shardSizes[i] = float64(s.Data.Size())
		}(shardIndex, shard)
	}

	wg.Wait()

	// weighted size estimate (60% median, 40% average)
	entryOverhead := 16 // 8 bytes index + slice header amortization
	medianSize := histogram.MedianEstimate() + entryOverhead
	avgSize := histogram.AverageSize() + entryOverhead
	sizeBytes := (medianSize*60 + avgSize*40) / 100

	meta := &struct {
		CurrentWriteIndex uint64                 `json:"current_write_index"`
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
		Info              string                 `json:"info"`
	}{
		CurrentWriteIndex: g.currIndex.Load(),
		ShardCount:        len(g.shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
		Info:              "All values (including SizeBytes) are estimates and may vary depending on the database state.",
	}

	return db.DatabaseInfo{
		SizeBytes: sizeBytes,
		DbType:    db.ImplGrove,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureGet, db.FeatureDelete, db.FeatureHas,
			db.FeatureApplyBatch, db.FeatureScan,
			db.FeatureSave, db.FeatureLoad,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific RecordDB feature
func (g *groveImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureSet |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureHas |
		db.FeatureApplyBatch |
		db.FeatureScan |
		db.FeatureSave |
		db.FeatureLoad
	return supportedFeatures&feature == feature
}

// Close releases the engine. The in-memory state stays valid for reads until
// the instance is garbage collected; callers that need durability must Save
// before Close.
func (g *groveImpl) Close() error {
	return nil
}

// --------------------------------------------------------------------------
// Index Management
// --------------------------------------------------------------------------

// SetWriteIdx safely updates the current index.
// It only updates if the new index is greater than the current one.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (g *groveImpl) SetWriteIdx(newIdx uint64) {
	for {
		currIdx := g.currIndex.Load()
		if newIdx <= currIdx {
			return
		}
		if g.currIndex.CompareAndSwap(currIdx, newIdx) {
			return
		}
	}
}

// WriteIdx returns the current index of the database
func (g *groveImpl) WriteIdx() uint64 {
	return g.currIndex.Load()
}

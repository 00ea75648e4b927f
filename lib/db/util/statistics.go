// Package util provides statistics helpers for RecordDB implementations.
// This file implements shard distribution metrics and a size histogram with
// exponential bucket sizing, so engines can report on data characteristics
// without performing expensive full scans.
package util

import (
	"math"
	"sync"
)

// ----------------------------------------------------------------------------
// Distribution statistics
// ----------------------------------------------------------------------------

type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// NewStats computes standard deviation, minimum, maximum and mean
// from an array of float64 values.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	min := values[0]
	max := values[0]

	var sum float64
	for _, v := range values {
		sum += v

		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	mean := sum / float64(len(values))

	var sumSquaredDiffs float64
	for _, v := range values {
		diff := v - mean
		sumSquaredDiffs += diff * diff
	}

	// population formula
	stdDev := math.Sqrt(sumSquaredDiffs / float64(len(values)))

	var minMaxRatio float64 = 1.0
	if max > 0 {
		minMaxRatio = min / max
	}

	return Stats{
		StdDeviation: stdDev,
		Min:          min,
		Max:          max,
		Mean:         mean,
		MinMaxRatio:  minMaxRatio,
	}
}

type DistributionStats struct {
	Stats
	DistributionQuality float64 `json:"distribution_quality"`
}

// NewDistributionStats computes quality metrics for shard size distribution.
// Lower coefficient of variation and higher min/max ratio indicate a better
// distribution of records across shards.
func NewDistributionStats(shardSizes []float64) DistributionStats {
	stats := NewStats(shardSizes)

	var cv float64
	if stats.Mean > 0 {
		cv = stats.StdDeviation / stats.Mean
	}

	distributionQuality := (1.0-math.Min(1.0, cv))*0.5 + stats.MinMaxRatio*0.5

	return DistributionStats{
		Stats:               stats,
		DistributionQuality: distributionQuality,
	}
}

// ----------------------------------------------------------------------------
// SizeHistogram
// ----------------------------------------------------------------------------

// SizeHistogram tracks the distribution of record sizes.
// It organizes sizes into exponential buckets for efficient memory usage
// while still providing accurate size estimations from bytes to gigabytes.
type SizeHistogram struct {
	mutex      sync.RWMutex
	boundaries []int   // bucket boundaries covering byte to GB range
	buckets    []int64 // count of items in each bucket
	count      int64   // total number of samples
	sum        int64   // sum of all sampled sizes
}

// NewSizeHistogram creates a new size histogram with default bucket boundaries
func NewSizeHistogram() *SizeHistogram {
	return &SizeHistogram{
		boundaries: []int{
			16, 64, 256, 1024, 4096, // bytes: 16B to 4KB
			16384, 65536, 262144, 1048576, // KB range: 16KB to 1MB
			4194304, 16777216, 67108864, // MB range: 4MB to 64MB
			268435456, 1073741824, 4294967296, // 256MB to 4GB
		},
		buckets: make([]int64, 16), // 15 boundaries + 1 for larger values
	}
}

// AddSample adds a size sample to the histogram
//
// Thread-safety: This method is safe for concurrent use.
func (h *SizeHistogram) AddSample(size int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	bucketIndex := 0
	for i, boundary := range h.boundaries {
		if size <= boundary {
			bucketIndex = i
			break
		}
		bucketIndex = len(h.boundaries) // last bucket for all larger values
	}

	h.buckets[bucketIndex]++
	h.count++
	h.sum += int64(size)
}

// GetCount returns the total number of samples
//
// Thread-safety: This method is safe for concurrent use.
func (h *SizeHistogram) GetCount() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.count
}

// AverageSize returns the average size across all samples
//
// Thread-safety: This method is safe for concurrent use.
func (h *SizeHistogram) AverageSize() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// MedianEstimate estimates the median size based on the histogram
//
// Thread-safety: This method is safe for concurrent use.
func (h *SizeHistogram) MedianEstimate() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 {
		return 0
	}

	medianCount := h.count / 2
	cumulativeCount := int64(0)

	for i, count := range h.buckets {
		cumulativeCount += count
		if cumulativeCount >= medianCount {
			if i == 0 {
				return h.boundaries[0] / 2
			} else if i < len(h.boundaries) {
				return (h.boundaries[i-1] + h.boundaries[i]) / 2
			} else {
				// estimation for the last bucket (2x the last boundary)
				return h.boundaries[len(h.boundaries)-1] * 2
			}
		}
	}

	// fallback, shouldn't happen
	return int(h.sum / h.count)
}

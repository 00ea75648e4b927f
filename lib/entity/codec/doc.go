// Package codec provides entity serialization for the tKV persistence layer.
// It defines a common interface and multiple implementations for encoding
// entities into the byte values a RecordDB engine stores.
//
// The package focuses on:
//   - Providing a consistent interface for different serialization formats
//   - Offering multiple implementations with different performance characteristics
//   - Minimizing memory allocations and processing overhead
//
// Key Components:
//
//   - ICodec: Core interface that all codec implementations must satisfy.
//
//   - binaryCodecImpl: Custom binary format implementation optimized for speed
//     and space efficiency. Uses a flag-based approach to encode only present
//     fields, resulting in compact serialized data with minimal overhead.
//
//   - gobCodecImpl: Implementation using Go's built-in gob encoding, offering
//     good compatibility with Go's type system but with larger serialized sizes.
//
//   - jsonCodecImpl: Implementation using JSON encoding, useful for debugging
//     snapshot contents or interoperability, but with lower performance.
//
// Thread Safety:
//
//	All codec implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	Codecs are typically created once per store and reused:
//
//	  c := codec.NewBinaryCodec()
//	  data, err := c.Encode(ent)
//	  // ... persist data ...
//	  var decoded entity.Entity
//	  err = c.Decode(data, &decoded)
package codec

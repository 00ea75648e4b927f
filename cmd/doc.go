// Package cmd implements the command-line interface for the tKV
// transactional entity store. Every command runs its reads and writes
// through real transactions against a snapshot-backed local store.
//
// The package is organized into several subpackages:
//
//   - entity: Commands for entity operations (set, get, del, has, list)
//     and the perf benchmark
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See tkv -help for a list of all commands.
package cmd

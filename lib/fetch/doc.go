// Package fetch is the query collaborator of the transaction layer: typed
// queries against a context's view and a change observer for foreground
// code.
//
// The package focuses on:
//   - Request: a small fluent builder (NewRequest, WhereKeyIn, Limit,
//     Execute) producing entity slices from a context's view, i.e. the
//     committed state shadowed by the context's pending mutations
//   - Convenience lookups: FindByKey, FindAllByKeys, FindAll
//   - Observer: a bridge from the commit engine's change stream to
//     consumer code, with per-type filtering
//
// Queries never distinguish "no results" from success: an empty result is
// an empty slice and a nil error. Errors mean the query itself failed and
// carry the transaction layer's fetch or usage codes.
//
// Like all context operations, Execute and the Find helpers must run on
// the worker goroutine of the context they are given, typically inside a
// transaction body or a Sync block.
package fetch

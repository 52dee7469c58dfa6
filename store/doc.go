// Package store provides the client-side entity caches for pages and blocks.
//
// Each store owns a normalized cache for one entity kind: a primary map from
// id to entity and a secondary index from grouping key to the ordered ids of
// the entities in that group. Pages are grouped by parent (model.Null for the
// roots of the forest); blocks are grouped by their owning page, regardless of
// how deeply they nest under other blocks.
//
// # Invariants
//
// After every operation:
//
//   - every id in a group sequence is present in the primary map
//   - every cached entity appears exactly once, in the sequence of its current
//     group
//   - sequences are sorted by order, except after a successful Reorder, whose
//     sequence stands until the next group fetch
//
// # Failure semantics
//
// Stores combine one transport call with a cache reconciliation. The cache is
// written only after the transport call succeeds, so a failed operation leaves
// both maps exactly as they were. Errors are wrapped with the operation name
// and returned; nothing is retried.
//
// # Concurrency
//
// Stores are safe for concurrent use. The cache lock is never held across a
// transport call, so overlapping operations are not serialized: the response
// that lands last wins in the primary map.
//
// # Observing changes
//
// Status reports whether an operation is in flight and the error of the last
// one. Subscribe registers a callback that receives an Event after each cache
// change; callbacks run outside the cache lock and may call back into the
// store.
package store

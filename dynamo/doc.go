// Package dynamo stores pages and blocks in DynamoDB and implements the
// transport interfaces on top of it, so the entity stores can run against
// a table instead of the REST service.
//
// # Tables
//
//   - pages: hash key "id", GSI on (parent_id, order). Root pages hold the
//     "null" sentinel in parent_id.
//   - blocks: hash key "id", GSI on (page_id, order). Content is the JSON
//     payload of the block's type.
//   - relationships: hash key "pk", range key "child_ref". One record per
//     child page and per block, partitioned by the parent reference.
//
// # Writes
//
// Creates run as a transaction that checks the parent is active, puts the
// entity and records the relationship. Reorders and moves update every
// touched item in one transaction conditioned on the group, so a concurrent
// change fails the whole write with [ErrGroupChanged].
//
// # Deletes
//
// Deletes set the item's TTL instead of removing it. Reads treat an item
// whose TTL has passed as absent. The cascade handler in package stream
// expires the children of a deleted page through the relationship table.
//
// # Configuration
//
// Use [DefaultConfig] for small datasets (NumShards=1, single queries).
// Increase NumShards to spread the children of busy pages:
//
//	cfg := dynamo.DefaultConfig()
//	cfg.NumShards = 16
//
// # Errors
//
//   - [ErrNotFound] - entity doesn't exist or is deleted
//   - [ErrParentNotFound] - parent validation failed
//   - [ErrAlreadyExists] - entity with ID already exists
//   - [ErrInvalidParent] - the parent would create a cycle or cross pages
//   - [ErrGroupChanged] - a reorder or move lost a race
//   - [ErrTooManyItems] - the write does not fit one transaction
package dynamo

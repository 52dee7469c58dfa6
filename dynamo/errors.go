package dynamo

import "errors"

var (
	// ErrParentNotFound is returned when the parent page or block doesn't
	// exist or is deleted.
	ErrParentNotFound = errors.New("canopy: parent entity not found")

	// ErrNotFound is returned when an entity doesn't exist or is deleted
	// (has TTL <= now).
	ErrNotFound = errors.New("canopy: entity not found")

	// ErrAlreadyExists is returned when creating an entity with an existing ID.
	ErrAlreadyExists = errors.New("canopy: entity already exists")

	// ErrInvalidParent is returned when an entity would be placed under itself
	// or, for blocks, under a block of another page.
	ErrInvalidParent = errors.New("canopy: invalid parent")

	// ErrGroupChanged is returned when a reorder or move lost a race with
	// another writer: a listed entity left the group or was deleted.
	ErrGroupChanged = errors.New("canopy: sibling group changed concurrently")

	// ErrTooManyItems is returned when a reorder or move would touch more
	// items than a single DynamoDB transaction allows.
	ErrTooManyItems = errors.New("canopy: too many items for one transaction")
)

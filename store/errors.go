package store

import "errors"

var (
	// ErrNotFound is returned when an operation needs an entity the remote
	// service does not have.
	ErrNotFound = errors.New("canopy: entity not found")

	// ErrInvalidReorder is returned when the ids passed to Reorder are not a
	// permutation of the cached group.
	ErrInvalidReorder = errors.New("canopy: reorder ids do not match the cached group")

	// ErrCrossPage is returned when a block would be moved under a block of
	// another page.
	ErrCrossPage = errors.New("canopy: block parent belongs to another page")

	// ErrInvalidMove is returned when a block would become its own ancestor.
	ErrInvalidMove = errors.New("canopy: block cannot be moved under itself")
)

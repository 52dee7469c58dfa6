package usecase

import "errors"

var (
	// ErrMissingParent is returned when the requested parent page does not
	// exist.
	ErrMissingParent = errors.New("canopy: parent page not found")

	// ErrMissingTarget is returned when the page to update or delete does not
	// exist.
	ErrMissingTarget = errors.New("canopy: page not found")

	// ErrHasChildren is returned when deleting a page that still has child
	// pages. Children must be deleted or moved first.
	ErrHasChildren = errors.New("canopy: page has children")

	// ErrCycle is returned when a page would become its own ancestor.
	ErrCycle = errors.New("canopy: page cannot be moved under itself")

	// ErrInconsistentCreate is returned when a page cannot be read back after
	// it was created.
	ErrInconsistentCreate = errors.New("canopy: created page not found")

	// ErrInconsistentUpdate is returned when a page cannot be read back after
	// it was updated.
	ErrInconsistentUpdate = errors.New("canopy: updated page not found")
)

package model

import "errors"

var (
	// ErrUnknownBlockType is returned for a block type outside the supported set.
	ErrUnknownBlockType = errors.New("canopy: unknown block type")

	// ErrInvalidContent is returned when block content is missing a required field.
	ErrInvalidContent = errors.New("canopy: invalid block content")

	// ErrContentMismatch is returned when content does not have the shape of its block type.
	ErrContentMismatch = errors.New("canopy: block content does not match block type")
)

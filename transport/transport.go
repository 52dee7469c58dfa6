// Package transport defines the narrow interface the entity stores use to
// reach the remote source of truth, and a REST implementation of it.
//
// Point lookups return (nil, nil) when the entity does not exist. Every other
// non-success outcome is an error: a *Error for failed exchanges, or
// ErrUnsupported when the remote does not implement the operation.
package transport

import (
	"context"

	"github.com/jacentio/canopy/model"
)

// Pages is the transport surface for pages. The grouping key is the parent.
type Pages interface {
	GetByID(ctx context.Context, id string) (*model.Page, error)
	ListByParent(ctx context.Context, parent model.Ref) ([]model.Page, error)
	Create(ctx context.Context, draft model.PageDraft) (*model.Page, error)
	Update(ctx context.Context, id string, patch model.PagePatch) (*model.Page, error)
	Delete(ctx context.Context, id string) error
	Reorder(ctx context.Context, parent model.Ref, ids []string) error
}

// Blocks is the transport surface for blocks. The grouping key is the page.
type Blocks interface {
	GetByID(ctx context.Context, id string) (*model.Block, error)
	ListByPage(ctx context.Context, pageID string) ([]model.Block, error)
	Create(ctx context.Context, draft model.BlockDraft) (*model.Block, error)
	Update(ctx context.Context, id string, patch model.BlockPatch) (*model.Block, error)
	Delete(ctx context.Context, id string) error
	Reorder(ctx context.Context, pageID string, ids []string) error
	Move(ctx context.Context, id string, newParent model.Ref, newOrder int) error
}

// ReorderRequest is the body of a reorder call. Exactly one of ParentID or
// PageID is meaningful, depending on the entity kind.
type ReorderRequest struct {
	ParentID model.Ref `json:"parentId"`
	PageID   string    `json:"pageId,omitempty"`
	IDs      []string  `json:"ids"`
}

// MoveRequest is the body of a block move call.
type MoveRequest struct {
	ParentID model.Ref `json:"parentId"`
	Order    int       `json:"order"`
}

// ErrorBody is the JSON shape of an error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// Package usecase implements the page workflows that span several store
// calls: parent checks before create and move, the children check before
// delete, audit stamping, and reading the result back.
//
// Every workflow runs its checks first. A failed check returns before any
// mutation is sent. Checks read through a Lookup, which does not touch the
// caches, so a refused workflow leaves them as they were.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jacentio/canopy/model"
)

// Repository is the page surface the workflows mutate through.
// tree.Coordinator implements it.
type Repository interface {
	// LoadPage returns the page with its blocks, or nil when it does not exist.
	LoadPage(ctx context.Context, id string) (*model.PageView, error)
	CreatePage(ctx context.Context, draft model.PageDraft) (*model.Page, error)
	UpdatePage(ctx context.Context, id string, patch model.PagePatch) (*model.Page, error)
	DeletePage(ctx context.Context, id string) error
}

// Lookup reads pages from the remote source of truth. transport.Pages
// implements it.
type Lookup interface {
	// GetByID returns the page or nil when it does not exist.
	GetByID(ctx context.Context, id string) (*model.Page, error)
	ListByParent(ctx context.Context, parent model.Ref) ([]model.Page, error)
}

// maxDepth bounds the ancestor walk of the cycle check.
const maxDepth = 256

// Pages runs the page workflows.
type Pages struct {
	repo   Repository
	lookup Lookup
	now    func() time.Time
	logger *slog.Logger
}

// Option configures Pages.
type Option func(*Pages)

// WithClock sets the clock used for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pages) { p.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pages) { p.logger = l }
}

// NewPages creates the page workflows. Checks read through lookup;
// mutations and read-backs go through repo.
func NewPages(repo Repository, lookup Lookup, opts ...Option) *Pages {
	p := &Pages{
		repo:   repo,
		lookup: lookup,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CreateInput describes a new page.
type CreateInput struct {
	Title    string
	Icon     string
	Cover    string
	ParentID model.Ref
	IsPublic bool
	UserID   string
}

// Create creates a page after checking its parent exists, and returns it with
// its (empty) block list.
func (p *Pages) Create(ctx context.Context, in CreateInput) (*model.PageView, error) {
	if !in.ParentID.IsNull() {
		if err := p.requirePage(ctx, in.ParentID.ID(), ErrMissingParent); err != nil {
			return nil, fmt.Errorf("create page: %w", err)
		}
	}

	now := p.now()
	created, err := p.repo.CreatePage(ctx, model.PageDraft{
		Title:        in.Title,
		Icon:         in.Icon,
		Cover:        in.Cover,
		ParentID:     in.ParentID,
		IsPublic:     in.IsPublic,
		CreatedBy:    in.UserID,
		UpdatedBy:    in.UserID,
		LastEditedBy: in.UserID,
		LastEditedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	view, err := p.repo.LoadPage(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("create page: read back %s: %w", created.ID, err)
	}
	if view == nil {
		return nil, fmt.Errorf("create page %s: %w", created.ID, ErrInconsistentCreate)
	}
	p.logger.Debug("page created", "pageID", created.ID, "parentID", in.ParentID, "userID", in.UserID)
	return view, nil
}

// UpdateInput describes a page update. Nil fields are left unchanged; a
// ParentID pointing at model.Null moves the page to the root.
type UpdateInput struct {
	ID       string
	Title    *string
	Icon     *string
	Cover    *string
	ParentID *model.Ref
	IsPublic *bool
	UserID   string
}

// Update updates a page, stamps the last-edit fields for the user and
// returns the page with its blocks. Moving a page checks the new parent
// exists and is not the page itself or one of its descendants.
func (p *Pages) Update(ctx context.Context, in UpdateInput) (*model.PageView, error) {
	current, err := p.lookup.GetByID(ctx, in.ID)
	if err != nil {
		return nil, fmt.Errorf("update page %s: %w", in.ID, err)
	}
	if current == nil {
		return nil, fmt.Errorf("update page %s: %w", in.ID, ErrMissingTarget)
	}

	patch := model.PagePatch{
		Title:    in.Title,
		Icon:     in.Icon,
		Cover:    in.Cover,
		ParentID: in.ParentID,
		IsPublic: in.IsPublic,
	}
	if patch.ChangesParent(current.ParentID) && !in.ParentID.IsNull() {
		if err := p.checkNewParent(ctx, in.ID, in.ParentID.ID()); err != nil {
			return nil, fmt.Errorf("update page %s: %w", in.ID, err)
		}
	}

	now := p.now()
	patch.UpdatedBy = &in.UserID
	patch.LastEditedBy = &in.UserID
	patch.LastEditedAt = &now

	updated, err := p.repo.UpdatePage(ctx, in.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("update page %s: %w", in.ID, err)
	}

	view, err := p.repo.LoadPage(ctx, updated.ID)
	if err != nil {
		return nil, fmt.Errorf("update page %s: read back: %w", in.ID, err)
	}
	if view == nil {
		return nil, fmt.Errorf("update page %s: %w", in.ID, ErrInconsistentUpdate)
	}
	return view, nil
}

// checkNewParent verifies parentID exists and does not descend from id.
func (p *Pages) checkNewParent(ctx context.Context, id, parentID string) error {
	if parentID == id {
		return ErrCycle
	}
	parent, err := p.lookup.GetByID(ctx, parentID)
	if err != nil {
		return err
	}
	if parent == nil {
		return ErrMissingParent
	}
	for depth, cur := 0, parent.ParentID; !cur.IsNull(); depth++ {
		if cur.ID() == id {
			return ErrCycle
		}
		if depth == maxDepth {
			return fmt.Errorf("ancestor chain of %s deeper than %d: %w", parentID, maxDepth, ErrCycle)
		}
		ancestor, err := p.lookup.GetByID(ctx, cur.ID())
		if err != nil {
			return err
		}
		if ancestor == nil {
			// A dangling ancestor cannot lead back to id.
			return nil
		}
		cur = ancestor.ParentID
	}
	return nil
}

// DeleteInput identifies the page to delete.
type DeleteInput struct {
	ID     string
	UserID string
}

// Delete deletes a page that has no child pages.
func (p *Pages) Delete(ctx context.Context, in DeleteInput) error {
	if err := p.requirePage(ctx, in.ID, ErrMissingTarget); err != nil {
		return fmt.Errorf("delete page %s: %w", in.ID, err)
	}

	children, err := p.lookup.ListByParent(ctx, model.RefTo(in.ID))
	if err != nil {
		return fmt.Errorf("delete page %s: %w", in.ID, err)
	}
	if len(children) > 0 {
		return fmt.Errorf("delete page %s: %d children: %w", in.ID, len(children), ErrHasChildren)
	}

	if err := p.repo.DeletePage(ctx, in.ID); err != nil {
		return fmt.Errorf("delete page %s: %w", in.ID, err)
	}
	p.logger.Debug("page deleted", "pageID", in.ID, "userID", in.UserID)
	return nil
}

// requirePage returns missing when the page does not exist.
func (p *Pages) requirePage(ctx context.Context, id string, missing error) error {
	page, err := p.lookup.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if page == nil {
		return fmt.Errorf("%s: %w", id, missing)
	}
	return nil
}

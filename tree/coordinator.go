// Package tree coordinates the page and block stores.
//
// Loading a page always loads its blocks afterwards, and the coordinator
// keeps track of the page currently in focus. The focused page is held as an
// id and read through the page store, so it always reflects the latest cached
// state of that page and disappears with it.
package tree

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jacentio/canopy/model"
	"github.com/jacentio/canopy/store"
)

// Coordinator cascades page operations into the block store and owns the
// current-page projection.
type Coordinator struct {
	pages  *store.PageStore
	blocks *store.BlockStore
	logger *slog.Logger

	mu      sync.RWMutex
	current string

	cancel func()
}

// New creates a coordinator over the two stores.
func New(pages *store.PageStore, blocks *store.BlockStore, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		pages:  pages,
		blocks: blocks,
		logger: logger,
	}
	c.cancel = pages.Subscribe(c.onPageEvent)
	return c
}

// Close detaches the coordinator from the page store.
func (c *Coordinator) Close() {
	c.cancel()
}

func (c *Coordinator) onPageEvent(ev store.Event) {
	if ev.Kind != store.EventRemoved {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == ev.ID {
		c.current = ""
	}
}

// Pages returns the page store.
func (c *Coordinator) Pages() *store.PageStore { return c.pages }

// Blocks returns the block store.
func (c *Coordinator) Blocks() *store.BlockStore { return c.blocks }

// FetchPage loads a page, focuses it, then loads its blocks. An absent page
// returns nil, nil and leaves the focus alone.
//
// When the block load fails the page stays cached and focused; the error is
// returned together with the view of what is cached.
func (c *Coordinator) FetchPage(ctx context.Context, id string) (*model.PageView, error) {
	return c.load(ctx, id, true)
}

// LoadPage is FetchPage without moving the focus.
func (c *Coordinator) LoadPage(ctx context.Context, id string) (*model.PageView, error) {
	return c.load(ctx, id, false)
}

// GetPage loads a page without its blocks.
func (c *Coordinator) GetPage(ctx context.Context, id string) (*model.Page, error) {
	return c.pages.Fetch(ctx, id)
}

func (c *Coordinator) load(ctx context.Context, id string, focus bool) (*model.PageView, error) {
	p, err := c.pages.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	if focus {
		c.setCurrent(p.ID)
	}

	blocks, err := c.blocks.FetchByPage(ctx, p.ID)
	if err != nil {
		c.logger.Warn("page loaded without blocks", "pageID", p.ID, "error", err)
		return &model.PageView{Page: *p, Blocks: c.blocks.ByPage(p.ID)}, err
	}
	return &model.PageView{Page: *p, Blocks: blocks}, nil
}

// View returns the cached page and blocks without contacting the remote
// service.
func (c *Coordinator) View(id string) (*model.PageView, bool) {
	p, ok := c.pages.Get(id)
	if !ok {
		return nil, false
	}
	return &model.PageView{Page: p, Blocks: c.blocks.ByPage(id)}, true
}

// CurrentPage returns the focused page as currently cached.
func (c *Coordinator) CurrentPage() (*model.PageView, bool) {
	c.mu.RLock()
	id := c.current
	c.mu.RUnlock()
	if id == "" {
		return nil, false
	}
	return c.View(id)
}

// ClearCurrent drops the focus.
func (c *Coordinator) ClearCurrent() {
	c.setCurrent("")
}

func (c *Coordinator) setCurrent(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = id
}

// FetchChildren loads the children of parent.
func (c *Coordinator) FetchChildren(ctx context.Context, parent model.Ref) ([]model.Page, error) {
	return c.pages.FetchChildren(ctx, parent)
}

// CreatePage creates a page.
func (c *Coordinator) CreatePage(ctx context.Context, draft model.PageDraft) (*model.Page, error) {
	return c.pages.Create(ctx, draft)
}

// UpdatePage updates a page. The focused page reflects the update through
// the page store.
func (c *Coordinator) UpdatePage(ctx context.Context, id string, patch model.PagePatch) (*model.Page, error) {
	return c.pages.Update(ctx, id, patch)
}

// DeletePage deletes a page and evicts its blocks. The focus is cleared when
// it pointed at the page.
func (c *Coordinator) DeletePage(ctx context.Context, id string) error {
	if err := c.pages.Delete(ctx, id); err != nil {
		return err
	}
	c.blocks.EvictPage(id)
	return nil
}

// ReorderPages reorders a sibling group.
func (c *Coordinator) ReorderPages(ctx context.Context, ids []string) error {
	return c.pages.Reorder(ctx, ids)
}

// Node is a page with its loaded children.
type Node struct {
	Page     model.Page
	Children []*Node
}

// LoadTree loads the pages under root breadth first, depth levels deep. A
// depth of 1 loads the direct children only; depth <= 0 loads everything.
// Levels are loaded one group at a time.
func (c *Coordinator) LoadTree(ctx context.Context, root model.Ref, depth int) ([]*Node, error) {
	type pending struct {
		parent model.Ref
		level  int
		attach *[]*Node
	}

	var roots []*Node
	queue := []pending{{parent: root, level: 1, attach: &roots}}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		children, err := c.pages.FetchChildren(ctx, next.parent)
		if err != nil {
			return roots, fmt.Errorf("load tree under %s: %w", next.parent, err)
		}
		for _, p := range children {
			n := &Node{Page: p}
			*next.attach = append(*next.attach, n)
			if depth <= 0 || next.level < depth {
				queue = append(queue, pending{parent: model.RefTo(p.ID), level: next.level + 1, attach: &n.Children})
			}
		}
	}
	return roots, nil
}

// Walk calls fn for every node in depth-first order with its depth, starting
// at 0.
func Walk(nodes []*Node, fn func(n *Node, depth int)) {
	var walk func([]*Node, int)
	walk = func(ns []*Node, d int) {
		for _, n := range ns {
			fn(n, d)
			walk(n.Children, d+1)
		}
	}
	walk(nodes, 0)
}

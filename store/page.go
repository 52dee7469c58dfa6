package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jacentio/canopy/model"
	"github.com/jacentio/canopy/transport"
)

// PageStore caches pages, grouped by parent.
type PageStore struct {
	tracker

	api    transport.Pages
	logger *slog.Logger

	mu  sync.RWMutex
	idx *index[model.Page]
}

// NewPageStore creates an empty page store backed by api.
func NewPageStore(api transport.Pages, logger *slog.Logger) *PageStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PageStore{
		api:    api,
		logger: logger,
		idx:    newIndex[model.Page](),
	}
}

// Fetch loads one page and caches it. An absent page returns nil, nil and
// leaves the cache untouched.
func (s *PageStore) Fetch(ctx context.Context, id string) (*model.Page, error) {
	s.begin()
	p, err := s.api.GetByID(ctx, id)
	if err != nil {
		err = fmt.Errorf("fetch page %s: %w", id, err)
		s.end(err)
		return nil, err
	}
	if p == nil {
		s.logger.Debug("page not found", "pageID", id)
		s.end(nil)
		return nil, nil
	}
	s.put(*p)
	s.end(nil)
	return p, nil
}

// FetchChildren loads the pages whose parent is parent (model.Null for the
// roots) and replaces that group wholesale.
func (s *PageStore) FetchChildren(ctx context.Context, parent model.Ref) ([]model.Page, error) {
	s.begin()
	pages, err := s.api.ListByParent(ctx, parent)
	if err != nil {
		err = fmt.Errorf("fetch children of %s: %w", parent, err)
		s.end(err)
		return nil, err
	}

	// Listed pages that claim another parent are ignored so the group only
	// holds its own members.
	members := make([]model.Page, 0, len(pages))
	for _, p := range pages {
		if p.ParentID != parent {
			s.logger.Warn("page listed under the wrong parent", "pageID", p.ID, "parentID", p.ParentID, "listedUnder", parent)
			continue
		}
		members = append(members, p)
	}

	s.mu.Lock()
	evicted := s.idx.replaceGroup(parent, members)
	s.mu.Unlock()

	s.emit(append(removedEvents(parent, evicted), Event{Kind: EventGroupLoaded, Group: parent})...)
	s.end(nil)
	return members, nil
}

// Create creates a page and inserts it into its parent's group at its
// server-assigned position.
func (s *PageStore) Create(ctx context.Context, draft model.PageDraft) (*model.Page, error) {
	s.begin()
	p, err := s.api.Create(ctx, draft)
	if err != nil {
		err = fmt.Errorf("create page under %s: %w", draft.ParentID, err)
		s.end(err)
		return nil, err
	}
	s.put(*p)
	s.end(nil)
	return p, nil
}

// Update applies patch. A page that changes parent moves to the new parent's
// group; otherwise it keeps its position.
func (s *PageStore) Update(ctx context.Context, id string, patch model.PagePatch) (*model.Page, error) {
	s.begin()
	p, err := s.api.Update(ctx, id, patch)
	if err != nil {
		err = fmt.Errorf("update page %s: %w", id, err)
		s.end(err)
		return nil, err
	}
	s.put(*p)
	s.end(nil)
	return p, nil
}

// Delete deletes a page and drops it from the cache. Descendants are left
// alone.
func (s *PageStore) Delete(ctx context.Context, id string) error {
	s.begin()
	if err := s.api.Delete(ctx, id); err != nil {
		err = fmt.Errorf("delete page %s: %w", id, err)
		s.end(err)
		return err
	}
	s.Evict(id)
	s.end(nil)
	return nil
}

// Reorder sets the order of a sibling group. ids must list every cached page
// of one group exactly once; the group is taken from the cached pages.
// After success the group sequence equals ids. Page order fields are not
// rewritten until the next fetch.
func (s *PageStore) Reorder(ctx context.Context, ids []string) error {
	s.begin()

	s.mu.RLock()
	parent, ok := s.reorderGroup(ids)
	s.mu.RUnlock()
	if !ok {
		err := fmt.Errorf("reorder pages: %w", ErrInvalidReorder)
		s.end(err)
		return err
	}

	if err := s.api.Reorder(ctx, parent, ids); err != nil {
		err = fmt.Errorf("reorder children of %s: %w", parent, err)
		s.end(err)
		return err
	}

	s.mu.Lock()
	s.idx.reorder(parent, ids)
	s.mu.Unlock()
	s.emit(Event{Kind: EventReordered, Group: parent})
	s.end(nil)
	return nil
}

func (s *PageStore) reorderGroup(ids []string) (model.Ref, bool) {
	if len(ids) == 0 {
		return model.Null, false
	}
	first, ok := s.idx.get(ids[0])
	if !ok {
		return model.Null, false
	}
	parent := first.ParentID
	return parent, s.idx.isPermutation(parent, ids)
}

// Get returns the cached page.
func (s *PageStore) Get(id string) (model.Page, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.get(id)
}

// Children returns the cached children of parent in sequence order.
func (s *PageStore) Children(parent model.Ref) []model.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.group(parent)
}

// ChildIDs returns the sequence of parent's group.
func (s *PageStore) ChildIDs(parent model.Ref) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.ids(parent)
}

// Loaded reports whether parent's group was fetched with FetchChildren, even
// if empty. Pages cached one at a time by Fetch, Create or Update do not make
// their group loaded; Children then returns only those pages.
func (s *PageStore) Loaded(parent model.Ref) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.hasGroup(parent)
}

// Len returns the number of cached pages.
func (s *PageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.len()
}

// Evict drops a page from the cache without contacting the remote service.
func (s *PageStore) Evict(id string) {
	s.mu.Lock()
	p, ok := s.idx.remove(id)
	s.mu.Unlock()
	if ok {
		s.emit(Event{Kind: EventRemoved, ID: id, Group: p.ParentID})
	}
}

// Check verifies the cache invariants. It is meant for tests and debugging.
func (s *PageStore) Check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.check()
}

func (s *PageStore) put(p model.Page) {
	s.mu.Lock()
	s.idx.upsert(p)
	s.mu.Unlock()
	s.emit(Event{Kind: EventUpserted, ID: p.ID, Group: p.ParentID})
}

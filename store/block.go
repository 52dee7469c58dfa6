package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jacentio/canopy/model"
	"github.com/jacentio/canopy/transport"
)

// BlockStore caches blocks, grouped by owning page.
type BlockStore struct {
	tracker

	api    transport.Blocks
	logger *slog.Logger

	mu  sync.RWMutex
	idx *index[model.Block]
}

// NewBlockStore creates an empty block store backed by api.
func NewBlockStore(api transport.Blocks, logger *slog.Logger) *BlockStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlockStore{
		api:    api,
		logger: logger,
		idx:    newIndex[model.Block](),
	}
}

// Fetch loads one block and caches it. An absent block returns nil, nil.
func (s *BlockStore) Fetch(ctx context.Context, id string) (*model.Block, error) {
	s.begin()
	b, err := s.load(ctx, id)
	s.end(err)
	return b, err
}

func (s *BlockStore) load(ctx context.Context, id string) (*model.Block, error) {
	b, err := s.api.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch block %s: %w", id, err)
	}
	if b == nil {
		return nil, nil
	}
	s.put(*b)
	return b, nil
}

// FetchByPage loads every block of a page and replaces the page's group.
func (s *BlockStore) FetchByPage(ctx context.Context, pageID string) ([]model.Block, error) {
	s.begin()
	blocks, err := s.loadPage(ctx, pageID)
	s.end(err)
	return blocks, err
}

func (s *BlockStore) loadPage(ctx context.Context, pageID string) ([]model.Block, error) {
	blocks, err := s.api.ListByPage(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("fetch blocks of page %s: %w", pageID, err)
	}

	members := make([]model.Block, 0, len(blocks))
	for _, b := range blocks {
		if b.PageID != pageID {
			s.logger.Warn("block listed under the wrong page", "blockID", b.ID, "pageID", b.PageID, "listedUnder", pageID)
			continue
		}
		members = append(members, b)
	}

	key := model.RefTo(pageID)
	s.mu.Lock()
	evicted := s.idx.replaceGroup(key, members)
	s.mu.Unlock()

	s.emit(append(removedEvents(key, evicted), Event{Kind: EventGroupLoaded, Group: key})...)
	return members, nil
}

// Create validates and creates a block, then inserts it into its page's
// group at its server-assigned position.
func (s *BlockStore) Create(ctx context.Context, draft model.BlockDraft) (*model.Block, error) {
	s.begin()
	if err := draft.Validate(); err != nil {
		err = fmt.Errorf("create block on page %s: %w", draft.PageID, err)
		s.end(err)
		return nil, err
	}
	b, err := s.api.Create(ctx, draft)
	if err != nil {
		err = fmt.Errorf("create block on page %s: %w", draft.PageID, err)
		s.end(err)
		return nil, err
	}
	s.put(*b)
	s.end(nil)
	return b, nil
}

// Update applies patch and overwrites the cached block in place.
func (s *BlockStore) Update(ctx context.Context, id string, patch model.BlockPatch) (*model.Block, error) {
	s.begin()
	if patch.Content != nil {
		if err := model.ValidateContent(patch.Content.BlockType(), patch.Content); err != nil {
			err = fmt.Errorf("update block %s: %w", id, err)
			s.end(err)
			return nil, err
		}
	}
	b, err := s.api.Update(ctx, id, patch)
	if err != nil {
		err = fmt.Errorf("update block %s: %w", id, err)
		s.end(err)
		return nil, err
	}
	s.put(*b)
	s.end(nil)
	return b, nil
}

// Delete deletes a block and drops it from the cache. Nested blocks are left
// to the next page fetch.
func (s *BlockStore) Delete(ctx context.Context, id string) error {
	s.begin()
	if err := s.api.Delete(ctx, id); err != nil {
		err = fmt.Errorf("delete block %s: %w", id, err)
		s.end(err)
		return err
	}
	s.evict(id)
	s.end(nil)
	return nil
}

// Reorder sets the order of the blocks of a page. ids must list every cached
// block of the page exactly once. After success the page's sequence equals
// ids.
func (s *BlockStore) Reorder(ctx context.Context, pageID string, ids []string) error {
	s.begin()
	key := model.RefTo(pageID)

	s.mu.RLock()
	ok := len(ids) > 0 && s.idx.isPermutation(key, ids)
	s.mu.RUnlock()
	if !ok {
		err := fmt.Errorf("reorder blocks of page %s: %w", pageID, ErrInvalidReorder)
		s.end(err)
		return err
	}

	if err := s.api.Reorder(ctx, pageID, ids); err != nil {
		err = fmt.Errorf("reorder blocks of page %s: %w", pageID, err)
		s.end(err)
		return err
	}

	s.mu.Lock()
	s.idx.reorder(key, ids)
	s.mu.Unlock()
	s.emit(Event{Kind: EventReordered, Group: key})
	s.end(nil)
	return nil
}

// Move re-parents a block within its page. The page never changes: a parent
// on another page fails with ErrCrossPage and a parent inside the block's own
// subtree fails with ErrInvalidMove, both before the move is sent.
//
// After the move the block is dropped from the cache and the page's blocks
// are fetched again, since only the server knows the resulting orders.
func (s *BlockStore) Move(ctx context.Context, id string, newParent model.Ref, newOrder int) error {
	s.begin()
	err := s.move(ctx, id, newParent, newOrder)
	s.end(err)
	return err
}

func (s *BlockStore) move(ctx context.Context, id string, newParent model.Ref, newOrder int) error {
	b, err := s.resolve(ctx, id)
	if err != nil {
		return fmt.Errorf("move block %s: %w", id, err)
	}

	if !newParent.IsNull() {
		if newParent.ID() == id {
			return fmt.Errorf("move block %s: %w", id, ErrInvalidMove)
		}
		parent, err := s.resolve(ctx, newParent.ID())
		if err != nil {
			return fmt.Errorf("move block %s: parent %s: %w", id, newParent, err)
		}
		if parent.PageID != b.PageID {
			return fmt.Errorf("move block %s to %s: %w", id, newParent, ErrCrossPage)
		}
		if s.descendsFrom(parent, id) {
			return fmt.Errorf("move block %s to %s: %w", id, newParent, ErrInvalidMove)
		}
	}

	if err := s.api.Move(ctx, id, newParent, newOrder); err != nil {
		return fmt.Errorf("move block %s: %w", id, err)
	}

	s.evict(id)
	if _, err := s.loadPage(ctx, b.PageID); err != nil {
		return fmt.Errorf("move block %s: %w", id, err)
	}
	return nil
}

// resolve returns the cached block, fetching it when it is not cached.
func (s *BlockStore) resolve(ctx context.Context, id string) (model.Block, error) {
	if b, ok := s.Get(id); ok {
		return b, nil
	}
	b, err := s.load(ctx, id)
	if err != nil {
		return model.Block{}, err
	}
	if b == nil {
		return model.Block{}, ErrNotFound
	}
	return *b, nil
}

// descendsFrom reports whether b is id or sits below id, following cached
// parents only.
func (s *BlockStore) descendsFrom(b model.Block, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	for cur, ok := b, true; ok && !seen[cur.ID]; cur, ok = s.idx.get(cur.ParentID.ID()) {
		if cur.ID == id {
			return true
		}
		seen[cur.ID] = true
	}
	return false
}

// Get returns the cached block.
func (s *BlockStore) Get(id string) (model.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.get(id)
}

// ByPage returns the cached blocks of a page in sequence order.
func (s *BlockStore) ByPage(pageID string) []model.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.group(model.RefTo(pageID))
}

// IDs returns the block sequence of a page.
func (s *BlockStore) IDs(pageID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.ids(model.RefTo(pageID))
}

// ChildrenOf returns the cached blocks of a page whose parent is parent, in
// page sequence order. model.Null selects the top-level blocks.
func (s *BlockStore) ChildrenOf(pageID string, parent model.Ref) []model.Block {
	var out []model.Block
	for _, b := range s.ByPage(pageID) {
		if b.ParentID == parent {
			out = append(out, b)
		}
	}
	return out
}

// Len returns the number of cached blocks.
func (s *BlockStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.len()
}

// EvictPage drops every cached block of a page.
func (s *BlockStore) EvictPage(pageID string) {
	key := model.RefTo(pageID)
	s.mu.Lock()
	evicted := s.idx.evictGroup(key)
	s.mu.Unlock()
	s.emit(removedEvents(key, evicted)...)
}

// Check verifies the cache invariants.
func (s *BlockStore) Check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.check()
}

func (s *BlockStore) evict(id string) {
	s.mu.Lock()
	b, ok := s.idx.remove(id)
	s.mu.Unlock()
	if ok {
		s.emit(Event{Kind: EventRemoved, ID: id, Group: b.GroupKey()})
	}
}

func (s *BlockStore) put(b model.Block) {
	s.mu.Lock()
	s.idx.upsert(b)
	s.mu.Unlock()
	s.emit(Event{Kind: EventUpserted, ID: b.ID, Group: b.GroupKey()})
}

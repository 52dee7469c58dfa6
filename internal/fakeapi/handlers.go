package fakeapi

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/gorilla/mux"

	"github.com/jacentio/canopy/model"
	"github.com/jacentio/canopy/transport"
)

// --- pages ---

func (s *Server) getPage(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.pages[mux.Vars(r)["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, "page not found")
		return
	}
	writeJSON(w, http.StatusOK, row.Page)
}

func (s *Server) listPages(w http.ResponseWriter, r *http.Request) {
	raw, ok := r.URL.Query()["parentId"]
	if !ok || len(raw) == 0 {
		writeError(w, http.StatusBadRequest, "parentId is required")
		return
	}
	parent := model.ParseRef(raw[0])

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Page, 0)
	for _, row := range s.sortedPages(parent) {
		out = append(out, row.Page)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createPage(w http.ResponseWriter, r *http.Request) {
	var draft model.PageDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !draft.ParentID.IsNull() {
		if _, ok := s.pages[draft.ParentID.ID()]; !ok {
			writeError(w, http.StatusUnprocessableEntity, "parent page not found")
			return
		}
	}
	now := s.now()
	siblings := s.sortedPages(draft.ParentID)
	order := 0
	if n := len(siblings); n > 0 {
		order = siblings[n-1].Order + 1
	}
	s.seq++
	row := &pageRow{seq: s.seq, Page: model.Page{
		ID:           newID(),
		Title:        draft.Title,
		Icon:         draft.Icon,
		Cover:        draft.Cover,
		ParentID:     draft.ParentID,
		Order:        order,
		IsPublic:     draft.IsPublic,
		CreatedAt:    now,
		UpdatedAt:    now,
		CreatedBy:    draft.CreatedBy,
		UpdatedBy:    draft.UpdatedBy,
		LastEditedBy: draft.LastEditedBy,
		LastEditedAt: draft.LastEditedAt,
	}}
	s.pages[row.ID] = row
	writeJSON(w, http.StatusCreated, row.Page)
}

func (s *Server) updatePage(w http.ResponseWriter, r *http.Request) {
	var patch model.PagePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := mux.Vars(r)["id"]
	row, ok := s.pages[id]
	if !ok {
		writeError(w, http.StatusNotFound, "page not found")
		return
	}
	if patch.ChangesParent(row.ParentID) {
		parent := *patch.ParentID
		if !parent.IsNull() {
			if _, ok := s.pages[parent.ID()]; !ok {
				writeError(w, http.StatusUnprocessableEntity, "parent page not found")
				return
			}
			if s.isAncestorOrSelf(id, parent.ID()) {
				writeError(w, http.StatusUnprocessableEntity, "page cannot be its own ancestor")
				return
			}
		}
		siblings := s.sortedPages(parent)
		row.Order = 0
		if n := len(siblings); n > 0 {
			row.Order = siblings[n-1].Order + 1
		}
	}
	row.Page = patch.Apply(row.Page)
	row.UpdatedAt = s.now()
	writeJSON(w, http.StatusOK, row.Page)
}

func (s *Server) deletePage(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := mux.Vars(r)["id"]
	if _, ok := s.pages[id]; !ok {
		writeError(w, http.StatusNotFound, "page not found")
		return
	}
	delete(s.pages, id)
	for bid, b := range s.blocks {
		if b.PageID == id {
			delete(s.blocks, bid)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reorderPages(w http.ResponseWriter, r *http.Request) {
	var req transport.ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range req.IDs {
		row, ok := s.pages[id]
		if !ok || row.ParentID != req.ParentID {
			writeError(w, http.StatusUnprocessableEntity, "page "+id+" is not a child of "+req.ParentID.String())
			return
		}
	}
	for i, id := range req.IDs {
		s.pages[id].Order = i
	}
	w.WriteHeader(http.StatusNoContent)
}

// isAncestorOrSelf reports whether id appears on the ancestor chain of start.
func (s *Server) isAncestorOrSelf(id, start string) bool {
	for cur := start; cur != ""; {
		if cur == id {
			return true
		}
		row, ok := s.pages[cur]
		if !ok {
			return false
		}
		cur = row.ParentID.ID()
	}
	return false
}

func (s *Server) sortedPages(parent model.Ref) []*pageRow {
	var rows []*pageRow
	for _, row := range s.pages {
		if row.ParentID == parent {
			rows = append(rows, row)
		}
	}
	slices.SortFunc(rows, func(a, b *pageRow) int {
		if a.Order != b.Order {
			return a.Order - b.Order
		}
		return a.seq - b.seq
	})
	return rows
}

// --- blocks ---

func (s *Server) getBlock(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.blocks[mux.Vars(r)["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	writeJSON(w, http.StatusOK, row.Block)
}

func (s *Server) listBlocks(w http.ResponseWriter, r *http.Request) {
	pageID := r.URL.Query().Get("pageId")
	if pageID == "" || pageID == model.NullSentinel {
		writeError(w, http.StatusBadRequest, "pageId is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Block, 0)
	for _, row := range s.sortedBlocks(pageID, nil) {
		out = append(out, row.Block)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createBlock(w http.ResponseWriter, r *http.Request) {
	var draft model.BlockDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[draft.PageID]; !ok {
		writeError(w, http.StatusUnprocessableEntity, "page not found")
		return
	}
	if !draft.ParentID.IsNull() {
		parent, ok := s.blocks[draft.ParentID.ID()]
		if !ok || parent.PageID != draft.PageID {
			writeError(w, http.StatusUnprocessableEntity, "parent block not found on page")
			return
		}
	}
	now := s.now()
	siblings := s.sortedBlocks(draft.PageID, &draft.ParentID)
	order := 0
	if n := len(siblings); n > 0 {
		order = siblings[n-1].Order + 1
	}
	s.seq++
	row := &blockRow{seq: s.seq, Block: model.Block{
		ID:        newID(),
		Type:      draft.Content.BlockType(),
		Content:   draft.Content,
		ParentID:  draft.ParentID,
		PageID:    draft.PageID,
		Order:     order,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: draft.CreatedBy,
		UpdatedBy: draft.CreatedBy,
	}}
	s.blocks[row.ID] = row
	writeJSON(w, http.StatusCreated, row.Block)
}

func (s *Server) updateBlock(w http.ResponseWriter, r *http.Request) {
	var patch model.BlockPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.blocks[mux.Vars(r)["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	row.Block = patch.Apply(row.Block)
	row.UpdatedAt = s.now()
	writeJSON(w, http.StatusOK, row.Block)
}

func (s *Server) deleteBlock(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := mux.Vars(r)["id"]
	if _, ok := s.blocks[id]; !ok {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	delete(s.blocks, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reorderBlocks(w http.ResponseWriter, r *http.Request) {
	var req transport.ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range req.IDs {
		row, ok := s.blocks[id]
		if !ok || row.PageID != req.PageID {
			writeError(w, http.StatusUnprocessableEntity, "block "+id+" is not on page "+req.PageID)
			return
		}
	}
	for i, id := range req.IDs {
		s.blocks[id].Order = i
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) moveBlock(w http.ResponseWriter, r *http.Request) {
	var req transport.MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.blocks[mux.Vars(r)["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	if !req.ParentID.IsNull() {
		parent, ok := s.blocks[req.ParentID.ID()]
		if !ok || parent.PageID != row.PageID {
			writeError(w, http.StatusUnprocessableEntity, "parent block not found on page")
			return
		}
		for cur := parent; cur != nil; {
			if cur.ID == row.ID {
				writeError(w, http.StatusUnprocessableEntity, "block cannot be its own ancestor")
				return
			}
			cur = s.blocks[cur.ParentID.ID()]
		}
	}

	var siblings []*blockRow
	for _, sib := range s.sortedBlocks(row.PageID, &req.ParentID) {
		if sib.ID != row.ID {
			siblings = append(siblings, sib)
		}
	}
	pos := min(max(req.Order, 0), len(siblings))
	siblings = slices.Insert(siblings, pos, row)
	row.ParentID = req.ParentID
	for i, sib := range siblings {
		sib.Order = i
	}
	row.UpdatedAt = s.now()
	w.WriteHeader(http.StatusNoContent)
}

// sortedBlocks lists the blocks of a page, optionally restricted to one
// sibling group, in (order, creation) sequence.
func (s *Server) sortedBlocks(pageID string, parent *model.Ref) []*blockRow {
	var rows []*blockRow
	for _, row := range s.blocks {
		if row.PageID != pageID {
			continue
		}
		if parent != nil && row.ParentID != *parent {
			continue
		}
		rows = append(rows, row)
	}
	slices.SortFunc(rows, func(a, b *blockRow) int {
		if a.Order != b.Order {
			return a.Order - b.Order
		}
		return a.seq - b.seq
	})
	return rows
}

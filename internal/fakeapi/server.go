// Package fakeapi provides an in-memory page/block REST service for tests.
//
// It speaks the same wire protocol as the real service: identifiers in the
// path, grouping keys in the query (with "null" for the root), JSON bodies,
// and {"error": "..."} on failure. Orders are server assigned: a created
// entity is appended after its siblings, reorder renumbers from zero, and a
// moved block is inserted at the requested position of its new sibling group.
//
// Failures are injected with [Server.Fail], which makes the next matching
// requests answer with a fixed status instead of reaching the handlers.
package fakeapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/jacentio/canopy/model"
)

// Failure makes matching requests fail with Status.
type Failure struct {
	Method     string // empty matches any method
	PathPrefix string
	Status     int
	Message    string
	Times      int // <= 0 means until cleared
}

// Server is an in-memory implementation of the page/block API.
type Server struct {
	mu       sync.Mutex
	pages    map[string]*pageRow
	blocks   map[string]*blockRow
	seq      int
	failures []*Failure
	requests []string
	now      func() time.Time

	router *mux.Router
}

type pageRow struct {
	model.Page
	seq int
}

type blockRow struct {
	model.Block
	seq int
}

// New creates an empty server.
func New() *Server {
	s := &Server{
		pages:  make(map[string]*pageRow),
		blocks: make(map[string]*blockRow),
		now:    func() time.Time { return time.Now().UTC() },
	}
	r := mux.NewRouter()
	r.Use(s.record, s.inject)
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/pages", s.listPages).Methods(http.MethodGet)
	api.HandleFunc("/pages", s.createPage).Methods(http.MethodPost)
	api.HandleFunc("/pages/reorder", s.reorderPages).Methods(http.MethodPost)
	api.HandleFunc("/pages/{id}", s.getPage).Methods(http.MethodGet)
	api.HandleFunc("/pages/{id}", s.updatePage).Methods(http.MethodPatch)
	api.HandleFunc("/pages/{id}", s.deletePage).Methods(http.MethodDelete)
	api.HandleFunc("/blocks", s.listBlocks).Methods(http.MethodGet)
	api.HandleFunc("/blocks", s.createBlock).Methods(http.MethodPost)
	api.HandleFunc("/blocks/reorder", s.reorderBlocks).Methods(http.MethodPost)
	api.HandleFunc("/blocks/{id}", s.getBlock).Methods(http.MethodGet)
	api.HandleFunc("/blocks/{id}", s.updateBlock).Methods(http.MethodPatch)
	api.HandleFunc("/blocks/{id}", s.deleteBlock).Methods(http.MethodDelete)
	api.HandleFunc("/blocks/{id}/move", s.moveBlock).Methods(http.MethodPost)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// Start serves s on a local listener. The server is closed when the test ends.
func Start(tb interface{ Cleanup(func()) }) (*Server, *httptest.Server) {
	s := New()
	ts := httptest.NewServer(s)
	tb.Cleanup(ts.Close)
	return s, ts
}

// Fail registers a failure rule.
func (s *Server) Fail(f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &f)
}

// ClearFailures removes every failure rule.
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = nil
}

// Requests returns the "METHOD /path?query" log of served requests.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// ResetRequests clears the request log.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

// PutPage stores p as is, bypassing the API. Used to seed fixtures.
func (s *Server) PutPage(p model.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.pages[p.ID] = &pageRow{Page: p, seq: s.seq}
}

// PutBlock stores b as is, bypassing the API.
func (s *Server) PutBlock(b model.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.blocks[b.ID] = &blockRow{Block: b, seq: s.seq}
}

// Page returns the stored page.
func (s *Server) Page(id string) (model.Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.pages[id]
	if !ok {
		return model.Page{}, false
	}
	return row.Page, true
}

// Block returns the stored block.
func (s *Server) Block(id string) (model.Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.blocks[id]
	if !ok {
		return model.Block{}, false
	}
	return row.Block, true
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entry := r.Method + " " + r.URL.Path
		if r.URL.RawQuery != "" {
			entry += "?" + r.URL.RawQuery
		}
		s.mu.Lock()
		s.requests = append(s.requests, entry)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f := s.matchFailure(r); f != nil {
			msg := f.Message
			if msg == "" {
				msg = http.StatusText(f.Status)
			}
			writeError(w, f.Status, msg)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) matchFailure(r *http.Request) *Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.failures {
		if f.Method != "" && f.Method != r.Method {
			continue
		}
		if !strings.HasPrefix(r.URL.Path, f.PathPrefix) {
			continue
		}
		if f.Times > 0 {
			f.Times--
			if f.Times == 0 {
				s.failures = slices.Delete(s.failures, i, i+1)
			}
		}
		return f
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func newID() string { return uuid.NewString() }

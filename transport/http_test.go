package transport_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/canopy/internal/fakeapi"
	"github.com/jacentio/canopy/model"
	"github.com/jacentio/canopy/transport"
)

func TestClient_PagesAgainstFake(t *testing.T) {
	srv, ts := fakeapi.Start(t)
	client := transport.New(transport.Config{BaseURL: ts.URL + "/"})
	pages := client.Pages()
	ctx := context.Background()

	root, err := pages.Create(ctx, model.PageDraft{Title: "root", CreatedBy: "alice"})
	require.NoError(t, err)
	assert.True(t, root.ParentID.IsNull())
	child, err := pages.Create(ctx, model.PageDraft{Title: "child", ParentID: model.RefTo(root.ID)})
	require.NoError(t, err)

	roots, err := pages.ListByParent(ctx, model.Null)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, root.ID, roots[0].ID)

	moved, err := pages.Update(ctx, child.ID, model.PagePatch{ParentID: model.Ptr(model.Null)})
	require.NoError(t, err)
	assert.True(t, moved.ParentID.IsNull())

	require.NoError(t, pages.Reorder(ctx, model.Null, []string{child.ID, root.ID}))
	roots, err = pages.ListByParent(ctx, model.Null)
	require.NoError(t, err)
	require.Len(t, roots, 2)
	assert.Equal(t, child.ID, roots[0].ID)

	require.NoError(t, pages.Delete(ctx, child.ID))
	got, err := pages.GetByID(ctx, child.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "absent page is nil without error")

	assert.Contains(t, srv.Requests(), "GET /api/pages?parentId=null")
}

func TestClient_BlocksAgainstFake(t *testing.T) {
	_, ts := fakeapi.Start(t)
	client := transport.New(transport.Config{BaseURL: ts.URL})
	ctx := context.Background()

	page, err := client.Pages().Create(ctx, model.PageDraft{Title: "p"})
	require.NoError(t, err)
	blocks := client.Blocks()

	a, err := blocks.Create(ctx, model.BlockDraft{Content: model.NewParagraph("a"), PageID: page.ID})
	require.NoError(t, err)
	b, err := blocks.Create(ctx, model.BlockDraft{Content: model.NewQuote("b"), PageID: page.ID})
	require.NoError(t, err)
	assert.Equal(t, model.BlockQuote, b.Type)

	require.NoError(t, blocks.Move(ctx, b.ID, model.RefTo(a.ID), 0))
	got, err := blocks.GetByID(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.RefTo(a.ID), got.ParentID)
	assert.Equal(t, page.ID, got.PageID)

	updated, err := blocks.Update(ctx, a.ID, model.BlockPatch{Content: model.NewParagraph("a2"), UpdatedBy: model.Ptr("bob")})
	require.NoError(t, err)
	assert.Equal(t, model.NewParagraph("a2"), updated.Content)

	listed, err := blocks.ListByPage(ctx, page.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantStatus  int
		wantMessage string
		unsupported bool
	}{
		{"json error body", http.StatusConflict, `{"error":"parent missing"}`, http.StatusConflict, "parent missing", false},
		{"plain body", http.StatusBadGateway, "upstream down\n", http.StatusBadGateway, "upstream down", false},
		{"empty body", http.StatusInternalServerError, "", http.StatusInternalServerError, "Internal Server Error", false},
		{"not implemented", http.StatusNotImplemented, "", 0, "", true},
		{"method not allowed", http.StatusMethodNotAllowed, "", 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			t.Cleanup(ts.Close)

			err := transport.New(transport.Config{BaseURL: ts.URL}).Blocks().Reorder(context.Background(), "p", []string{"a"})
			require.Error(t, err)
			if tt.unsupported {
				assert.ErrorIs(t, err, transport.ErrUnsupported)
				assert.False(t, transport.IsTransport(err))
				return
			}
			var te *transport.Error
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.wantStatus, te.StatusCode)
			assert.Equal(t, tt.wantMessage, te.Message)
			assert.Equal(t, http.MethodPost, te.Method)
			assert.Equal(t, "/api/blocks/reorder", te.Path)
		})
	}
}

func TestClient_NotFoundOnlyAbsentForLookups(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(ts.Close)
	pages := transport.New(transport.Config{BaseURL: ts.URL}).Pages()

	p, err := pages.GetByID(context.Background(), "x")
	require.NoError(t, err)
	assert.Nil(t, p)

	err = pages.Delete(context.Background(), "x")
	assert.Equal(t, http.StatusNotFound, transport.StatusCode(err))
}

func TestClient_NetworkFault(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := transport.New(transport.Config{BaseURL: url}).Pages().GetByID(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, transport.IsTransport(err))
	assert.Equal(t, 0, transport.StatusCode(err))
}

func TestClient_Headers(t *testing.T) {
	var (
		mu  sync.Mutex
		got http.Header
		raw []byte
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		got = r.Header.Clone()
		raw, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(ts.Close)

	client := transport.New(transport.Config{BaseURL: ts.URL, UserAgent: "canopy-test", AuthToken: "s3cret"})
	require.NoError(t, client.Blocks().Move(context.Background(), "b", model.Null, 3))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "canopy-test", got.Get("User-Agent"))
	assert.Equal(t, "Bearer s3cret", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))

	var body transport.MoveRequest
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.True(t, body.ParentID.IsNull())
	assert.Equal(t, 3, body.Order)
	assert.JSONEq(t, `{"parentId":null,"order":3}`, string(raw))
}

func TestClient_Metrics(t *testing.T) {
	srv, ts := fakeapi.Start(t)
	reg := prometheus.NewRegistry()
	metrics := transport.NewMetrics(reg)
	pages := transport.New(transport.Config{BaseURL: ts.URL}, transport.WithMetrics(metrics)).Pages()
	ctx := context.Background()

	_, err := pages.GetByID(ctx, "missing")
	require.NoError(t, err)
	_, err = pages.ListByParent(ctx, model.Null)
	require.NoError(t, err)
	srv.Fail(fakeapi.Failure{PathPrefix: "/api/pages", Status: http.StatusServiceUnavailable, Times: 1})
	_, err = pages.ListByParent(ctx, model.Null)
	require.Error(t, err)

	requests := metrics.Requests()
	assert.Equal(t, 1.0, testutil.ToFloat64(requests.WithLabelValues("page", "get", transport.OutcomeNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(requests.WithLabelValues("page", "list", transport.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(requests.WithLabelValues("page", "list", transport.OutcomeError)))

	n, err := testutil.GatherAndCount(reg, "canopy_transport_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one histogram per kind/op")
}

func TestClient_RateLimit(t *testing.T) {
	_, ts := fakeapi.Start(t)
	pages := transport.New(transport.Config{BaseURL: ts.URL, RequestsPerSecond: 1, Burst: 1}).Pages()

	_, err := pages.GetByID(context.Background(), "a")
	require.NoError(t, err)

	// The bucket is empty; the next request cannot be admitted before the
	// deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = pages.GetByID(ctx, "b")
	require.Error(t, err)
	assert.True(t, transport.IsTransport(err))
	assert.False(t, errors.Is(err, transport.ErrUnsupported))
}

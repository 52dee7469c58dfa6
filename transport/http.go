package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jacentio/canopy/model"
)

const (
	kindPage  = "page"
	kindBlock = "block"

	maxErrorBody = 4 << 10
)

// Client is the REST transport. It is safe for concurrent use.
type Client struct {
	config  Config
	http    *http.Client
	limiter *rate.Limiter
	metrics *Metrics
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its timeout wins over
// Config.Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics records request outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a REST client.
func New(config Config, opts ...Option) *Client {
	config.validate()
	c := &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		logger: slog.Default(),
	}
	if config.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Pages returns the page transport.
func (c *Client) Pages() Pages { return pageClient{c} }

// Blocks returns the block transport.
func (c *Client) Blocks() Blocks { return blockClient{c} }

// call describes one request/response exchange.
type call struct {
	kind, op string
	method   string
	path     string
	query    url.Values
	body     any
	out      any

	// absentOK maps 404 to found=false instead of an error.
	absentOK bool
}

// do performs the exchange. It reports found=false only for a tolerated 404.
func (c *Client) do(ctx context.Context, r call) (found bool, err error) {
	start := time.Now()
	outcome := OutcomeError
	defer func() { c.metrics.observe(r.kind, r.op, outcome, start) }()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return false, &Error{Method: r.method, Path: r.path, Message: err.Error(), Err: err}
		}
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return false, fmt.Errorf("marshal %s %s body: %w", r.kind, r.op, err)
		}
		body = bytes.NewReader(data)
	}

	u := c.config.BaseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("transport request failed", "method", r.method, "path", r.path, "error", err)
		return false, &Error{Method: r.method, Path: r.path, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("transport request", "method", r.method, "path", r.path, "status", resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusNotFound && r.absentOK:
		outcome = OutcomeNotFound
		return false, nil
	case resp.StatusCode == http.StatusNotImplemented || resp.StatusCode == http.StatusMethodNotAllowed:
		outcome = OutcomeUnsupported
		return false, unsupported(r.method, r.path, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return false, &Error{
			Method:     r.method,
			Path:       r.path,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp),
		}
	}

	if r.out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(r.out); err != nil {
			return false, &Error{
				Method:     r.method,
				Path:       r.path,
				StatusCode: resp.StatusCode,
				Message:    "decode response: " + err.Error(),
				Err:        err,
			}
		}
	}
	outcome = OutcomeOK
	return true, nil
}

// errorMessage extracts a human-readable message from an error response.
func errorMessage(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var eb ErrorBody
	if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
		return eb.Error
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return msg
	}
	return http.StatusText(resp.StatusCode)
}

func pagePath(id string) string  { return "/api/pages/" + url.PathEscape(id) }
func blockPath(id string) string { return "/api/blocks/" + url.PathEscape(id) }

type pageClient struct{ c *Client }

func (p pageClient) GetByID(ctx context.Context, id string) (*model.Page, error) {
	var page model.Page
	found, err := p.c.do(ctx, call{kind: kindPage, op: "get", method: http.MethodGet, path: pagePath(id), out: &page, absentOK: true})
	if err != nil || !found {
		return nil, err
	}
	return &page, nil
}

func (p pageClient) ListByParent(ctx context.Context, parent model.Ref) ([]model.Page, error) {
	var pages []model.Page
	q := url.Values{"parentId": {parent.QueryValue()}}
	if _, err := p.c.do(ctx, call{kind: kindPage, op: "list", method: http.MethodGet, path: "/api/pages", query: q, out: &pages}); err != nil {
		return nil, err
	}
	return pages, nil
}

func (p pageClient) Create(ctx context.Context, draft model.PageDraft) (*model.Page, error) {
	var page model.Page
	if _, err := p.c.do(ctx, call{kind: kindPage, op: "create", method: http.MethodPost, path: "/api/pages", body: draft, out: &page}); err != nil {
		return nil, err
	}
	return &page, nil
}

func (p pageClient) Update(ctx context.Context, id string, patch model.PagePatch) (*model.Page, error) {
	var page model.Page
	if _, err := p.c.do(ctx, call{kind: kindPage, op: "update", method: http.MethodPatch, path: pagePath(id), body: patch, out: &page}); err != nil {
		return nil, err
	}
	return &page, nil
}

func (p pageClient) Delete(ctx context.Context, id string) error {
	_, err := p.c.do(ctx, call{kind: kindPage, op: "delete", method: http.MethodDelete, path: pagePath(id)})
	return err
}

func (p pageClient) Reorder(ctx context.Context, parent model.Ref, ids []string) error {
	body := ReorderRequest{ParentID: parent, IDs: ids}
	_, err := p.c.do(ctx, call{kind: kindPage, op: "reorder", method: http.MethodPost, path: "/api/pages/reorder", body: body})
	return err
}

type blockClient struct{ c *Client }

func (b blockClient) GetByID(ctx context.Context, id string) (*model.Block, error) {
	var block model.Block
	found, err := b.c.do(ctx, call{kind: kindBlock, op: "get", method: http.MethodGet, path: blockPath(id), out: &block, absentOK: true})
	if err != nil || !found {
		return nil, err
	}
	return &block, nil
}

func (b blockClient) ListByPage(ctx context.Context, pageID string) ([]model.Block, error) {
	var blocks []model.Block
	q := url.Values{"pageId": {pageID}}
	if _, err := b.c.do(ctx, call{kind: kindBlock, op: "list", method: http.MethodGet, path: "/api/blocks", query: q, out: &blocks}); err != nil {
		return nil, err
	}
	return blocks, nil
}

func (b blockClient) Create(ctx context.Context, draft model.BlockDraft) (*model.Block, error) {
	var block model.Block
	if _, err := b.c.do(ctx, call{kind: kindBlock, op: "create", method: http.MethodPost, path: "/api/blocks", body: draft, out: &block}); err != nil {
		return nil, err
	}
	return &block, nil
}

func (b blockClient) Update(ctx context.Context, id string, patch model.BlockPatch) (*model.Block, error) {
	var block model.Block
	if _, err := b.c.do(ctx, call{kind: kindBlock, op: "update", method: http.MethodPatch, path: blockPath(id), body: patch, out: &block}); err != nil {
		return nil, err
	}
	return &block, nil
}

func (b blockClient) Delete(ctx context.Context, id string) error {
	_, err := b.c.do(ctx, call{kind: kindBlock, op: "delete", method: http.MethodDelete, path: blockPath(id)})
	return err
}

func (b blockClient) Reorder(ctx context.Context, pageID string, ids []string) error {
	body := ReorderRequest{PageID: pageID, IDs: ids}
	_, err := b.c.do(ctx, call{kind: kindBlock, op: "reorder", method: http.MethodPost, path: "/api/blocks/reorder", body: body})
	return err
}

func (b blockClient) Move(ctx context.Context, id string, newParent model.Ref, newOrder int) error {
	body := MoveRequest{ParentID: newParent, Order: newOrder}
	_, err := b.c.do(ctx, call{kind: kindBlock, op: "move", method: http.MethodPost, path: blockPath(id) + "/move", body: body})
	return err
}

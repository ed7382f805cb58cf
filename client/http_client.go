package client

import (
	"context"
	"sync"

	"github.com/nczempin/httpc-engine/errors"
	"github.com/nczempin/httpc-engine/pool"
	"github.com/nczempin/httpc-engine/protocol"
)

// HttpClient provides a blocking API on top of a Pool.
type HttpClient struct {
	pool *pool.Pool
}

// NewHttpClient creates a client that runs its requests on p.
func NewHttpClient(p *pool.Pool) *HttpClient {
	return &HttpClient{pool: p}
}

var (
	defaultOnce   sync.Once
	defaultClient *HttpClient
)

// Default returns a process-wide client over a pool with default settings,
// created on first use. It is never closed.
func Default() *HttpClient {
	defaultOnce.Do(func() {
		defaultClient = NewHttpClient(pool.New(pool.DefaultConfig()))
	})
	return defaultClient
}

// Pool returns the pool the client runs on.
func (c *HttpClient) Pool() *pool.Pool { return c.pool }

type outcome struct {
	resp *protocol.HttpResponse
	err  error
}

// Do runs req and waits for its response. If ctx ends first the session is
// closed and ctx.Err() is returned.
func (c *HttpClient) Do(ctx context.Context, req *protocol.HttpRequest) (*protocol.HttpResponse, error) {
	if req.Method == protocol.MethodGet && req.Body != nil {
		return nil, errors.NewInvalidArgumentError("GET request cannot have a body")
	}
	if req.Method == protocol.MethodPost {
		if err := c.validatePostRequest(req); err != nil {
			return nil, err
		}
	}

	s, err := pool.NewSession(c.pool, req)
	if err != nil {
		return nil, err
	}

	done := make(chan outcome, 1)
	if err := s.Start(func(resp *protocol.HttpResponse, err error) {
		done <- outcome{resp, err}
	}); err != nil {
		return nil, err
	}

	select {
	case o := <-done:
		return o.resp, o.err
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}
}

// Get performs a GET request for rawURL.
func (c *HttpClient) Get(ctx context.Context, rawURL string) (*protocol.HttpResponse, error) {
	req, err := NewRequest(protocol.MethodGet, rawURL, nil, "")
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// Post performs a POST request with body.
func (c *HttpClient) Post(ctx context.Context, rawURL string, body []byte, contentType string) (*protocol.HttpResponse, error) {
	req, err := NewRequest(protocol.MethodPost, rawURL, body, contentType)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// PostForm posts form url-encoded.
func (c *HttpClient) PostForm(ctx context.Context, rawURL string, form Form) (*protocol.HttpResponse, error) {
	return c.Post(ctx, rawURL, []byte(form.Encode()), FormContentType)
}

// validatePostRequest validates that a POST request has a body
func (c *HttpClient) validatePostRequest(req *protocol.HttpRequest) error {
	if req.Body == nil {
		return errors.NewInvalidArgumentError("POST request must have a body")
	}
	if req.ContentLength < 0 {
		return errors.NewInvalidArgumentError("POST request must have a content length")
	}
	return nil
}

package transport

import (
	"context"
	"net/http"

	"github.com/agentstation/quorum/pkg/constants"
	"github.com/agentstation/quorum/pkg/errors"
	"github.com/agentstation/quorum/pkg/verify"
)

// Service names used to tag API errors.
const (
	ServiceSource  = "source"
	ServiceOverlay = "overlay"
)

// Client performs GET requests for one service over a shared pool.
type Client struct {
	http    *http.Client
	service string
	headers http.Header
}

var _ verify.Prober = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHeaders replaces the headers sent with every request.
func WithHeaders(h http.Header) Option {
	return func(c *Client) {
		c.headers = h.Clone()
	}
}

// New creates a client for service. A nil pool falls back to a plain client
// with the default timeout.
func New(pool *http.Client, service string, opts ...Option) *Client {
	if pool == nil {
		pool = &http.Client{Timeout: constants.DefaultHTTPTimeout}
	}
	c := &Client{http: pool, service: service, headers: http.Header{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Service returns the service name errors are tagged with.
func (c *Client) Service() string { return c.service }

// Get fetches url and returns the body of a 200 response.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := newRequest(ctx, url, c.headers)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewTransportError(url, err)
	}
	return readBody(resp, c.service)
}

// Probe implements verify.Prober.
func (c *Client) Probe(ctx context.Context, url string) (string, error) {
	return c.GetText(ctx, url)
}

// GetText is Get with the body returned as text.
func (c *Client) GetText(ctx context.Context, url string) (string, error) {
	body, err := c.Get(ctx, url)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

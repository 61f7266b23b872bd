// Package client talks to a paste server over HTTP.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

var ErrNotFound = errors.New("paste not found")

type options struct {
	httpClient *http.Client
}

type Option func(*options)

func WithHTTPClient(value *http.Client) Option {
	return func(o *options) {
		o.httpClient = value
	}
}

type Client struct {
	opts options
	base *url.URL
}

// New returns a client for the server at baseURL, e.g.,
// "https://paste.example.com/".
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if !base.IsAbs() || base.Host == "" {
		return nil, fmt.Errorf("%q: must be an absolute URL", baseURL)
	}
	c := &Client{base: base}
	c.opts.httpClient = http.DefaultClient
	for _, o := range opts {
		o(&c.opts)
	}
	return c, nil
}

// Paste uploads the contents of r and returns the URL to retrieve them. The
// size is sent as the content length, or the body is sent chunked if size
// is negative.
func (c *Client) Paste(ctx context.Context, r io.Reader, size int64) (string, error) {
	body := r
	if size == 0 {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.ResolveReference(&url.URL{Path: "./"}).String(), body)
	if err != nil {
		return "", err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paste: %s", resp.Status)
	}
	return strings.TrimSpace(string(b)), nil
}

// Fetch returns a stream for the paste with the given identifier and its
// length, -1 if unknown. The caller must close the stream. An empty paste
// yields an empty stream of length zero.
func (c *Client) Fetch(ctx context.Context, id string) (io.ReadCloser, int64, error) {
	if id == "" || strings.ContainsAny(id, "/?#") {
		return nil, 0, fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.ResolveReference(&url.URL{Path: id}).String(), nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, resp.ContentLength, nil
	case http.StatusNoContent:
		_ = resp.Body.Close()
		return io.NopCloser(strings.NewReader("")), 0, nil
	case http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, 0, fmt.Errorf("%q: %w", id, ErrNotFound)
	default:
		_ = resp.Body.Close()
		return nil, 0, fmt.Errorf("%q: %s", id, resp.Status)
	}
}

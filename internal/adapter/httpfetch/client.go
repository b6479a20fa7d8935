package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ambientflow/ambientmix/internal/domain"
	"github.com/ambientflow/ambientmix/internal/port"
)

// Client fetches asset bytes over HTTP
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	maxBytes   int64
	userAgent  string
}

// Ensure Client implements port.Fetcher
var _ port.Fetcher = (*Client)(nil)

// ClientConfig contains optional client configuration
type ClientConfig struct {
	Timeout   time.Duration // Per-fetch deadline (default: 30s)
	MaxBytes  int64         // Bodies larger than this are rejected (default: 64MB)
	UserAgent string
}

// NewClient creates a fetch client
func NewClient(cfg *ClientConfig) *Client {
	c := &Client{
		timeout:   30 * time.Second,
		maxBytes:  64 * 1024 * 1024,
		userAgent: "ambientmix/1.0",
	}
	if cfg != nil {
		if cfg.Timeout > 0 {
			c.timeout = cfg.Timeout
		}
		if cfg.MaxBytes > 0 {
			c.maxBytes = cfg.MaxBytes
		}
		if cfg.UserAgent != "" {
			c.userAgent = cfg.UserAgent
		}
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,

		// Audio is already compressed
		DisableCompression: true,

		ResponseHeaderTimeout: c.timeout,
	}

	c.httpClient = &http.Client{Transport: transport}
	return c
}

// Fetch downloads url. A response with a non-2xx status is reported with OK
// false and no error; transport failures and oversized bodies are errors.
func (c *Client) Fetch(ctx context.Context, url string) (*port.FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &domain.FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	result := &port.FetchResult{
		OK:            resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode:    resp.StatusCode,
		ContentLength: resp.ContentLength,
	}
	if !result.OK {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return result, nil
	}

	if resp.ContentLength > c.maxBytes {
		return nil, &domain.FetchError{URL: url, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("content length %d exceeds limit %d", resp.ContentLength, c.maxBytes)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, &domain.FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	if int64(len(data)) > c.maxBytes {
		return nil, &domain.FetchError{URL: url, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("body exceeds limit %d", c.maxBytes)}
	}

	result.Data = data
	return result, nil
}

// Probe issues a HEAD request and reports whether the server answered at all.
// Any HTTP status counts as reachable.
func (c *Client) Probe(ctx context.Context, url string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

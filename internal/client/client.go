// Package client provides an HTTP client for the quickquery API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ricesearch/quickquery/internal/manager"
	"github.com/ricesearch/quickquery/internal/metrics"
	apperrors "github.com/ricesearch/quickquery/internal/pkg/errors"
	"github.com/ricesearch/quickquery/internal/pkg/middleware"
	"github.com/ricesearch/quickquery/internal/server"
)

// Client is an HTTP client for the quickquery API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config configures the client.
type Config struct {
	// BaseURL is the base URL of the API server.
	BaseURL string

	// Timeout is the request timeout. Fallback answers can be slow, so it
	// should exceed the server's fallback timeout.
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle (keep-alive) connections
	// across all hosts. Zero means no limit.
	MaxIdleConns int

	// IdleConnTimeout is the maximum amount of time an idle (keep-alive)
	// connection will remain idle before closing itself.
	IdleConnTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "http://localhost:8080",
		Timeout:         90 * time.Second,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
}

// New creates a new API client.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

// APIError is an error response from the server.
type APIError struct {
	Status  int
	Code    string
	Kind    apperrors.Kind
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.Code, e.Message)
}

// Answer asks a question.
func (c *Client) Answer(ctx context.Context, req server.AnswerRequest) (*manager.AnswerResult, error) {
	var resp manager.AnswerResult
	if err := c.post(ctx, "/v1/answer", req.UserID, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Compare runs the fast path and the fallback side by side.
func (c *Client) Compare(ctx context.Context, req server.CompareRequest) (*manager.Comparison, error) {
	var resp manager.Comparison
	if err := c.post(ctx, "/v1/compare", req.UserID, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health returns the server's health. An unhealthy server still yields a
// report, with Healthy=false.
func (c *Client) Health(ctx context.Context) (*manager.Health, error) {
	var resp manager.Health
	if err := c.get(ctx, "/healthz", &resp, http.StatusServiceUnavailable); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Version returns the server's version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var resp struct {
		Version string `json:"version"`
	}
	if err := c.get(ctx, "/v1/version", &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

// Stats returns aggregate statistics for window w.
func (c *Client) Stats(ctx context.Context, w metrics.Window) (*metrics.Stats, error) {
	var resp metrics.Stats
	if err := c.get(ctx, "/v1/stats?window="+url.QueryEscape(string(w)), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Report returns the plain-text performance report for window w.
func (c *Client) Report(ctx context.Context, w metrics.Window) (string, error) {
	return c.text(ctx, "/v1/report?window="+url.QueryEscape(string(w)))
}

// ExportCSV returns the metric records for window w as CSV.
func (c *Client) ExportCSV(ctx context.Context, w metrics.Window) (string, error) {
	return c.text(ctx, "/v1/export.csv?window="+url.QueryEscape(string(w)))
}

// CacheStats returns the similarity cache statistics.
func (c *Client) CacheStats(ctx context.Context) (*server.CacheStatsResponse, error) {
	var resp server.CacheStatsResponse
	if err := c.get(ctx, "/v1/cache/stats", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearCache empties the similarity cache.
func (c *Client) ClearCache(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/v1/cache", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Request-ID", ulid.Make().String())
	return req, nil
}

// get performs a GET request. Statuses in accept are decoded into result
// instead of being treated as errors.
func (c *Client) get(ctx context.Context, path string, result any, accept ...int) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, result, accept...)
}

// post performs a POST request on behalf of userID, which the server's
// rate limiter keys on.
func (c *Client) post(ctx context.Context, path, userID string, body, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}

	return c.do(req, result)
}

// text performs a GET request and returns the raw body.
func (c *Client) text(ctx context.Context, path string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	var out []byte
	if err := c.send(req, func(body []byte) error { out = body; return nil }); err != nil {
		return "", err
	}
	return string(out), nil
}

// do executes a request and decodes a JSON body into result.
func (c *Client) do(req *http.Request, result any, accept ...int) error {
	return c.send(req, func(body []byte) error {
		if result == nil || len(body) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
		return nil
	}, accept...)
}

func (c *Client) send(req *http.Request, handle func([]byte) error, accept ...int) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 && !accepted(resp.StatusCode, accept) {
		var e apperrors.ErrorResponse
		if err := json.Unmarshal(body, &e); err != nil || e.Code == "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
		}
		return &APIError{Status: resp.StatusCode, Code: e.Code, Kind: e.Kind, Message: e.Error}
	}

	return handle(body)
}

func accepted(status int, accept []int) bool {
	for _, s := range accept {
		if s == status {
			return true
		}
	}
	return false
}

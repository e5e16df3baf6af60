package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ricesearch/quickquery/internal/config"
)

// HTTP posts questions as JSON to a remote answering endpoint and extracts
// the answer from the response with a gjson path.
type HTTP struct {
	url        string
	apiKey     string
	answerPath string
	httpClient *http.Client
}

// Request is the JSON body sent to the endpoint.
type Request struct {
	Query       string       `json:"query"`
	History     []Message    `json:"history,omitempty"`
	UserID      string       `json:"user_id,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// APIError is a non-2xx response from the endpoint.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// NewHTTP creates a client for cfg.URL.
func NewHTTP(cfg config.FallbackConfig) *HTTP {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.AnswerPath == "" {
		cfg.AnswerPath = "answer"
	}

	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &HTTP{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		answerPath: cfg.AnswerPath,
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
	}
}

// New returns an HTTP answerer, or Unavailable when no URL is configured.
func New(cfg config.FallbackConfig) Answerer {
	if cfg.URL == "" {
		return Unavailable
	}
	return NewHTTP(cfg)
}

// Answer implements Answerer.
func (c *HTTP) Answer(ctx context.Context, text string, history []Message, userID string, attachments []Attachment) (string, error) {
	data, err := json.Marshal(Request{Query: text, History: history, UserID: userID, Attachments: attachments})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	body, err := c.do(req)
	if err != nil {
		return "", err
	}

	answer := gjson.GetBytes(body, c.answerPath)
	if !answer.Exists() || strings.TrimSpace(answer.String()) == "" {
		return "", fmt.Errorf("response has no answer at %q", c.answerPath)
	}
	return answer.String(), nil
}

func (c *HTTP) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(body)}
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("response is not valid JSON")
	}
	return body, nil
}

// errorMessage pulls a message out of common error body shapes.
func errorMessage(body []byte) string {
	for _, path := range []string{"error.message", "message", "error"} {
		if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String {
			return r.String()
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

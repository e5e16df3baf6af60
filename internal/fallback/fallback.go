// Package fallback defines the general-purpose answering path used when the
// fast path cannot handle a question, plus an HTTP client for it.
package fallback

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by Unavailable.
var ErrNotConfigured = errors.New("fallback answerer not configured")

// Message is one turn of prior conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Attachment references a file sent along with the question.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Answerer answers free-form questions. Its internals are opaque.
type Answerer interface {
	Answer(ctx context.Context, text string, history []Message, userID string, attachments []Attachment) (string, error)
}

// Func adapts a function to Answerer.
type Func func(ctx context.Context, text string, history []Message, userID string, attachments []Attachment) (string, error)

// Answer calls f.
func (f Func) Answer(ctx context.Context, text string, history []Message, userID string, attachments []Attachment) (string, error) {
	return f(ctx, text, history, userID, attachments)
}

// Unavailable always fails with ErrNotConfigured.
var Unavailable Answerer = Func(func(context.Context, string, []Message, string, []Attachment) (string, error) {
	return "", ErrNotConfigured
})

// Package bus carries telemetry events (low confidence, slow responses,
// failed answers) to subscribers in-process or over Kafka.
package bus

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is a ULID, so IDs sort by creation time.
	ID string `json:"id"`

	// Type is the event type, usually equal to the topic.
	Type string `json:"type"`

	// Source is the component that generated the event.
	Source string `json:"source"`

	// Timestamp is the creation time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// CorrelationID links the event to the request that caused it.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// NewEvent stamps a new event with a fresh ID and the current time.
func NewEvent(eventType, source string, payload any) Event {
	now := time.Now()
	return Event{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Type:      eventType,
		Source:    source,
		Timestamp: now.UnixMilli(),
		Payload:   payload,
	}
}

// Telemetry topics.
const (
	TopicLowConfidence   = "quickquery.feedback.low_confidence"
	TopicSlowResponse    = "quickquery.feedback.slow_response"
	TopicBothPathsFailed = "quickquery.feedback.both_paths_failed"
)

// Topics lists every telemetry topic.
var Topics = []string{TopicLowConfidence, TopicSlowResponse, TopicBothPathsFailed}

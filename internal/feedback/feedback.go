// Package feedback reports diagnostic events about answers the fast path
// handled poorly: low-confidence questions, slow responses and requests
// where both answering paths failed.
package feedback

import (
	"context"
	"fmt"

	"github.com/ricesearch/quickquery/internal/bus"
	"github.com/ricesearch/quickquery/internal/pkg/logger"
)

// LowConfidence describes a question the classifier could not place.
type LowConfidence struct {
	Query      string   `json:"query"`
	Intent     string   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Warnings   []string `json:"warnings,omitempty"`
	UserID     string   `json:"user_id,omitempty"`
}

// SlowResponse describes an answer that exceeded the latency budget.
type SlowResponse struct {
	Query      string  `json:"query"`
	Intent     string  `json:"intent"`
	Method     string  `json:"method"`
	DurationMs float64 `json:"duration_ms"`
	UserID     string  `json:"user_id,omitempty"`
}

// BothPathsFailed describes a request neither path could answer.
type BothPathsFailed struct {
	Query         string `json:"query"`
	Intent        string `json:"intent"`
	FastError     string `json:"fast_error"`
	FallbackError string `json:"fallback_error"`
	UserID        string `json:"user_id,omitempty"`
}

// Sink receives diagnostic events. Implementations must not block and
// must not fail the caller.
type Sink interface {
	LowConfidence(ctx context.Context, e LowConfidence)
	SlowResponse(ctx context.Context, e SlowResponse)
	BothPathsFailed(ctx context.Context, e BothPathsFailed)
}

// Nop discards every event.
type Nop struct{}

func (Nop) LowConfidence(context.Context, LowConfidence)     {}
func (Nop) SlowResponse(context.Context, SlowResponse)       {}
func (Nop) BothPathsFailed(context.Context, BothPathsFailed) {}

// BusSink publishes events to the telemetry topics of an event bus.
type BusSink struct {
	bus    bus.Bus
	source string
	log    *logger.Logger
}

// NewBusSink creates a sink publishing on b.
func NewBusSink(b bus.Bus, log *logger.Logger) *BusSink {
	return &BusSink{bus: b, source: "quickquery", log: logger.OrDefault(log).WithComponent("feedback")}
}

func (s *BusSink) LowConfidence(ctx context.Context, e LowConfidence) {
	s.publish(ctx, bus.TopicLowConfidence, e)
}

func (s *BusSink) SlowResponse(ctx context.Context, e SlowResponse) {
	s.publish(ctx, bus.TopicSlowResponse, e)
}

func (s *BusSink) BothPathsFailed(ctx context.Context, e BothPathsFailed) {
	s.publish(ctx, bus.TopicBothPathsFailed, e)
}

func (s *BusSink) publish(ctx context.Context, topic string, payload any) {
	event := bus.NewEvent(topic, s.source, payload)
	event.CorrelationID = logger.RequestID(ctx)
	if err := s.bus.Publish(ctx, topic, event); err != nil {
		s.log.WithContext(ctx).Warn("Failed to publish feedback event", "topic", topic, "error", err)
	}
}

// Subscribe registers handler on every feedback topic of b.
func Subscribe(ctx context.Context, b bus.Bus, handler bus.Handler) error {
	for _, topic := range bus.Topics {
		if err := b.Subscribe(ctx, topic, handler); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}
	return nil
}

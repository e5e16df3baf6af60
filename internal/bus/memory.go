package bus

import (
	"context"
	"sync"
	"time"

	"github.com/ricesearch/quickquery/internal/pkg/errors"
	"github.com/ricesearch/quickquery/internal/pkg/logger"
)

// drainTimeout bounds how long Close waits for running handlers.
const drainTimeout = 10 * time.Second

// TopicStats counts handler outcomes for one topic.
type TopicStats struct {
	Published int64 `json:"published"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
}

// MemoryBus delivers telemetry events to in-process sinks. Every handler
// runs on its own goroutine with a context detached from the publisher, so
// a slow sink never holds up an answer.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool

	statsMu sync.Mutex
	stats   map[string]*TopicStats

	inflight sync.WaitGroup
	log      *logger.Logger
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus(log *logger.Logger) *MemoryBus {
	return &MemoryBus{
		handlers: make(map[string][]Handler),
		stats:    make(map[string]*TopicStats),
		log:      logger.OrDefault(log).WithComponent("bus"),
	}
}

// Publish hands event to every subscriber of topic. Handler errors are
// logged and counted, never returned.
func (b *MemoryBus) Publish(ctx context.Context, topic string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errors.New(errors.CodeUnavailable, "bus is closed")
	}
	b.count(topic, func(s *TopicStats) { s.Published++ })

	detached := context.WithoutCancel(ctx)
	for _, h := range b.handlers[topic] {
		b.inflight.Add(1)
		go b.deliver(detached, topic, event, h)
	}
	return nil
}

func (b *MemoryBus) deliver(ctx context.Context, topic string, event Event, h Handler) {
	defer b.inflight.Done()

	if err := h(ctx, event); err != nil {
		b.count(topic, func(s *TopicStats) { s.Failed++ })
		b.log.WithContext(ctx).Warn("Telemetry handler failed",
			"topic", topic,
			"event_id", event.ID,
			"error", err,
		)
		return
	}
	b.count(topic, func(s *TopicStats) { s.Delivered++ })
}

// Subscribe adds handler to topic.
func (b *MemoryBus) Subscribe(_ context.Context, topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.New(errors.CodeUnavailable, "bus is closed")
	}
	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

// Stats returns a snapshot of the per-topic counters.
func (b *MemoryBus) Stats() map[string]TopicStats {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()

	out := make(map[string]TopicStats, len(b.stats))
	for topic, s := range b.stats {
		out[topic] = *s
	}
	return out
}

func (b *MemoryBus) count(topic string, fn func(*TopicStats)) {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()

	s, ok := b.stats[topic]
	if !ok {
		s = &TopicStats{}
		b.stats[topic] = s
	}
	fn(s)
}

// Drain waits until every running handler has returned or ctx is done.
func (b *MemoryBus) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects further publishes and waits up to drainTimeout for
// running handlers.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.handlers = nil
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := b.Drain(ctx); err != nil {
		b.log.Warn("Telemetry handlers still running at close", "timeout", drainTimeout)
	}
	return nil
}

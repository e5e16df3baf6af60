package bus

import (
	"context"

	"github.com/ricesearch/quickquery/internal/pkg/logger"
)

// wrapped forwards Subscribe and Close to an inner bus. Decorators embed it
// and override Publish.
type wrapped struct {
	inner Bus
}

func (w wrapped) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return w.inner.Subscribe(ctx, topic, handler)
}

func (w wrapped) Close() error {
	return w.inner.Close()
}

// Recorder receives publish outcomes. metrics.Instruments satisfies it.
type Recorder interface {
	ObservePublish(topic string, err error)
}

// InstrumentedBus reports every publish outcome to a Recorder.
type InstrumentedBus struct {
	wrapped
	recorder Recorder
}

// NewInstrumentedBus wraps inner.
func NewInstrumentedBus(inner Bus, recorder Recorder) *InstrumentedBus {
	return &InstrumentedBus{wrapped: wrapped{inner: inner}, recorder: recorder}
}

func (b *InstrumentedBus) Publish(ctx context.Context, topic string, event Event) error {
	err := b.inner.Publish(ctx, topic, event)
	if b.recorder != nil {
		b.recorder.ObservePublish(topic, err)
	}
	return err
}

// LoggedBus appends every telemetry event to an EventLog before handing it
// to the inner bus, so the `events` command can list and replay it later.
type LoggedBus struct {
	wrapped
	events *EventLog
	log    *logger.Logger
}

// NewLoggedBus wraps inner. Closing the LoggedBus closes events too.
func NewLoggedBus(inner Bus, events *EventLog, log *logger.Logger) *LoggedBus {
	return &LoggedBus{
		wrapped: wrapped{inner: inner},
		events:  events,
		log:     logger.OrDefault(log).WithComponent("bus"),
	}
}

// Publish still delivers the event when the log write fails.
func (b *LoggedBus) Publish(ctx context.Context, topic string, event Event) error {
	if err := b.events.Append(topic, event); err != nil {
		b.log.WithContext(ctx).WithError(err).Warn("Failed to append telemetry event", "topic", topic, "event_id", event.ID)
	}
	return b.inner.Publish(ctx, topic, event)
}

// Events returns the underlying event log.
func (b *LoggedBus) Events() *EventLog {
	return b.events
}

func (b *LoggedBus) Close() error {
	if err := b.events.Close(); err != nil {
		b.log.WithError(err).Warn("Failed to close event log")
	}
	return b.inner.Close()
}

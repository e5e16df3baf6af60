package bus

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ricesearch/quickquery/internal/pkg/logger"
)

func TestEventLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "events.jsonl")

	t.Run("Disabled", func(t *testing.T) {
		l, err := OpenEventLog("")
		if err != nil {
			t.Fatalf("OpenEventLog failed: %v", err)
		}
		defer l.Close()

		if l.Enabled() {
			t.Error("Expected log to be disabled")
		}
		if err := l.Append("t", Event{ID: "x"}); err != nil {
			t.Errorf("Append on disabled log should be a no-op, got %v", err)
		}
		if _, err := l.Events(time.Time{}, 0); err == nil {
			t.Error("Events on disabled log should fail")
		}
	})

	t.Run("AppendAndRead", func(t *testing.T) {
		l, err := OpenEventLog(logPath)
		if err != nil {
			t.Fatalf("OpenEventLog failed: %v", err)
		}
		defer l.Close()

		base := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)
		step := 0
		l.now = func() time.Time {
			step++
			return base.Add(time.Duration(step) * time.Minute)
		}

		for i := 0; i < 5; i++ {
			if err := l.Append(TopicLowConfidence, NewEvent(TopicLowConfidence, "test", i)); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
		}
		if _, err := os.Stat(logPath); err != nil {
			t.Fatalf("log file missing: %v", err)
		}

		all, err := l.Events(time.Time{}, 0)
		if err != nil {
			t.Fatalf("Events failed: %v", err)
		}
		if len(all) != 5 {
			t.Fatalf("got %d events, want 5", len(all))
		}

		recent, err := l.Events(base.Add(3*time.Minute), 0)
		if err != nil {
			t.Fatalf("Events failed: %v", err)
		}
		if len(recent) != 2 {
			t.Errorf("got %d events after minute 3, want 2", len(recent))
		}

		limited, _ := l.Events(time.Time{}, 2)
		if len(limited) != 2 {
			t.Errorf("got %d events with limit 2, want 2", len(limited))
		}
	})

	t.Run("ReadEventsSkipsMalformedLines", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.jsonl")
		content := `{"event":{"id":"a"},"topic":"t","timestamp":"2024-05-15T10:00:00Z"}
not json
{"event":{"id":"b"},"topic":"t","timestamp":"2024-05-15T10:01:00Z"}
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		events, err := ReadEvents(path, time.Time{}, 0)
		if err != nil {
			t.Fatalf("ReadEvents failed: %v", err)
		}
		if len(events) != 2 || events[1].Event.ID != "b" {
			t.Errorf("unexpected events %+v", events)
		}

		missing, err := ReadEvents(filepath.Join(t.TempDir(), "none.jsonl"), time.Time{}, 0)
		if err != nil || len(missing) != 0 {
			t.Errorf("missing file: got %v, %v", missing, err)
		}
	})

	t.Run("AppendAfterClose", func(t *testing.T) {
		l, err := OpenEventLog(filepath.Join(t.TempDir(), "closed.jsonl"))
		if err != nil {
			t.Fatal(err)
		}
		l.Close()
		if err := l.Append("t", Event{}); err == nil {
			t.Error("Append after Close should fail")
		}
		if err := l.Close(); err != nil {
			t.Errorf("second Close failed: %v", err)
		}
	})
}

func TestEventLogReplay(t *testing.T) {
	l, err := OpenEventLog(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	for _, topic := range Topics {
		l.Append(topic, NewEvent(topic, "test", nil))
	}

	target := NewMemoryBus(logger.Discard())
	defer target.Close()

	var received atomic.Int32
	var wg sync.WaitGroup
	for _, topic := range Topics {
		target.Subscribe(context.Background(), topic, func(ctx context.Context, e Event) error {
			received.Add(1)
			wg.Done()
			return nil
		})
	}

	wg.Add(len(Topics))
	n, err := l.Replay(context.Background(), target, time.Time{})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if n != len(Topics) {
		t.Errorf("replayed %d events, want %d", n, len(Topics))
	}
	waitFor(t, &wg, time.Second)
	if int(received.Load()) != len(Topics) {
		t.Errorf("received %d events, want %d", received.Load(), len(Topics))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Replay(ctx, target, time.Time{}); err == nil {
		t.Error("Replay with cancelled context should fail")
	}
}

func TestLoggedBus(t *testing.T) {
	events, err := OpenEventLog(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	inner := NewMemoryBus(logger.Discard())
	bus := NewLoggedBus(inner, events, logger.Discard())

	var wg sync.WaitGroup
	wg.Add(1)
	bus.Subscribe(context.Background(), TopicSlowResponse, func(ctx context.Context, e Event) error {
		wg.Done()
		return nil
	})

	if err := bus.Publish(context.Background(), TopicSlowResponse, NewEvent(TopicSlowResponse, "test", 12000)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	waitFor(t, &wg, time.Second)

	logged, err := bus.Events().Events(time.Time{}, 0)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(logged) != 1 || logged[0].Topic != TopicSlowResponse {
		t.Errorf("unexpected logged events %+v", logged)
	}

	if err := bus.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/ricesearch/quickquery/internal/pkg/logger"
)

func TestKafkaConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     KafkaConfig
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     KafkaConfig{Brokers: []string{"localhost:9092"}, ConsumerGroup: "test-group"},
			wantErr: false,
		},
		{
			name:    "empty brokers",
			cfg:     KafkaConfig{Brokers: []string{}, ConsumerGroup: "test-group"},
			wantErr: true,
		},
		{
			name:    "empty consumer group",
			cfg:     KafkaConfig{Brokers: []string{"localhost:9092"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestKafkaConfig_Defaults(t *testing.T) {
	cfg := KafkaConfig{Brokers: []string{"localhost:9092"}, ConsumerGroup: "g"}
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate() error = %v", err)
	}
	if cfg.ClientID != "quickquery-bus" {
		t.Errorf("ClientID = %q, want quickquery-bus", cfg.ClientID)
	}
	if cfg.Version != "2.8.0" {
		t.Errorf("Version = %q, want 2.8.0", cfg.Version)
	}

	sc, err := saramaConfig(cfg)
	if err != nil {
		t.Fatalf("saramaConfig() error = %v", err)
	}
	if sc.Producer.RequiredAcks != sarama.WaitForLocal {
		t.Errorf("RequiredAcks = %v, want WaitForLocal", sc.Producer.RequiredAcks)
	}

	cfg.Version = "invalid"
	if _, err := saramaConfig(cfg); err == nil {
		t.Error("saramaConfig() with invalid version should fail")
	}
}

func TestNewKafkaBus_Unreachable(t *testing.T) {
	_, err := NewKafkaBus(KafkaConfig{Brokers: []string{"127.0.0.1:1"}, ConsumerGroup: "g"}, logger.Discard())
	if err == nil {
		t.Skip("something is listening on 127.0.0.1:1")
	}
}

func TestParseKafkaBrokers(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "single broker", input: "localhost:9092", want: []string{"localhost:9092"}},
		{name: "multiple brokers", input: "broker1:9092,broker2:9092,broker3:9092", want: []string{"broker1:9092", "broker2:9092", "broker3:9092"}},
		{name: "with whitespace", input: "broker1:9092 , broker2:9092 , broker3:9092", want: []string{"broker1:9092", "broker2:9092", "broker3:9092"}},
		{name: "trailing comma", input: "broker1:9092,", want: []string{"broker1:9092"}},
		{name: "empty string", input: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseKafkaBrokers(tt.input)
			if len(got) != len(tt.want) {
				t.Errorf("ParseKafkaBrokers() = %v, want %v", got, tt.want)
				return
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ParseKafkaBrokers()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestEncodeMessage(t *testing.T) {
	event := NewEvent(TopicSlowResponse, "manager", map[string]any{"ms": 12000})
	event.CorrelationID = "req-1"

	msg, err := encodeMessage(TopicSlowResponse, event)
	if err != nil {
		t.Fatalf("encodeMessage() error = %v", err)
	}
	if msg.Topic != TopicSlowResponse {
		t.Errorf("Topic = %s, want %s", msg.Topic, TopicSlowResponse)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "req-1" {
		t.Errorf("Headers = %v, want correlation_id=req-1", msg.Headers)
	}
	key, _ := msg.Key.Encode()
	if string(key) != event.ID {
		t.Errorf("Key = %s, want %s", key, event.ID)
	}
}

func TestKafkaBus_PublishWithMockProducer(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	defer producer.Close()

	bus := &KafkaBus{
		producer:     producer,
		handlers:     make(map[string][]Handler),
		consumerStop: make(chan struct{}),
		log:          logger.Discard(),
	}

	event := NewEvent(TopicLowConfidence, "manager", map[string]any{"confidence": 0.2})
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got Event
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.ID != event.ID {
			return fmt.Errorf("id = %s, want %s", got.ID, event.ID)
		}
		return nil
	})
	if err := bus.Publish(context.Background(), TopicLowConfidence, event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	if err := bus.Publish(context.Background(), TopicLowConfidence, event); err == nil {
		t.Error("Publish() should surface producer failures")
	}
}

func TestKafkaBus_Interface(t *testing.T) {
	var _ Bus = (*KafkaBus)(nil)
}

func TestKafkaBus_CloseIdempotent(t *testing.T) {
	bus := &KafkaBus{
		handlers:     make(map[string][]Handler),
		consumerStop: make(chan struct{}),
		closed:       true,
	}

	if err := bus.Close(); err != nil {
		t.Errorf("Second Close() returned error: %v", err)
	}
}

func TestKafkaBus_PublishAfterClose(t *testing.T) {
	bus := &KafkaBus{
		handlers:     make(map[string][]Handler),
		consumerStop: make(chan struct{}),
		closed:       true,
	}

	if err := bus.Publish(context.Background(), "test", Event{ID: "test"}); err == nil {
		t.Error("Publish() after Close() should return error")
	}
}

func TestKafkaBus_SubscribeAfterClose(t *testing.T) {
	bus := &KafkaBus{
		handlers:     make(map[string][]Handler),
		consumerStop: make(chan struct{}),
		closed:       true,
	}

	err := bus.Subscribe(context.Background(), "test", func(ctx context.Context, event Event) error {
		return nil
	})
	if err == nil {
		t.Error("Subscribe() after Close() should return error")
	}
}

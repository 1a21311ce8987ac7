package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	kgo "github.com/segmentio/kafka-go"
)

// DefaultPublishTimeout bounds a single Kafka write.
const DefaultPublishTimeout = 3 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kgo.Message) error
}

// KafkaChannel publishes events as JSON, keyed by task id so that events of
// one task stay ordered within a partition.
type KafkaChannel struct {
	writer  messageWriter
	timeout time.Duration
}

// NewKafkaWriter creates a writer for the comma-separated broker list.
func NewKafkaWriter(brokersCSV, topic string) (*kgo.Writer, error) {
	brokers := splitCSV(brokersCSV)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	return &kgo.Writer{
		Addr:         kgo.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kgo.LeastBytes{},
		RequiredAcks: kgo.RequireOne,
	}, nil
}

// NewKafkaChannel creates a channel writing through w.
func NewKafkaChannel(w messageWriter, timeout time.Duration) *KafkaChannel {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &KafkaChannel{writer: w, timeout: timeout}
}

// Name implements Channel.
func (c *KafkaChannel) Name() string { return "kafka" }

// Deliver implements Channel.
func (c *KafkaChannel) Deliver(ctx context.Context, event Event) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.writer.WriteMessages(cctx, kgo.Message{
		Key:   []byte(event.TaskID),
		Value: b,
		Time:  event.OccurredAt,
		Headers: []kgo.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "tenant-id", Value: []byte(event.TenantID)},
		},
	})
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

package kafka

import (
	"context"
	"fmt"

	"github.com/campusgig/messaging/internal/repository"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
)

const (
	HeaderEventType = "event_type"
	HeaderEventID   = "event_id"
)

// headerCarrier lets the otel propagator read and write record headers.
type headerCarrier struct {
	record *kgo.Record
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.record.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.record.Headers {
		if h.Key == key {
			c.record.Headers[i].Value = []byte(value)
			return
		}
	}
	c.record.Headers = append(c.record.Headers, kgo.RecordHeader{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c.record.Headers))
	for i, h := range c.record.Headers {
		keys[i] = h.Key
	}
	return keys
}

// Producer relays outbox events to a single topic.
type Producer struct {
	client *kgo.Client
	topic  string
}

func NewProducer(brokers []string, topic string) (*Producer, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ClientID("messaging-outbox"),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Producer{client: cl, topic: topic}, nil
}

// Record builds the record for e. Events of one conversation share a key and
// therefore a partition, which keeps them ordered.
func Record(ctx context.Context, e *repository.OutboxEvent) *kgo.Record {
	r := &kgo.Record{
		Key:       []byte(e.AggregateID),
		Value:     e.Payload,
		Timestamp: e.CreatedAt,
	}
	c := headerCarrier{record: r}
	c.Set(HeaderEventType, e.EventType)
	c.Set(HeaderEventID, e.ID)
	otel.GetTextMapPropagator().Inject(ctx, c)
	return r
}

// Publish writes e and waits for the broker ack.
func (p *Producer) Publish(ctx context.Context, e *repository.OutboxEvent) error {
	if err := p.client.ProduceSync(ctx, Record(ctx, e)).FirstErr(); err != nil {
		return fmt.Errorf("produce %s to %s: %w", e.EventType, p.topic, err)
	}
	return nil
}

func (p *Producer) Close() {
	if p.client != nil {
		p.client.Close()
	}
}

package events

import (
	"context"
	"encoding/json"

	skafka "github.com/segmentio/kafka-go"
)

// KafkaWriter is the subset of segmentio's kafka.Writer the publisher
// needs, kept as an interface so tests can inject a fake.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic, keyed by subject id so a
// subject's events land on one partition in order.
type KafkaPublisher struct {
	writer KafkaWriter
}

// NewKafkaPublisher connects to the given broker and topic.
func NewKafkaPublisher(brokerAddr, topic string) *KafkaPublisher {
	w := &skafka.Writer{
		Addr:     skafka.TCP(brokerAddr),
		Topic:    topic,
		Balancer: &skafka.LeastBytes{},
	}
	return &KafkaPublisher{writer: w}
}

// NewKafkaPublisherWithWriter injects a custom writer, mainly for tests.
func NewKafkaPublisherWithWriter(w KafkaWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := skafka.Message{
		Key:   []byte(event.SubjectID),
		Value: value,
		Headers: []skafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.Metadata.EventID)},
			{Key: "source", Value: []byte(event.Metadata.Source)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

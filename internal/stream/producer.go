// Package stream mirrors persisted records onto a Kafka topic for downstream consumers.
package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"chat-router/internal/logging"
	"chat-router/internal/models"
)

// Producer publishes stored records.
type Producer interface {
	PublishRecord(ctx context.Context, msg models.StoredMessage) error
	Close() error
}

// NewProducer builds a Kafka producer, or a noop producer when brokers are not configured or unreachable at setup.
func NewProducer(brokers, topic string) Producer {
	logger := logging.L()
	if brokers == "" {
		logger.Info().Msg("record stream disabled, using noop: empty brokers")
		return NoopProducer{}
	}
	p, err := NewConfluentProducer(brokers, topic)
	if err != nil {
		logger.Warn().Err(err).Msg("record stream disabled, using noop")
		return NoopProducer{}
	}
	logger.Info().Str("brokers", brokers).Str("topic", topic).Msg("record stream connected")
	return p
}

type ConfluentProducer struct {
	producer *kafka.Producer
	topic    string
	doneCh   chan struct{}
}

func NewConfluentProducer(brokers, topic string) (*ConfluentProducer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	cp := &ConfluentProducer{
		producer: p,
		topic:    topic,
		doneCh:   make(chan struct{}),
	}
	go cp.deliveryReportHandler()
	return cp, nil
}

func (cp *ConfluentProducer) deliveryReportHandler() {
	logger := logging.L()
	for e := range cp.producer.Events() {
		if ev, ok := e.(*kafka.Message); ok && ev.TopicPartition.Error != nil {
			logger.Warn().Err(ev.TopicPartition.Error).Msg("kafka delivery failed")
		}
	}
	close(cp.doneCh)
}

// PublishRecord enqueues the record keyed by conversation so one conversation stays on one partition.
func (cp *ConfluentProducer) PublishRecord(_ context.Context, msg models.StoredMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	err = cp.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &cp.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(ConversationKey(msg.ChatMessage)),
		Value: value,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce record: %w", err)
	}
	return nil
}

func (cp *ConfluentProducer) Close() error {
	cp.producer.Flush(5000)
	cp.producer.Close()
	<-cp.doneCh
	return nil
}

// ConversationKey is "public" for room messages and the ordered participant pair otherwise.
func ConversationKey(msg models.ChatMessage) string {
	if msg.IsPublic() {
		return models.PublicRoom
	}
	a, b := msg.Sender, msg.Recipient
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

type NoopProducer struct{}

func (NoopProducer) PublishRecord(context.Context, models.StoredMessage) error { return nil }

func (NoopProducer) Close() error { return nil }

package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/Shopify/sarama"

	"github.com/vaidashi/marketplace-orders/pkg/logger"
)

// Producer is a wrapper around the Sarama producer
type Producer struct {
	producer sarama.SyncProducer
	logger   logger.Logger
}

// NewConfig returns the producer settings: all replicas ack, idempotent retries
func NewConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 10
	config.Producer.Retry.Backoff = 500 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	config.Version = sarama.V2_1_0_0
	return config
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, logger logger.Logger) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewConfig())

	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return NewProducerFromSync(producer, logger), nil
}

// NewProducerFromSync wraps an existing sync producer
func NewProducerFromSync(producer sarama.SyncProducer, logger logger.Logger) *Producer {
	return &Producer{
		producer: producer,
		logger:   logger,
	}
}

// SendMessage publishes value to topic. Messages with the same key land on
// the same partition, which keeps per-order events ordered.
func (p *Producer) SendMessage(ctx context.Context, topic, key string, value []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}

	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	for k, v := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	partition, offset, err := p.producer.SendMessage(msg)

	if err != nil {
		p.logger.Error("Failed to send message to Kafka",
			"error", err,
			"topic", topic,
			"key", key)
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}

	p.logger.Debug("Message sent to Kafka",
		"topic", topic,
		"key", key,
		"partition", partition,
		"offset", offset)

	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.producer.Close()
}

package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Shopify/sarama"

	"github.com/vaidashi/marketplace-orders/pkg/logger"
	"github.com/vaidashi/marketplace-orders/pkg/retry"
)

// MessageHandler is the interface for handling messages from Kafka
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error
}

// Consumer is a wrapper around sarama.ConsumerGroup
type Consumer struct {
	consumerGroup sarama.ConsumerGroup
	topics        []string
	handlers      map[string]MessageHandler
	retryConfig   *retry.RetryConfig
	logger        logger.Logger
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// ConsumerConfig is the configuration for the Kafka consumer
type ConsumerConfig struct {
	Brokers       []string
	Topics        []string
	ConsumerGroup string
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *ConsumerConfig, logger logger.Logger) (*Consumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Version = sarama.V2_1_0_0
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaCfg)

	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return newConsumer(consumerGroup, cfg.Topics, logger), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, logger logger.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		consumerGroup: group,
		topics:        topics,
		handlers:      make(map[string]MessageHandler),
		retryConfig: &retry.RetryConfig{
			MaxAttempts:     3,
			BackoffStrategy: &retry.ConstantBackoff{Interval: time.Second},
			Logger:          logger,
		},
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// RegisterHandler registers a message handler for a specific topic
func (c *Consumer) RegisterHandler(topic string, handler MessageHandler) {
	c.handlers[topic] = handler
}

// Start joins the consumer group in the background
func (c *Consumer) Start() error {
	if len(c.topics) == 0 {
		return fmt.Errorf("no topics to consume")
	}

	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		for {
			if err := c.consumerGroup.Consume(c.ctx, c.topics, c); err != nil {
				c.logger.Error("Kafka consumer error", "error", err)
			}

			if c.ctx.Err() != nil {
				return
			}

			c.logger.Info("Rejoining consumer group")
		}
	}()

	c.logger.Info("Kafka consumer started", "topics", c.topics)
	return nil
}

// Stop stops the Kafka consumer
func (c *Consumer) Stop() error {
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// Setup is run at the beginning of a new session
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is run at the end of a session
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim handles the messages of one partition in order. A message
// whose handler keeps failing ends the session unmarked, so it is delivered
// again after the group rejoins.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			c.logger.Debug("Received message from Kafka",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key))

			handler, exists := c.handlers[msg.Topic]

			if !exists {
				c.logger.Warn("No handler registered for topic", "topic", msg.Topic)
				session.MarkMessage(msg, "")
				continue
			}

			err := retry.Retry(session.Context(), func() error {
				return handler.HandleMessage(session.Context(), msg)
			}, c.retryConfig)

			if err != nil {
				c.logger.Error("Error handling message",
					"error", err,
					"topic", msg.Topic,
					"partition", msg.Partition,
					"offset", msg.Offset)
				return fmt.Errorf("failed to handle message at offset %d: %w", msg.Offset, err)
			}

			session.MarkMessage(msg, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

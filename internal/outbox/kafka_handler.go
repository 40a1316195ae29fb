package outbox

import (
	"context"
	"fmt"

	"github.com/vaidashi/marketplace-orders/internal/models"
	"github.com/vaidashi/marketplace-orders/pkg/logger"
)

// Publisher sends a keyed message to a topic
type Publisher interface {
	SendMessage(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

// KafkaHandler publishes outbox messages to Kafka
type KafkaHandler struct {
	logger    logger.Logger
	publisher Publisher
	topic     string
}

// NewKafkaHandler creates a new KafkaHandler
func NewKafkaHandler(publisher Publisher, topic string, logger logger.Logger) *KafkaHandler {
	return &KafkaHandler{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}
}

// HandleMessage publishes the event envelope keyed by order id so that all
// events of one order land on the same partition in commit order.
func (h *KafkaHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	headers := map[string]string{
		"event_type":     message.EventType,
		"aggregate_type": message.AggregateType,
	}

	err := h.publisher.SendMessage(ctx, h.topic, message.AggregateID, message.Payload, headers)

	if err != nil {
		h.logger.Error("Failed to publish message to Kafka",
			"error", err,
			"messageID", message.ID,
			"aggregateID", message.AggregateID)
		return fmt.Errorf("failed to publish message to Kafka: %w", err)
	}

	h.logger.Debug("Published message to Kafka",
		"topic", h.topic,
		"messageID", message.ID,
		"aggregateID", message.AggregateID,
		"eventType", message.EventType)

	return nil
}

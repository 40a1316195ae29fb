package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Shopify/sarama"

	"github.com/vaidashi/marketplace-orders/internal/lifecycle"
	"github.com/vaidashi/marketplace-orders/internal/models"
	"github.com/vaidashi/marketplace-orders/pkg/logger"
)

// EventPaymentConfirmed is the provider event that settles an order
const EventPaymentConfirmed = "payment.confirmed"

// PaymentEvent is a message on the payments topic
type PaymentEvent struct {
	EventType  string    `json:"event_type"`
	OrderID    string    `json:"order_id"`
	Reference  string    `json:"reference"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PaymentRecorder records a confirmed payment exactly once
type PaymentRecorder interface {
	MarkPaid(ctx context.Context, id, reference string) (*models.Order, error)
}

// PaymentEventsHandler applies payment provider events to orders
type PaymentEventsHandler struct {
	orders PaymentRecorder
	logger logger.Logger
}

// NewPaymentEventsHandler creates a new PaymentEventsHandler
func NewPaymentEventsHandler(orders PaymentRecorder, logger logger.Logger) *PaymentEventsHandler {
	return &PaymentEventsHandler{
		orders: orders,
		logger: logger,
	}
}

// HandleMessage marks the referenced order paid. Malformed events and
// unknown orders are logged and dropped; only store failures are returned,
// which makes the consumer redeliver.
func (h *PaymentEventsHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event PaymentEvent

	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error("Dropping malformed payment event", "error", err, "offset", msg.Offset)
		return nil
	}

	if event.EventType != EventPaymentConfirmed {
		h.logger.Debug("Ignoring payment event", "eventType", event.EventType)
		return nil
	}

	if event.OrderID == "" || event.Reference == "" {
		h.logger.Warn("Dropping payment event without order or reference", "offset", msg.Offset)
		return nil
	}

	order, err := h.orders.MarkPaid(ctx, event.OrderID, event.Reference)

	if err != nil {
		if errors.Is(err, lifecycle.ErrOrderNotFound) {
			h.logger.Warn("Payment for unknown order", "orderID", event.OrderID, "reference", event.Reference)
			return nil
		}
		return fmt.Errorf("failed to record payment for order %s: %w", event.OrderID, err)
	}

	h.logger.Info("Payment recorded",
		"orderID", order.ID,
		"reference", event.Reference,
		"paymentStatus", order.PaymentStatus)

	return nil
}

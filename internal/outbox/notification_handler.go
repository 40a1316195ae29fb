package outbox

import (
	"context"
	"fmt"

	"github.com/vaidashi/marketplace-orders/internal/cache"
	"github.com/vaidashi/marketplace-orders/internal/models"
	"github.com/vaidashi/marketplace-orders/internal/notify"
	"github.com/vaidashi/marketplace-orders/pkg/logger"
)

const (
	kindBuyer  = "buyer"
	kindSeller = "seller"
)

// NotificationHandler renders notice events into text messages and sends
// each one at most once per (kind, order, status).
type NotificationHandler struct {
	sender  notify.Sender
	deduper cache.Deduper
	logger  logger.Logger
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(sender notify.Sender, deduper cache.Deduper, logger logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		sender:  sender,
		deduper: deduper,
		logger:  logger,
	}
}

// HandleMessage handles buyer_status_notification and
// seller_new_order_notification events
func (h *NotificationHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	var notice models.Notice

	if _, err := message.DecodeEvent(&notice); err != nil {
		return fmt.Errorf("failed to decode notice: %w", err)
	}

	var kind, text string

	switch message.EventType {
	case models.EventBuyerStatusNotice:
		msg, ok := notify.BuyerStatusMessage(notice)
		if !ok {
			h.logger.Debug("No buyer message for status", "orderID", notice.OrderID, "status", notice.Status)
			return nil
		}
		kind, text = kindBuyer, msg
	case models.EventSellerNewOrderNotice:
		kind, text = kindSeller, notify.SellerNewOrderMessage(notice)
	default:
		return fmt.Errorf("unsupported notification event type: %s", message.EventType)
	}

	if notice.RecipientPhone == "" {
		h.logger.Warn("Notification has no recipient phone, skipping",
			"orderID", notice.OrderID,
			"kind", kind)
		return nil
	}

	key := cache.NotificationKey(kind, notice.OrderID, string(notice.Status))

	acquired, err := h.deduper.Acquire(ctx, key)

	if err != nil {
		return fmt.Errorf("failed to claim notification key: %w", err)
	}

	if !acquired {
		h.logger.Info("Notification already sent, skipping", "key", key)
		return nil
	}

	if err := h.sender.Send(ctx, notice.RecipientPhone, text); err != nil {
		if relErr := h.deduper.Release(ctx, key); relErr != nil {
			h.logger.Error("Failed to release notification key", "error", relErr, "key", key)
		}
		return fmt.Errorf("failed to send %s notification: %w", kind, err)
	}

	h.logger.Info("Notification sent",
		"orderID", notice.OrderID,
		"kind", kind,
		"status", notice.Status)

	return nil
}

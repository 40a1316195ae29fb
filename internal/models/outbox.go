package models

import (
	"encoding/json"
	"time"
)

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusCompleted  OutboxStatus = "completed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// Event types written to the outbox
const (
	EventOrderCreated         = "order_created"
	EventOrderStatusChanged   = "order_status_changed"
	EventBuyerStatusNotice    = "buyer_status_notification"
	EventSellerNewOrderNotice = "seller_new_order_notification"
	EventPayoutCompleted      = "payout_completed"
	AggregateTypeOrder        = "order"
)

// OutboxMessage represents a message to be published from the outbox table
type OutboxMessage struct {
	ID                 int64        `db:"id" json:"id"`
	AggregateType      string       `db:"aggregate_type" json:"aggregate_type"`
	AggregateID        string       `db:"aggregate_id" json:"aggregate_id"`
	EventType          string       `db:"event_type" json:"event_type"`
	Payload            []byte       `db:"payload" json:"payload"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	ProcessedAt        *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
	ClaimedAt          *time.Time   `db:"claimed_at" json:"claimed_at,omitempty"`
	ProcessingAttempts int          `db:"processing_attempts" json:"processing_attempts"`
	LastError          *string      `db:"last_error" json:"last_error,omitempty"`
	Status             OutboxStatus `db:"status" json:"status"`
}

// OutboxEvent is the envelope serialised into OutboxMessage.Payload
type OutboxEvent struct {
	EventType   string          `json:"event_type"`
	EventID     string          `json:"event_id"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Data        json.RawMessage `json:"data"`
}

// StatusChange is the data of an order_status_changed event
type StatusChange struct {
	OrderID     string       `json:"order_id"`
	OrderNumber string       `json:"order_number"`
	BuyerID     string       `json:"buyer_id"`
	SellerID    string       `json:"seller_id"`
	OldStatus   OrderStatus  `json:"old_status"`
	NewStatus   OrderStatus  `json:"new_status"`
	ActorID     *string      `json:"actor_id,omitempty"`
	Note        *string      `json:"note,omitempty"`
	PayoutState PayoutStatus `json:"payout_status"`
}

// Notice is the data of buyer/seller notification events
type Notice struct {
	OrderID        string      `json:"order_id"`
	OrderNumber    string      `json:"order_number"`
	Status         OrderStatus `json:"status"`
	RecipientName  string      `json:"recipient_name"`
	RecipientPhone string      `json:"recipient_phone"`
	ShopName       string      `json:"shop_name"`
	TotalAmount    int64       `json:"total_amount"`
	SellerAmount   int64       `json:"seller_amount"`
}

// PayoutCompletion is the data of a payout_completed event
type PayoutCompletion struct {
	OrderID      string    `json:"order_id"`
	OrderNumber  string    `json:"order_number"`
	SellerID     string    `json:"seller_id"`
	SellerAmount int64     `json:"seller_amount"`
	PayoutDate   time.Time `json:"payout_date"`
}

// NewOutboxMessage wraps data in an event envelope for the given order
func NewOutboxMessage(eventType, orderID string, data interface{}, now time.Time) (*OutboxMessage, error) {
	raw, err := json.Marshal(data)

	if err != nil {
		return nil, err
	}

	event := OutboxEvent{
		EventType:   eventType,
		EventID:     GenerateID("evt"),
		AggregateID: orderID,
		OccurredAt:  now,
		Data:        raw,
	}

	payload, err := json.Marshal(event)

	if err != nil {
		return nil, err
	}

	return &OutboxMessage{
		AggregateType:      AggregateTypeOrder,
		AggregateID:        orderID,
		EventType:          eventType,
		Payload:            payload,
		CreatedAt:          now,
		ProcessingAttempts: 0,
		Status:             OutboxStatusPending,
	}, nil
}

// DecodeEvent unmarshals the envelope of m and its data into dst
func (m *OutboxMessage) DecodeEvent(dst interface{}) (*OutboxEvent, error) {
	var event OutboxEvent

	if err := json.Unmarshal(m.Payload, &event); err != nil {
		return nil, err
	}

	if dst != nil {
		if err := json.Unmarshal(event.Data, dst); err != nil {
			return nil, err
		}
	}

	return &event, nil
}

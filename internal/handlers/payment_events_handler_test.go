package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/Shopify/sarama"

	"github.com/vaidashi/marketplace-orders/internal/lifecycle"
	"github.com/vaidashi/marketplace-orders/internal/models"
	"github.com/vaidashi/marketplace-orders/pkg/logger"
)

type fakeRecorder struct {
	calls []string
	err   error
}

func (f *fakeRecorder) MarkPaid(ctx context.Context, id, reference string) (*models.Order, error) {
	f.calls = append(f.calls, id+"|"+reference)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Order{ID: id, PaymentStatus: models.PaymentStatusPaid}, nil
}

func message(value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "payment-events", Value: []byte(value)}
}

func TestPaymentConfirmedMarksOrderPaid(t *testing.T) {
	rec := &fakeRecorder{}
	h := NewPaymentEventsHandler(rec, logger.NewNop())

	err := h.HandleMessage(context.Background(), message(`{"event_type":"payment.confirmed","order_id":"ord-1","reference":"PSK-123"}`))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(rec.calls) != 1 || rec.calls[0] != "ord-1|PSK-123" {
		t.Fatalf("unexpected calls %v", rec.calls)
	}
}

func TestPaymentEventsDroppedWithoutError(t *testing.T) {
	cases := map[string]string{
		"malformed":     `{"event_type":`,
		"other event":   `{"event_type":"payment.refunded","order_id":"ord-1","reference":"r"}`,
		"missing order": `{"event_type":"payment.confirmed","reference":"r"}`,
	}

	for name, value := range cases {
		rec := &fakeRecorder{}
		h := NewPaymentEventsHandler(rec, logger.NewNop())

		if err := h.HandleMessage(context.Background(), message(value)); err != nil {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
		if len(rec.calls) != 0 {
			t.Fatalf("%s: order must not be touched", name)
		}
	}
}

func TestPaymentForUnknownOrderIsDropped(t *testing.T) {
	rec := &fakeRecorder{err: lifecycle.ErrOrderNotFound}
	h := NewPaymentEventsHandler(rec, logger.NewNop())

	if err := h.HandleMessage(context.Background(), message(`{"event_type":"payment.confirmed","order_id":"nope","reference":"r"}`)); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestPaymentStoreFailureIsRedelivered(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("connection reset")}
	h := NewPaymentEventsHandler(rec, logger.NewNop())

	if err := h.HandleMessage(context.Background(), message(`{"event_type":"payment.confirmed","order_id":"ord-1","reference":"r"}`)); err == nil {
		t.Fatal("store failures must surface so the message is redelivered")
	}
}

package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"

	"github.com/vaidashi/marketplace-orders/pkg/logger"
)

func TestSendMessageKeysByAggregate(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"order_id":"ord-1"}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})

	p := NewProducerFromSync(sp, logger.NewNop())
	defer p.Close()

	err := p.SendMessage(context.Background(), "order-events", "ord-1", []byte(`{"order_id":"ord-1"}`), map[string]string{"event_type": "order_status_changed"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSendMessageFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	p := NewProducerFromSync(sp, logger.NewNop())
	defer p.Close()

	err := p.SendMessage(context.Background(), "order-events", "ord-1", []byte("{}"), nil)
	if !errors.Is(err, sarama.ErrNotLeaderForPartition) {
		t.Fatalf("expected ErrNotLeaderForPartition, got %v", err)
	}
}

func TestSendMessageCancelledContext(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	p := NewProducerFromSync(sp, logger.NewNop())
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.SendMessage(ctx, "order-events", "ord-1", []byte("{}"), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Shopify/sarama"

	"github.com/vaidashi/marketplace-orders/pkg/logger"
	"github.com/vaidashi/marketplace-orders/pkg/retry"
)

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

type handlerFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

func (f handlerFunc) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	return f(ctx, msg)
}

func newClaim(topic string, offsets ...int64) *fakeClaim {
	ch := make(chan *sarama.ConsumerMessage, len(offsets))
	for _, o := range offsets {
		ch <- &sarama.ConsumerMessage{Topic: topic, Offset: o}
	}
	close(ch)
	return &fakeClaim{messages: ch}
}

func newTestConsumer() *Consumer {
	c := newConsumer(nil, []string{"payment-events"}, logger.NewNop())
	c.retryConfig.BackoffStrategy = &retry.ConstantBackoff{Interval: time.Millisecond}
	return c
}

func TestConsumeClaimMarksHandledMessages(t *testing.T) {
	c := newTestConsumer()

	var seen []int64
	c.RegisterHandler("payment-events", handlerFunc(func(ctx context.Context, msg *sarama.ConsumerMessage) error {
		seen = append(seen, msg.Offset)
		return nil
	}))

	session := &fakeSession{ctx: context.Background()}
	if err := c.ConsumeClaim(session, newClaim("payment-events", 1, 2, 3)); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}

	if len(seen) != 3 || len(session.marked) != 3 {
		t.Fatalf("expected 3 handled and marked, got %v / %v", seen, session.marked)
	}
}

func TestConsumeClaimRetriesThenStopsUnmarked(t *testing.T) {
	c := newTestConsumer()

	calls := 0
	c.RegisterHandler("payment-events", handlerFunc(func(ctx context.Context, msg *sarama.ConsumerMessage) error {
		calls++
		return errors.New("database unavailable")
	}))

	session := &fakeSession{ctx: context.Background()}
	err := c.ConsumeClaim(session, newClaim("payment-events", 7, 8))
	if err == nil {
		t.Fatal("expected the session to end with an error")
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if len(session.marked) != 0 {
		t.Fatalf("failed message must not be marked, got %v", session.marked)
	}
}

func TestConsumeClaimSkipsUnknownTopic(t *testing.T) {
	c := newTestConsumer()

	session := &fakeSession{ctx: context.Background()}
	if err := c.ConsumeClaim(session, newClaim("other", 1)); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(session.marked) != 1 {
		t.Fatal("messages without a handler are acknowledged")
	}
}

func TestStartRequiresTopics(t *testing.T) {
	c := newConsumer(nil, nil, logger.NewNop())
	if err := c.Start(); err == nil {
		t.Fatal("expected error without topics")
	}
}

package payout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vaidashi/marketplace-orders/internal/models"
	"github.com/vaidashi/marketplace-orders/internal/repository"
	"github.com/vaidashi/marketplace-orders/pkg/logger"
)

type fakeTx struct {
	sqlx.ExtContext
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit() error   { t.committed = true; return nil }
func (t *fakeTx) Rollback() error { t.rolledBack = true; return nil }

type fakeStore struct {
	orders   []*models.Order
	txs      []*fakeTx
	markErr  error
	raceLost map[string]bool
}

func (f *fakeStore) BeginTx(ctx context.Context) (repository.Tx, error) {
	tx := &fakeTx{}
	f.txs = append(f.txs, tx)
	return tx, nil
}

func (f *fakeStore) ListDueForPayout(ctx context.Context, now time.Time, limit int) ([]*models.Order, error) {
	var due []*models.Order
	for _, o := range f.orders {
		if o.PayoutStatus == models.PayoutStatusScheduled && o.PayoutDate != nil && !o.PayoutDate.After(now) {
			due = append(due, o)
		}
	}
	return due, nil
}

func (f *fakeStore) MarkPayoutCompletedInTx(ctx context.Context, tx repository.Tx, id string, now time.Time) (bool, error) {
	if f.markErr != nil {
		return false, f.markErr
	}
	if f.raceLost[id] {
		return false, nil
	}
	for _, o := range f.orders {
		if o.ID == id {
			o.PayoutStatus = models.PayoutStatusCompleted
		}
	}
	return true, nil
}

type fakeOutbox struct {
	messages []*models.OutboxMessage
}

func (f *fakeOutbox) CreateInTx(ctx context.Context, tx repository.Tx, message *models.OutboxMessage) error {
	f.messages = append(f.messages, message)
	return nil
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func deliveredOrder(id string, deliveredAt time.Time) *models.Order {
	due := deliveredAt.Add(24 * time.Hour)
	return &models.Order{
		ID:            id,
		OrderNumber:   "ORD-" + id,
		SellerID:      "seller-1",
		SellerAmount:  380000,
		Status:        models.OrderStatusDelivered,
		PaymentStatus: models.PaymentStatusPaid,
		DeliveredAt:   &deliveredAt,
		PayoutStatus:  models.PayoutStatusScheduled,
		PayoutDate:    &due,
	}
}

func newTestSweeper(store Store, outbox OutboxWriter, now time.Time) *Sweeper {
	s := NewSweeper(store, outbox, Config{Interval: time.Hour, Hold: 24 * time.Hour}, logger.NewNop())
	s.nowFunc = func() time.Time { return now }
	return s
}

func TestSweepCompletesDuePayouts(t *testing.T) {
	store := &fakeStore{orders: []*models.Order{
		deliveredOrder("a", t0.Add(-25*time.Hour)),
		deliveredOrder("b", t0.Add(-2*time.Hour)),
	}}
	outbox := &fakeOutbox{}

	n, err := newTestSweeper(store, outbox, t0).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 payout completed, got %d", n)
	}
	if store.orders[0].PayoutStatus != models.PayoutStatusCompleted || store.orders[1].PayoutStatus != models.PayoutStatusScheduled {
		t.Fatalf("unexpected payout states %s / %s", store.orders[0].PayoutStatus, store.orders[1].PayoutStatus)
	}
	if len(outbox.messages) != 1 || outbox.messages[0].EventType != models.EventPayoutCompleted {
		t.Fatalf("expected one payout_completed event, got %v", outbox.messages)
	}

	var data models.PayoutCompletion
	if _, err := outbox.messages[0].DecodeEvent(&data); err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if data.OrderID != "a" || data.SellerAmount != 380000 || !data.PayoutDate.Equal(t0.Add(-time.Hour)) {
		t.Fatalf("unexpected event data %+v", data)
	}
	if !store.txs[0].committed {
		t.Fatal("expected commit")
	}
}

func TestSweepExactlyAtBoundary(t *testing.T) {
	store := &fakeStore{orders: []*models.Order{deliveredOrder("a", t0.Add(-24*time.Hour))}}

	n, _ := newTestSweeper(store, &fakeOutbox{}, t0).Sweep(context.Background())
	if n != 1 {
		t.Fatalf("payout due exactly at now should complete, got %d", n)
	}
}

func TestSweepSkipsUnpaidOrders(t *testing.T) {
	unpaid := deliveredOrder("a", t0.Add(-25*time.Hour))
	unpaid.PaymentStatus = models.PaymentStatusUnpaid
	store := &fakeStore{orders: []*models.Order{unpaid}}
	outbox := &fakeOutbox{}

	n, err := newTestSweeper(store, outbox, t0).Sweep(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected nothing completed, got %d, %v", n, err)
	}
	if unpaid.PayoutStatus != models.PayoutStatusScheduled {
		t.Fatalf("unpaid order payout moved to %s", unpaid.PayoutStatus)
	}
	if len(outbox.messages) != 0 || len(store.txs) != 0 {
		t.Fatalf("expected no transaction and no event, got %d txs, %d events", len(store.txs), len(outbox.messages))
	}
}

func TestSweepSkipsLostRace(t *testing.T) {
	store := &fakeStore{
		orders:   []*models.Order{deliveredOrder("a", t0.Add(-48*time.Hour))},
		raceLost: map[string]bool{"a": true},
	}
	outbox := &fakeOutbox{}

	n, err := newTestSweeper(store, outbox, t0).Sweep(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected nothing completed, got %d, %v", n, err)
	}
	if len(outbox.messages) != 0 {
		t.Fatal("no event should be enqueued when another worker completed the payout")
	}
	if !store.txs[0].rolledBack {
		t.Fatal("expected rollback")
	}
}

func TestSweepContinuesPastErrors(t *testing.T) {
	store := &fakeStore{
		orders:  []*models.Order{deliveredOrder("a", t0.Add(-48*time.Hour))},
		markErr: errors.New("connection reset"),
	}

	n, err := newTestSweeper(store, &fakeOutbox{}, t0).Sweep(context.Background())
	if err != nil {
		t.Fatalf("per-order errors should not fail the sweep: %v", err)
	}
	if n != 0 || !store.txs[0].rolledBack {
		t.Fatalf("expected rollback and no completion, n=%d", n)
	}
}

func TestSweeperStartStop(t *testing.T) {
	s := NewSweeper(&fakeStore{}, &fakeOutbox{}, Config{Interval: time.Millisecond}, logger.NewNop())
	s.Start()
	time.Sleep(5 * time.Millisecond)
	s.Stop()
	s.Stop()
}

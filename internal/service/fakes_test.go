package service

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vaidashi/marketplace-orders/internal/models"
	"github.com/vaidashi/marketplace-orders/internal/repository"
)

type fakeTx struct {
	sqlx.ExtContext
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit() error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback() error {
	t.rolledBack = true
	return nil
}

// fakeOrderStore keeps orders in memory. Writes land immediately, so tests
// assert on tx state to check rollback behaviour.
type fakeOrderStore struct {
	mu      sync.Mutex
	orders  map[string]*models.Order
	history map[string][]models.OrderStatusHistory
	txs     []*fakeTx
	nextID  int64

	// updateErr is returned by the next UpdateStatusInTx call
	updateErr error
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		orders:  make(map[string]*models.Order),
		history: make(map[string][]models.OrderStatusHistory),
	}
}

func (f *fakeOrderStore) lastTx() *fakeTx {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txs[len(f.txs)-1]
}

func (f *fakeOrderStore) put(o *models.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *o
	f.orders[o.ID] = &cp
}

func (f *fakeOrderStore) BeginTx(ctx context.Context) (repository.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx := &fakeTx{}
	f.txs = append(f.txs, tx)
	return tx, nil
}

func (f *fakeOrderStore) CreateInTx(ctx context.Context, tx repository.Tx, order *models.Order) error {
	f.put(order)
	return nil
}

func (f *fakeOrderStore) GetForUpdateInTx(ctx context.Context, tx repository.Tx, id string) (*models.Order, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeOrderStore) GetHistoryInTx(ctx context.Context, tx repository.Tx, orderID string) ([]models.OrderStatusHistory, error) {
	return f.GetHistory(ctx, orderID)
}

func (f *fakeOrderStore) UpdateStatusInTx(ctx context.Context, tx repository.Tx, order *models.Order, expected models.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateErr != nil {
		err := f.updateErr
		f.updateErr = nil
		return err
	}

	stored, ok := f.orders[order.ID]
	if !ok || stored.Status != expected {
		return repository.ErrConflict
	}

	cp := *order
	f.orders[order.ID] = &cp
	return nil
}

func (f *fakeOrderStore) AppendHistoryInTx(ctx context.Context, tx repository.Tx, entry *models.OrderStatusHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	entry.ID = f.nextID
	f.history[entry.OrderID] = append(f.history[entry.OrderID], *entry)
	return nil
}

func (f *fakeOrderStore) GetByID(ctx context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrderStore) GetHistory(ctx context.Context, orderID string) ([]models.OrderStatusHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OrderStatusHistory(nil), f.history[orderID]...), nil
}

func (f *fakeOrderStore) MarkPaid(ctx context.Context, id, reference string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if o.PaymentStatus == models.PaymentStatusPaid {
		return false, nil
	}
	o.PaymentStatus = models.PaymentStatusPaid
	o.PaymentReference = models.StringPtr(reference)
	return true, nil
}

func (f *fakeOrderStore) ListBySeller(ctx context.Context, sellerID string) ([]*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.Order
	for _, o := range f.orders {
		if o.SellerID == sellerID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeOutbox struct {
	mu       sync.Mutex
	messages []*models.OutboxMessage
}

func (f *fakeOutbox) CreateInTx(ctx context.Context, tx repository.Tx, message *models.OutboxMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	message.ID = int64(len(f.messages) + 1)
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeOutbox) byType(eventType string) []*models.OutboxMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.OutboxMessage
	for _, m := range f.messages {
		if m.EventType == eventType {
			out = append(out, m)
		}
	}
	return out
}

type fakeReviewStore struct {
	mu      sync.Mutex
	reviews map[string]*models.Review
	helpful map[string]map[string]bool
}

func newFakeReviewStore() *fakeReviewStore {
	return &fakeReviewStore{
		reviews: make(map[string]*models.Review),
		helpful: make(map[string]map[string]bool),
	}
}

func (f *fakeReviewStore) Create(ctx context.Context, review *models.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range f.reviews {
		if r.BuyerID == review.BuyerID && r.ProductID == review.ProductID && r.OrderID == review.OrderID {
			return repository.ErrDuplicate
		}
	}
	cp := *review
	f.reviews[review.ID] = &cp
	return nil
}

func (f *fakeReviewStore) GetByID(ctx context.Context, id string) (*models.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.reviews[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReviewStore) GetByTriple(ctx context.Context, buyerID, productID, orderID string) (*models.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range f.reviews {
		if r.BuyerID == buyerID && r.ProductID == productID && r.OrderID == orderID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeReviewStore) Update(ctx context.Context, review *models.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.reviews[review.ID]
	if !ok || r.BuyerID != review.BuyerID {
		return repository.ErrNotFound
	}
	cp := *review
	f.reviews[review.ID] = &cp
	return nil
}

func (f *fakeReviewStore) Delete(ctx context.Context, id, buyerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.reviews[id]
	if !ok || r.BuyerID != buyerID {
		return repository.ErrNotFound
	}
	delete(f.reviews, id)
	return nil
}

func (f *fakeReviewStore) SetSellerResponse(ctx context.Context, id, sellerID, response string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.reviews[id]
	if !ok || r.SellerID != sellerID {
		return repository.ErrNotFound
	}
	r.SellerResponse = &response
	r.SellerResponseAt = &at
	return nil
}

func (f *fakeReviewStore) ToggleHelpful(ctx context.Context, reviewID, userID string, now time.Time) (bool, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.reviews[reviewID]
	if !ok {
		return false, 0, repository.ErrNotFound
	}
	if f.helpful[reviewID] == nil {
		f.helpful[reviewID] = make(map[string]bool)
	}

	marked := !f.helpful[reviewID][userID]
	if marked {
		f.helpful[reviewID][userID] = true
	} else {
		delete(f.helpful[reviewID], userID)
	}
	r.HelpfulCount = len(f.helpful[reviewID])
	return marked, r.HelpfulCount, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vaidashi/marketplace-orders/internal/lifecycle"
	"github.com/vaidashi/marketplace-orders/internal/models"
	"github.com/vaidashi/marketplace-orders/internal/repository"
	"github.com/vaidashi/marketplace-orders/pkg/logger"
)

// ErrInvalidInput is returned for malformed orders the HTTP layer let through
var ErrInvalidInput = errors.New("invalid input")

// OrderStore is the persistence the order service needs
type OrderStore interface {
	BeginTx(ctx context.Context) (repository.Tx, error)
	CreateInTx(ctx context.Context, tx repository.Tx, order *models.Order) error
	GetForUpdateInTx(ctx context.Context, tx repository.Tx, id string) (*models.Order, error)
	GetHistoryInTx(ctx context.Context, tx repository.Tx, orderID string) ([]models.OrderStatusHistory, error)
	UpdateStatusInTx(ctx context.Context, tx repository.Tx, order *models.Order, expected models.OrderStatus) error
	AppendHistoryInTx(ctx context.Context, tx repository.Tx, entry *models.OrderStatusHistory) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetHistory(ctx context.Context, orderID string) ([]models.OrderStatusHistory, error)
	MarkPaid(ctx context.Context, id, reference string, now time.Time) (bool, error)
	ListBySeller(ctx context.Context, sellerID string) ([]*models.Order, error)
}

// OutboxWriter enqueues messages inside a transaction
type OutboxWriter interface {
	CreateInTx(ctx context.Context, tx repository.Tx, message *models.OutboxMessage) error
}

// OrderSettings are the marketplace money rules
type OrderSettings struct {
	FeeRatePercent decimal.Decimal
	MinOrderTotal  int64
	PayoutHold     time.Duration
}

// NewOrderInput is everything checkout hands over to place an order
type NewOrderInput struct {
	BuyerID     string
	SellerID    string
	ShopName    string
	SellerPhone string
	Delivery    models.DeliveryDetails
	Items       []NewOrderItem
}

// NewOrderItem is a product snapshot and quantity
type NewOrderItem struct {
	ProductID   string
	ProductName string
	UnitPrice   int64
	Quantity    int
}

// OrderService runs the order lifecycle inside database transactions
type OrderService struct {
	orders   OrderStore
	outbox   OutboxWriter
	feeRate  decimal.Decimal
	minTotal int64
	policy   lifecycle.PayoutPolicy
	logger   logger.Logger
	nowFunc  func() time.Time
}

// NewOrderService creates a new OrderService
func NewOrderService(
	orders OrderStore,
	outbox OutboxWriter,
	settings OrderSettings,
	logger logger.Logger,
) *OrderService {
	return &OrderService{
		orders:   orders,
		outbox:   outbox,
		feeRate:  settings.FeeRatePercent,
		minTotal: settings.MinOrderTotal,
		policy:   lifecycle.NewPayoutPolicy(settings.PayoutHold),
		logger:   logger,
		nowFunc:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder places a pending order and enqueues an order_created event
func (s *OrderService) CreateOrder(ctx context.Context, in NewOrderInput) (order *models.Order, err error) {
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", ErrInvalidInput)
	}

	now := s.nowFunc()
	order = models.NewOrder(in.BuyerID, in.SellerID, in.ShopName, in.SellerPhone, in.Delivery, now)

	items := make([]models.OrderItem, 0, len(in.Items))
	for _, it := range in.Items {
		if it.Quantity <= 0 || it.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: item %s has quantity %d and price %d", lifecycle.ErrInvalidAmount, it.ProductID, it.Quantity, it.UnitPrice)
		}
		items = append(items, models.NewOrderItem(order.ID, it.ProductID, it.ProductName, it.UnitPrice, it.Quantity, now))
	}

	total := lifecycle.ApplyMinimumTotal(items, s.minTotal)

	split, err := lifecycle.ComputeSplit(total, s.feeRate)

	if err != nil {
		return nil, err
	}

	order.Items = items
	order.TotalAmount = total
	order.PlatformFeeRate = s.feeRate
	order.PlatformFee = split.PlatformFee
	order.SellerAmount = split.SellerAmount

	outboxMsg, err := models.NewOutboxMessage(models.EventOrderCreated, order.ID, order, now)

	if err != nil {
		s.logger.Error("Failed to create outbox message", "error", err)
		return nil, fmt.Errorf("failed to create outbox message: %w", err)
	}

	tx, err := s.orders.BeginTx(ctx)

	if err != nil {
		return nil, err
	}

	defer s.rollbackOnError(tx, &err)

	if err = s.orders.CreateInTx(ctx, tx, order); err != nil {
		return nil, err
	}

	if err = s.outbox.CreateInTx(ctx, tx, outboxMsg); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", "error", err)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Order created with outbox message",
		"orderID", order.ID,
		"orderNumber", order.OrderNumber,
		"total", order.TotalAmount,
		"messageID", outboxMsg.ID)

	return order, nil
}

// Transition moves an order to target under a row lock, records history and
// enqueues the status event plus any notifications owed.
func (s *OrderService) Transition(ctx context.Context, orderID, target, actorID, note string) (agg *models.OrderAggregate, err error) {
	status, err := lifecycle.ParseStatus(target)

	if err != nil {
		return nil, err
	}

	tx, err := s.orders.BeginTx(ctx)

	if err != nil {
		return nil, storeErr(err)
	}

	defer s.rollbackOnError(tx, &err)

	order, err := s.orders.GetForUpdateInTx(ctx, tx, orderID)

	if err != nil {
		err = storeErr(err)
		return nil, err
	}

	history, err := s.orders.GetHistoryInTx(ctx, tx, orderID)

	if err != nil {
		err = storeErr(err)
		return nil, err
	}

	expected := order.Status

	outcome, err := lifecycle.Transition(order, history, status, actorID, note, s.nowFunc(), s.policy)

	if err != nil {
		return nil, err
	}

	if err = s.orders.UpdateStatusInTx(ctx, tx, order, expected); err != nil {
		err = storeErr(err)
		return nil, err
	}

	if err = s.orders.AppendHistoryInTx(ctx, tx, &outcome.Entry); err != nil {
		err = storeErr(err)
		return nil, err
	}

	messages, err := transitionEvents(order, outcome)

	if err != nil {
		return nil, fmt.Errorf("failed to create outbox message: %w", err)
	}

	for _, msg := range messages {
		if err = s.outbox.CreateInTx(ctx, tx, msg); err != nil {
			err = storeErr(err)
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", "error", err)
		err = storeErr(err)
		return nil, err
	}

	s.logger.Info("Order status updated with outbox message",
		"orderID", order.ID,
		"oldStatus", outcome.OldStatus,
		"newStatus", outcome.NewStatus,
		"actorID", actorID,
		"notifyBuyer", outcome.NotifyBuyer,
		"notifySeller", outcome.NotifySeller,
		"messages", len(messages))

	return &models.OrderAggregate{
		Order:   order,
		History: append(history, outcome.Entry),
	}, nil
}

// transitionEvents builds the outbox rows owed by an applied transition
func transitionEvents(order *models.Order, outcome *lifecycle.Outcome) ([]*models.OutboxMessage, error) {
	now := outcome.Entry.CreatedAt

	change := models.StatusChange{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		BuyerID:     order.BuyerID,
		SellerID:    order.SellerID,
		OldStatus:   outcome.OldStatus,
		NewStatus:   outcome.NewStatus,
		ActorID:     outcome.Entry.ActorID,
		Note:        outcome.Entry.Note,
		PayoutState: order.PayoutStatus,
	}

	msg, err := models.NewOutboxMessage(models.EventOrderStatusChanged, order.ID, change, now)

	if err != nil {
		return nil, err
	}

	messages := []*models.OutboxMessage{msg}

	if outcome.NotifyBuyer {
		notice := newNotice(order, order.DeliveryDetails.Name, order.DeliveryDetails.Phone)

		msg, err := models.NewOutboxMessage(models.EventBuyerStatusNotice, order.ID, notice, now)

		if err != nil {
			return nil, err
		}

		messages = append(messages, msg)
	}

	if outcome.NotifySeller {
		notice := newNotice(order, order.ShopName, order.SellerPhone)

		msg, err := models.NewOutboxMessage(models.EventSellerNewOrderNotice, order.ID, notice, now)

		if err != nil {
			return nil, err
		}

		messages = append(messages, msg)
	}

	return messages, nil
}

func newNotice(order *models.Order, name, phone string) models.Notice {
	return models.Notice{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Status:         order.Status,
		RecipientName:  name,
		RecipientPhone: phone,
		ShopName:       order.ShopName,
		TotalAmount:    order.TotalAmount,
		SellerAmount:   order.SellerAmount,
	}
}

// GetOrder returns the order aggregate with its payout state evaluated now
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.OrderAggregate, error) {
	order, err := s.orders.GetByID(ctx, id)

	if err != nil {
		return nil, storeErr(err)
	}

	history, err := s.orders.GetHistory(ctx, id)

	if err != nil {
		return nil, storeErr(err)
	}

	s.refreshPayout(order)

	return &models.OrderAggregate{Order: order, History: history}, nil
}

// PayoutView evaluates the payout policy for one order
func (s *OrderService) PayoutView(ctx context.Context, id string) (lifecycle.PayoutView, error) {
	order, err := s.orders.GetByID(ctx, id)

	if err != nil {
		return lifecycle.PayoutView{}, storeErr(err)
	}

	return s.policy.Evaluate(order.Status, order.DeliveredAt, s.nowFunc()), nil
}

// MarkPaid applies the payment provider's signal. Repeats are ignored.
func (s *OrderService) MarkPaid(ctx context.Context, id, reference string) (*models.Order, error) {
	changed, err := s.orders.MarkPaid(ctx, id, reference, s.nowFunc())

	if err != nil {
		return nil, storeErr(err)
	}

	if changed {
		s.logger.Info("Order marked paid", "orderID", id, "reference", reference)
	} else {
		s.logger.Debug("Order already paid, ignoring signal", "orderID", id)
	}

	order, err := s.orders.GetByID(ctx, id)

	if err != nil {
		return nil, storeErr(err)
	}

	s.refreshPayout(order)
	return order, nil
}

// PayoutBucket aggregates orders in one payout state
type PayoutBucket struct {
	Orders int   `json:"orders"`
	Amount int64 `json:"amount"`
}

// PayoutSummary is a seller's earnings broken down by payout state
type PayoutSummary struct {
	SellerID       string       `json:"seller_id"`
	Pending        PayoutBucket `json:"pending"`
	Scheduled      PayoutBucket `json:"scheduled"`
	Completed      PayoutBucket `json:"completed"`
	NextPayoutDate *time.Time   `json:"next_payout_date,omitempty"`
}

// SellerPayoutSummary totals seller_amount per payout state over paid,
// non-cancelled orders.
func (s *OrderService) SellerPayoutSummary(ctx context.Context, sellerID string) (*PayoutSummary, error) {
	orders, err := s.orders.ListBySeller(ctx, sellerID)

	if err != nil {
		return nil, storeErr(err)
	}

	now := s.nowFunc()
	summary := &PayoutSummary{SellerID: sellerID}

	for _, o := range orders {
		if o.Status == models.OrderStatusCancelled || o.PaymentStatus != models.PaymentStatusPaid {
			continue
		}

		view := s.policy.Evaluate(o.Status, o.DeliveredAt, now)

		var bucket *PayoutBucket
		switch view.Status {
		case models.PayoutStatusScheduled:
			bucket = &summary.Scheduled
			if summary.NextPayoutDate == nil || view.PayoutDate.Before(*summary.NextPayoutDate) {
				summary.NextPayoutDate = view.PayoutDate
			}
		case models.PayoutStatusCompleted:
			bucket = &summary.Completed
		default:
			bucket = &summary.Pending
		}

		bucket.Orders++
		bucket.Amount += o.SellerAmount
	}

	return summary, nil
}

func (s *OrderService) refreshPayout(order *models.Order) {
	view := s.policy.Evaluate(order.Status, order.DeliveredAt, s.nowFunc())
	order.PayoutStatus = view.Status
	order.PayoutDate = view.PayoutDate
}

func (s *OrderService) rollbackOnError(tx repository.Tx, err *error) {
	if *err == nil {
		return
	}

	if rbErr := tx.Rollback(); rbErr != nil {
		s.logger.Error("Failed to rollback transaction", "error", rbErr)
	}
}

// storeErr translates repository sentinels into lifecycle kinds
func storeErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return lifecycle.ErrOrderNotFound
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %w", lifecycle.ErrConcurrencyConflict, err)
	default:
		return err
	}
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vaidashi/marketplace-orders/internal/database"
	"github.com/vaidashi/marketplace-orders/internal/models"
	"github.com/vaidashi/marketplace-orders/pkg/logger"
)

const orderColumns = `
	id, order_number, buyer_id, seller_id, shop_name, seller_phone,
	total_amount, platform_fee_rate, platform_fee, seller_amount,
	status, payment_status, payment_reference,
	delivery_name, delivery_phone, delivery_address, delivery_notes,
	ready_for_pickup_at, shipped_at, delivered_at,
	payout_status, payout_date, created_at, updated_at`

const historyColumns = `id, order_id, old_status, new_status, actor_id, note, created_at`

// OrderRepository handles database operations for the order aggregate
type OrderRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *database.Database, logger logger.Logger) *OrderRepository {
	return &OrderRepository{
		db:     db,
		logger: logger,
	}
}

// BeginTx starts a transaction
func (r *OrderRepository) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := r.db.DB.BeginTxx(ctx, nil)

	if err != nil {
		r.logger.Error("Failed to begin transaction", "error", err)
		return nil, classify(err)
	}

	return tx, nil
}

// CreateInTx inserts an order and its items
func (r *OrderRepository) CreateInTx(ctx context.Context, tx Tx, order *models.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES (
			:id, :order_number, :buyer_id, :seller_id, :shop_name, :seller_phone,
			:total_amount, :platform_fee_rate, :platform_fee, :seller_amount,
			:status, :payment_status, :payment_reference,
			:delivery_name, :delivery_phone, :delivery_address, :delivery_notes,
			:ready_for_pickup_at, :shipped_at, :delivered_at,
			:payout_status, :payout_date, :created_at, :updated_at
		)
	`

	if _, err := sqlx.NamedExecContext(ctx, tx, query, order); err != nil {
		r.logger.Error("Failed to create order", "error", err, "orderID", order.ID)
		return classify(err)
	}

	itemQuery := `
		INSERT INTO order_items (id, order_id, product_id, product_name, product_price, quantity, subtotal, created_at)
		VALUES (:id, :order_id, :product_id, :product_name, :product_price, :quantity, :subtotal, :created_at)
	`

	for i := range order.Items {
		if _, err := sqlx.NamedExecContext(ctx, tx, itemQuery, &order.Items[i]); err != nil {
			r.logger.Error("Failed to create order item", "error", err, "orderID", order.ID, "productID", order.Items[i].ProductID)
			return classify(err)
		}
	}

	return nil
}

// GetForUpdateInTx loads an order and row-locks it until the transaction ends
func (r *OrderRepository) GetForUpdateInTx(ctx context.Context, tx Tx, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	var order models.Order

	if err := sqlx.GetContext(ctx, tx, &order, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to lock order", "error", err, "orderID", id)
		return nil, classify(err)
	}

	items, err := r.getItems(ctx, tx, id)

	if err != nil {
		return nil, err
	}

	order.Items = items
	return &order, nil
}

// GetHistoryInTx returns the status history inside tx
func (r *OrderRepository) GetHistoryInTx(ctx context.Context, tx Tx, orderID string) ([]models.OrderStatusHistory, error) {
	return r.getHistory(ctx, tx, orderID)
}

// UpdateStatusInTx writes the lifecycle fields of order, provided its stored
// status is still expected. Returns ErrConflict when it is not.
func (r *OrderRepository) UpdateStatusInTx(ctx context.Context, tx Tx, order *models.Order, expected models.OrderStatus) error {
	query := `
		UPDATE orders
		SET status = $1, ready_for_pickup_at = $2, shipped_at = $3, delivered_at = $4,
			payout_status = $5, payout_date = $6, updated_at = $7
		WHERE id = $8 AND status = $9
	`

	result, err := tx.ExecContext(ctx, query,
		order.Status,
		order.ReadyForPickupAt,
		order.ShippedAt,
		order.DeliveredAt,
		order.PayoutStatus,
		order.PayoutDate,
		order.UpdatedAt,
		order.ID,
		expected,
	)

	if err != nil {
		r.logger.Error("Failed to update order status", "error", err, "orderID", order.ID)
		return classify(err)
	}

	rows, err := result.RowsAffected()

	if err != nil {
		return classify(err)
	}

	if rows == 0 {
		return ErrConflict
	}

	return nil
}

// AppendHistoryInTx inserts a history entry and sets its ID
func (r *OrderRepository) AppendHistoryInTx(ctx context.Context, tx Tx, entry *models.OrderStatusHistory) error {
	query := `
		INSERT INTO order_status_history (order_id, old_status, new_status, actor_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := tx.QueryRowxContext(ctx, query,
		entry.OrderID,
		entry.OldStatus,
		entry.NewStatus,
		entry.ActorID,
		entry.Note,
		entry.CreatedAt,
	).Scan(&entry.ID)

	if err != nil {
		r.logger.Error("Failed to append status history", "error", err, "orderID", entry.OrderID)
		return classify(err)
	}

	return nil
}

// GetByID retrieves an order with its items
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var order models.Order

	if err := r.db.DB.GetContext(ctx, &order, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get order by ID", "error", err, "orderID", id)
		return nil, classify(err)
	}

	items, err := r.getItems(ctx, r.db.DB, id)

	if err != nil {
		return nil, err
	}

	order.Items = items
	return &order, nil
}

// GetHistory returns the status history of an order, oldest first
func (r *OrderRepository) GetHistory(ctx context.Context, orderID string) ([]models.OrderStatusHistory, error) {
	return r.getHistory(ctx, r.db.DB, orderID)
}

// MarkPaid records the payment signal once. It reports false when the order
// was already paid.
func (r *OrderRepository) MarkPaid(ctx context.Context, id, reference string, now time.Time) (bool, error) {
	query := `
		UPDATE orders
		SET payment_status = $1, payment_reference = $2, updated_at = $3
		WHERE id = $4 AND payment_status = $5
	`

	result, err := r.db.DB.ExecContext(ctx, query,
		models.PaymentStatusPaid,
		models.StringPtr(reference),
		now,
		id,
		models.PaymentStatusUnpaid,
	)

	if err != nil {
		r.logger.Error("Failed to mark order paid", "error", err, "orderID", id)
		return false, classify(err)
	}

	rows, err := result.RowsAffected()

	if err != nil {
		return false, classify(err)
	}

	if rows > 0 {
		return true, nil
	}

	var exists bool

	if err := r.db.DB.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, id); err != nil {
		return false, classify(err)
	}

	if !exists {
		return false, ErrNotFound
	}

	return false, nil
}

// ListBySeller returns all orders of a seller, newest first
func (r *OrderRepository) ListBySeller(ctx context.Context, sellerID string) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE seller_id = $1 ORDER BY created_at DESC`

	var orders []*models.Order

	if err := r.db.DB.SelectContext(ctx, &orders, query, sellerID); err != nil {
		r.logger.Error("Failed to list seller orders", "error", err, "sellerID", sellerID)
		return nil, classify(err)
	}

	return orders, nil
}

// ListDueForPayout returns paid, delivered orders whose hold has expired but
// which are still recorded as scheduled.
func (r *OrderRepository) ListDueForPayout(ctx context.Context, now time.Time, limit int) ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1 AND payment_status = $2 AND payout_status = $3 AND payout_date <= $4
		ORDER BY payout_date ASC
		LIMIT $5
	`

	var orders []*models.Order

	err := r.db.DB.SelectContext(ctx, &orders, query,
		models.OrderStatusDelivered,
		models.PaymentStatusPaid,
		models.PayoutStatusScheduled,
		now,
		limit,
	)

	if err != nil {
		r.logger.Error("Failed to list orders due for payout", "error", err)
		return nil, classify(err)
	}

	return orders, nil
}

// MarkPayoutCompletedInTx flips a scheduled payout of a paid order to
// completed. It reports false when another worker got there first.
func (r *OrderRepository) MarkPayoutCompletedInTx(ctx context.Context, tx Tx, id string, now time.Time) (bool, error) {
	query := `
		UPDATE orders
		SET payout_status = $1, updated_at = $2
		WHERE id = $3 AND payout_status = $4 AND payment_status = $5
	`

	result, err := tx.ExecContext(ctx, query,
		models.PayoutStatusCompleted,
		now,
		id,
		models.PayoutStatusScheduled,
		models.PaymentStatusPaid,
	)

	if err != nil {
		r.logger.Error("Failed to complete payout", "error", err, "orderID", id)
		return false, classify(err)
	}

	rows, err := result.RowsAffected()

	if err != nil {
		return false, classify(err)
	}

	return rows > 0, nil
}

func (r *OrderRepository) getItems(ctx context.Context, q sqlx.QueryerContext, orderID string) ([]models.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, product_name, product_price, quantity, subtotal, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`

	var items []models.OrderItem

	if err := sqlx.SelectContext(ctx, q, &items, query, orderID); err != nil {
		r.logger.Error("Failed to get order items", "error", err, "orderID", orderID)
		return nil, classify(err)
	}

	return items, nil
}

func (r *OrderRepository) getHistory(ctx context.Context, q sqlx.QueryerContext, orderID string) ([]models.OrderStatusHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM order_status_history WHERE order_id = $1 ORDER BY created_at ASC, id ASC`

	var history []models.OrderStatusHistory

	if err := sqlx.SelectContext(ctx, q, &history, query, orderID); err != nil {
		r.logger.Error("Failed to get status history", "error", err, "orderID", orderID)
		return nil, classify(err)
	}

	return history, nil
}

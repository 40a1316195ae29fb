package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the fulfilment status of an order
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusReadyForPickup OrderStatus = "ready_for_pickup"
	OrderStatusInTransit      OrderStatus = "in_transit"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// PaymentStatus is owned by the payment provider and only moves unpaid -> paid
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
)

// PayoutStatus represents where the seller's share is in the disbursement window
type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "pending"
	PayoutStatusScheduled PayoutStatus = "scheduled"
	PayoutStatusCompleted PayoutStatus = "completed"
)

// DeliveryDetails is the recipient snapshot taken when the order is placed
type DeliveryDetails struct {
	Name    string  `db:"delivery_name" json:"name"`
	Phone   string  `db:"delivery_phone" json:"phone"`
	Address string  `db:"delivery_address" json:"address"`
	Notes   *string `db:"delivery_notes" json:"notes,omitempty"`
}

// Order represents a buyer's order from a single seller's shop.
// Amounts are in currency minor units.
type Order struct {
	ID               string          `db:"id" json:"id"`
	OrderNumber      string          `db:"order_number" json:"order_number"`
	BuyerID          string          `db:"buyer_id" json:"buyer_id"`
	SellerID         string          `db:"seller_id" json:"seller_id"`
	ShopName         string          `db:"shop_name" json:"shop_name"`
	SellerPhone      string          `db:"seller_phone" json:"-"`
	TotalAmount      int64           `db:"total_amount" json:"total_amount"`
	PlatformFeeRate  decimal.Decimal `db:"platform_fee_rate" json:"platform_fee_rate"`
	PlatformFee      int64           `db:"platform_fee" json:"platform_fee"`
	SellerAmount     int64           `db:"seller_amount" json:"seller_amount"`
	Status           OrderStatus     `db:"status" json:"status"`
	PaymentStatus    PaymentStatus   `db:"payment_status" json:"payment_status"`
	PaymentReference *string         `db:"payment_reference" json:"payment_reference,omitempty"`
	DeliveryDetails  `json:"delivery"`
	ReadyForPickupAt *time.Time   `db:"ready_for_pickup_at" json:"ready_for_pickup_at,omitempty"`
	ShippedAt        *time.Time   `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt      *time.Time   `db:"delivered_at" json:"delivered_at,omitempty"`
	PayoutStatus     PayoutStatus `db:"payout_status" json:"payout_status"`
	PayoutDate       *time.Time   `db:"payout_date" json:"payout_date,omitempty"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`

	Items []OrderItem `db:"-" json:"items,omitempty"`
}

// OrderItem is an immutable line of an order with the product snapshot at purchase time
type OrderItem struct {
	ID           string    `db:"id" json:"id"`
	OrderID      string    `db:"order_id" json:"order_id"`
	ProductID    string    `db:"product_id" json:"product_id"`
	ProductName  string    `db:"product_name" json:"product_name"`
	ProductPrice int64     `db:"product_price" json:"product_price"`
	Quantity     int       `db:"quantity" json:"quantity"`
	Subtotal     int64     `db:"subtotal" json:"subtotal"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// OrderStatusHistory is one append-only entry of an order's status chain
type OrderStatusHistory struct {
	ID        int64        `db:"id" json:"id"`
	OrderID   string       `db:"order_id" json:"order_id"`
	OldStatus *OrderStatus `db:"old_status" json:"old_status"`
	NewStatus OrderStatus  `db:"new_status" json:"new_status"`
	ActorID   *string      `db:"actor_id" json:"actor_id,omitempty"`
	Note      *string      `db:"note" json:"note,omitempty"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

// OrderAggregate is an order together with its items and status history
type OrderAggregate struct {
	Order   *Order               `json:"order"`
	History []OrderStatusHistory `json:"history"`
}

// NewOrder creates a pending, unpaid order. Money fields are filled in by the caller.
func NewOrder(buyerID, sellerID, shopName, sellerPhone string, delivery DeliveryDetails, now time.Time) *Order {
	return &Order{
		ID:              GenerateID("ord"),
		OrderNumber:     GenerateOrderNumber(now),
		BuyerID:         buyerID,
		SellerID:        sellerID,
		ShopName:        shopName,
		SellerPhone:     sellerPhone,
		Status:          OrderStatusPending,
		PaymentStatus:   PaymentStatusUnpaid,
		PayoutStatus:    PayoutStatusPending,
		DeliveryDetails: delivery,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// NewOrderItem creates an order line from a product snapshot
func NewOrderItem(orderID, productID, productName string, price int64, quantity int, now time.Time) OrderItem {
	return OrderItem{
		ID:           GenerateID("itm"),
		OrderID:      orderID,
		ProductID:    productID,
		ProductName:  productName,
		ProductPrice: price,
		Quantity:     quantity,
		Subtotal:     price * int64(quantity),
		CreatedAt:    now,
	}
}

// HasProduct reports whether any line of the order is for productID
func (o *Order) HasProduct(productID string) bool {
	for _, item := range o.Items {
		if item.ProductID == productID {
			return true
		}
	}

	return false
}

package lifecycle

import (
	"time"

	"github.com/vaidashi/marketplace-orders/internal/models"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestOrder(status models.OrderStatus) *models.Order {
	o := models.NewOrder("buyer-1", "seller-1", "Campus Kicks", "08031234567", models.DeliveryDetails{
		Name:    "Ada",
		Phone:   "08030000000",
		Address: "Hall 3, Room 12",
	}, t0)
	o.ID = "ord-1"
	o.Status = status
	o.Items = []models.OrderItem{models.NewOrderItem(o.ID, "prod-1", "Sneakers", 5000, 2, t0)}
	o.TotalAmount = 10000
	return o
}

func status(s models.OrderStatus) *models.OrderStatus {
	return &s
}

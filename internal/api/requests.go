package api

import (
	"github.com/go-playground/validator/v10"

	"github.com/vaidashi/marketplace-orders/internal/models"
	"github.com/vaidashi/marketplace-orders/internal/service"
)

type deliveryRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	Phone   string `json:"phone" validate:"required,min=7,max=20"`
	Address string `json:"address" validate:"required,max=500"`
	Notes   string `json:"notes,omitempty" validate:"max=500"`
}

type orderItemRequest struct {
	ProductID   string `json:"product_id" validate:"required"`
	ProductName string `json:"product_name" validate:"required,max=200"`
	UnitPrice   int64  `json:"unit_price" validate:"gt=0"`
	Quantity    int    `json:"quantity" validate:"min=1,max=1000"`
}

// createOrderRequest is the payload for POST /orders. Amounts are minor units.
type createOrderRequest struct {
	BuyerID     string             `json:"buyer_id" validate:"required"`
	SellerID    string             `json:"seller_id" validate:"required"`
	ShopName    string             `json:"shop_name" validate:"required,max=120"`
	SellerPhone string             `json:"seller_phone" validate:"omitempty,min=7,max=20"`
	Delivery    deliveryRequest    `json:"delivery"`
	Items       []orderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type transitionRequest struct {
	Status  string `json:"status" validate:"required"`
	ActorID string `json:"actor_id,omitempty"`
	Note    string `json:"note,omitempty" validate:"max=500"`
}

type paymentRequest struct {
	Reference string `json:"reference" validate:"required,max=100"`
}

type createReviewRequest struct {
	BuyerID   string `json:"buyer_id" validate:"required"`
	ProductID string `json:"product_id" validate:"required"`
	OrderID   string `json:"order_id" validate:"required"`
	Rating    int    `json:"rating" validate:"min=1,max=5"`
	Title     string `json:"title,omitempty" validate:"max=200"`
	Comment   string `json:"comment,omitempty" validate:"max=2000"`
}

type updateReviewRequest struct {
	BuyerID string `json:"buyer_id" validate:"required"`
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Title   string `json:"title,omitempty" validate:"max=200"`
	Comment string `json:"comment,omitempty" validate:"max=2000"`
}

type reviewResponseRequest struct {
	SellerID string `json:"seller_id" validate:"required"`
	Response string `json:"response" validate:"required,max=2000"`
}

type helpfulRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// newValidator returns a validator with the struct-level order checks registered
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(createOrderStructValidation, createOrderRequest{})
	return v
}

// createOrderStructValidation rejects self-purchases and repeated products
func createOrderStructValidation(sl validator.StructLevel) {
	req := sl.Current().Interface().(createOrderRequest)

	if req.BuyerID != "" && req.BuyerID == req.SellerID {
		sl.ReportError(req.SellerID, "seller_id", "SellerID", "not_own_shop", "")
	}

	seen := make(map[string]bool, len(req.Items))
	for _, item := range req.Items {
		if seen[item.ProductID] {
			sl.ReportError(req.Items, "items", "Items", "unique_products", item.ProductID)
			return
		}
		seen[item.ProductID] = true
	}
}

func (req createOrderRequest) toInput() service.NewOrderInput {
	items := make([]service.NewOrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, service.NewOrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
		})
	}

	return service.NewOrderInput{
		BuyerID:     req.BuyerID,
		SellerID:    req.SellerID,
		ShopName:    req.ShopName,
		SellerPhone: req.SellerPhone,
		Delivery: models.DeliveryDetails{
			Name:    req.Delivery.Name,
			Phone:   req.Delivery.Phone,
			Address: req.Delivery.Address,
			Notes:   models.StringPtr(req.Delivery.Notes),
		},
		Items: items,
	}
}

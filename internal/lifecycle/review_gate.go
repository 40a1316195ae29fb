package lifecycle

import (
	"github.com/vaidashi/marketplace-orders/internal/models"
)

// Reason explains why a review is refused
type Reason string

const (
	ReasonNotPurchased    Reason = "not_purchased"
	ReasonNotDelivered    Reason = "not_delivered"
	ReasonAlreadyReviewed Reason = "already_reviewed"
)

// Eligibility is the answer of the review gate
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   Reason `json:"reason,omitempty"`
}

// Err returns nil when eligible and an *EligibilityError otherwise
func (e Eligibility) Err() error {
	if e.Eligible {
		return nil
	}
	return &EligibilityError{Reason: e.Reason}
}

func refuse(reason Reason) Eligibility {
	return Eligibility{Eligible: false, Reason: reason}
}

// CanReview decides whether buyerID may review productID bought in orderID.
// order is nil when no such order exists; existing is the review already
// stored for the same triple, if any.
func CanReview(buyerID, productID, orderID string, order *models.Order, existing *models.Review) Eligibility {
	if order == nil || order.ID != orderID || order.BuyerID != buyerID || !order.HasProduct(productID) {
		return refuse(ReasonNotPurchased)
	}

	if order.PaymentStatus != models.PaymentStatusPaid {
		return refuse(ReasonNotPurchased)
	}

	if order.Status != models.OrderStatusDelivered {
		return refuse(ReasonNotDelivered)
	}

	if existing != nil && existing.BuyerID == buyerID && existing.ProductID == productID && existing.OrderID == orderID {
		return refuse(ReasonAlreadyReviewed)
	}

	return Eligibility{Eligible: true}
}

package lifecycle

import (
	"time"

	"github.com/vaidashi/marketplace-orders/internal/models"
)

// DefaultPayoutHold is how long funds stay held after delivery
const DefaultPayoutHold = 24 * time.Hour

// PayoutPolicy decides payout state from delivery time
type PayoutPolicy struct {
	Hold time.Duration
}

// PayoutView is the derived payout state of an order
type PayoutView struct {
	Status     models.PayoutStatus `json:"status"`
	PayoutDate *time.Time          `json:"payout_date,omitempty"`
}

// NewPayoutPolicy returns a policy with the given hold, falling back to
// DefaultPayoutHold when hold is not positive.
func NewPayoutPolicy(hold time.Duration) PayoutPolicy {
	if hold <= 0 {
		hold = DefaultPayoutHold
	}
	return PayoutPolicy{Hold: hold}
}

func (p PayoutPolicy) hold() time.Duration {
	if p.Hold <= 0 {
		return DefaultPayoutHold
	}
	return p.Hold
}

// Evaluate returns the payout state of an order at now
func (p PayoutPolicy) Evaluate(status models.OrderStatus, deliveredAt *time.Time, now time.Time) PayoutView {
	if status != models.OrderStatusDelivered || deliveredAt == nil {
		return PayoutView{Status: models.PayoutStatusPending}
	}

	due := deliveredAt.Add(p.hold())

	if now.Before(due) {
		return PayoutView{Status: models.PayoutStatusScheduled, PayoutDate: &due}
	}

	return PayoutView{Status: models.PayoutStatusCompleted, PayoutDate: &due}
}

// PayoutStatus evaluates the default 24 hour policy
func PayoutStatus(status models.OrderStatus, deliveredAt *time.Time, now time.Time) PayoutView {
	return PayoutPolicy{}.Evaluate(status, deliveredAt, now)
}

package lifecycle

import (
	"errors"
	"fmt"

	"github.com/vaidashi/marketplace-orders/internal/models"
)

var (
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrOrderNotFound       = errors.New("order not found")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrReviewNotEligible   = errors.New("review not eligible")
	ErrConcurrencyConflict = errors.New("concurrent modification of order")
	ErrUnknownStatus       = errors.New("unknown order status")
)

// InvalidTransitionError carries the rejected edge
type InvalidTransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	if IsTerminal(e.From) {
		return fmt.Sprintf("order is %s and cannot move to %s", e.From, e.To)
	}

	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// EligibilityError carries the reason a review was refused
type EligibilityError struct {
	Reason Reason
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("review not eligible: %s", e.Reason)
}

func (e *EligibilityError) Unwrap() error {
	return ErrReviewNotEligible
}

// ReasonOf returns the eligibility reason wrapped in err, if any
func ReasonOf(err error) (Reason, bool) {
	var e *EligibilityError

	if errors.As(err, &e) {
		return e.Reason, true
	}

	return "", false
}

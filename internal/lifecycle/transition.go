package lifecycle

import (
	"fmt"
	"time"

	"github.com/vaidashi/marketplace-orders/internal/models"
)

// Outcome describes an applied transition and the notifications it owes
type Outcome struct {
	OldStatus    models.OrderStatus
	NewStatus    models.OrderStatus
	Entry        models.OrderStatusHistory
	NotifyBuyer  bool
	NotifySeller bool
}

// Transition moves order to target and returns the history entry to append.
// history must be the order's existing entries in chronological order. The
// order is left untouched when an error is returned.
func Transition(order *models.Order, history []models.OrderStatusHistory, target models.OrderStatus, actor, note string, now time.Time, policy PayoutPolicy) (*Outcome, error) {
	if order == nil {
		return nil, ErrOrderNotFound
	}

	if !IsKnown(target) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, target)
	}

	from := order.Status
	if !CanTransition(from, target) {
		return nil, &InvalidTransitionError{From: from, To: target}
	}

	stamp := notBefore(now, latestStamp(order, history))

	switch target {
	case models.OrderStatusReadyForPickup:
		if order.ReadyForPickupAt == nil {
			order.ReadyForPickupAt = &stamp
		}
	case models.OrderStatusInTransit:
		if order.ShippedAt == nil {
			order.ShippedAt = &stamp
		}
	case models.OrderStatusDelivered:
		if order.DeliveredAt == nil {
			order.DeliveredAt = &stamp
		}
	}

	order.Status = target
	order.UpdatedAt = stamp

	if target == models.OrderStatusDelivered {
		view := policy.Evaluate(order.Status, order.DeliveredAt, now)
		order.PayoutStatus = view.Status
		order.PayoutDate = view.PayoutDate
	}

	old := from
	entry := models.OrderStatusHistory{
		OrderID:   order.ID,
		OldStatus: &old,
		NewStatus: target,
		ActorID:   models.StringPtr(actor),
		Note:      models.StringPtr(note),
		CreatedAt: stamp,
	}

	return &Outcome{
		OldStatus:    from,
		NewStatus:    target,
		Entry:        entry,
		NotifyBuyer:  !hasEntered(history, target),
		NotifySeller: target == models.OrderStatusProcessing && IsFirstTransitionToProcessing(history),
	}, nil
}

// IsFirstTransitionToProcessing reports whether no entry in history has
// already moved the order into processing.
func IsFirstTransitionToProcessing(history []models.OrderStatusHistory) bool {
	return !hasEntered(history, models.OrderStatusProcessing)
}

func hasEntered(history []models.OrderStatusHistory, status models.OrderStatus) bool {
	for _, h := range history {
		if h.NewStatus == status {
			return true
		}
	}

	return false
}

// latestStamp is the newest time already recorded on the aggregate
func latestStamp(order *models.Order, history []models.OrderStatusHistory) time.Time {
	latest := order.CreatedAt

	for _, ts := range []*time.Time{order.ReadyForPickupAt, order.ShippedAt, order.DeliveredAt} {
		if ts != nil && ts.After(latest) {
			latest = *ts
		}
	}

	for _, h := range history {
		if h.CreatedAt.After(latest) {
			latest = h.CreatedAt
		}
	}

	return latest
}

func notBefore(t, floor time.Time) time.Time {
	if t.Before(floor) {
		return floor
	}
	return t
}

// VerifyHistoryChain checks that entries form an unbroken chain of legal edges
func VerifyHistoryChain(history []models.OrderStatusHistory) error {
	for i, h := range history {
		if h.OldStatus == nil {
			if i != 0 {
				return fmt.Errorf("history entry %d has no previous status", i)
			}
			continue
		}

		if i > 0 && *h.OldStatus != history[i-1].NewStatus {
			return fmt.Errorf("history entry %d starts at %s, previous entry ended at %s", i, *h.OldStatus, history[i-1].NewStatus)
		}

		if !CanTransition(*h.OldStatus, h.NewStatus) {
			return &InvalidTransitionError{From: *h.OldStatus, To: h.NewStatus}
		}

		if i > 0 && h.CreatedAt.Before(history[i-1].CreatedAt) {
			return fmt.Errorf("history entry %d is older than its predecessor", i)
		}
	}

	return nil
}

// VerifyTimeline checks that the order's status agrees with its stage timestamps
func VerifyTimeline(order *models.Order) error {
	stages := []struct {
		name    string
		at      *time.Time
		reached bool
	}{
		{"ready_for_pickup_at", order.ReadyForPickupAt, reached(order.Status, models.OrderStatusReadyForPickup)},
		{"shipped_at", order.ShippedAt, reached(order.Status, models.OrderStatusInTransit)},
		{"delivered_at", order.DeliveredAt, reached(order.Status, models.OrderStatusDelivered)},
	}

	prev := order.CreatedAt
	for _, s := range stages {
		if s.reached && s.at == nil {
			return fmt.Errorf("order is %s but %s is not set", order.Status, s.name)
		}
		if !s.reached && s.at != nil {
			return fmt.Errorf("order is %s but %s is set", order.Status, s.name)
		}
		if s.at != nil {
			if s.at.Before(prev) {
				return fmt.Errorf("%s precedes the previous stage", s.name)
			}
			prev = *s.at
		}
	}

	return nil
}

// reached reports whether an order in status has passed through stage
func reached(status, stage models.OrderStatus) bool {
	if status == models.OrderStatusCancelled {
		return false
	}

	return position(status) >= position(stage)
}

func position(s models.OrderStatus) int {
	for i, st := range Statuses {
		if st == s {
			return i
		}
	}
	return -1
}

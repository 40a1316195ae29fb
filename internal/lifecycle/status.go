package lifecycle

import (
	"fmt"
	"strings"

	"github.com/vaidashi/marketplace-orders/internal/models"
)

// transitions is the pipeline. Statuses without an entry are terminal.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:        {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing:     {models.OrderStatusReadyForPickup},
	models.OrderStatusReadyForPickup: {models.OrderStatusInTransit},
	models.OrderStatusInTransit:      {models.OrderStatusDelivered},
	models.OrderStatusDelivered:      nil,
	models.OrderStatusCancelled:      nil,
}

var allowed = func() map[models.OrderStatus]map[models.OrderStatus]bool {
	m := make(map[models.OrderStatus]map[models.OrderStatus]bool, len(transitions))
	for from, targets := range transitions {
		m[from] = make(map[models.OrderStatus]bool, len(targets))
		for _, to := range targets {
			m[from][to] = true
		}
	}
	return m
}()

// Statuses lists every known status in pipeline order
var Statuses = []models.OrderStatus{
	models.OrderStatusPending,
	models.OrderStatusProcessing,
	models.OrderStatusReadyForPickup,
	models.OrderStatusInTransit,
	models.OrderStatusDelivered,
	models.OrderStatusCancelled,
}

// ParseStatus converts raw input into a known status
func ParseStatus(raw string) (models.OrderStatus, error) {
	s := models.OrderStatus(strings.ToLower(strings.TrimSpace(raw)))

	if !IsKnown(s) {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}

	return s, nil
}

// IsKnown reports whether s is part of the state machine
func IsKnown(s models.OrderStatus) bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether from -> to is a legal edge
func CanTransition(from, to models.OrderStatus) bool {
	return allowed[from][to]
}

// AllowedTargets returns the statuses reachable in one step from s
func AllowedTargets(s models.OrderStatus) []models.OrderStatus {
	targets := transitions[s]
	out := make([]models.OrderStatus, len(targets))
	copy(out, targets)
	return out
}

// IsTerminal reports whether no transition leaves s
func IsTerminal(s models.OrderStatus) bool {
	return IsKnown(s) && len(transitions[s]) == 0
}

// DisplayStatus maps a status onto the short buyer-facing vocabulary
// (pending, processing, shipped, delivered, cancelled).
func DisplayStatus(s models.OrderStatus) string {
	switch s {
	case models.OrderStatusReadyForPickup:
		return "processing"
	case models.OrderStatusInTransit:
		return "shipped"
	default:
		return string(s)
	}
}

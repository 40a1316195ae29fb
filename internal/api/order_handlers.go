package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vaidashi/marketplace-orders/internal/lifecycle"
	"github.com/vaidashi/marketplace-orders/internal/models"
	"github.com/vaidashi/marketplace-orders/pkg/retry"
)

// createOrderHandler places a new order
func (s *Server) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest

	if err := s.decodeAndValidate(r, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	order, err := s.orders.CreateOrder(r.Context(), req.toInput())

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: order})
}

// orderView is an order aggregate with the legacy display status
type orderView struct {
	*models.OrderAggregate
	DisplayStatus string `json:"display_status"`
}

func newOrderView(agg *models.OrderAggregate) orderView {
	return orderView{
		OrderAggregate: agg,
		DisplayStatus:  lifecycle.DisplayStatus(agg.Order.Status),
	}
}

// getOrderHandler returns an order with its items and status history
func (s *Server) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	agg, err := s.orders.GetOrder(r.Context(), id)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: newOrderView(agg)})
}

// updateOrderStatusHandler moves an order along its lifecycle. A transition
// that lost a race for the order row is retried before a 409 is returned.
func (s *Server) updateOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req transitionRequest

	if err := s.decodeAndValidate(r, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	var agg *models.OrderAggregate

	err := retry.Retry(r.Context(), func() error {
		var err error
		agg, err = s.orders.Transition(r.Context(), id, req.Status, req.ActorID, req.Note)
		return err
	}, &retry.RetryConfig{
		MaxAttempts:     s.transitionRetries,
		BackoffStrategy: &retry.ConstantBackoff{Interval: 50 * time.Millisecond},
		Logger:          s.logger,
		RetryIf: func(err error) bool {
			return errors.Is(err, lifecycle.ErrConcurrencyConflict)
		},
	})

	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Warn("Transition abandoned by client", "orderID", id)
		}
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: newOrderView(agg)})
}

// markPaidHandler records the payment provider's confirmation
func (s *Server) markPaidHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req paymentRequest

	if err := s.decodeAndValidate(r, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	order, err := s.orders.MarkPaid(r.Context(), id, req.Reference)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

// getPayoutHandler returns the payout state of an order
func (s *Server) getPayoutHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	view, err := s.orders.PayoutView(r.Context(), id)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: view})
}

// getSellerPayoutsHandler returns a seller's earnings per payout state
func (s *Server) getSellerPayoutsHandler(w http.ResponseWriter, r *http.Request) {
	sellerID := mux.Vars(r)["id"]

	summary, err := s.orders.SellerPayoutSummary(r.Context(), sellerID)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: summary})
}

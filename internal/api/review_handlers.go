package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vaidashi/marketplace-orders/internal/service"
	apperrors "github.com/vaidashi/marketplace-orders/pkg/errors"
)

// reviewEligibilityHandler answers whether a buyer may review a product
// bought in an order
func (s *Server) reviewEligibilityHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	buyerID, productID, orderID := q.Get("buyer_id"), q.Get("product_id"), q.Get("order_id")

	if buyerID == "" || productID == "" || orderID == "" {
		s.respondWithAppError(w, r, apperrors.NewInvalidInputError("buyer_id, product_id and order_id are required"))
		return
	}

	eligibility, err := s.reviews.CanReview(r.Context(), buyerID, productID, orderID)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: eligibility})
}

// createReviewHandler stores a review once the buyer passes the gate
func (s *Server) createReviewHandler(w http.ResponseWriter, r *http.Request) {
	var req createReviewRequest

	if err := s.decodeAndValidate(r, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	review, err := s.reviews.CreateReview(r.Context(), service.ReviewInput{
		BuyerID:   req.BuyerID,
		ProductID: req.ProductID,
		OrderID:   req.OrderID,
		Rating:    req.Rating,
		Title:     req.Title,
		Comment:   req.Comment,
	})

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: review})
}

func (s *Server) updateReviewHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req updateReviewRequest

	if err := s.decodeAndValidate(r, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	review, err := s.reviews.UpdateReview(r.Context(), id, req.BuyerID, req.Rating, req.Title, req.Comment)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: review})
}

func (s *Server) deleteReviewHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	buyerID := r.URL.Query().Get("buyer_id")

	if buyerID == "" {
		s.respondWithAppError(w, r, apperrors.NewInvalidInputError("buyer_id is required"))
		return
	}

	if err := s.reviews.DeleteReview(r.Context(), id, buyerID); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    map[string]string{"message": "Review deleted"},
	})
}

// respondToReviewHandler sets or replaces the seller's public reply
func (s *Server) respondToReviewHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req reviewResponseRequest

	if err := s.decodeAndValidate(r, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	review, err := s.reviews.RespondToReview(r.Context(), id, req.SellerID, req.Response)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: review})
}

func (s *Server) toggleHelpfulHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req helpfulRequest

	if err := s.decodeAndValidate(r, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	result, err := s.reviews.ToggleHelpful(r.Context(), id, req.UserID)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result})
}

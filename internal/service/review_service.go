package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vaidashi/marketplace-orders/internal/lifecycle"
	"github.com/vaidashi/marketplace-orders/internal/models"
	"github.com/vaidashi/marketplace-orders/internal/repository"
	"github.com/vaidashi/marketplace-orders/pkg/logger"
)

// ErrReviewNotFound also covers reviews the caller does not own
var ErrReviewNotFound = errors.New("review not found")

// ReviewStore is the persistence the review service needs
type ReviewStore interface {
	Create(ctx context.Context, review *models.Review) error
	GetByID(ctx context.Context, id string) (*models.Review, error)
	GetByTriple(ctx context.Context, buyerID, productID, orderID string) (*models.Review, error)
	Update(ctx context.Context, review *models.Review) error
	Delete(ctx context.Context, id, buyerID string) error
	SetSellerResponse(ctx context.Context, id, sellerID, response string, at time.Time) error
	ToggleHelpful(ctx context.Context, reviewID, userID string, now time.Time) (bool, int, error)
}

// OrderReader loads orders for the eligibility gate
type OrderReader interface {
	GetByID(ctx context.Context, id string) (*models.Order, error)
}

// ReviewInput is a buyer's review submission
type ReviewInput struct {
	BuyerID   string
	ProductID string
	OrderID   string
	Rating    int
	Title     string
	Comment   string
}

// HelpfulResult is the state after a helpful toggle
type HelpfulResult struct {
	Marked bool `json:"marked"`
	Count  int  `json:"helpful_count"`
}

// ReviewService gates and stores product reviews
type ReviewService struct {
	reviews ReviewStore
	orders  OrderReader
	logger  logger.Logger
	nowFunc func() time.Time
}

// NewReviewService creates a new ReviewService
func NewReviewService(reviews ReviewStore, orders OrderReader, logger logger.Logger) *ReviewService {
	return &ReviewService{
		reviews: reviews,
		orders:  orders,
		logger:  logger,
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// CanReview answers whether buyerID may review productID from orderID
func (s *ReviewService) CanReview(ctx context.Context, buyerID, productID, orderID string) (lifecycle.Eligibility, error) {
	_, eligibility, err := s.gate(ctx, buyerID, productID, orderID)
	return eligibility, err
}

func (s *ReviewService) gate(ctx context.Context, buyerID, productID, orderID string) (*models.Order, lifecycle.Eligibility, error) {
	order, err := s.orders.GetByID(ctx, orderID)

	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, lifecycle.Eligibility{}, err
	}

	existing, err := s.reviews.GetByTriple(ctx, buyerID, productID, orderID)

	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, lifecycle.Eligibility{}, err
	}

	return order, lifecycle.CanReview(buyerID, productID, orderID, order, existing), nil
}

// CreateReview stores a review once the gate allows it
func (s *ReviewService) CreateReview(ctx context.Context, in ReviewInput) (*models.Review, error) {
	if err := validateRating(in.Rating); err != nil {
		return nil, err
	}

	order, eligibility, err := s.gate(ctx, in.BuyerID, in.ProductID, in.OrderID)

	if err != nil {
		return nil, err
	}

	if err := eligibility.Err(); err != nil {
		s.logger.Info("Review refused", "buyerID", in.BuyerID, "productID", in.ProductID, "orderID", in.OrderID, "reason", eligibility.Reason)
		return nil, err
	}

	review := models.NewReview(in.ProductID, in.BuyerID, in.OrderID, order.SellerID, in.Rating,
		strings.TrimSpace(in.Title), strings.TrimSpace(in.Comment), s.nowFunc())

	if err := s.reviews.Create(ctx, review); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, &lifecycle.EligibilityError{Reason: lifecycle.ReasonAlreadyReviewed}
		}
		return nil, err
	}

	s.logger.Info("Review created", "reviewID", review.ID, "productID", review.ProductID, "rating", review.Rating)
	return review, nil
}

// UpdateReview edits a review; only its author may do so
func (s *ReviewService) UpdateReview(ctx context.Context, id, buyerID string, rating int, title, comment string) (*models.Review, error) {
	if err := validateRating(rating); err != nil {
		return nil, err
	}

	review, err := s.owned(ctx, id, func(r *models.Review) bool { return r.BuyerID == buyerID })

	if err != nil {
		return nil, err
	}

	review.Rating = rating
	review.Title = models.StringPtr(strings.TrimSpace(title))
	review.Comment = models.StringPtr(strings.TrimSpace(comment))
	review.UpdatedAt = s.nowFunc()

	if err := s.reviews.Update(ctx, review); err != nil {
		return nil, reviewErr(err)
	}

	return review, nil
}

// DeleteReview removes a review; only its author may do so
func (s *ReviewService) DeleteReview(ctx context.Context, id, buyerID string) error {
	if err := s.reviews.Delete(ctx, id, buyerID); err != nil {
		return reviewErr(err)
	}

	s.logger.Info("Review deleted", "reviewID", id, "buyerID", buyerID)
	return nil
}

// RespondToReview sets the seller's reply, replacing any earlier one
func (s *ReviewService) RespondToReview(ctx context.Context, id, sellerID, response string) (*models.Review, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return nil, fmt.Errorf("%w: response is empty", ErrInvalidInput)
	}

	review, err := s.owned(ctx, id, func(r *models.Review) bool { return r.SellerID == sellerID })

	if err != nil {
		return nil, err
	}

	now := s.nowFunc()

	if err := s.reviews.SetSellerResponse(ctx, id, sellerID, response, now); err != nil {
		return nil, reviewErr(err)
	}

	review.SellerResponse = &response
	review.SellerResponseAt = &now
	review.UpdatedAt = now

	return review, nil
}

// ToggleHelpful flips userID's helpful mark on a review
func (s *ReviewService) ToggleHelpful(ctx context.Context, id, userID string) (HelpfulResult, error) {
	marked, count, err := s.reviews.ToggleHelpful(ctx, id, userID, s.nowFunc())

	if err != nil {
		return HelpfulResult{}, reviewErr(err)
	}

	return HelpfulResult{Marked: marked, Count: count}, nil
}

func (s *ReviewService) owned(ctx context.Context, id string, owns func(*models.Review) bool) (*models.Review, error) {
	review, err := s.reviews.GetByID(ctx, id)

	if err != nil {
		return nil, reviewErr(err)
	}

	if !owns(review) {
		return nil, ErrReviewNotFound
	}

	return review, nil
}

func validateRating(rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}
	return nil
}

func reviewErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrReviewNotFound
	}
	return err
}

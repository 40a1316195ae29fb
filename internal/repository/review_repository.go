package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vaidashi/marketplace-orders/internal/database"
	"github.com/vaidashi/marketplace-orders/internal/models"
	"github.com/vaidashi/marketplace-orders/pkg/logger"
)

const reviewColumns = `
	id, product_id, buyer_id, order_id, seller_id, rating, title, comment,
	seller_response, seller_response_at, helpful_count, created_at, updated_at`

// ReviewRepository handles database operations for reviews
type ReviewRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewReviewRepository creates a new ReviewRepository
func NewReviewRepository(db *database.Database, logger logger.Logger) *ReviewRepository {
	return &ReviewRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a review. A second review for the same triple fails with ErrDuplicate.
func (r *ReviewRepository) Create(ctx context.Context, review *models.Review) error {
	query := `
		INSERT INTO reviews (` + reviewColumns + `)
		VALUES (
			:id, :product_id, :buyer_id, :order_id, :seller_id, :rating, :title, :comment,
			:seller_response, :seller_response_at, :helpful_count, :created_at, :updated_at
		)
	`

	if _, err := r.db.DB.NamedExecContext(ctx, query, review); err != nil {
		r.logger.Error("Failed to create review", "error", err, "orderID", review.OrderID, "productID", review.ProductID)
		return classify(err)
	}

	return nil
}

// GetByID retrieves a review by its ID
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (*models.Review, error) {
	return r.get(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id)
}

// GetByTriple retrieves the review a buyer left for a product of an order
func (r *ReviewRepository) GetByTriple(ctx context.Context, buyerID, productID, orderID string) (*models.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE buyer_id = $1 AND product_id = $2 AND order_id = $3`
	return r.get(ctx, query, buyerID, productID, orderID)
}

// Update rewrites the buyer-editable fields of a review owned by buyerID
func (r *ReviewRepository) Update(ctx context.Context, review *models.Review) error {
	query := `
		UPDATE reviews
		SET rating = $1, title = $2, comment = $3, updated_at = $4
		WHERE id = $5 AND buyer_id = $6
	`

	result, err := r.db.DB.ExecContext(ctx, query,
		review.Rating,
		review.Title,
		review.Comment,
		review.UpdatedAt,
		review.ID,
		review.BuyerID,
	)

	if err != nil {
		r.logger.Error("Failed to update review", "error", err, "reviewID", review.ID)
		return classify(err)
	}

	return requireRow(result)
}

// Delete removes a review owned by buyerID
func (r *ReviewRepository) Delete(ctx context.Context, id, buyerID string) error {
	result, err := r.db.DB.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1 AND buyer_id = $2`, id, buyerID)

	if err != nil {
		r.logger.Error("Failed to delete review", "error", err, "reviewID", id)
		return classify(err)
	}

	return requireRow(result)
}

// SetSellerResponse stores (or replaces) the seller's reply
func (r *ReviewRepository) SetSellerResponse(ctx context.Context, id, sellerID, response string, at time.Time) error {
	query := `
		UPDATE reviews
		SET seller_response = $1, seller_response_at = $2, updated_at = $2
		WHERE id = $3 AND seller_id = $4
	`

	result, err := r.db.DB.ExecContext(ctx, query, response, at, id, sellerID)

	if err != nil {
		r.logger.Error("Failed to store seller response", "error", err, "reviewID", id)
		return classify(err)
	}

	return requireRow(result)
}

// ToggleHelpful adds the user's helpful mark or removes it if present, and
// returns whether the mark is now set along with the new count.
func (r *ReviewRepository) ToggleHelpful(ctx context.Context, reviewID, userID string, now time.Time) (bool, int, error) {
	tx, err := r.db.DB.BeginTxx(ctx, nil)

	if err != nil {
		return false, 0, classify(err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error("Failed to rollback transaction", "error", rbErr)
			}
		}
	}()

	var locked string
	if err = tx.GetContext(ctx, &locked, `SELECT id FROM reviews WHERE id = $1 FOR UPDATE`, reviewID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
			return false, 0, err
		}
		err = classify(err)
		return false, 0, err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM review_helpful WHERE review_id = $1 AND user_id = $2`, reviewID, userID)
	if err != nil {
		err = classify(err)
		return false, 0, err
	}

	removed, err := result.RowsAffected()
	if err != nil {
		err = classify(err)
		return false, 0, err
	}

	marked := removed == 0
	if marked {
		if _, err = tx.ExecContext(ctx, `INSERT INTO review_helpful (review_id, user_id, created_at) VALUES ($1, $2, $3)`, reviewID, userID, now); err != nil {
			err = classify(err)
			return false, 0, err
		}
	}

	var count int
	err = tx.GetContext(ctx, &count, `
		UPDATE reviews
		SET helpful_count = (SELECT COUNT(*) FROM review_helpful WHERE review_id = $1)
		WHERE id = $1
		RETURNING helpful_count
	`, reviewID)
	if err != nil {
		err = classify(err)
		return false, 0, err
	}

	if err = tx.Commit(); err != nil {
		err = classify(err)
		return false, 0, err
	}

	return marked, count, nil
}

func (r *ReviewRepository) get(ctx context.Context, query string, args ...interface{}) (*models.Review, error) {
	var review models.Review

	if err := r.db.DB.GetContext(ctx, &review, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get review", "error", err)
		return nil, classify(err)
	}

	return &review, nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()

	if err != nil {
		return classify(err)
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

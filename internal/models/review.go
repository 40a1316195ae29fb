package models

import (
	"time"
)

// Review is a buyer's rating of a product bought in a specific order
type Review struct {
	ID               string     `db:"id" json:"id"`
	ProductID        string     `db:"product_id" json:"product_id"`
	BuyerID          string     `db:"buyer_id" json:"buyer_id"`
	OrderID          string     `db:"order_id" json:"order_id"`
	SellerID         string     `db:"seller_id" json:"seller_id"`
	Rating           int        `db:"rating" json:"rating"`
	Title            *string    `db:"title" json:"title,omitempty"`
	Comment          *string    `db:"comment" json:"comment,omitempty"`
	SellerResponse   *string    `db:"seller_response" json:"seller_response,omitempty"`
	SellerResponseAt *time.Time `db:"seller_response_at" json:"seller_response_at,omitempty"`
	HelpfulCount     int        `db:"helpful_count" json:"helpful_count"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// NewReview creates a review for the (product, buyer, order) triple
func NewReview(productID, buyerID, orderID, sellerID string, rating int, title, comment string, now time.Time) *Review {
	return &Review{
		ID:        GenerateID("rev"),
		ProductID: productID,
		BuyerID:   buyerID,
		OrderID:   orderID,
		SellerID:  sellerID,
		Rating:    rating,
		Title:     StringPtr(title),
		Comment:   StringPtr(comment),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

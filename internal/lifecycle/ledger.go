package lifecycle

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vaidashi/marketplace-orders/internal/models"
)

// DefaultFeeRatePercent is the platform's share of every order
var DefaultFeeRatePercent = decimal.NewFromInt(5)

var hundred = decimal.NewFromInt(100)

// Split is the division of an order total between platform and seller
type Split struct {
	PlatformFee  int64 `json:"platform_fee"`
	SellerAmount int64 `json:"seller_amount"`
}

// ComputeSplit rounds the fee half-up to the minor unit and gives the
// remainder to the seller, so the two parts always sum to total.
func ComputeSplit(total int64, feeRatePercent decimal.Decimal) (Split, error) {
	if total <= 0 {
		return Split{}, fmt.Errorf("%w: total must be positive, got %d", ErrInvalidAmount, total)
	}

	if feeRatePercent.IsNegative() || feeRatePercent.GreaterThan(hundred) {
		return Split{}, fmt.Errorf("%w: fee rate %s outside [0, 100]", ErrInvalidAmount, feeRatePercent)
	}

	fee := decimal.NewFromInt(total).Mul(feeRatePercent).Div(hundred).Round(0).IntPart()

	return Split{
		PlatformFee:  fee,
		SellerAmount: total - fee,
	}, nil
}

// SumSubtotals adds up the item subtotals
func SumSubtotals(items []models.OrderItem) int64 {
	var sum int64
	for _, item := range items {
		sum += item.Subtotal
	}
	return sum
}

// ApplyMinimumTotal raises the order total to minimum when the items fall
// short. The excess is folded into the first item's subtotal so the items
// still add up to the returned total.
func ApplyMinimumTotal(items []models.OrderItem, minimum int64) int64 {
	total := SumSubtotals(items)

	if len(items) == 0 || total >= minimum {
		return total
	}

	items[0].Subtotal += minimum - total

	return minimum
}

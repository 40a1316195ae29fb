package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vaidashi/marketplace-orders/internal/models"
)

var buyerTemplates = map[models.OrderStatus]string{
	models.OrderStatusProcessing:     "Hi %s, your order #%s from %s is now being prepared.",
	models.OrderStatusReadyForPickup: "Hi %s, your order #%s from %s is packed and ready for pickup by the rider.",
	models.OrderStatusInTransit:      "Hi %s, good news! Your order #%s from %s is on its way to you.",
	models.OrderStatusDelivered:      "Hi %s, your order #%s from %s has been delivered. We hope you enjoy your purchase!",
	models.OrderStatusCancelled:      "Hi %s, your order #%s from %s has been cancelled.",
}

// BuyerStatusMessage renders the status update sent to a buyer. It reports
// false for statuses that have no message.
func BuyerStatusMessage(n models.Notice) (string, bool) {
	tmpl, ok := buyerTemplates[n.Status]
	if !ok {
		return "", false
	}

	return fmt.Sprintf(tmpl, firstName(n.RecipientName), n.OrderNumber, n.ShopName), true
}

// SellerNewOrderMessage renders the new-order alert sent to a seller
func SellerNewOrderMessage(n models.Notice) string {
	return fmt.Sprintf("New order #%s for %s. Total %s, your earnings %s after fees. Open your seller dashboard to prepare it.",
		n.OrderNumber, n.ShopName, FormatNaira(n.TotalAmount), FormatNaira(n.SellerAmount))
}

// FormatNaira renders kobo as "NGN 4,000.00"
func FormatNaira(kobo int64) string {
	fixed := decimal.New(kobo, -2).StringFixed(2)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}

	whole, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}

	return fmt.Sprintf("NGN %s%s.%s", sign, grouped.String(), frac)
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

package notifications

import (
	"fmt"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

// Render builds the title and body shown for a notification.
func Render(kind enums.NotificationKind, trackingNumber string, data map[string]any) (string, string) {
	order := trackingNumber
	if order == "" {
		order = "your order"
	}
	switch kind {
	case enums.NotificationOrderPlaced:
		return "Order placed", fmt.Sprintf("We received order %s%s.", order, suffix(" totalling ", data["total"]))
	case enums.NotificationOrderConfirmed:
		return "Order confirmed", fmt.Sprintf("Order %s is confirmed and being prepared.", order)
	case enums.NotificationOrderShipped:
		return "Order shipped", fmt.Sprintf("Order %s is on its way.", order)
	case enums.NotificationOrderDelivered:
		return "Order delivered", fmt.Sprintf("Order %s was delivered.", order)
	case enums.NotificationOrderCanceled:
		return "Order canceled", fmt.Sprintf("Order %s was canceled%s.", order, suffix(": ", data["reason"]))
	case enums.NotificationPaymentReceived:
		return "Payment received", fmt.Sprintf("We received your payment%s for order %s.", suffix(" of ", data["amount"]), order)
	case enums.NotificationPaymentFailed:
		return "Payment failed", fmt.Sprintf("Payment for order %s did not go through. You can try again.", order)
	default:
		return "Order update", fmt.Sprintf("Order %s was updated.", order)
	}
}

func suffix(prefix string, value any) string {
	if value == nil {
		return ""
	}
	text := fmt.Sprint(value)
	if text == "" {
		return ""
	}
	return prefix + text
}

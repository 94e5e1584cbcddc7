package enums

// NotificationKind selects the template for an in-app notification.
type NotificationKind string

const (
	NotificationOrderPlaced     NotificationKind = "order_placed"
	NotificationOrderConfirmed  NotificationKind = "order_confirmed"
	NotificationOrderShipped    NotificationKind = "order_shipped"
	NotificationOrderDelivered  NotificationKind = "order_delivered"
	NotificationOrderCanceled   NotificationKind = "order_canceled"
	NotificationPaymentReceived NotificationKind = "payment_received"
	NotificationPaymentFailed   NotificationKind = "payment_failed"
)

var notificationKinds = newValueSet("notification kind",
	NotificationOrderPlaced,
	NotificationOrderConfirmed,
	NotificationOrderShipped,
	NotificationOrderDelivered,
	NotificationOrderCanceled,
	NotificationPaymentReceived,
	NotificationPaymentFailed,
)

func (n NotificationKind) IsValid() bool { return notificationKinds.contains(n) }

func ParseNotificationKind(value string) (NotificationKind, error) {
	return notificationKinds.parse(value)
}

// NotificationKindForStatus returns the customer-facing notification for an
// order entering status, and false when the status is not announced.
func NotificationKindForStatus(status OrderStatus) (NotificationKind, bool) {
	switch status {
	case OrderStatusConfirmed:
		return NotificationOrderConfirmed, true
	case OrderStatusShipped:
		return NotificationOrderShipped, true
	case OrderStatusCompleted:
		return NotificationOrderDelivered, true
	case OrderStatusCanceled:
		return NotificationOrderCanceled, true
	default:
		return "", false
	}
}

package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

// OrderCreatedEvent is emitted in the transaction that persists a new order.
type OrderCreatedEvent struct {
	OrderID        uuid.UUID           `json:"order_id"`
	TrackingNumber string              `json:"tracking_number"`
	UserID         uuid.UUID           `json:"user_id"`
	PaymentMethod  enums.PaymentMethod `json:"payment_method"`
	Subtotal       string              `json:"subtotal"`
	Tax            string              `json:"tax"`
	Shipping       string              `json:"shipping"`
	Total          string              `json:"total"`
	ItemCount      int                 `json:"item_count"`
}

// OrderStatusChangedEvent records one lifecycle transition.
type OrderStatusChangedEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	TrackingNumber string            `json:"tracking_number"`
	UserID         uuid.UUID         `json:"user_id"`
	From           enums.OrderStatus `json:"from"`
	To             enums.OrderStatus `json:"to"`
	ChangedAt      time.Time         `json:"changed_at"`
}

// OrderCanceledEvent is emitted whenever an order is canceled by its owner or an operator.
type OrderCanceledEvent struct {
	OrderID        uuid.UUID `json:"order_id"`
	TrackingNumber string    `json:"tracking_number"`
	UserID         uuid.UUID `json:"user_id"`
	CanceledAt     time.Time `json:"canceled_at"`
	Reason         string    `json:"reason,omitempty"`
}

// OrderExpiredEvent describes a pending order canceled by the expiry job.
type OrderExpiredEvent struct {
	OrderID        uuid.UUID `json:"order_id"`
	TrackingNumber string    `json:"tracking_number"`
	UserID         uuid.UUID `json:"user_id"`
	ExpiredAt      time.Time `json:"expired_at"`
	TTLHours       int       `json:"ttl_hours"`
}

// PaymentInitiatedEvent is emitted once a gateway accepted a payment attempt.
type PaymentInitiatedEvent struct {
	PaymentID     uuid.UUID           `json:"payment_id"`
	OrderID       uuid.UUID           `json:"order_id"`
	TransactionID string              `json:"transaction_id"`
	Method        enums.PaymentMethod `json:"method"`
	Amount        string              `json:"amount"`
}

// PaymentSettledEvent is emitted when a payment reaches paid.
type PaymentSettledEvent struct {
	PaymentID     uuid.UUID           `json:"payment_id"`
	OrderID       uuid.UUID           `json:"order_id"`
	UserID        uuid.UUID           `json:"user_id"`
	TransactionID string              `json:"transaction_id"`
	ExternalRef   string              `json:"external_ref,omitempty"`
	Method        enums.PaymentMethod `json:"method"`
	Amount        string              `json:"amount"`
	SettledAt     time.Time           `json:"settled_at"`
}

// PaymentFailedEvent is emitted when a payment reaches failed.
type PaymentFailedEvent struct {
	PaymentID     uuid.UUID           `json:"payment_id"`
	OrderID       uuid.UUID           `json:"order_id"`
	UserID        uuid.UUID           `json:"user_id"`
	TransactionID string              `json:"transaction_id"`
	Method        enums.PaymentMethod `json:"method"`
	Reason        string              `json:"reason"`
	FailedAt      time.Time           `json:"failed_at"`
}

// NotificationRequestedEvent asks the notification worker to store and
// deliver an in-app notification.
type NotificationRequestedEvent struct {
	UserID         uuid.UUID              `json:"user_id"`
	Kind           enums.NotificationKind `json:"kind"`
	OrderID        *uuid.UUID             `json:"order_id,omitempty"`
	TrackingNumber string                 `json:"tracking_number,omitempty"`
	Data           map[string]any         `json:"data,omitempty"`
}

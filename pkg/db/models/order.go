package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

// Order is the durable purchase record. Totals are frozen at creation and the
// row is never deleted; cancellation is a status.
type Order struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TrackingNumber      string              `gorm:"column:tracking_number;not null;uniqueIndex"`
	UserID              uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	Status              enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentStatus       enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	PaymentMethod       enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null"`
	Subtotal            decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Tax                 decimal.Decimal     `gorm:"column:tax;type:numeric(12,2);not null"`
	Shipping            decimal.Decimal     `gorm:"column:shipping;type:numeric(12,2);not null"`
	Total               decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	Currency            string              `gorm:"column:currency;not null;default:'USD'"`
	ShippingAddress     string              `gorm:"column:shipping_address;not null"`
	BillingAddress      *string             `gorm:"column:billing_address"`
	Notes               *string             `gorm:"column:notes"`
	ShippedAt           *time.Time          `gorm:"column:shipped_at"`
	DeliveredAt         *time.Time          `gorm:"column:delivered_at"`
	CanceledAt          *time.Time          `gorm:"column:canceled_at"`
	EstimatedDeliveryAt *time.Time          `gorm:"column:estimated_delivery_at"`
	Items               []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payments            []Payment           `gorm:"foreignKey:OrderID"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

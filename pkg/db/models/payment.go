package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

// Payment is one attempt to settle an order. Retries create new rows; at most
// one row per order ever reaches paid.
type Payment struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null"`
	Method        enums.PaymentMethod `gorm:"column:method;type:payment_method;not null"`
	TransactionID string              `gorm:"column:transaction_id;not null;uniqueIndex"`
	ExternalRef   *string             `gorm:"column:external_ref;uniqueIndex"`
	Status        enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	Amount        decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	FailureReason *string             `gorm:"column:failure_reason"`
	RedirectURL   *string             `gorm:"column:redirect_url"`
	RawResponse   json.RawMessage     `gorm:"column:raw_response;type:jsonb"`
	ProcessedAt   *time.Time          `gorm:"column:processed_at"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

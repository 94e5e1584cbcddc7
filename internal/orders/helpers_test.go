package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

type orderSeed struct {
	userID        uuid.UUID
	status        enums.OrderStatus
	paymentStatus enums.PaymentStatus
	createdAt     time.Time
	items         []models.OrderItem
}

func seedOrder(t *testing.T, db *gorm.DB, seed orderSeed) *models.Order {
	t.Helper()
	if seed.userID == uuid.Nil {
		seed.userID = uuid.New()
	}
	if seed.status == "" {
		seed.status = enums.OrderStatusPending
	}
	if seed.paymentStatus == "" {
		seed.paymentStatus = enums.PaymentStatusPending
	}
	if seed.createdAt.IsZero() {
		seed.createdAt = time.Now().UTC()
	}
	order := &models.Order{
		TrackingNumber:  NewTrackingNumber(seed.createdAt),
		UserID:          seed.userID,
		Status:          seed.status,
		PaymentStatus:   seed.paymentStatus,
		PaymentMethod:   enums.PaymentMethodCOD,
		Subtotal:        decimal.RequireFromString("10.00"),
		Tax:             decimal.RequireFromString("1.00"),
		Shipping:        decimal.RequireFromString("25.00"),
		Total:           decimal.RequireFromString("36.00"),
		Currency:        "USD",
		ShippingAddress: "1 Main St",
		Items:           seed.items,
		CreatedAt:       seed.createdAt,
		UpdatedAt:       seed.createdAt,
	}
	require.NoError(t, NewRepository(db).Create(context.Background(), order))
	return order
}

func seedStock(t *testing.T, db *gorm.DB, productID uuid.UUID, variant string, available, reserved int) {
	t.Helper()
	require.NoError(t, db.Create(&models.InventoryItem{
		ID:           uuid.New(),
		ProductID:    productID,
		VariantKey:   variant,
		AvailableQty: available,
		ReservedQty:  reserved,
	}).Error)
}

func item(productID uuid.UUID, variant string, qty int) models.OrderItem {
	return models.OrderItem{
		ProductID:   productID,
		ProductName: "Tee",
		VariantKey:  variant,
		Quantity:    qty,
		UnitPrice:   decimal.RequireFromString("5.00"),
		LineTotal:   decimal.RequireFromString("5.00").Mul(decimal.NewFromInt(int64(qty))),
	}
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem is the stock row for one (product, variant) pair; the bare
// product is variant "". Both counters are held non-negative by CHECK
// constraints.
type InventoryItem struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID    uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:inventory_items_product_variant,priority:1"`
	VariantKey   string    `gorm:"column:variant_key;not null;default:'';uniqueIndex:inventory_items_product_variant,priority:2"`
	AvailableQty int       `gorm:"column:available_qty;not null"`
	ReservedQty  int       `gorm:"column:reserved_qty;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryItem) TableName() string { return "inventory_items" }

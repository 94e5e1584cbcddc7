package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

// StockRef addresses one stock-keeping row: a product plus an optional variant.
type StockRef struct {
	ProductID  uuid.UUID
	VariantKey string
}

// Reservation records a successful decrement so it can be mirrored by Release.
type Reservation struct {
	Ref      StockRef
	Quantity int
}

// Request asks for qty units of ref.
type Request struct {
	Ref      StockRef
	Quantity int
}

// Ledger owns available/reserved counts. Reserve and Release run on the
// caller's transaction so they commit or roll back with the order.
type Ledger struct {
	db *gorm.DB
}

// NewLedger binds the ledger to a connection used for read-only checks.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Reserve decrements available stock with a single conditional update. Zero
// affected rows means the row is missing or short, so the caller gets
// INSUFFICIENT_STOCK and nothing is written.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, ref StockRef, qty int) (*Reservation, error) {
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}

	res := tx.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("product_id = ? AND variant_key = ? AND available_qty >= ?", ref.ProductID, ref.VariantKey, qty).
		Updates(map[string]any{
			"available_qty": gorm.Expr("available_qty - ?", qty),
			"reserved_qty":  gorm.Expr("reserved_qty + ?", qty),
		})
	if res.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve inventory")
	}
	if res.RowsAffected == 0 {
		return nil, InsufficientStock(ref, qty)
	}
	return &Reservation{Ref: ref, Quantity: qty}, nil
}

// ReserveAll reserves every request in order and stops at the first failure.
// Partial decrements are undone by rolling back tx.
func (l *Ledger) ReserveAll(ctx context.Context, tx *gorm.DB, requests []Request) ([]Reservation, error) {
	out := make([]Reservation, 0, len(requests))
	for _, req := range requests {
		reservation, err := l.Reserve(ctx, tx, req.Ref, req.Quantity)
		if err != nil {
			return nil, err
		}
		out = append(out, *reservation)
	}
	return out, nil
}

// Release returns qty units to available stock. It mirrors a prior Reserve.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, ref StockRef, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}

	res := tx.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("product_id = ? AND variant_key = ?", ref.ProductID, ref.VariantKey).
		Updates(map[string]any{
			"available_qty": gorm.Expr("available_qty + ?", qty),
			"reserved_qty":  gorm.Expr("CASE WHEN reserved_qty >= ? THEN reserved_qty - ? ELSE 0 END", qty, qty),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release inventory")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "inventory row not found").
			WithDetails(refDetails(ref))
	}
	return nil
}

// Available returns the current available quantity, zero when no row exists.
// It is advisory; Reserve remains the authority.
func (l *Ledger) Available(ctx context.Context, ref StockRef) (int, error) {
	var item models.InventoryItem
	err := l.db.WithContext(ctx).
		Where("product_id = ? AND variant_key = ?", ref.ProductID, ref.VariantKey).
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
	}
	return item.AvailableQty, nil
}

// InsufficientStock builds the typed error naming the short item.
func InsufficientStock(ref StockRef, requested int) error {
	details := refDetails(ref)
	details["requested"] = requested
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("insufficient stock for product %s", ref.ProductID)).
		WithDetails(details)
}

func refDetails(ref StockRef) map[string]any {
	details := map[string]any{"product_id": ref.ProductID.String()}
	if ref.VariantKey != "" {
		details["variant"] = ref.VariantKey
	}
	return details
}

package orders

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/internal/inventory"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

// InventoryReleaser returns reserved stock when an order is canceled.
type InventoryReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, ref inventory.StockRef, qty int) error
}

// entryEffect runs when an order enters a status and returns the extra
// columns to persist alongside the status change.
type entryEffect func(ctx context.Context, m *Machine, tx *gorm.DB, order *models.Order, now time.Time) (map[string]any, error)

type rule struct {
	next    []enums.OrderStatus
	onEnter entryEffect
}

// transitionTable is the only place order lifecycle rules live.
var transitionTable = map[enums.OrderStatus]rule{
	enums.OrderStatusPending: {
		next: []enums.OrderStatus{enums.OrderStatusConfirmed, enums.OrderStatusCanceled},
	},
	enums.OrderStatusConfirmed: {
		next: []enums.OrderStatus{enums.OrderStatusShipped, enums.OrderStatusCanceled},
	},
	enums.OrderStatusShipped: {
		next:    []enums.OrderStatus{enums.OrderStatusCompleted},
		onEnter: enterShipped,
	},
	enums.OrderStatusCompleted: {
		onEnter: enterCompleted,
	},
	enums.OrderStatusCanceled: {
		onEnter: enterCanceled,
	},
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range transitionTable[from].next {
		if candidate == to {
			return true
		}
	}
	return false
}

// AllowedTransitions lists the statuses reachable from from.
func AllowedTransitions(from enums.OrderStatus) []enums.OrderStatus {
	next := transitionTable[from].next
	out := make([]enums.OrderStatus, len(next))
	copy(out, next)
	return out
}

// InvalidTransition is returned for any edge missing from the table.
func InvalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "invalid status transition").
		WithDetails(map[string]any{"from": from, "to": to})
}

// Transition records one status change.
type Transition struct {
	From enums.OrderStatus
	To   enums.OrderStatus
	At   time.Time
}

// Machine applies lifecycle transitions and their entry side effects.
type Machine struct {
	repo             Repository
	inventory        InventoryReleaser
	deliveryEstimate time.Duration
	now              func() time.Time
}

// NewMachine wires the state machine. deliveryEstimate is the window stamped
// on orders as they ship.
func NewMachine(repo Repository, inventory InventoryReleaser, deliveryEstimate time.Duration) (*Machine, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory releaser required")
	}
	if deliveryEstimate <= 0 {
		deliveryEstimate = 72 * time.Hour
	}
	return &Machine{
		repo:             repo,
		inventory:        inventory,
		deliveryEstimate: deliveryEstimate,
		now:              func() time.Time { return time.Now().UTC() },
	}, nil
}

// Transition moves order to status to within tx. The write is conditional on
// the status the caller loaded, so a concurrent transition makes this one
// fail instead of overwriting it. order is updated in place on success.
func (m *Machine) Transition(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus) (*Transition, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").
			WithDetails(map[string]any{"status": to})
	}
	from := order.Status
	if !CanTransition(from, to) {
		return nil, InvalidTransition(from, to)
	}

	now := m.now()
	updates := map[string]any{}
	if effect := transitionTable[to].onEnter; effect != nil {
		extra, err := effect(ctx, m, tx, order, now)
		if err != nil {
			return nil, err
		}
		for k, v := range extra {
			updates[k] = v
		}
	}

	if err := m.repo.WithTx(tx).TransitionStatus(ctx, order.ID, from, to, updates); err != nil {
		return nil, err
	}

	order.Status = to
	applyTimestamps(order, updates)
	return &Transition{From: from, To: to, At: now}, nil
}

func enterShipped(_ context.Context, m *Machine, _ *gorm.DB, _ *models.Order, now time.Time) (map[string]any, error) {
	eta := now.Add(m.deliveryEstimate)
	return map[string]any{
		"shipped_at":            now,
		"estimated_delivery_at": eta,
	}, nil
}

func enterCompleted(_ context.Context, _ *Machine, _ *gorm.DB, _ *models.Order, now time.Time) (map[string]any, error) {
	return map[string]any{"delivered_at": now}, nil
}

func enterCanceled(ctx context.Context, m *Machine, tx *gorm.DB, order *models.Order, now time.Time) (map[string]any, error) {
	items := order.Items
	if len(items) == 0 {
		loaded, err := m.repo.WithTx(tx).Items(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		items = loaded
	}
	for _, item := range items {
		ref := inventory.StockRef{ProductID: item.ProductID, VariantKey: item.VariantKey}
		if err := m.inventory.Release(ctx, tx, ref, item.Quantity); err != nil {
			return nil, err
		}
	}
	return map[string]any{"canceled_at": now}, nil
}

func applyTimestamps(order *models.Order, updates map[string]any) {
	for key, value := range updates {
		ts, ok := value.(time.Time)
		if !ok {
			continue
		}
		ts = ts.UTC()
		switch key {
		case "shipped_at":
			order.ShippedAt = &ts
		case "estimated_delivery_at":
			order.EstimatedDeliveryAt = &ts
		case "delivered_at":
			order.DeliveredAt = &ts
		case "canceled_at":
			order.CanceledAt = &ts
		}
	}
}

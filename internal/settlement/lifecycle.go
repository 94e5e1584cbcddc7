package settlement

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/internal/notifications"
	"github.com/angelmondragon/settlement-engine/internal/payments"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/outbox/payloads"
)

// CancelOrderInput cancels an order on behalf of its owner or an operator.
type CancelOrderInput struct {
	Actor   Actor
	OrderID uuid.UUID
	Reason  string
}

// CancelOrder moves the order to canceled, which returns its stock, and fails
// every payment still pending for it.
func (c *Coordinator) CancelOrder(ctx context.Context, in CancelOrderInput) (*models.Order, error) {
	if err := in.Actor.validate(); err != nil {
		return nil, err
	}

	var order *models.Order
	var notes []notifications.Request
	err := c.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = c.orders.WithTx(tx).FindByIDForUpdate(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if err := in.Actor.canAccess(order); err != nil {
			return err
		}
		notes, err = c.cancelLocked(ctx, tx, in.Actor, order, strings.TrimSpace(in.Reason))
		return err
	})
	if err != nil {
		return nil, err
	}

	c.logg.Info(c.logg.WithOrderID(ctx, order.ID.String()), "order canceled")
	c.notify(ctx, notes)
	return c.orders.FindByID(ctx, order.ID)
}

func (c *Coordinator) cancelLocked(ctx context.Context, tx *gorm.DB, actor Actor, order *models.Order, reason string) ([]notifications.Request, error) {
	transition, err := c.machine.Transition(ctx, tx, order, enums.OrderStatusCanceled)
	if err != nil {
		return nil, err
	}
	if _, err := c.payments.WithTx(tx).FailPendingForOrder(ctx, order.ID, payments.ReasonOrderCanceled, transition.At); err != nil {
		return nil, err
	}
	if err := c.emitOrder(ctx, tx, actor, order, enums.EventOrderCanceled, payloads.OrderCanceledEvent{
		OrderID:        order.ID,
		TrackingNumber: order.TrackingNumber,
		UserID:         order.UserID,
		CanceledAt:     transition.At,
		Reason:         reason,
	}); err != nil {
		return nil, err
	}
	data := map[string]any{"status": order.Status}
	if reason != "" {
		data["reason"] = reason
	}
	return []notifications.Request{orderNotification(order, enums.NotificationOrderCanceled, data)}, nil
}

// UpdateOrderStatusInput is an operator-driven lifecycle change.
type UpdateOrderStatusInput struct {
	Actor   Actor
	OrderID uuid.UUID
	Status  enums.OrderStatus
}

// UpdateOrderStatus applies one transition of the lifecycle table. Moving to
// canceled takes the same path as CancelOrder.
func (c *Coordinator) UpdateOrderStatus(ctx context.Context, in UpdateOrderStatusInput) (*models.Order, error) {
	if err := in.Actor.requireOperator(); err != nil {
		return nil, err
	}
	if !in.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").
			WithDetails(map[string]any{"status": in.Status})
	}
	if in.Status == enums.OrderStatusCanceled {
		return c.CancelOrder(ctx, CancelOrderInput{Actor: in.Actor, OrderID: in.OrderID})
	}

	var order *models.Order
	var notes []notifications.Request
	err := c.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = c.orders.WithTx(tx).FindByIDForUpdate(ctx, in.OrderID)
		if err != nil {
			return err
		}
		transition, err := c.machine.Transition(ctx, tx, order, in.Status)
		if err != nil {
			return err
		}
		if err := c.emitTransition(ctx, tx, in.Actor, order, transition); err != nil {
			return err
		}
		notes = statusNotification(order)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"status":   order.Status,
	}), "order status updated")
	c.notify(ctx, notes)
	return c.orders.FindByID(ctx, order.ID)
}

// ExpireOrder cancels an order left pending and unpaid past ttl. It reports
// false when the order no longer qualifies.
func (c *Coordinator) ExpireOrder(ctx context.Context, orderID uuid.UUID, ttl time.Duration) (bool, error) {
	var notes []notifications.Request
	expired := false
	err := c.db.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := c.orders.WithTx(tx).FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusPending || order.PaymentStatus == enums.PaymentStatusPaid {
			return nil
		}
		if c.now().Sub(order.CreatedAt) < ttl {
			return nil
		}
		paid, err := c.payments.WithTx(tx).HasPaid(ctx, order.ID, uuid.Nil)
		if err != nil || paid {
			return err
		}

		transition, err := c.machine.Transition(ctx, tx, order, enums.OrderStatusCanceled)
		if err != nil {
			return err
		}
		if _, err := c.payments.WithTx(tx).FailPendingForOrder(ctx, order.ID, payments.ReasonExpired, transition.At); err != nil {
			return err
		}
		if err := c.emitOrder(ctx, tx, System, order, enums.EventOrderExpired, payloads.OrderExpiredEvent{
			OrderID:        order.ID,
			TrackingNumber: order.TrackingNumber,
			UserID:         order.UserID,
			ExpiredAt:      transition.At,
			TTLHours:       int(ttl / time.Hour),
		}); err != nil {
			return err
		}
		notes = []notifications.Request{orderNotification(order, enums.NotificationOrderCanceled, map[string]any{
			"status": order.Status,
			"reason": payments.ReasonExpired,
		})}
		expired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired {
		c.logg.Info(c.logg.WithOrderID(ctx, orderID.String()), "pending order expired")
		c.notify(ctx, notes)
	}
	return expired, nil
}

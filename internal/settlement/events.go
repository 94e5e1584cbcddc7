package settlement

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/internal/notifications"
	"github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/outbox"
	"github.com/angelmondragon/settlement-engine/pkg/outbox/payloads"
)

func (c *Coordinator) emitOrder(ctx context.Context, tx *gorm.DB, actor Actor, order *models.Order, eventType enums.OutboxEventType, data any) error {
	return c.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor.ref(),
		Data:          data,
	})
}

func (c *Coordinator) emitPayment(ctx context.Context, tx *gorm.DB, actor Actor, payment *models.Payment, eventType enums.OutboxEventType, data any) error {
	return c.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         actor.ref(),
		Data:          data,
	})
}

func (c *Coordinator) emitTransition(ctx context.Context, tx *gorm.DB, actor Actor, order *models.Order, t *orders.Transition) error {
	return c.emitOrder(ctx, tx, actor, order, enums.EventOrderStatusChanged, payloads.OrderStatusChangedEvent{
		OrderID:        order.ID,
		TrackingNumber: order.TrackingNumber,
		UserID:         order.UserID,
		From:           t.From,
		To:             t.To,
		ChangedAt:      t.At,
	})
}

func (c *Coordinator) emitSettled(ctx context.Context, tx *gorm.DB, actor Actor, order *models.Order, payment *models.Payment, at time.Time) error {
	data := payloads.PaymentSettledEvent{
		PaymentID:     payment.ID,
		OrderID:       order.ID,
		UserID:        order.UserID,
		TransactionID: payment.TransactionID,
		Method:        payment.Method,
		Amount:        payment.Amount.StringFixed(2),
		SettledAt:     at,
	}
	if payment.ExternalRef != nil {
		data.ExternalRef = *payment.ExternalRef
	}
	return c.emitPayment(ctx, tx, actor, payment, enums.EventPaymentSettled, data)
}

func (c *Coordinator) emitFailed(ctx context.Context, tx *gorm.DB, actor Actor, order *models.Order, payment *models.Payment, reason string, at time.Time) error {
	return c.emitPayment(ctx, tx, actor, payment, enums.EventPaymentFailed, payloads.PaymentFailedEvent{
		PaymentID:     payment.ID,
		OrderID:       order.ID,
		UserID:        order.UserID,
		TransactionID: payment.TransactionID,
		Method:        payment.Method,
		Reason:        reason,
		FailedAt:      at,
	})
}

func orderNotification(order *models.Order, kind enums.NotificationKind, data map[string]any) notifications.Request {
	orderID := order.ID
	return notifications.Request{
		UserID:         order.UserID,
		Kind:           kind,
		OrderID:        &orderID,
		TrackingNumber: order.TrackingNumber,
		Data:           data,
	}
}

// statusNotification returns the notification announcing order's new status, if any.
func statusNotification(order *models.Order) []notifications.Request {
	kind, ok := enums.NotificationKindForStatus(order.Status)
	if !ok {
		return nil
	}
	return []notifications.Request{orderNotification(order, kind, map[string]any{"status": order.Status})}
}

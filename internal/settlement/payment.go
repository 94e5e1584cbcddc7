package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/internal/notifications"
	"github.com/angelmondragon/settlement-engine/internal/payments"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/metrics"
	"github.com/angelmondragon/settlement-engine/pkg/outbox/payloads"
)

// InitiatePaymentInput opens, or retries, payment for an order. Method
// defaults to the order's chosen method; a different one replaces it.
type InitiatePaymentInput struct {
	Actor     Actor
	OrderID   uuid.UUID
	Method    enums.PaymentMethod
	ReturnURL string
	ClientIP  string
}

// InitiatePaymentResult is the stored attempt and where to send the client.
type InitiatePaymentResult struct {
	Order       *models.Order
	Payment     *models.Payment
	RedirectURL *string
}

// InitiatePayment persists a pending payment before any network call, then
// asks the gateway to open it. The gateway call runs outside any transaction
// and is bounded by the initiate timeout.
func (c *Coordinator) InitiatePayment(ctx context.Context, in InitiatePaymentInput) (*InitiatePaymentResult, error) {
	if err := in.Actor.validate(); err != nil {
		return nil, err
	}
	if in.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	var (
		order   *models.Order
		payment *models.Payment
		reused  bool
	)
	err := c.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = c.orders.WithTx(tx).FindByIDForUpdate(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if err := in.Actor.canAccess(order); err != nil {
			return err
		}
		if in.Method == "" {
			in.Method = order.PaymentMethod
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment can only be initiated for pending orders").
				WithDetails(map[string]any{"status": order.Status})
		}
		if _, err := c.gateways.Gateway(in.Method); err != nil {
			return err
		}
		paymentRepo := c.payments.WithTx(tx)
		paid, err := paymentRepo.HasPaid(ctx, order.ID, uuid.Nil)
		if err != nil {
			return err
		}
		if paid || order.PaymentStatus == enums.PaymentStatusPaid {
			return payments.CheckInitiate(order, order.Total, paid)
		}
		if in.Method != order.PaymentMethod {
			if err := c.orders.WithTx(tx).SetPaymentMethod(ctx, order.ID, in.Method); err != nil {
				return err
			}
			order.PaymentMethod = in.Method
		}

		if in.Method == enums.PaymentMethodCOD {
			existing, err := paymentRepo.FindPendingForUpdate(ctx, order.ID, enums.PaymentMethodCOD)
			switch {
			case err == nil:
				payment, reused = existing, true
				return payments.CheckInitiate(order, existing.Amount, paid)
			case !pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
				return err
			}
		}

		payment = &models.Payment{
			OrderID:       order.ID,
			Method:        in.Method,
			TransactionID: payments.NewTransactionID(),
			Status:        enums.PaymentStatusPending,
			Amount:        order.Total,
		}
		if err := payments.CheckInitiate(order, payment.Amount, paid); err != nil {
			return err
		}
		if err := paymentRepo.Create(ctx, payment); err != nil {
			return err
		}
		if order.PaymentStatus == enums.PaymentStatusFailed {
			// A retry after a decline reopens the order for payment.
			if err := c.orders.WithTx(tx).UpdatePaymentStatus(ctx, order.ID, enums.PaymentStatusPending); err != nil {
				return err
			}
			order.PaymentStatus = enums.PaymentStatusPending
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = c.logg.WithFields(ctx, map[string]any{
		"order_id":       order.ID.String(),
		"transaction_id": payment.TransactionID,
		"method":         payment.Method,
	})
	if reused {
		c.logg.Info(ctx, "reusing pending cod payment")
		return &InitiatePaymentResult{Order: order, Payment: payment}, nil
	}

	gateway, err := c.gateways.Gateway(payment.Method)
	if err != nil {
		return nil, err
	}
	returnURL := in.ReturnURL
	if returnURL == "" {
		returnURL = c.returnURL(string(payment.Method))
	}

	callCtx, cancel := context.WithTimeout(ctx, c.initiateTimeout)
	started := time.Now()
	intent, callErr := gateway.Initiate(callCtx, payments.InitiateRequest{
		Order:         order,
		Amount:        payment.Amount,
		TransactionID: payment.TransactionID,
		ReturnURL:     returnURL,
		ClientIP:      in.ClientIP,
	})
	cancel()
	c.metrics.ObserveInitiate(string(payment.Method), time.Since(started), callErr)

	if callErr != nil {
		c.logg.Error(ctx, "payment initiation failed", callErr)
		if err := c.failInitiated(ctx, in.Actor, order, payment); err != nil {
			c.logg.Error(ctx, "failed to record initiation failure", err)
		}
		if pkgerrors.IsCode(callErr, pkgerrors.CodePaymentGateway) ||
			pkgerrors.IsCode(callErr, pkgerrors.CodeValidation) ||
			pkgerrors.IsCode(callErr, pkgerrors.CodeStateConflict) {
			return nil, callErr
		}
		return nil, payments.GatewayError(payment.Method, callErr, "payment gateway unavailable")
	}

	var notes []notifications.Request
	err = c.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := c.payments.WithTx(tx).RecordIntent(ctx, payment.ID, intent.ExternalRef, intent.RedirectURL, intent.Raw); err != nil {
			return err
		}
		payment.ExternalRef = intent.ExternalRef
		payment.RedirectURL = intent.RedirectURL
		payment.RawResponse = intent.Raw

		if err := c.emitPayment(ctx, tx, in.Actor, payment, enums.EventPaymentInitiated, payloads.PaymentInitiatedEvent{
			PaymentID:     payment.ID,
			OrderID:       order.ID,
			TransactionID: payment.TransactionID,
			Method:        payment.Method,
			Amount:        payment.Amount.StringFixed(2),
		}); err != nil {
			return err
		}
		if !intent.ConfirmOrder {
			return nil
		}

		locked, err := c.orders.WithTx(tx).FindByIDForUpdate(ctx, order.ID)
		if err != nil {
			return err
		}
		if locked.Status != enums.OrderStatusPending {
			return nil
		}
		transition, err := c.machine.Transition(ctx, tx, locked, enums.OrderStatusConfirmed)
		if err != nil {
			return err
		}
		if err := c.emitTransition(ctx, tx, in.Actor, locked, transition); err != nil {
			return err
		}
		order = locked
		notes = statusNotification(locked)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logg.Info(ctx, "payment initiated")
	c.notify(ctx, notes)
	return &InitiatePaymentResult{Order: order, Payment: payment, RedirectURL: payment.RedirectURL}, nil
}

func (c *Coordinator) failInitiated(ctx context.Context, actor Actor, order *models.Order, payment *models.Payment) error {
	now := c.now()
	reason := payments.ReasonInitiateFailed
	return c.db.WithTx(ctx, func(tx *gorm.DB) error {
		err := c.payments.WithTx(tx).Settle(ctx, payment.ID, payments.Settlement{
			Status:        enums.PaymentStatusFailed,
			FailureReason: &reason,
			ProcessedAt:   now,
		})
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			// A callback settled it first.
			return nil
		}
		if err != nil {
			return err
		}
		payment.Status = enums.PaymentStatusFailed
		payment.FailureReason = &reason
		payment.ProcessedAt = &now
		return c.emitFailed(ctx, tx, actor, order, payment, reason, now)
	})
}

// ConfirmCODInput identifies the order whose cash was collected.
type ConfirmCODInput struct {
	Actor   Actor
	OrderID uuid.UUID
}

// ConfirmCODPayment records that cash was collected for a COD order. The
// order's fulfillment status is left alone. Confirming twice returns the paid
// payment again.
func (c *Coordinator) ConfirmCODPayment(ctx context.Context, in ConfirmCODInput) (*models.Payment, error) {
	if err := in.Actor.requireOperator(); err != nil {
		return nil, err
	}

	var (
		payment *models.Payment
		notes   []notifications.Request
	)
	err := c.db.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := c.orders.WithTx(tx).FindByIDForUpdate(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if order.PaymentMethod != enums.PaymentMethodCOD {
			return pkgerrors.New(pkgerrors.CodeValidation, "order is not cash on delivery").
				WithDetails(map[string]any{"payment_method": order.PaymentMethod})
		}
		if order.Status == enums.OrderStatusCanceled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is canceled").
				WithDetails(map[string]any{"status": order.Status})
		}

		paymentRepo := c.payments.WithTx(tx)
		if order.PaymentStatus == enums.PaymentStatusPaid {
			payment, err = paidPayment(ctx, paymentRepo, order.ID)
			return err
		}
		payment, err = paymentRepo.FindPendingForUpdate(ctx, order.ID, enums.PaymentMethodCOD)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "no pending cash on delivery payment")
			}
			return err
		}

		now := c.now()
		if err := paymentRepo.Settle(ctx, payment.ID, payments.Settlement{
			Status:      enums.PaymentStatusPaid,
			ProcessedAt: now,
		}); err != nil {
			return err
		}
		payment.Status = enums.PaymentStatusPaid
		payment.ProcessedAt = &now
		if err := c.orders.WithTx(tx).UpdatePaymentStatus(ctx, order.ID, enums.PaymentStatusPaid); err != nil {
			return err
		}
		if err := c.emitSettled(ctx, tx, in.Actor, order, payment, now); err != nil {
			return err
		}
		notes = []notifications.Request{orderNotification(order, enums.NotificationPaymentReceived, map[string]any{
			"amount": payment.Amount.StringFixed(2),
			"method": payment.Method,
		})}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.metrics.IncReconcile(string(enums.PaymentMethodCOD), metrics.OutcomePaid)
	c.logg.Info(c.logg.WithOrderID(ctx, in.OrderID.String()), "cod payment confirmed")
	c.notify(ctx, notes)
	return payment, nil
}

func paidPayment(ctx context.Context, repo payments.Repository, orderID uuid.UUID) (*models.Payment, error) {
	rows, err := repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].Status == enums.PaymentStatusPaid {
			return &rows[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "paid payment not found")
}

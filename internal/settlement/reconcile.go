package settlement

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/internal/notifications"
	"github.com/angelmondragon/settlement-engine/internal/payments"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/metrics"
)

// ReconcileResult describes what a verified callback did.
type ReconcileResult struct {
	Outcome       string
	PaymentID     uuid.UUID
	OrderID       uuid.UUID
	TransactionID string
	Status        enums.PaymentStatus
}

// Reconcile verifies a gateway callback and applies its outcome. A callback
// that fails verification changes nothing. Callbacks for payments that are
// already terminal are acknowledged as no-ops, so replays are harmless.
func (c *Coordinator) Reconcile(ctx context.Context, method enums.PaymentMethod, cb payments.Callback) (*ReconcileResult, error) {
	ctx = c.logg.WithFields(ctx, map[string]any{
		"method": method,
		"source": cb.Source,
	})
	gateway, err := c.gateways.Gateway(method)
	if err != nil {
		return nil, err
	}

	verified, err := gateway.VerifyCallback(ctx, cb)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeSignature) {
			c.metrics.IncSignatureFailure(string(method))
			c.logg.Security(ctx, "payment_signature_invalid", map[string]any{"reason": err.Error()})
		}
		return nil, err
	}
	ctx = c.logg.WithField(ctx, "transaction_id", verified.TransactionID)

	var (
		result *ReconcileResult
		notes  []notifications.Request
	)
	err = c.db.WithTx(ctx, func(tx *gorm.DB) error {
		paymentRepo := c.payments.WithTx(tx)
		orderRepo := c.orders.WithTx(tx)

		found, err := c.lookupPayment(ctx, paymentRepo, verified)
		if err != nil {
			return err
		}
		if found.Method != method {
			c.metrics.IncSignatureFailure(string(method))
			c.logg.Security(ctx, "payment_method_mismatch", map[string]any{"payment_method": found.Method})
			return payments.ErrSignature(method)
		}

		// Lock order before payment, the same order cancellation uses.
		order, err := orderRepo.FindByIDForUpdate(ctx, found.OrderID)
		if err != nil {
			return err
		}
		payment, err := paymentRepo.FindByTransactionIDForUpdate(ctx, found.TransactionID)
		if err != nil {
			return err
		}

		result = &ReconcileResult{
			PaymentID:     payment.ID,
			OrderID:       order.ID,
			TransactionID: payment.TransactionID,
			Status:        payment.Status,
		}
		if payment.Status.IsTerminal() {
			result.Outcome = metrics.OutcomeNoop
			return nil
		}

		now := c.now()
		actor := Actor{UserID: order.UserID, Role: enums.UserRoleCustomer}
		fail := func(reason, outcome string) error {
			if err := paymentRepo.Settle(ctx, payment.ID, payments.Settlement{
				Status:        enums.PaymentStatusFailed,
				ExternalRef:   externalRef(verified),
				FailureReason: &reason,
				Raw:           verified.Raw,
				ProcessedAt:   now,
			}); err != nil {
				return err
			}
			payment.Status = enums.PaymentStatusFailed
			payment.FailureReason = &reason
			result.Outcome = outcome
			result.Status = payment.Status
			return c.emitFailed(ctx, tx, actor, order, payment, reason, now)
		}

		if !verified.Success {
			if err := fail(verified.FailureReason(), metrics.OutcomeFailed); err != nil {
				return err
			}
			if order.PaymentStatus != enums.PaymentStatusPaid {
				if err := orderRepo.UpdatePaymentStatus(ctx, order.ID, enums.PaymentStatusFailed); err != nil {
					return err
				}
			}
			notes = []notifications.Request{orderNotification(order, enums.NotificationPaymentFailed, map[string]any{
				"reason": verified.FailureReason(),
			})}
			return nil
		}

		if verified.Amount != nil && !verified.Amount.Equal(payment.Amount) {
			c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
				"reported_amount": verified.Amount.StringFixed(2),
				"stored_amount":   payment.Amount.StringFixed(2),
			}), "callback amount mismatch")
			return fail(payments.ReasonAmountMismatch, metrics.OutcomeAmountMismatch)
		}

		paidElsewhere, err := paymentRepo.HasPaid(ctx, order.ID, payment.ID)
		if err != nil {
			return err
		}
		if paidElsewhere {
			c.logg.Warn(ctx, "second successful payment for a paid order")
			return fail(payments.ReasonDuplicateSettlement, metrics.OutcomeDuplicate)
		}

		if err := paymentRepo.Settle(ctx, payment.ID, payments.Settlement{
			Status:      enums.PaymentStatusPaid,
			ExternalRef: externalRef(verified),
			Raw:         verified.Raw,
			ProcessedAt: now,
		}); err != nil {
			return err
		}
		payment.Status = enums.PaymentStatusPaid
		if ref := externalRef(verified); ref != nil {
			payment.ExternalRef = ref
		}
		result.Outcome = metrics.OutcomePaid
		result.Status = payment.Status

		if err := orderRepo.UpdatePaymentStatus(ctx, order.ID, enums.PaymentStatusPaid); err != nil {
			return err
		}
		order.PaymentStatus = enums.PaymentStatusPaid
		if err := c.emitSettled(ctx, tx, actor, order, payment, now); err != nil {
			return err
		}
		notes = append(notes, orderNotification(order, enums.NotificationPaymentReceived, map[string]any{
			"amount": payment.Amount.StringFixed(2),
			"method": payment.Method,
		}))

		if order.Status != enums.OrderStatusPending {
			if order.Status == enums.OrderStatusCanceled {
				c.logg.Warn(ctx, "payment settled for a canceled order")
			}
			return nil
		}
		transition, err := c.machine.Transition(ctx, tx, order, enums.OrderStatusConfirmed)
		if err != nil {
			return err
		}
		if err := c.emitTransition(ctx, tx, actor, order, transition); err != nil {
			return err
		}
		notes = append(notes, statusNotification(order)...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.metrics.IncReconcile(string(method), result.Outcome)
	c.logg.Info(c.logg.WithField(ctx, "outcome", result.Outcome), "payment callback reconciled")
	c.notify(ctx, notes)
	return result, nil
}

func (c *Coordinator) lookupPayment(ctx context.Context, repo payments.Repository, verified *payments.VerifiedCallback) (*models.Payment, error) {
	if verified.TransactionID != "" {
		payment, err := repo.FindByTransactionID(ctx, verified.TransactionID)
		if err == nil || !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return payment, err
		}
	}
	if verified.ExternalRef != "" {
		return repo.FindByExternalRef(ctx, verified.ExternalRef)
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
}

func externalRef(v *payments.VerifiedCallback) *string {
	if v.ExternalRef == "" {
		return nil
	}
	ref := v.ExternalRef
	return &ref
}

// Package webhooks receives gateway callbacks, drops redeliveries and hands
// the rest to the settlement coordinator.
package webhooks

import (
	"context"

	"github.com/angelmondragon/settlement-engine/internal/payments"
	"github.com/angelmondragon/settlement-engine/internal/settlement"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/metrics"
)

type reconciler interface {
	Reconcile(ctx context.Context, method enums.PaymentMethod, cb payments.Callback) (*settlement.ReconcileResult, error)
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Delete(ctx context.Context, deliveryID string) error
}

// ServiceParams wires a Service. Guard is optional.
type ServiceParams struct {
	Reconciler reconciler
	Guard      deliveryGuard
	Logger     *logger.Logger
}

// Service processes gateway callbacks.
type Service struct {
	reconciler reconciler
	guard      deliveryGuard
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		reconciler: params.Reconciler,
		guard:      params.Guard,
		logg:       params.Logger,
	}, nil
}

// Handle reconciles one callback. A delivery already handled returns a
// duplicate result without reaching the coordinator. Failed deliveries are
// forgotten so the gateway's retry is processed.
func (s *Service) Handle(ctx context.Context, method enums.PaymentMethod, cb payments.Callback) (*settlement.ReconcileResult, error) {
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unknown payment gateway")
	}

	deliveryID := ""
	if s.guard != nil {
		deliveryID = DeliveryID(method, cb)
		seen, err := s.guard.CheckAndMark(ctx, deliveryID)
		if err != nil {
			// Fall through; Reconcile is itself idempotent.
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook idempotency check failed")
			deliveryID = ""
		} else if seen {
			s.logg.Info(s.logg.WithField(ctx, "method", method), "duplicate webhook delivery")
			return &settlement.ReconcileResult{Outcome: metrics.OutcomeNoop}, nil
		}
	}

	result, err := s.reconciler.Reconcile(ctx, method, cb)
	if err != nil {
		if deliveryID != "" {
			if delErr := s.guard.Delete(ctx, deliveryID); delErr != nil {
				s.logg.Error(ctx, "failed to clear webhook idempotency key", delErr)
			}
		}
		return nil, err
	}
	return result, nil
}

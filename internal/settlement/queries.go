package settlement

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/pagination"
)

// ListOrdersInput lists the actor's orders, or every order when All is set
// by an operator.
type ListOrdersInput struct {
	Actor      Actor
	All        bool
	Filters    orders.ListFilters
	Pagination pagination.Params
}

func (c *Coordinator) ListOrders(ctx context.Context, in ListOrdersInput) (*orders.OrderPage, error) {
	if err := in.Actor.validate(); err != nil {
		return nil, err
	}
	params := orders.ListParams{Filters: in.Filters, Pagination: in.Pagination}
	if in.All {
		if err := in.Actor.requireOperator(); err != nil {
			return nil, err
		}
	} else {
		userID := in.Actor.UserID
		params.UserID = &userID
	}
	if f := in.Filters; f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "date_to must not be before date_from")
	}
	return c.orders.List(ctx, params)
}

func (c *Coordinator) GetOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	order, err := c.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := actor.canAccess(order); err != nil {
		return nil, err
	}
	return order, nil
}

func (c *Coordinator) GetOrderByTracking(ctx context.Context, actor Actor, trackingNumber string) (*models.Order, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	order, err := c.orders.FindByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	if err := actor.canAccess(order); err != nil {
		return nil, err
	}
	return order, nil
}

// ListPayments returns every attempt for the order, oldest first.
func (c *Coordinator) ListPayments(ctx context.Context, actor Actor, orderID uuid.UUID) ([]models.Payment, error) {
	if _, err := c.GetOrder(ctx, actor, orderID); err != nil {
		return nil, err
	}
	return c.payments.ListByOrder(ctx, orderID)
}

func (c *Coordinator) GetPaymentByTransactionID(ctx context.Context, actor Actor, transactionID string) (*models.Payment, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	payment, err := c.payments.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	order, err := c.orders.FindByID(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}
	if err := actor.canAccess(order); err != nil {
		return nil, err
	}
	return payment, nil
}

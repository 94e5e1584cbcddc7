// Package orders exposes checkout, order lifecycle and payment endpoints.
package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/api/middleware"
	"github.com/angelmondragon/settlement-engine/api/responses"
	"github.com/angelmondragon/settlement-engine/api/validators"
	internalorders "github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/internal/settlement"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/pagination"
)

// Coordinator is the slice of the settlement coordinator the HTTP layer drives.
type Coordinator interface {
	CreateOrder(ctx context.Context, in settlement.CreateOrderInput) (*settlement.CreateOrderResult, error)
	InitiatePayment(ctx context.Context, in settlement.InitiatePaymentInput) (*settlement.InitiatePaymentResult, error)
	ConfirmCODPayment(ctx context.Context, in settlement.ConfirmCODInput) (*models.Payment, error)
	CancelOrder(ctx context.Context, in settlement.CancelOrderInput) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, in settlement.UpdateOrderStatusInput) (*models.Order, error)
	ListOrders(ctx context.Context, in settlement.ListOrdersInput) (*internalorders.OrderPage, error)
	GetOrder(ctx context.Context, actor settlement.Actor, orderID uuid.UUID) (*models.Order, error)
	GetOrderByTracking(ctx context.Context, actor settlement.Actor, trackingNumber string) (*models.Order, error)
	ListPayments(ctx context.Context, actor settlement.Actor, orderID uuid.UUID) ([]models.Payment, error)
	GetPaymentByTransactionID(ctx context.Context, actor settlement.Actor, transactionID string) (*models.Payment, error)
}

type createOrderItem struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=1000"`
	Size      string `json:"size,omitempty" validate:"max=32"`
	Color     string `json:"color,omitempty" validate:"max=32"`
}

type createOrderRequest struct {
	Items           []createOrderItem `json:"items" validate:"required,min=1,max=50,dive"`
	ShippingAddress string            `json:"shipping_address" validate:"required,max=500"`
	BillingAddress  *string           `json:"billing_address,omitempty" validate:"omitempty,max=500"`
	PaymentMethod   string            `json:"payment_method" validate:"required,payment_method"`
	Notes           *string           `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// checkoutView is returned whenever a payment is opened.
type checkoutView struct {
	Order       internalorders.OrderView    `json:"order"`
	Payment     *internalorders.PaymentView `json:"payment,omitempty"`
	RedirectURL *string                     `json:"redirect_url,omitempty"`
}

func newCheckoutView(order *models.Order, payment *models.Payment, redirectURL *string) checkoutView {
	view := checkoutView{Order: internalorders.ToView(order), RedirectURL: redirectURL}
	if payment != nil {
		pv := internalorders.ToPaymentView(payment)
		view.Payment = &pv
	}
	return view
}

// Create places an order for the caller and opens its first payment.
func Create(svc Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement coordinator unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(strings.TrimSpace(req.PaymentMethod))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		items := make([]settlement.ItemInput, 0, len(req.Items))
		for _, item := range req.Items {
			productID, err := uuid.Parse(item.ProductID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
				return
			}
			items = append(items, settlement.ItemInput{
				ProductID: productID,
				Quantity:  item.Quantity,
				Size:      validators.SanitizeString(item.Size, 32),
				Color:     validators.SanitizeString(item.Color, 32),
			})
		}

		result, err := svc.CreateOrder(r.Context(), settlement.CreateOrderInput{
			Actor:           actor,
			Items:           items,
			ShippingAddress: validators.SanitizeString(req.ShippingAddress, 500),
			BillingAddress:  req.BillingAddress,
			PaymentMethod:   method,
			Notes:           req.Notes,
			ClientIP:        middleware.ClientIP(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCheckoutView(result.Order, result.Payment, result.RedirectURL))
	}
}

// List returns the caller's orders, newest first.
func List(svc Coordinator, logg *logger.Logger) http.HandlerFunc {
	return listOrders(svc, logg, false)
}

func listOrders(svc Coordinator, logg *logger.Logger, all bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement coordinator unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := buildFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListOrders(r.Context(), settlement.ListOrdersInput{
			Actor:   actor,
			All:     all,
			Filters: filters,
			Pagination: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.ToListView(page))
	}
}

// Detail returns one order with its lines and payment attempts.
func Detail(svc Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement coordinator unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.ToView(order))
	}
}

// ByTracking looks an order up by its public tracking number.
func ByTracking(svc Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement coordinator unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tracking := strings.TrimSpace(chi.URLParam(r, "trackingNumber"))
		if tracking == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "tracking number is required"))
			return
		}

		order, err := svc.GetOrderByTracking(r.Context(), actor, tracking)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.ToView(order))
	}
}

// Cancel cancels a pending or confirmed order and returns its stock.
func Cancel(svc Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement coordinator unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req cancelOrderRequest
		if hasBody(r) {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		order, err := svc.CancelOrder(r.Context(), settlement.CancelOrderInput{
			Actor:   actor,
			OrderID: orderID,
			Reason:  validators.SanitizeString(req.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.ToView(order))
	}
}

func buildFilters(r *http.Request) (internalorders.ListFilters, error) {
	var filters internalorders.ListFilters
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}
	if raw := strings.TrimSpace(query.Get("payment_status")); raw != "" {
		status, err := enums.ParsePaymentStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_status filter")
		}
		filters.PaymentStatus = &status
	}

	var err error
	if filters.DateFrom, err = validators.ParseQueryDate(r, "date_from"); err != nil {
		return filters, err
	}
	if filters.DateTo, err = validators.ParseQueryDate(r, "date_to"); err != nil {
		return filters, err
	}
	if filters.DateFrom != nil && filters.DateTo != nil && filters.DateTo.Before(*filters.DateFrom) {
		return filters, pkgerrors.New(pkgerrors.CodeValidation, "date_to must not precede date_from")
	}
	return filters, nil
}

func hasBody(r *http.Request) bool {
	return r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
}

package settlement

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/internal/catalog"
	"github.com/angelmondragon/settlement-engine/internal/inventory"
	"github.com/angelmondragon/settlement-engine/internal/notifications"
	"github.com/angelmondragon/settlement-engine/internal/pricing"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/outbox/payloads"
)

// ItemInput is one requested line.
type ItemInput struct {
	ProductID uuid.UUID
	Quantity  int
	Size      string
	Color     string
}

// CreateOrderInput carries a checkout request.
type CreateOrderInput struct {
	Actor           Actor
	Items           []ItemInput
	ShippingAddress string
	BillingAddress  *string
	PaymentMethod   enums.PaymentMethod
	Notes           *string
	ReturnURL       string
	ClientIP        string
}

// CreateOrderResult is the persisted order plus the payment opened for it.
type CreateOrderResult struct {
	Order       *models.Order
	Payment     *models.Payment
	RedirectURL *string
}

// trackingAttempts bounds retries on a tracking number collision.
const trackingAttempts = 3

type pricedLine struct {
	product models.Product
	input   ItemInput
	ref     inventory.StockRef
}

// CreateOrder validates the cart, reserves stock, prices and persists the
// order in one transaction, then opens a payment for it. A payment failure
// leaves the order pending with its reservation so the client can retry; the
// returned PAYMENT_GATEWAY_ERROR names the order.
func (c *Coordinator) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if err := in.Actor.validate(); err != nil {
		return nil, err
	}
	if err := validateCreate(in); err != nil {
		return nil, err
	}
	if _, err := c.gateways.Gateway(in.PaymentMethod); err != nil {
		return nil, err
	}

	lines, err := c.loadLines(ctx, in.Items)
	if err != nil {
		return nil, err
	}
	if err := c.precheckStock(ctx, lines); err != nil {
		return nil, err
	}

	var order *models.Order
	for attempt := 1; ; attempt++ {
		order, err = c.insertOrder(ctx, in, lines)
		if err == nil || attempt == trackingAttempts || !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			break
		}
		c.logg.Warn(c.logg.WithField(ctx, "attempt", attempt), "tracking number collision, regenerating")
	}
	if err != nil {
		return nil, err
	}

	ctx = c.logg.WithOrderID(ctx, order.ID.String())
	c.metrics.IncOrderCreated(string(order.PaymentMethod))
	c.logg.Info(c.logg.WithField(ctx, "tracking_number", order.TrackingNumber), "order created")
	c.notify(ctx, []notifications.Request{orderNotification(order, enums.NotificationOrderPlaced, map[string]any{
		"total": order.Total.StringFixed(2),
	})})

	initiated, err := c.InitiatePayment(ctx, InitiatePaymentInput{
		Actor:     in.Actor,
		OrderID:   order.ID,
		Method:    order.PaymentMethod,
		ReturnURL: in.ReturnURL,
		ClientIP:  in.ClientIP,
	})
	if err != nil {
		details := map[string]any{
			"order_id":        order.ID.String(),
			"tracking_number": order.TrackingNumber,
		}
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodePaymentGateway {
			return nil, typed.WithDetails(details)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentGateway, err, "payment initiation failed").WithDetails(details)
	}

	return &CreateOrderResult{
		Order:       initiated.Order,
		Payment:     initiated.Payment,
		RedirectURL: initiated.RedirectURL,
	}, nil
}

// insertOrder reserves stock and writes the order with a fresh tracking
// number in one transaction.
func (c *Coordinator) insertOrder(ctx context.Context, in CreateOrderInput, lines []pricedLine) (*models.Order, error) {
	var order *models.Order
	err := c.db.WithTx(ctx, func(tx *gorm.DB) error {
		requests := make([]inventory.Request, 0, len(lines))
		priced := make([]pricing.Line, 0, len(lines))
		for _, line := range lines {
			requests = append(requests, inventory.Request{Ref: line.ref, Quantity: line.input.Quantity})
			priced = append(priced, pricing.Line{UnitPrice: line.product.Price, Quantity: line.input.Quantity})
		}
		if _, err := c.inventory.ReserveAll(ctx, tx, requests); err != nil {
			return err
		}
		quote, err := c.pricing.Quote(priced)
		if err != nil {
			return err
		}

		now := c.now()
		order = &models.Order{
			TrackingNumber:  c.trackingNumber(now),
			UserID:          in.Actor.UserID,
			Status:          enums.OrderStatusPending,
			PaymentStatus:   enums.PaymentStatusPending,
			PaymentMethod:   in.PaymentMethod,
			Subtotal:        quote.Subtotal,
			Tax:             quote.Tax,
			Shipping:        quote.Shipping,
			Total:           quote.Total,
			Currency:        c.currency,
			ShippingAddress: strings.TrimSpace(in.ShippingAddress),
			BillingAddress:  trimmedOrNil(in.BillingAddress),
			Notes:           trimmedOrNil(in.Notes),
			Items:           make([]models.OrderItem, 0, len(lines)),
		}
		for i, line := range lines {
			order.Items = append(order.Items, models.OrderItem{
				ProductID:   line.product.ID,
				ProductName: line.product.Name,
				Size:        optional(line.input.Size),
				Color:       optional(line.input.Color),
				VariantKey:  line.ref.VariantKey,
				Quantity:    line.input.Quantity,
				UnitPrice:   line.product.Price,
				LineTotal:   quote.Lines[i],
			})
		}
		if err := c.orders.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		return c.emitOrder(ctx, tx, in.Actor, order, enums.EventOrderCreated, payloads.OrderCreatedEvent{
			OrderID:        order.ID,
			TrackingNumber: order.TrackingNumber,
			UserID:         order.UserID,
			PaymentMethod:  order.PaymentMethod,
			Subtotal:       order.Subtotal.StringFixed(2),
			Tax:            order.Tax.StringFixed(2),
			Shipping:       order.Shipping.StringFixed(2),
			Total:          order.Total.StringFixed(2),
			ItemCount:      len(order.Items),
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func validateCreate(in CreateOrderInput) error {
	if len(in.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	for i, item := range in.Items {
		if item.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id is required").
				WithDetails(map[string]any{"item": i})
		}
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"item": i})
		}
	}
	if strings.TrimSpace(in.ShippingAddress) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required")
	}
	if !in.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method").
			WithDetails(map[string]any{"payment_method": in.PaymentMethod})
	}
	return nil
}

func (c *Coordinator) loadLines(ctx context.Context, items []ItemInput) ([]pricedLine, error) {
	ids := make([]uuid.UUID, 0, len(items))
	seen := make(map[uuid.UUID]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	products, err := c.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	lines := make([]pricedLine, 0, len(items))
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
		if !product.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available").
				WithDetails(map[string]any{"product_id": product.ID.String()})
		}
		if err := catalog.CheckVariant(product, item.Size, item.Color); err != nil {
			return nil, err
		}
		lines = append(lines, pricedLine{
			product: product,
			input:   item,
			ref: inventory.StockRef{
				ProductID:  product.ID,
				VariantKey: inventory.VariantKey(item.Size, item.Color),
			},
		})
	}
	return lines, nil
}

// precheckStock fails fast on obvious shortages. Reservation stays the authority.
func (c *Coordinator) precheckStock(ctx context.Context, lines []pricedLine) error {
	wanted := make(map[inventory.StockRef]int, len(lines))
	order := make([]inventory.StockRef, 0, len(lines))
	for _, line := range lines {
		if _, ok := wanted[line.ref]; !ok {
			order = append(order, line.ref)
		}
		wanted[line.ref] += line.input.Quantity
	}
	for _, ref := range order {
		available, err := c.inventory.Available(ctx, ref)
		if err != nil {
			return err
		}
		if available < wanted[ref] {
			return inventory.InsufficientStock(ref, wanted[ref])
		}
	}
	return nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	return optional(*value)
}

package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/pagination"
)

// ListFilters narrow order lists.
type ListFilters struct {
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	DateFrom      *time.Time
	DateTo        *time.Time
}

// ListParams scopes a list to one user, or to everyone when UserID is nil.
type ListParams struct {
	UserID     *uuid.UUID
	Filters    ListFilters
	Pagination pagination.Params
}

// OrderPage wraps one page of orders plus the next page cursor.
type OrderPage struct {
	Orders     []models.Order
	NextCursor string
}

// ItemView is the API shape of an order line.
type ItemView struct {
	ID          uuid.UUID `json:"id"`
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	Size        *string   `json:"size,omitempty"`
	Color       *string   `json:"color,omitempty"`
	Quantity    int       `json:"quantity"`
	UnitPrice   string    `json:"unit_price"`
	LineTotal   string    `json:"line_total"`
}

// PaymentView is the API shape of a payment attempt.
type PaymentView struct {
	ID            uuid.UUID           `json:"id"`
	Method        enums.PaymentMethod `json:"method"`
	TransactionID string              `json:"transaction_id"`
	ExternalRef   *string             `json:"external_ref,omitempty"`
	Status        enums.PaymentStatus `json:"status"`
	Amount        string              `json:"amount"`
	FailureReason *string             `json:"failure_reason,omitempty"`
	RedirectURL   *string             `json:"redirect_url,omitempty"`
	ProcessedAt   *time.Time          `json:"processed_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// OrderView is the API shape of an order.
type OrderView struct {
	ID                  uuid.UUID           `json:"id"`
	TrackingNumber      string              `json:"tracking_number"`
	UserID              uuid.UUID           `json:"user_id"`
	Status              enums.OrderStatus   `json:"status"`
	PaymentStatus       enums.PaymentStatus `json:"payment_status"`
	PaymentMethod       enums.PaymentMethod `json:"payment_method"`
	Subtotal            string              `json:"subtotal"`
	Tax                 string              `json:"tax"`
	Shipping            string              `json:"shipping"`
	Total               string              `json:"total"`
	Currency            string              `json:"currency"`
	ShippingAddress     string              `json:"shipping_address"`
	BillingAddress      *string             `json:"billing_address,omitempty"`
	Notes               *string             `json:"notes,omitempty"`
	ShippedAt           *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt         *time.Time          `json:"delivered_at,omitempty"`
	CanceledAt          *time.Time          `json:"canceled_at,omitempty"`
	EstimatedDeliveryAt *time.Time          `json:"estimated_delivery_at,omitempty"`
	Items               []ItemView          `json:"items"`
	Payments            []PaymentView       `json:"payments,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// OrderListView wraps a page of orders for the API.
type OrderListView struct {
	Orders     []OrderView `json:"orders"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// ToView maps a persisted order to its API shape.
func ToView(order *models.Order) OrderView {
	view := OrderView{
		ID:                  order.ID,
		TrackingNumber:      order.TrackingNumber,
		UserID:              order.UserID,
		Status:              order.Status,
		PaymentStatus:       order.PaymentStatus,
		PaymentMethod:       order.PaymentMethod,
		Subtotal:            order.Subtotal.StringFixed(2),
		Tax:                 order.Tax.StringFixed(2),
		Shipping:            order.Shipping.StringFixed(2),
		Total:               order.Total.StringFixed(2),
		Currency:            order.Currency,
		ShippingAddress:     order.ShippingAddress,
		BillingAddress:      order.BillingAddress,
		Notes:               order.Notes,
		ShippedAt:           order.ShippedAt,
		DeliveredAt:         order.DeliveredAt,
		CanceledAt:          order.CanceledAt,
		EstimatedDeliveryAt: order.EstimatedDeliveryAt,
		Items:               make([]ItemView, 0, len(order.Items)),
		CreatedAt:           order.CreatedAt,
		UpdatedAt:           order.UpdatedAt,
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, ItemView{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Size:        item.Size,
			Color:       item.Color,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.StringFixed(2),
			LineTotal:   item.LineTotal.StringFixed(2),
		})
	}
	for i := range order.Payments {
		view.Payments = append(view.Payments, ToPaymentView(&order.Payments[i]))
	}
	return view
}

// ToPaymentView maps a payment row to its API shape.
func ToPaymentView(payment *models.Payment) PaymentView {
	return PaymentView{
		ID:            payment.ID,
		Method:        payment.Method,
		TransactionID: payment.TransactionID,
		ExternalRef:   payment.ExternalRef,
		Status:        payment.Status,
		Amount:        payment.Amount.StringFixed(2),
		FailureReason: payment.FailureReason,
		RedirectURL:   payment.RedirectURL,
		ProcessedAt:   payment.ProcessedAt,
		CreatedAt:     payment.CreatedAt,
	}
}

// ToListView maps a page of orders.
func ToListView(page *OrderPage) OrderListView {
	out := OrderListView{Orders: make([]OrderView, 0, len(page.Orders)), NextCursor: page.NextCursor}
	for i := range page.Orders {
		out.Orders = append(out.Orders, ToView(&page.Orders[i]))
	}
	return out
}

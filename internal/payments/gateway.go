package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

// Gateway is implemented once per payment method.
type Gateway interface {
	Method() enums.PaymentMethod
	Initiate(ctx context.Context, req InitiateRequest) (*IntentResult, error)
	VerifyCallback(ctx context.Context, cb Callback) (*VerifiedCallback, error)
}

// InitiateRequest carries what a gateway needs to open a payment.
type InitiateRequest struct {
	Order         *models.Order
	Amount        decimal.Decimal
	TransactionID string
	ReturnURL     string
	ClientIP      string
}

// IntentResult is what a gateway hands back after initiation.
type IntentResult struct {
	TransactionID string
	ExternalRef   *string
	RedirectURL   *string
	// ConfirmOrder asks the coordinator to move the order to confirmed right
	// away, without waiting for settlement.
	ConfirmOrder bool
	Raw          json.RawMessage
}

// CallbackSource tells apart server-to-server notifications and browser returns.
type CallbackSource string

const (
	CallbackWebhook CallbackSource = "webhook"
	CallbackReturn  CallbackSource = "return"
)

// Callback is the unverified inbound payload.
type Callback struct {
	Source CallbackSource
	Params url.Values
	Body   []byte
}

// VerifiedCallback is a callback whose signature checked out.
type VerifiedCallback struct {
	TransactionID string
	ExternalRef   string
	Success       bool
	FailureCode   string
	Amount        *decimal.Decimal
	Raw           json.RawMessage
}

// FailureReason renders the gateway failure as the stored payment reason.
func (v *VerifiedCallback) FailureReason() string {
	if v.FailureCode == "" {
		return "gateway_declined"
	}
	return "gateway_declined:" + v.FailureCode
}

// ErrSignature reports a callback that failed verification. It carries no
// details.
func ErrSignature(method enums.PaymentMethod) error {
	return pkgerrors.New(pkgerrors.CodeSignature, fmt.Sprintf("%s callback signature mismatch", method))
}

// GatewayError wraps transport or protocol failures during initiation.
func GatewayError(method enums.PaymentMethod, err error, message string) error {
	return pkgerrors.Wrap(pkgerrors.CodePaymentGateway, err, message).
		WithDetails(map[string]any{"method": method})
}

// CheckInitiate holds the guards every method shares: the amount must match the
// order total and the order must not already have a paid payment.
func CheckInitiate(order *models.Order, amount decimal.Decimal, alreadyPaid bool) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if !amount.Equal(order.Total) {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment amount must equal order total").
			WithDetails(map[string]any{
				"amount": amount.StringFixed(2),
				"total":  order.Total.StringFixed(2),
			})
	}
	if alreadyPaid || order.PaymentStatus == enums.PaymentStatusPaid {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order already paid").
			WithDetails(map[string]any{"order_id": order.ID.String()})
	}
	return nil
}

package payments

import (
	"context"
	"encoding/json"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

// COD settles cash on delivery. There is no network call; the order is
// confirmed immediately and the payment stays pending until an operator
// confirms the cash was collected.
type COD struct{}

// NewCOD returns the cash-on-delivery gateway.
func NewCOD() *COD {
	return &COD{}
}

func (c *COD) Method() enums.PaymentMethod {
	return enums.PaymentMethodCOD
}

func (c *COD) Initiate(_ context.Context, req InitiateRequest) (*IntentResult, error) {
	if err := CheckInitiate(req.Order, req.Amount, false); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(map[string]any{
		"method":         enums.PaymentMethodCOD,
		"transaction_id": req.TransactionID,
		"amount":         req.Amount.StringFixed(2),
	})
	if err != nil {
		return nil, GatewayError(c.Method(), err, "encode cod intent")
	}
	return &IntentResult{
		TransactionID: req.TransactionID,
		ConfirmOrder:  true,
		Raw:           raw,
	}, nil
}

// VerifyCallback always rejects: nothing external may settle a COD payment.
func (c *COD) VerifyCallback(context.Context, Callback) (*VerifiedCallback, error) {
	return nil, ErrSignature(c.Method())
}

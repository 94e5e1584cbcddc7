package enums

// PaymentMethod selects the gateway an order settles through.
type PaymentMethod string

const (
	PaymentMethodCOD      PaymentMethod = "cod"
	PaymentMethodGatewayA PaymentMethod = "gateway_a"
	PaymentMethodGatewayB PaymentMethod = "gateway_b"
)

var paymentMethods = newValueSet("payment method",
	PaymentMethodCOD,
	PaymentMethodGatewayA,
	PaymentMethodGatewayB,
)

func (p PaymentMethod) String() string { return string(p) }

func (p PaymentMethod) IsValid() bool { return paymentMethods.contains(p) }

// IsOnline reports whether settlement arrives through a gateway callback
// rather than an operator confirmation.
func (p PaymentMethod) IsOnline() bool {
	return p == PaymentMethodGatewayA || p == PaymentMethodGatewayB
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return paymentMethods.parse(value)
}

// PaymentMethods lists every supported method.
func PaymentMethods() []PaymentMethod {
	return paymentMethods.Values()
}

package enums

// PaymentStatus tracks one payment attempt. The order carries a copy that
// mirrors its latest attempt.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

var paymentStatuses = newValueSet("payment status",
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusFailed,
)

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool { return paymentStatuses.contains(p) }

// IsTerminal reports whether the attempt has been settled either way.
func (p PaymentStatus) IsTerminal() bool {
	return p == PaymentStatusPaid || p == PaymentStatusFailed
}

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return paymentStatuses.parse(value)
}

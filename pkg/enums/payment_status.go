package enums

// PaymentStatus mirrors the order ledger's payment state. Only PAID orders earn payouts.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
	PaymentStatusFailed   PaymentStatus = "FAILED"
)

var paymentStatuses = members(PaymentStatusPending, PaymentStatusPaid, PaymentStatusRefunded, PaymentStatusFailed)

func (p PaymentStatus) IsValid() bool { return paymentStatuses.has(p) }

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return paymentStatuses.parse("payment status", value)
}

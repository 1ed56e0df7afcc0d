package enums

// VoucherDiscountType describes how a voucher's value is applied.
type VoucherDiscountType string

const (
	VoucherDiscountTypeRefund VoucherDiscountType = "REFUND"
)

func (v VoucherDiscountType) IsValid() bool {
	return v == VoucherDiscountTypeRefund
}

// CancellationInitiator records which party caused an order to be cancelled.
type CancellationInitiator string

const (
	CancellationInitiatorCustomer CancellationInitiator = "CUSTOMER"
	CancellationInitiatorSeller   CancellationInitiator = "SELLER"
)

var cancellationInitiators = members(CancellationInitiatorCustomer, CancellationInitiatorSeller)

func (c CancellationInitiator) IsValid() bool { return cancellationInitiators.has(c) }

func ParseCancellationInitiator(value string) (CancellationInitiator, error) {
	return cancellationInitiators.parse("cancellation initiator", value)
}

// VoucherStatus is derived on read and never stored.
type VoucherStatus string

const (
	VoucherStatusActive   VoucherStatus = "active"
	VoucherStatusInactive VoucherStatus = "inactive"
	VoucherStatusExpired  VoucherStatus = "expired"
	VoucherStatusUsed     VoucherStatus = "used"
	VoucherStatusRefunded VoucherStatus = "refunded"
)

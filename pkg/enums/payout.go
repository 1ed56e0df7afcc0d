package enums

// PayoutInvoiceStatus tracks whether a seller invoice has been disbursed.
type PayoutInvoiceStatus string

const (
	PayoutInvoiceStatusPending PayoutInvoiceStatus = "PENDING"
	PayoutInvoiceStatusPaid    PayoutInvoiceStatus = "PAID"
)

var invoiceStatuses = members(PayoutInvoiceStatusPending, PayoutInvoiceStatusPaid)

func (s PayoutInvoiceStatus) IsValid() bool { return invoiceStatuses.has(s) }

func ParsePayoutInvoiceStatus(value string) (PayoutInvoiceStatus, error) {
	return invoiceStatuses.parse("payout invoice status", value)
}

// AdjustmentType names the event that produced a post-invoice correction.
type AdjustmentType string

const (
	AdjustmentTypeRefund       AdjustmentType = "REFUND"
	AdjustmentTypeCancellation AdjustmentType = "CANCELLATION"
)

var adjustmentTypes = members(AdjustmentTypeRefund, AdjustmentTypeCancellation)

func (a AdjustmentType) IsValid() bool { return adjustmentTypes.has(a) }

func ParseAdjustmentType(value string) (AdjustmentType, error) {
	return adjustmentTypes.parse("adjustment type", value)
}

// AdjustmentStatus is PENDING until a later invoice absorbs the correction.
type AdjustmentStatus string

const (
	AdjustmentStatusPending AdjustmentStatus = "PENDING"
	AdjustmentStatusApplied AdjustmentStatus = "APPLIED"
)

var adjustmentStatuses = members(AdjustmentStatusPending, AdjustmentStatusApplied)

func (a AdjustmentStatus) IsValid() bool { return adjustmentStatuses.has(a) }

func ParseAdjustmentStatus(value string) (AdjustmentStatus, error) {
	return adjustmentStatuses.parse("adjustment status", value)
}

package enums

// RefundRequestStatus tracks a voucher cash-out request. APPROVED and REJECTED are terminal.
type RefundRequestStatus string

const (
	RefundRequestStatusPending  RefundRequestStatus = "PENDING"
	RefundRequestStatusApproved RefundRequestStatus = "APPROVED"
	RefundRequestStatusRejected RefundRequestStatus = "REJECTED"
)

var refundRequestStatuses = members(RefundRequestStatusPending, RefundRequestStatusApproved, RefundRequestStatusRejected)

func (r RefundRequestStatus) IsTerminal() bool {
	return r == RefundRequestStatusApproved || r == RefundRequestStatusRejected
}

func (r RefundRequestStatus) IsValid() bool { return refundRequestStatuses.has(r) }

func ParseRefundRequestStatus(value string) (RefundRequestStatus, error) {
	return refundRequestStatuses.parse("refund request status", value)
}

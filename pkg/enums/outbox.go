package enums

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregatePayoutInvoice OutboxAggregateType = "payout_invoice"
	AggregateAdjustment    OutboxAggregateType = "payout_adjustment"
	AggregateVoucher       OutboxAggregateType = "voucher"
	AggregateRefundRequest OutboxAggregateType = "voucher_refund_request"
	AggregateOrder         OutboxAggregateType = "order"
)

var aggregateTypes = members(
	AggregatePayoutInvoice,
	AggregateAdjustment,
	AggregateVoucher,
	AggregateRefundRequest,
	AggregateOrder,
)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse("aggregate type", value)
}

// OutboxEventType names the domain events this service publishes or consumes.
type OutboxEventType string

const (
	EventPayoutInvoiceCreated    OutboxEventType = "payout_invoice_created"
	EventPayoutInvoicePaid       OutboxEventType = "payout_invoice_paid"
	EventPayoutAdjustmentCreated OutboxEventType = "payout_adjustment_created"
	EventVoucherIssued           OutboxEventType = "voucher_issued"
	EventRefundRequestCreated    OutboxEventType = "refund_request_created"
	EventRefundRequestResolved   OutboxEventType = "refund_request_resolved"

	// Emitted by the order ledger and consumed here.
	EventOrderCancelled OutboxEventType = "order_cancelled"
	EventOrderRefunded  OutboxEventType = "order_refunded"
)

var eventTypes = members(
	EventPayoutInvoiceCreated,
	EventPayoutInvoicePaid,
	EventPayoutAdjustmentCreated,
	EventVoucherIssued,
	EventRefundRequestCreated,
	EventRefundRequestResolved,
	EventOrderCancelled,
	EventOrderRefunded,
)

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return eventTypes.parse("event type", value)
}

package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/payouts-backend/pkg/enums"
)

// PayoutInvoiceCreatedEvent announces a new seller invoice.
type PayoutInvoiceCreatedEvent struct {
	InvoiceID          uuid.UUID `json:"invoice_id"`
	OrganizationID     uuid.UUID `json:"organization_id"`
	InvoiceNumber      string    `json:"invoice_number"`
	PeriodStart        time.Time `json:"period_start"`
	PeriodEnd          time.Time `json:"period_end"`
	NetAmountCents     int64     `json:"net_amount_cents"`
	PayableAmountCents int64     `json:"payable_amount_cents"`
	OrderCount         int       `json:"order_count"`
	AdjustmentCount    int       `json:"adjustment_count"`
	Summary            string    `json:"summary"`
}

// PayoutInvoicePaidEvent is emitted when disbursement is recorded against an invoice.
type PayoutInvoicePaidEvent struct {
	InvoiceID        uuid.UUID `json:"invoice_id"`
	OrganizationID   uuid.UUID `json:"organization_id"`
	InvoiceNumber    string    `json:"invoice_number"`
	PaymentReference string    `json:"payment_reference"`
	PaidAt           time.Time `json:"paid_at"`
	Summary          string    `json:"summary"`
}

// PayoutAdjustmentCreatedEvent announces a correction queued for a future invoice.
type PayoutAdjustmentCreatedEvent struct {
	AdjustmentID      uuid.UUID            `json:"adjustment_id"`
	OrganizationID    uuid.UUID            `json:"organization_id"`
	OrderID           uuid.UUID            `json:"order_id"`
	OriginalInvoiceID uuid.UUID            `json:"original_invoice_id"`
	Type              enums.AdjustmentType `json:"type"`
	AmountCents       int64                `json:"amount_cents"`
	Summary           string               `json:"summary"`
}

// VoucherIssuedEvent tells the customer they received platform credit.
type VoucherIssuedEvent struct {
	VoucherID                uuid.UUID                   `json:"voucher_id"`
	Code                     string                      `json:"code"`
	AssignedToUserID         uuid.UUID                   `json:"assigned_to_user_id"`
	SourceOrderID            uuid.UUID                   `json:"source_order_id"`
	DiscountValueCents       int64                       `json:"discount_value_cents"`
	CancellationInitiator    enums.CancellationInitiator `json:"cancellation_initiator"`
	MonetaryRefundEligibleAt *time.Time                  `json:"monetary_refund_eligible_at,omitempty"`
	Summary                  string                      `json:"summary"`
}

// RefundRequestCreatedEvent lets admins know a review is waiting.
type RefundRequestCreatedEvent struct {
	RequestID            uuid.UUID `json:"request_id"`
	VoucherID            uuid.UUID `json:"voucher_id"`
	RequestedByID        uuid.UUID `json:"requested_by_id"`
	RequestedAmountCents int64     `json:"requested_amount_cents"`
	Summary              string    `json:"summary"`
}

// RefundRequestResolvedEvent reports an admin decision to the requester.
type RefundRequestResolvedEvent struct {
	RequestID     uuid.UUID                 `json:"request_id"`
	VoucherID     uuid.UUID                 `json:"voucher_id"`
	RequestedByID uuid.UUID                 `json:"requested_by_id"`
	Status        enums.RefundRequestStatus `json:"status"`
	ReviewedByID  uuid.UUID                 `json:"reviewed_by_id"`
	AdminMessage  *string                   `json:"admin_message,omitempty"`
	Summary       string                    `json:"summary"`
}

// OrderCancellationEvent is published by the order ledger when a paid order
// is cancelled or partially refunded.
type OrderCancellationEvent struct {
	OrderID           uuid.UUID                   `json:"order_id"`
	Initiator         enums.CancellationInitiator `json:"initiator"`
	RefundAmountCents *int64                      `json:"refund_amount_cents,omitempty"`
	Reason            string                      `json:"reason"`
	OccurredAt        time.Time                   `json:"occurred_at"`
}

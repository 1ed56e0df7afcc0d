package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/payouts-backend/pkg/enums"
)

// Order mirrors the order ledger's record. This service only patches
// payout_invoice_id, cancelled_at and refunded_cents; every other column is owned upstream.
type Order struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrganizationID       uuid.UUID           `gorm:"column:organization_id;type:uuid;not null;index:idx_orders_org_invoice,priority:1" json:"organization_id"`
	CustomerUserID       uuid.UUID           `gorm:"column:customer_user_id;type:uuid;not null" json:"customer_user_id"`
	PaymentStatus        enums.PaymentStatus `gorm:"column:payment_status;type:text;not null" json:"payment_status"`
	PayoutInvoiceID      *uuid.UUID          `gorm:"column:payout_invoice_id;type:uuid;index:idx_orders_org_invoice,priority:2" json:"payout_invoice_id"`
	TotalAmountCents     *int64              `gorm:"column:total_amount_cents" json:"total_amount_cents"`
	VoucherDiscountCents int64               `gorm:"column:voucher_discount_cents;not null;default:0" json:"voucher_discount_cents"`
	ItemCount            int                 `gorm:"column:item_count;not null;default:0" json:"item_count"`
	RefundedCents        int64               `gorm:"column:refunded_cents;not null;default:0" json:"refunded_cents"`
	PaidAt               *time.Time          `gorm:"column:paid_at" json:"paid_at"`
	CancelledAt          *time.Time          `gorm:"column:cancelled_at" json:"cancelled_at"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// Total returns the order total, treating a missing amount as zero.
func (o Order) Total() int64 {
	if o.TotalAmountCents == nil {
		return 0
	}
	return *o.TotalAmountCents
}

// PayoutContribution is what the order adds to the seller's gross: the total less
// any refund issued before it was invoiced.
func (o Order) PayoutContribution() int64 {
	return o.Total() - o.RefundedCents
}

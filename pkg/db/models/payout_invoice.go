package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/payouts-backend/pkg/enums"
)

// PayoutInvoice is the per-organization, per-period settlement statement.
// Totals are frozen at creation; only the payment fields change afterwards.
type PayoutInvoice struct {
	ID                        uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrganizationID            uuid.UUID                 `gorm:"column:organization_id;type:uuid;not null;uniqueIndex:ux_payout_invoices_org_period,priority:1" json:"organization_id"`
	InvoiceNumber             string                    `gorm:"column:invoice_number;not null;uniqueIndex:ux_payout_invoices_number" json:"invoice_number"`
	Sequence                  int64                     `gorm:"column:sequence;not null" json:"sequence"`
	PeriodStart               time.Time                 `gorm:"column:period_start;not null;uniqueIndex:ux_payout_invoices_org_period,priority:2" json:"period_start"`
	PeriodEnd                 time.Time                 `gorm:"column:period_end;not null;uniqueIndex:ux_payout_invoices_org_period,priority:3" json:"period_end"`
	GrossAmountCents          int64                     `gorm:"column:gross_amount_cents;not null" json:"gross_amount_cents"`
	PlatformFeePercentage     decimal.Decimal           `gorm:"column:platform_fee_percentage;type:numeric(5,2);not null" json:"platform_fee_percentage"`
	PlatformFeeCents          int64                     `gorm:"column:platform_fee_cents;not null" json:"platform_fee_cents"`
	TotalVoucherDiscountCents int64                     `gorm:"column:total_voucher_discount_cents;not null" json:"total_voucher_discount_cents"`
	NetAmountCents            int64                     `gorm:"column:net_amount_cents;not null" json:"net_amount_cents"`
	AdjustmentTotalCents      int64                     `gorm:"column:adjustment_total_cents;not null;default:0" json:"adjustment_total_cents"`
	PayableAmountCents        int64                     `gorm:"column:payable_amount_cents;not null" json:"payable_amount_cents"`
	OrderCount                int                       `gorm:"column:order_count;not null" json:"order_count"`
	ItemCount                 int                       `gorm:"column:item_count;not null" json:"item_count"`
	AdjustmentCount           int                       `gorm:"column:adjustment_count;not null;default:0" json:"adjustment_count"`
	Status                    enums.PayoutInvoiceStatus `gorm:"column:status;type:text;not null" json:"status"`
	PaidAt                    *time.Time                `gorm:"column:paid_at" json:"paid_at"`
	PaymentReference          *string                   `gorm:"column:payment_reference" json:"payment_reference"`
	CreatedAt                 time.Time                 `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt                 time.Time                 `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (p *PayoutInvoice) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/payouts-backend/pkg/enums"
)

// PayoutAdjustment is a negative correction against an already invoiced order.
type PayoutAdjustment struct {
	ID                  uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrganizationID      uuid.UUID              `gorm:"column:organization_id;type:uuid;not null;index:idx_payout_adjustments_org_status,priority:1" json:"organization_id"`
	OrderID             uuid.UUID              `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_payout_adjustments_order_id" json:"order_id"`
	OriginalInvoiceID   uuid.UUID              `gorm:"column:original_invoice_id;type:uuid;not null" json:"original_invoice_id"`
	AdjustmentInvoiceID *uuid.UUID             `gorm:"column:adjustment_invoice_id;type:uuid" json:"adjustment_invoice_id"`
	Type                enums.AdjustmentType   `gorm:"column:type;type:text;not null" json:"type"`
	AmountCents         int64                  `gorm:"column:amount_cents;not null" json:"amount_cents"`
	Reason              string                 `gorm:"column:reason;not null" json:"reason"`
	Status              enums.AdjustmentStatus `gorm:"column:status;type:text;not null;index:idx_payout_adjustments_org_status,priority:2" json:"status"`
	AppliedAt           *time.Time             `gorm:"column:applied_at" json:"applied_at"`
	CreatedAt           time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time              `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (p *PayoutAdjustment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// Magnitude returns the positive amount deducted by the adjustment.
func (p PayoutAdjustment) Magnitude() int64 {
	if p.AmountCents < 0 {
		return -p.AmountCents
	}
	return p.AmountCents
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/payouts-backend/pkg/enums"
)

// Voucher is platform credit issued in place of an immediate cash refund.
type Voucher struct {
	ID                       uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Code                     string                      `gorm:"column:code;not null;uniqueIndex:ux_vouchers_code" json:"code"`
	DiscountType             enums.VoucherDiscountType   `gorm:"column:discount_type;type:text;not null" json:"discount_type"`
	DiscountValueCents       int64                       `gorm:"column:discount_value_cents;not null" json:"discount_value_cents"`
	AssignedToUserID         uuid.UUID                   `gorm:"column:assigned_to_user_id;type:uuid;not null;index" json:"assigned_to_user_id"`
	OrganizationID           uuid.UUID                   `gorm:"column:organization_id;type:uuid;not null" json:"organization_id"`
	CancellationInitiator    enums.CancellationInitiator `gorm:"column:cancellation_initiator;type:text;not null" json:"cancellation_initiator"`
	SourceOrderID            uuid.UUID                   `gorm:"column:source_order_id;type:uuid;not null;uniqueIndex:ux_vouchers_source_order_id" json:"source_order_id"`
	MonetaryRefundEligibleAt *time.Time                  `gorm:"column:monetary_refund_eligible_at" json:"monetary_refund_eligible_at"`
	UsedCount                int                         `gorm:"column:used_count;not null;default:0" json:"used_count"`
	UsageLimit               int                         `gorm:"column:usage_limit;not null;default:1" json:"usage_limit"`
	IsActive                 bool                        `gorm:"column:is_active;not null;default:true" json:"is_active"`
	ValidFrom                time.Time                   `gorm:"column:valid_from;not null" json:"valid_from"`
	ValidUntil               *time.Time                  `gorm:"column:valid_until" json:"valid_until"`
	CreatedAt                time.Time                   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time                   `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (v *Voucher) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/payouts-backend/pkg/enums"
)

// VoucherSnapshot freezes what the customer saw when filing the request.
type VoucherSnapshot struct {
	Code                     string                      `json:"code"`
	DiscountValueCents       int64                       `json:"discount_value_cents"`
	CancellationInitiator    enums.CancellationInitiator `json:"cancellation_initiator"`
	SourceOrderID            uuid.UUID                   `json:"source_order_id"`
	MonetaryRefundEligibleAt *time.Time                  `json:"monetary_refund_eligible_at,omitempty"`
}

// RequesterSnapshot records the requester's identity as presented at filing time.
type RequesterSnapshot struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email,omitempty"`
	Name   string    `json:"name,omitempty"`
}

// VoucherRefundRequest asks to convert an eligible voucher into a cash refund.
type VoucherRefundRequest struct {
	ID                   uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	VoucherID            uuid.UUID                 `gorm:"column:voucher_id;type:uuid;not null;uniqueIndex:ux_refund_requests_active_voucher,where:status = 'PENDING' AND deleted_at IS NULL" json:"voucher_id"`
	RequestedByID        uuid.UUID                 `gorm:"column:requested_by_id;type:uuid;not null;index" json:"requested_by_id"`
	Status               enums.RefundRequestStatus `gorm:"column:status;type:text;not null" json:"status"`
	RequestedAmountCents int64                     `gorm:"column:requested_amount_cents;not null" json:"requested_amount_cents"`
	AdminMessage         *string                   `gorm:"column:admin_message" json:"admin_message"`
	ReviewedByID         *uuid.UUID                `gorm:"column:reviewed_by_id;type:uuid" json:"reviewed_by_id"`
	ReviewedAt           *time.Time                `gorm:"column:reviewed_at" json:"reviewed_at"`
	VoucherSnapshot      VoucherSnapshot           `gorm:"column:voucher_snapshot;type:jsonb;serializer:json;not null" json:"voucher_snapshot"`
	RequesterSnapshot    RequesterSnapshot         `gorm:"column:requester_snapshot;type:jsonb;serializer:json;not null" json:"requester_snapshot"`
	CreatedAt            time.Time                 `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time                 `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	DeletedAt            gorm.DeletedAt            `gorm:"column:deleted_at;index" json:"-"`
}

func (r *VoucherRefundRequest) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

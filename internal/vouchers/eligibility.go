package vouchers

import (
	"time"

	"github.com/angelmondragon/payouts-backend/pkg/db/models"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
)

const day = 24 * time.Hour

// Status is the read-time view of a voucher. It is never persisted.
type Status struct {
	ComputedStatus           enums.VoucherStatus `json:"computed_status"`
	IsExpired                bool                `json:"is_expired"`
	IsUsed                   bool                `json:"is_used"`
	IsMonetaryRefundEligible bool                `json:"is_monetary_refund_eligible"`
	DaysUntilEligible        *int                `json:"days_until_eligible"`
}

// View pairs a stored voucher with its derived status.
type View struct {
	models.Voucher
	Status
}

// DeriveStatus computes the voucher's status at now from stored fields only.
// Only an approved refund request deactivates a voucher, so inactive reads as refunded.
func DeriveStatus(v models.Voucher, now time.Time) Status {
	s := Status{
		IsExpired: v.ValidUntil != nil && v.ValidUntil.Before(now),
		IsUsed:    v.UsedCount > 0,
	}

	seller := v.CancellationInitiator == enums.CancellationInitiatorSeller && v.MonetaryRefundEligibleAt != nil
	if seller && !s.IsUsed {
		eligibleAt := *v.MonetaryRefundEligibleAt
		if !now.Before(eligibleAt) {
			s.IsMonetaryRefundEligible = true
		} else {
			days := int((eligibleAt.Sub(now) + day - 1) / day)
			s.DaysUntilEligible = &days
		}
	}

	switch {
	case !v.IsActive:
		s.ComputedStatus = enums.VoucherStatusRefunded
	case s.IsUsed:
		s.ComputedStatus = enums.VoucherStatusUsed
	case s.IsExpired:
		s.ComputedStatus = enums.VoucherStatusExpired
	case now.Before(v.ValidFrom):
		s.ComputedStatus = enums.VoucherStatusInactive
	default:
		s.ComputedStatus = enums.VoucherStatusActive
	}
	return s
}

// Decorate derives the status for every voucher at the same instant.
func Decorate(rows []models.Voucher, now time.Time) []View {
	out := make([]View, len(rows))
	for i, v := range rows {
		out[i] = View{Voucher: v, Status: DeriveStatus(v, now)}
	}
	return out
}

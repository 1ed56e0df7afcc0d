package payouts

import (
	"fmt"

	"github.com/angelmondragon/payouts-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/payouts-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Totals is the frozen arithmetic of one invoice, in cents.
type Totals struct {
	GrossCents           int64
	PlatformFeeCents     int64
	VoucherDiscountCents int64
	NetCents             int64
	AdjustmentTotalCents int64
	PayableCents         int64
	OrderCount           int
	ItemCount            int
	AdjustmentCount      int
}

// PlatformFee applies a percentage (10.00 means 10%) to gross and rounds half away from zero.
func PlatformFee(grossCents int64, percentage decimal.Decimal) int64 {
	return decimal.NewFromInt(grossCents).Mul(percentage).Div(hundred).Round(0).IntPart()
}

// ComputeTotals sums orders and pending adjustments. Gross counts each order's total less
// pre-invoice refunds. Net never includes adjustments; payable is net plus the
// (non-positive) adjustment total.
func ComputeTotals(orders []models.Order, adjustments []models.PayoutAdjustment, percentage decimal.Decimal) (Totals, error) {
	var t Totals
	for _, order := range orders {
		if order.TotalAmountCents == nil {
			return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("order %s has no total amount", order.ID)).
				WithDetails(map[string]any{"order_id": order.ID})
		}
		if *order.TotalAmountCents < 0 || order.VoucherDiscountCents < 0 || order.RefundedCents < 0 {
			return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("order %s has a negative amount", order.ID)).
				WithDetails(map[string]any{"order_id": order.ID})
		}
		if order.RefundedCents > *order.TotalAmountCents {
			return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("order %s refunded more than its total", order.ID)).
				WithDetails(map[string]any{"order_id": order.ID, "refunded_cents": order.RefundedCents})
		}
		t.GrossCents += order.PayoutContribution()
		t.VoucherDiscountCents += order.VoucherDiscountCents
		t.ItemCount += order.ItemCount
		t.OrderCount++
	}
	for _, adj := range adjustments {
		t.AdjustmentTotalCents -= adj.Magnitude()
		t.AdjustmentCount++
	}
	t.PlatformFeeCents = PlatformFee(t.GrossCents, percentage)
	t.NetCents = t.GrossCents - t.PlatformFeeCents - t.VoucherDiscountCents
	t.PayableCents = t.NetCents + t.AdjustmentTotalCents
	return t, nil
}

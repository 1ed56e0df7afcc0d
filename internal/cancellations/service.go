package cancellations

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/payouts-backend/internal/adjustments"
	"github.com/angelmondragon/payouts-backend/internal/orders"
	"github.com/angelmondragon/payouts-backend/internal/vouchers"
	dbpkg "github.com/angelmondragon/payouts-backend/pkg/db"
	"github.com/angelmondragon/payouts-backend/pkg/db/models"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payouts-backend/pkg/errors"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
	"github.com/angelmondragon/payouts-backend/pkg/outbox"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type voucherIssuer interface {
	IssueTx(ctx context.Context, tx *gorm.DB, input vouchers.IssueInput) (*models.Voucher, bool, error)
}

type adjustmentRecorder interface {
	RecordTx(ctx context.Context, tx *gorm.DB, input adjustments.RecordInput) (*models.PayoutAdjustment, error)
}

// Service applies a cancellation or refund from the order ledger to the payout books.
type Service interface {
	Handle(ctx context.Context, event Event) (*Result, error)
}

// Event is a cancellation or partial refund of a paid order.
type Event struct {
	OrderID   uuid.UUID
	Type      enums.AdjustmentType
	Initiator enums.CancellationInitiator
	// RefundAmountCents is required for REFUND and ignored for CANCELLATION.
	RefundAmountCents *int64
	Reason            string
	Actor             *outbox.ActorRef
}

type Result struct {
	Voucher        *models.Voucher
	VoucherCreated bool
	// Adjustment is nil when the order had not been invoiced yet.
	Adjustment *models.PayoutAdjustment
}

type ServiceParams struct {
	DB          txRunner
	Orders      orders.Repository
	Adjustments adjustments.Repository
	Vouchers    voucherIssuer
	Recorder    adjustmentRecorder
	Logger      *logger.Logger
	Now         func() time.Time
}

type service struct {
	db          txRunner
	orders      orders.Repository
	adjustments adjustments.Repository
	vouchers    voucherIssuer
	recorder    adjustmentRecorder
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Adjustments == nil {
		return nil, fmt.Errorf("adjustments repository required")
	}
	if params.Vouchers == nil {
		return nil, fmt.Errorf("voucher issuer required")
	}
	if params.Recorder == nil {
		return nil, fmt.Errorf("adjustment recorder required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		db:          params.DB,
		orders:      params.Orders,
		adjustments: params.Adjustments,
		vouchers:    params.Vouchers,
		recorder:    params.Recorder,
		logg:        params.Logger,
		now:         now,
	}, nil
}

func (s *service) Handle(ctx context.Context, event Event) (*Result, error) {
	if event.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !event.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cancellation type")
	}
	if !event.Initiator.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cancellation initiator")
	}
	var refundAmount int64
	if event.Type == enums.AdjustmentTypeRefund {
		if event.RefundAmountCents == nil || *event.RefundAmountCents <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
		}
		refundAmount = *event.RefundAmountCents
	}

	var result *Result
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := s.handleTx(ctx, tx, event, refundAmount)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		fields := map[string]any{
			"order_id":        event.OrderID.String(),
			"type":            string(event.Type),
			"initiator":       string(event.Initiator),
			"voucher_id":      result.Voucher.ID.String(),
			"voucher_created": result.VoucherCreated,
		}
		if result.Adjustment != nil {
			fields["adjustment_id"] = result.Adjustment.ID.String()
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "order cancellation applied")
	}
	return result, nil
}

func (s *service) handleTx(ctx context.Context, tx *gorm.DB, event Event, refundAmount int64) (*Result, error) {
	ordersRepo := s.orders.WithTx(tx)

	order, err := ordersRepo.FindByIDForUpdate(ctx, event.OrderID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.PaymentStatus != enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only paid orders can be cancelled or refunded").
			WithDetails(map[string]any{"payment_status": string(order.PaymentStatus)})
	}

	voucher, created, err := s.vouchers.IssueTx(ctx, tx, vouchers.IssueInput{
		Order:       *order,
		Initiator:   event.Initiator,
		AmountCents: refundAmount,
		Actor:       event.Actor,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return s.redelivered(ctx, tx, *order, voucher, event, refundAmount)
	}

	result := &Result{Voucher: voucher, VoucherCreated: true}
	switch {
	case event.Type == enums.AdjustmentTypeCancellation:
		if err := ordersRepo.MarkCancelled(ctx, order.ID, s.now().UTC()); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order cancelled")
		}
	case order.PayoutInvoiceID == nil:
		// Not invoiced yet: the refund comes out of the order's gross on its first invoice.
		ok, err := ordersRepo.RecordRefund(ctx, order.ID, refundAmount)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record order refund")
		}
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "order was refunded or invoiced concurrently")
		}
	}
	if order.PayoutInvoiceID == nil {
		return result, nil
	}

	adj, err := s.recorder.RecordTx(ctx, tx, adjustments.RecordInput{
		OrderID:     order.ID,
		Type:        event.Type,
		AmountCents: refundAmount,
		Reason:      event.Reason,
		Actor:       event.Actor,
	})
	if err != nil {
		return nil, err
	}
	result.Adjustment = adj
	return result, nil
}

// redelivered reports what the first delivery produced when event repeats it. An order
// takes one correction, so any other event against an order that already holds a
// voucher is a conflict.
func (s *service) redelivered(ctx context.Context, tx *gorm.DB, order models.Order, voucher *models.Voucher, event Event, refundAmount int64) (*Result, error) {
	existing, err := s.adjustments.WithTx(tx).FindByOrderID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load adjustment")
	}
	if !sameCorrection(order, *voucher, existing, event, refundAmount) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already has a different cancellation or refund").
			WithDetails(map[string]any{
				"voucher_id":           voucher.ID.String(),
				"voucher_amount_cents": voucher.DiscountValueCents,
				"initiator":            string(voucher.CancellationInitiator),
			})
	}
	return &Result{Voucher: voucher, Adjustment: existing}, nil
}

func sameCorrection(order models.Order, voucher models.Voucher, adj *models.PayoutAdjustment, event Event, refundAmount int64) bool {
	if voucher.CancellationInitiator != event.Initiator {
		return false
	}
	if adj != nil && adj.Type != event.Type {
		return false
	}
	if event.Type == enums.AdjustmentTypeCancellation {
		return order.CancelledAt != nil && voucher.DiscountValueCents == order.Total()
	}
	return order.CancelledAt == nil && voucher.DiscountValueCents == refundAmount
}

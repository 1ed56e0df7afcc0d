package adjustments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/payouts-backend/internal/orders"
	dbpkg "github.com/angelmondragon/payouts-backend/pkg/db"
	"github.com/angelmondragon/payouts-backend/pkg/db/models"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payouts-backend/pkg/errors"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
	"github.com/angelmondragon/payouts-backend/pkg/metrics"
	"github.com/angelmondragon/payouts-backend/pkg/outbox"
	"github.com/angelmondragon/payouts-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/payouts-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service records corrections against orders that were already invoiced.
type Service interface {
	Record(ctx context.Context, input RecordInput) (*models.PayoutAdjustment, error)
	// RecordTx runs inside the caller's transaction so cancellation handling can commit atomically.
	RecordTx(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.PayoutAdjustment, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

// RecordInput describes a refund or cancellation of an invoiced order.
// AmountCents is the positive refund magnitude; cancellations always use the full order total.
type RecordInput struct {
	OrderID     uuid.UUID
	Type        enums.AdjustmentType
	AmountCents int64
	Reason      string
	Actor       *outbox.ActorRef
}

type ListParams struct {
	OrganizationID *uuid.UUID
	InvoiceID      *uuid.UUID
	Status         *enums.AdjustmentStatus
	Limit          int
	Cursor         string
}

type ListResult struct {
	Items  []models.PayoutAdjustment `json:"items"`
	Cursor string                    `json:"cursor"`
}

// ServiceParams wires adjustment dependencies.
type ServiceParams struct {
	DB          txRunner
	Orders      orders.Repository
	Adjustments Repository
	Outbox      outboxPublisher
	Logger      *logger.Logger
	Metrics     *metrics.PayoutMetrics
	Now         func() time.Time
}

type service struct {
	db      txRunner
	orders  orders.Repository
	repo    Repository
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics *metrics.PayoutMetrics
	now     func() time.Time
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
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		db:      params.DB,
		orders:  params.Orders,
		repo:    params.Adjustments,
		outbox:  params.Outbox,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

func (s *service) Record(ctx context.Context, input RecordInput) (*models.PayoutAdjustment, error) {
	var created *models.PayoutAdjustment
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		adj, err := s.RecordTx(ctx, tx, input)
		if err != nil {
			return err
		}
		created = adj
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) RecordTx(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.PayoutAdjustment, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid adjustment type")
	}

	ordersRepo := s.orders.WithTx(tx)
	repo := s.repo.WithTx(tx)

	order, err := ordersRepo.FindByIDForUpdate(ctx, input.OrderID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.PayoutInvoiceID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has not been invoiced")
	}

	existing, err := repo.FindByOrderID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load adjustment")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already has an adjustment")
	}

	magnitude, err := adjustmentMagnitude(*order, input)
	if err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = defaultReason(input.Type)
	}

	adj := &models.PayoutAdjustment{
		OrganizationID:    order.OrganizationID,
		OrderID:           order.ID,
		OriginalInvoiceID: *order.PayoutInvoiceID,
		Type:              input.Type,
		AmountCents:       -magnitude,
		Reason:            reason,
		Status:            enums.AdjustmentStatusPending,
	}
	if err := repo.Create(ctx, adj); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_payout_adjustments_order_id") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already has an adjustment")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create adjustment")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventPayoutAdjustmentCreated,
		AggregateType: enums.AggregateAdjustment,
		AggregateID:   adj.ID,
		Actor:         input.Actor,
		OccurredAt:    s.now().UTC(),
		Data: payloads.PayoutAdjustmentCreatedEvent{
			AdjustmentID:      adj.ID,
			OrganizationID:    adj.OrganizationID,
			OrderID:           adj.OrderID,
			OriginalInvoiceID: adj.OriginalInvoiceID,
			Type:              adj.Type,
			AmountCents:       adj.AmountCents,
			Summary:           fmt.Sprintf("%s adjustment of %d cents queued for the next payout", strings.ToLower(string(adj.Type)), magnitude),
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit adjustment event")
	}

	s.metrics.IncAdjustment(string(adj.Type))
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"adjustment_id": adj.ID.String(),
			"order_id":      adj.OrderID.String(),
			"amount_cents":  adj.AmountCents,
		})
		s.logg.Info(logCtx, "payout adjustment recorded")
	}
	return adj, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := ListQuery{
		OrganizationID: params.OrganizationID,
		InvoiceID:      params.InvoiceID,
		Status:         params.Status,
		Limit:          params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}
	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list adjustments")
	}
	result := &ListResult{Items: rows}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

// adjustmentMagnitude returns the positive amount to deduct. Refunds can never exceed
// what the order contributed to its invoice.
func adjustmentMagnitude(order models.Order, input RecordInput) (int64, error) {
	total := order.PayoutContribution()
	switch input.Type {
	case enums.AdjustmentTypeCancellation:
		if total <= 0 {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "order total must be positive")
		}
		return total, nil
	case enums.AdjustmentTypeRefund:
		if input.AmountCents <= 0 {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
		}
		if input.AmountCents > total {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds order total").
				WithDetails(map[string]any{"order_total_cents": total, "amount_cents": input.AmountCents})
		}
		return input.AmountCents, nil
	default:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid adjustment type")
	}
}

func defaultReason(t enums.AdjustmentType) string {
	if t == enums.AdjustmentTypeCancellation {
		return "order cancelled after invoicing"
	}
	return "order refunded after invoicing"
}

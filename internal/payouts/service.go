package payouts

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/angelmondragon/payouts-backend/internal/adjustments"
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
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service generates and settles payout invoices.
type Service interface {
	GenerateInvoice(ctx context.Context, input GenerateInput) (*GenerateResult, error)
	// PendingOrganizations lists organizations with invoiceable orders or pending adjustments for period.
	PendingOrganizations(ctx context.Context, period Period) ([]uuid.UUID, error)
	LatestPeriod(now time.Time) (Period, error)
	// ClosedPeriods returns the latest closed period preceded by every earlier window that
	// still holds invoiceable orders, oldest first.
	ClosedPeriods(ctx context.Context, now time.Time) ([]Period, error)
	MarkInvoicePaid(ctx context.Context, input MarkPaidInput) (*models.PayoutInvoice, error)
	GetInvoice(ctx context.Context, invoiceID uuid.UUID, organizationID *uuid.UUID) (*InvoiceDetail, error)
	ListInvoices(ctx context.Context, params ListParams) (*ListResult, error)
}

type GenerateInput struct {
	OrganizationID uuid.UUID
	Period         Period
	Actor          *outbox.ActorRef
}

// GenerateResult reports what a generation run did. Invoice is nil only when Skipped.
type GenerateResult struct {
	Invoice  *models.PayoutInvoice `json:"invoice,omitempty"`
	Existing bool                  `json:"existing"`
	Skipped  bool                  `json:"skipped"`
}

type MarkPaidInput struct {
	InvoiceID        uuid.UUID
	PaymentReference string
	Actor            *outbox.ActorRef
}

type InvoiceDetail struct {
	Invoice     models.PayoutInvoice      `json:"invoice"`
	Orders      []models.Order            `json:"orders"`
	Adjustments []models.PayoutAdjustment `json:"adjustments"`
}

type ListParams struct {
	OrganizationID *uuid.UUID
	Status         *enums.PayoutInvoiceStatus
	Limit          int
	Cursor         string
}

type ListResult struct {
	Items  []models.PayoutInvoice `json:"items"`
	Cursor string                 `json:"cursor"`
}

type ServiceParams struct {
	DB            txRunner
	Orders        orders.Repository
	Adjustments   adjustments.Repository
	Invoices      Repository
	Outbox        outboxPublisher
	FeePercentage decimal.Decimal
	Schedule      string
	Logger        *logger.Logger
	Metrics       *metrics.PayoutMetrics
	Now           func() time.Time
}

type service struct {
	db          txRunner
	orders      orders.Repository
	adjustments adjustments.Repository
	invoices    Repository
	outbox      outboxPublisher
	feePct      decimal.Decimal
	schedule    string
	logg        *logger.Logger
	metrics     *metrics.PayoutMetrics
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
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoices repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.FeePercentage.IsNegative() || params.FeePercentage.GreaterThan(hundred) {
		return nil, fmt.Errorf("fee percentage must be between 0 and 100")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		db:          params.DB,
		orders:      params.Orders,
		adjustments: params.Adjustments,
		invoices:    params.Invoices,
		outbox:      params.Outbox,
		feePct:      params.FeePercentage,
		schedule:    params.Schedule,
		logg:        params.Logger,
		metrics:     params.Metrics,
		now:         now,
	}, nil
}

func (s *service) LatestPeriod(now time.Time) (Period, error) {
	if strings.TrimSpace(s.schedule) == "" {
		return Period{}, pkgerrors.New(pkgerrors.CodeValidation, "invoice schedule not configured")
	}
	period, err := LatestClosedPeriod(s.schedule, now)
	if err != nil {
		return Period{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid invoice schedule")
	}
	return period, nil
}

func (s *service) ClosedPeriods(ctx context.Context, now time.Time) ([]Period, error) {
	latest, err := s.LatestPeriod(now)
	if err != nil {
		return nil, err
	}
	oldest, err := s.orders.OldestInvoiceablePaidAt(ctx, latest.Start)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find oldest invoiceable order")
	}

	periods := []Period{latest}
	if oldest == nil {
		return periods, nil
	}
	p := latest
	for p.Start.After(*oldest) {
		if len(periods) == maxBacklogPeriods {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
					"oldest_paid_at": oldest.UTC().Format(time.RFC3339),
					"backlog_start":  p.Start.Format(time.RFC3339),
				}), "invoice backlog exceeds catch-up window; generate older periods through the admin api")
			}
			break
		}
		p, err = LatestClosedPeriod(s.schedule, p.Start)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid invoice schedule")
		}
		periods = append(periods, p)
	}
	slices.Reverse(periods)
	return periods, nil
}

func (s *service) PendingOrganizations(ctx context.Context, period Period) ([]uuid.UUID, error) {
	withOrders, err := s.orders.ListOrganizationsWithInvoiceableOrders(ctx, period.Start.UTC(), period.End.UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list organizations with orders")
	}
	withAdjustments, err := s.adjustments.ListOrganizationsWithPending(ctx, period.End.UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list organizations with adjustments")
	}

	seen := make(map[uuid.UUID]struct{}, len(withOrders)+len(withAdjustments))
	out := make([]uuid.UUID, 0, len(withOrders)+len(withAdjustments))
	for _, id := range append(withOrders, withAdjustments...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func (s *service) GenerateInvoice(ctx context.Context, input GenerateInput) (*GenerateResult, error) {
	if input.OrganizationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization id required")
	}
	if !input.Period.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "period start must be before period end")
	}
	period := Period{Start: input.Period.Start.UTC(), End: input.Period.End.UTC()}

	var result *GenerateResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := s.generateTx(ctx, tx, input.OrganizationID, period, input.Actor)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		s.metrics.IncInvoice("failed")
		return nil, err
	}

	switch {
	case result.Skipped:
		s.metrics.IncInvoice("skipped")
	case result.Existing:
		s.metrics.IncInvoice("existing")
	default:
		s.metrics.IncInvoice("created")
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"organization_id": input.OrganizationID.String(),
				"invoice_id":      result.Invoice.ID.String(),
				"invoice_number":  result.Invoice.InvoiceNumber,
				"payable_cents":   result.Invoice.PayableAmountCents,
			})
			s.logg.Info(logCtx, "payout invoice generated")
		}
	}
	return result, nil
}

func (s *service) generateTx(ctx context.Context, tx *gorm.DB, orgID uuid.UUID, period Period, actor *outbox.ActorRef) (*GenerateResult, error) {
	invoiceRepo := s.invoices.WithTx(tx)
	ordersRepo := s.orders.WithTx(tx)
	adjustmentRepo := s.adjustments.WithTx(tx)

	existing, err := invoiceRepo.FindByOrgPeriod(ctx, orgID, period.Start, period.End)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup invoice")
	}
	if existing != nil {
		return &GenerateResult{Invoice: existing, Existing: true}, nil
	}

	candidates, err := ordersRepo.ListInvoiceableForUpdate(ctx, orgID, period.Start, period.End)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoiceable orders")
	}
	pending, err := adjustmentRepo.ListPendingForUpdate(ctx, orgID, period.End)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pending adjustments")
	}
	if len(candidates) == 0 && len(pending) == 0 {
		// A concurrent generator may have committed while we waited on the row locks.
		winner, err := invoiceRepo.FindByOrgPeriod(ctx, orgID, period.Start, period.End)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup invoice")
		}
		if winner != nil {
			return &GenerateResult{Invoice: winner, Existing: true}, nil
		}
		return &GenerateResult{Skipped: true}, nil
	}

	totals, err := ComputeTotals(candidates, pending, s.feePct)
	if err != nil {
		return nil, err
	}

	seq, err := invoiceRepo.NextSequence(ctx, orgID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "next invoice sequence")
	}

	invoice := &models.PayoutInvoice{
		OrganizationID:            orgID,
		InvoiceNumber:             InvoiceNumber(orgID, seq),
		Sequence:                  seq,
		PeriodStart:               period.Start,
		PeriodEnd:                 period.End,
		GrossAmountCents:          totals.GrossCents,
		PlatformFeePercentage:     s.feePct,
		PlatformFeeCents:          totals.PlatformFeeCents,
		TotalVoucherDiscountCents: totals.VoucherDiscountCents,
		NetAmountCents:            totals.NetCents,
		AdjustmentTotalCents:      totals.AdjustmentTotalCents,
		PayableAmountCents:        totals.PayableCents,
		OrderCount:                totals.OrderCount,
		ItemCount:                 totals.ItemCount,
		AdjustmentCount:           totals.AdjustmentCount,
		Status:                    enums.PayoutInvoiceStatusPending,
	}
	inserted, err := invoiceRepo.Create(ctx, invoice)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create invoice")
	}
	if !inserted {
		winner, err := invoiceRepo.FindByOrgPeriod(ctx, orgID, period.Start, period.End)
		if err != nil || winner == nil {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "invoice generated concurrently")
		}
		return &GenerateResult{Invoice: winner, Existing: true}, nil
	}

	orderIDs := make([]uuid.UUID, len(candidates))
	for i, order := range candidates {
		orderIDs[i] = order.ID
	}
	assigned, err := ordersRepo.AssignPayoutInvoice(ctx, orderIDs, invoice.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign orders to invoice")
	}
	if assigned != int64(len(orderIDs)) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "orders were invoiced concurrently")
	}

	if len(pending) > 0 {
		adjustmentIDs := make([]uuid.UUID, len(pending))
		for i, adj := range pending {
			adjustmentIDs[i] = adj.ID
		}
		applied, err := adjustmentRepo.MarkApplied(ctx, adjustmentIDs, invoice.ID, s.now().UTC())
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply adjustments")
		}
		if applied != int64(len(adjustmentIDs)) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "adjustments were applied concurrently")
		}
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventPayoutInvoiceCreated,
		AggregateType: enums.AggregatePayoutInvoice,
		AggregateID:   invoice.ID,
		Actor:         actor,
		OccurredAt:    s.now().UTC(),
		Data: payloads.PayoutInvoiceCreatedEvent{
			InvoiceID:          invoice.ID,
			OrganizationID:     orgID,
			InvoiceNumber:      invoice.InvoiceNumber,
			PeriodStart:        period.Start,
			PeriodEnd:          period.End,
			NetAmountCents:     invoice.NetAmountCents,
			PayableAmountCents: invoice.PayableAmountCents,
			OrderCount:         invoice.OrderCount,
			AdjustmentCount:    invoice.AdjustmentCount,
			Summary: fmt.Sprintf("Invoice %s: %d orders, %d adjustments, payable %d cents",
				invoice.InvoiceNumber, invoice.OrderCount, invoice.AdjustmentCount, invoice.PayableAmountCents),
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit invoice event")
	}

	return &GenerateResult{Invoice: invoice}, nil
}

func (s *service) MarkInvoicePaid(ctx context.Context, input MarkPaidInput) (*models.PayoutInvoice, error) {
	if input.InvoiceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}
	reference := strings.TrimSpace(input.PaymentReference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}

	var updated *models.PayoutInvoice
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.invoices.WithTx(tx)
		if _, err := repo.FindByID(ctx, input.InvoiceID); err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
		}

		paidAt := s.now().UTC()
		n, err := repo.MarkPaid(ctx, input.InvoiceID, reference, paidAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark invoice paid")
		}
		if n == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "invoice already paid")
		}

		invoice, err := repo.FindByID(ctx, input.InvoiceID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload invoice")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventPayoutInvoicePaid,
			AggregateType: enums.AggregatePayoutInvoice,
			AggregateID:   invoice.ID,
			Actor:         input.Actor,
			OccurredAt:    paidAt,
			Data: payloads.PayoutInvoicePaidEvent{
				InvoiceID:        invoice.ID,
				OrganizationID:   invoice.OrganizationID,
				InvoiceNumber:    invoice.InvoiceNumber,
				PaymentReference: reference,
				PaidAt:           paidAt,
				Summary:          fmt.Sprintf("Invoice %s paid (%s)", invoice.InvoiceNumber, reference),
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit invoice paid event")
		}
		updated = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) GetInvoice(ctx context.Context, invoiceID uuid.UUID, organizationID *uuid.UUID) (*InvoiceDetail, error) {
	invoice, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	if organizationID != nil && invoice.OrganizationID != *organizationID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
	}

	rows, err := s.orders.ListByInvoice(ctx, invoice.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice orders")
	}
	applied, err := s.adjustments.ListAppliedToInvoice(ctx, invoice.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice adjustments")
	}
	return &InvoiceDetail{Invoice: *invoice, Orders: rows, Adjustments: applied}, nil
}

func (s *service) ListInvoices(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listQuery{
		OrganizationID: params.OrganizationID,
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
	rows, next, err := s.invoices.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invoices")
	}
	result := &ListResult{Items: rows}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

// InvoiceNumber renders PO-<org prefix>-<sequence>, e.g. PO-3F2A9C1B-00012.
func InvoiceNumber(organizationID uuid.UUID, sequence int64) string {
	compact := strings.ToUpper(strings.ReplaceAll(organizationID.String(), "-", ""))
	return fmt.Sprintf("PO-%s-%05d", compact[:8], sequence)
}

package payouts

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/payouts-backend/internal/adjustments"
	"github.com/angelmondragon/payouts-backend/internal/orders"
	dbpkg "github.com/angelmondragon/payouts-backend/pkg/db"
	"github.com/angelmondragon/payouts-backend/pkg/db/dbtest"
	"github.com/angelmondragon/payouts-backend/pkg/db/models"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payouts-backend/pkg/errors"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
	"github.com/angelmondragon/payouts-backend/pkg/outbox"
)

type fixture struct {
	db          *gorm.DB
	svc         Service
	orders      orders.Repository
	adjustments adjustments.Service
}

type fixtureOption func(*ServiceParams)

func newFixture(t *testing.T, opts ...fixtureOption) fixture {
	t.Helper()
	db := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	client := dbpkg.Wrap(db)
	publisher := outbox.NewService(outbox.NewRepository(db), logg)
	ordersRepo := orders.NewRepository(db)
	adjustmentRepo := adjustments.NewRepository(db)

	params := ServiceParams{
		DB:            client,
		Orders:        ordersRepo,
		Adjustments:   adjustmentRepo,
		Invoices:      NewRepository(db),
		Outbox:        publisher,
		FeePercentage: decimal.RequireFromString("10.00"),
		Schedule:      "0 2 * * MON",
		Logger:        logg,
	}
	for _, opt := range opts {
		opt(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)

	adjSvc, err := adjustments.NewService(adjustments.ServiceParams{
		DB:          client,
		Orders:      ordersRepo,
		Adjustments: adjustmentRepo,
		Outbox:      publisher,
		Logger:      logg,
	})
	require.NoError(t, err)

	return fixture{db: db, svc: svc, orders: ordersRepo, adjustments: adjSvc}
}

func seedPaidOrder(t *testing.T, db *gorm.DB, org uuid.UUID, total int64, paidAt time.Time) models.Order {
	t.Helper()
	paidAt = paidAt.UTC()
	order := models.Order{
		OrganizationID:   org,
		CustomerUserID:   uuid.New(),
		PaymentStatus:    enums.PaymentStatusPaid,
		TotalAmountCents: dbtest.Int64(total),
		ItemCount:        1,
		PaidAt:           &paidAt,
	}
	require.NoError(t, db.Create(&order).Error)
	return order
}

// weekPeriods returns two consecutive weekly windows; the second one closes an hour from now.
func weekPeriods() (Period, Period) {
	end := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	mid := end.Add(-7 * 24 * time.Hour)
	start := mid.Add(-7 * 24 * time.Hour)
	return Period{Start: start, End: mid}, Period{Start: mid, End: end}
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestGenerateInvoiceComputesTotalsAndAssignsOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := uuid.New()
	first, _ := weekPeriods()

	o1 := seedPaidOrder(t, f.db, org, 100000, first.Start.Add(time.Hour))
	o2 := seedPaidOrder(t, f.db, org, 50000, first.Start.Add(2*time.Hour))
	require.NoError(t, f.db.Model(&models.Order{}).Where("id = ?", o2.ID).Update("voucher_discount_cents", 2000).Error)
	outside := seedPaidOrder(t, f.db, org, 70000, first.End)

	res, err := f.svc.GenerateInvoice(ctx, GenerateInput{OrganizationID: org, Period: first})
	require.NoError(t, err)
	require.False(t, res.Existing)
	require.False(t, res.Skipped)

	inv := res.Invoice
	require.Equal(t, int64(150000), inv.GrossAmountCents)
	require.Equal(t, int64(15000), inv.PlatformFeeCents)
	require.Equal(t, int64(2000), inv.TotalVoucherDiscountCents)
	require.Equal(t, inv.GrossAmountCents-inv.PlatformFeeCents-inv.TotalVoucherDiscountCents, inv.NetAmountCents)
	require.Equal(t, inv.NetAmountCents, inv.PayableAmountCents)
	require.Equal(t, 2, inv.OrderCount)
	require.Equal(t, enums.PayoutInvoiceStatusPending, inv.Status)
	require.Equal(t, InvoiceNumber(org, 1), inv.InvoiceNumber)

	assigned, err := f.orders.ListByInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, assigned, 2)
	require.ElementsMatch(t, []uuid.UUID{o1.ID, o2.ID}, []uuid.UUID{assigned[0].ID, assigned[1].ID})

	untouched, err := f.orders.FindByID(ctx, outside.ID)
	require.NoError(t, err)
	require.Nil(t, untouched.PayoutInvoiceID)

	var events []models.OutboxEvent
	require.NoError(t, f.db.Where("event_type = ?", enums.EventPayoutInvoiceCreated).Find(&events).Error)
	require.Len(t, events, 1)
	require.Equal(t, inv.ID, events[0].AggregateID)
}

func TestGenerateInvoiceIsIdempotentPerPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := uuid.New()
	first, _ := weekPeriods()
	seedPaidOrder(t, f.db, org, 1000, first.Start.Add(time.Hour))

	res1, err := f.svc.GenerateInvoice(ctx, GenerateInput{OrganizationID: org, Period: first})
	require.NoError(t, err)

	// A late order landing in the same window must not be picked up by a rerun.
	seedPaidOrder(t, f.db, org, 5000, first.Start.Add(2*time.Hour))

	res2, err := f.svc.GenerateInvoice(ctx, GenerateInput{OrganizationID: org, Period: first})
	require.NoError(t, err)
	require.True(t, res2.Existing)
	require.Equal(t, res1.Invoice.ID, res2.Invoice.ID)
	require.Equal(t, int64(1000), res2.Invoice.GrossAmountCents)
	require.Equal(t, int64(1), countRows(t, f.db, &models.PayoutInvoice{}))
	require.Equal(t, int64(1), countRows(t, f.db, &models.OutboxEvent{}))
}

func TestGenerateInvoiceNeverReassignsOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := uuid.New()
	first, _ := weekPeriods()
	order := seedPaidOrder(t, f.db, org, 1000, first.Start.Add(time.Hour))

	res1, err := f.svc.GenerateInvoice(ctx, GenerateInput{OrganizationID: org, Period: first})
	require.NoError(t, err)

	overlapping := Period{Start: first.Start.Add(-time.Hour), End: first.End}
	res2, err := f.svc.GenerateInvoice(ctx, GenerateInput{OrganizationID: org, Period: overlapping})
	require.NoError(t, err)
	require.True(t, res2.Skipped)
	require.Nil(t, res2.Invoice)

	stored, err := f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, res1.Invoice.ID, *stored.PayoutInvoiceID)
}

func TestGenerateInvoiceSkipsEmptyPeriod(t *testing.T) {
	f := newFixture(t)
	first, _ := weekPeriods()

	res, err := f.svc.GenerateInvoice(context.Background(), GenerateInput{OrganizationID: uuid.New(), Period: first})
	require.NoError(t, err)
	require.True(t, res.Skipped)
	require.Zero(t, countRows(t, f.db, &models.PayoutInvoice{}))
}

func TestGenerateInvoiceRollsBackOnNegativeAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := uuid.New()
	first, _ := weekPeriods()
	good := seedPaidOrder(t, f.db, org, 1000, first.Start.Add(time.Hour))
	seedPaidOrder(t, f.db, org, -50, first.Start.Add(2*time.Hour))

	_, err := f.svc.GenerateInvoice(ctx, GenerateInput{OrganizationID: org, Period: first})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	require.Zero(t, countRows(t, f.db, &models.PayoutInvoice{}))
	stored, err := f.orders.FindByID(ctx, good.ID)
	require.NoError(t, err)
	require.Nil(t, stored.PayoutInvoiceID)
}

type racingOrders struct {
	orders.Repository
}

func (r racingOrders) WithTx(tx *gorm.DB) orders.Repository {
	return racingOrders{Repository: r.Repository.WithTx(tx)}
}

func (r racingOrders) AssignPayoutInvoice(ctx context.Context, ids []uuid.UUID, invoiceID uuid.UUID) (int64, error) {
	n, err := r.Repository.AssignPayoutInvoice(ctx, ids, invoiceID)
	return n - 1, err
}

func TestGenerateInvoiceAbortsWhenAssignmentCountDiffers(t *testing.T) {
	f := newFixture(t, func(p *ServiceParams) {
		p.Orders = racingOrders{Repository: p.Orders}
	})
	ctx := context.Background()
	org := uuid.New()
	first, _ := weekPeriods()
	order := seedPaidOrder(t, f.db, org, 1000, first.Start.Add(time.Hour))

	_, err := f.svc.GenerateInvoice(ctx, GenerateInput{OrganizationID: org, Period: first})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())

	require.Zero(t, countRows(t, f.db, &models.PayoutInvoice{}))
	stored, err := f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Nil(t, stored.PayoutInvoiceID)
}

// staleInvoices hides the org+period invoice from the next misses lookups, like a
// transaction that read before a concurrent generator committed.
type staleInvoices struct {
	Repository
	misses *int
}

func (r staleInvoices) WithTx(tx *gorm.DB) Repository {
	return staleInvoices{Repository: r.Repository.WithTx(tx), misses: r.misses}
}

func (r staleInvoices) FindByOrgPeriod(ctx context.Context, org uuid.UUID, start, end time.Time) (*models.PayoutInvoice, error) {
	if *r.misses > 0 {
		*r.misses--
		return nil, nil
	}
	return r.Repository.FindByOrgPeriod(ctx, org, start, end)
}

func TestGenerateInvoiceLosingRaceReturnsExisting(t *testing.T) {
	misses := 0
	f := newFixture(t, func(p *ServiceParams) {
		p.Invoices = staleInvoices{Repository: p.Invoices, misses: &misses}
	})
	ctx := context.Background()
	org := uuid.New()
	first, _ := weekPeriods()
	seedPaidOrder(t, f.db, org, 1000, first.Start.Add(time.Hour))

	winner, err := f.svc.GenerateInvoice(ctx, GenerateInput{OrganizationID: org, Period: first})
	require.NoError(t, err)
	require.False(t, winner.Existing)

	misses = 1
	loser, err := f.svc.GenerateInvoice(ctx, GenerateInput{OrganizationID: org, Period: first})
	require.NoError(t, err)
	require.False(t, loser.Skipped)
	require.True(t, loser.Existing)
	require.Equal(t, winner.Invoice.ID, loser.Invoice.ID)
	require.Zero(t, misses)
	require.EqualValues(t, 1, countRows(t, f.db, &models.PayoutInvoice{}))
}

func TestCancellationAfterInvoiceFoldsIntoNextInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := uuid.New()
	first, second := weekPeriods()

	o1 := seedPaidOrder(t, f.db, org, 100000, first.Start.Add(time.Hour))
	res1, err := f.svc.GenerateInvoice(ctx, GenerateInput{OrganizationID: org, Period: first})
	require.NoError(t, err)
	require.Equal(t, int64(100000), res1.Invoice.GrossAmountCents)

	adj, err := f.adjustments.Record(ctx, adjustments.RecordInput{OrderID: o1.ID, Type: enums.AdjustmentTypeCancellation})
	require.NoError(t, err)
	require.Equal(t, int64(-100000), adj.AmountCents)
	require.Equal(t, res1.Invoice.ID, adj.OriginalInvoiceID)

	o2 := seedPaidOrder(t, f.db, org, 30000, second.Start.Add(time.Hour))
	res2, err := f.svc.GenerateInvoice(ctx, GenerateInput{OrganizationID: org, Period: second})
	require.NoError(t, err)
	inv2 := res2.Invoice
	require.Equal(t, int64(30000), inv2.GrossAmountCents)
	require.Equal(t, int64(27000), inv2.NetAmountCents)
	require.Equal(t, int64(-100000), inv2.AdjustmentTotalCents)
	require.Equal(t, int64(-73000), inv2.PayableAmountCents)
	require.Equal(t, 1, inv2.AdjustmentCount)
	require.Equal(t, InvoiceNumber(org, 2), inv2.InvoiceNumber)

	detail, err := f.svc.GetInvoice(ctx, inv2.ID, &org)
	require.NoError(t, err)
	require.Len(t, detail.Orders, 1)
	require.Equal(t, o2.ID, detail.Orders[0].ID)
	require.Len(t, detail.Adjustments, 1)
	require.Equal(t, enums.AdjustmentStatusApplied, detail.Adjustments[0].Status)

	// The first invoice's stored totals stay frozen.
	detail1, err := f.svc.GetInvoice(ctx, res1.Invoice.ID, nil)
	require.NoError(t, err)
	require.Equal(t, res1.Invoice.NetAmountCents, detail1.Invoice.NetAmountCents)
	require.Zero(t, detail1.Invoice.AdjustmentTotalCents)
}

func TestGenerateInvoiceWithOnlyAdjustments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := uuid.New()
	first, second := weekPeriods()
	o1 := seedPaidOrder(t, f.db, org, 4000, first.Start.Add(time.Hour))
	_, err := f.svc.GenerateInvoice(ctx, GenerateInput{OrganizationID: org, Period: first})
	require.NoError(t, err)
	_, err = f.adjustments.Record(ctx, adjustments.RecordInput{OrderID: o1.ID, Type: enums.AdjustmentTypeRefund, AmountCents: 1500})
	require.NoError(t, err)

	orgs, err := f.svc.PendingOrganizations(ctx, second)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{org}, orgs)

	res, err := f.svc.GenerateInvoice(ctx, GenerateInput{OrganizationID: org, Period: second})
	require.NoError(t, err)
	require.Zero(t, res.Invoice.OrderCount)
	require.Equal(t, int64(-1500), res.Invoice.PayableAmountCents)
}

func TestGenerateInvoiceValidatesInput(t *testing.T) {
	f := newFixture(t)
	first, _ := weekPeriods()

	_, err := f.svc.GenerateInvoice(context.Background(), GenerateInput{Period: first})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = f.svc.GenerateInvoice(context.Background(), GenerateInput{
		OrganizationID: uuid.New(),
		Period:         Period{Start: first.End, End: first.Start},
	})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestMarkInvoicePaidOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := uuid.New()
	first, _ := weekPeriods()
	seedPaidOrder(t, f.db, org, 1000, first.Start.Add(time.Hour))
	res, err := f.svc.GenerateInvoice(ctx, GenerateInput{OrganizationID: org, Period: first})
	require.NoError(t, err)

	paid, err := f.svc.MarkInvoicePaid(ctx, MarkPaidInput{InvoiceID: res.Invoice.ID, PaymentReference: "BANK-123"})
	require.NoError(t, err)
	require.Equal(t, enums.PayoutInvoiceStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	require.Equal(t, "BANK-123", *paid.PaymentReference)
	require.Equal(t, res.Invoice.NetAmountCents, paid.NetAmountCents)

	_, err = f.svc.MarkInvoicePaid(ctx, MarkPaidInput{InvoiceID: res.Invoice.ID, PaymentReference: "BANK-124"})
	require.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())

	_, err = f.svc.MarkInvoicePaid(ctx, MarkPaidInput{InvoiceID: uuid.New(), PaymentReference: "BANK-125"})
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	_, err = f.svc.MarkInvoicePaid(ctx, MarkPaidInput{InvoiceID: res.Invoice.ID})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestGetInvoiceScopesToOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := uuid.New()
	first, _ := weekPeriods()
	seedPaidOrder(t, f.db, org, 1000, first.Start.Add(time.Hour))
	res, err := f.svc.GenerateInvoice(ctx, GenerateInput{OrganizationID: org, Period: first})
	require.NoError(t, err)

	other := uuid.New()
	_, err = f.svc.GetInvoice(ctx, res.Invoice.ID, &other)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	list, err := f.svc.ListInvoices(ctx, ListParams{OrganizationID: &org})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
}

func TestClosedPeriodsCatchesUpOnUninvoicedWindows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := uuid.New()
	now := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)
	monday := func(day int) time.Time { return time.Date(2026, 2, day, 2, 0, 0, 0, time.UTC) }
	latest := Period{Start: time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC), End: time.Date(2026, 3, 9, 2, 0, 0, 0, time.UTC)}

	periods, err := f.svc.ClosedPeriods(ctx, now)
	require.NoError(t, err)
	require.Equal(t, []Period{latest}, periods)

	stale := seedPaidOrder(t, f.db, org, 5000, monday(17).Add(10*time.Hour))
	periods, err = f.svc.ClosedPeriods(ctx, now)
	require.NoError(t, err)
	require.Equal(t, []Period{
		{Start: monday(16), End: monday(23)},
		{Start: monday(23), End: latest.Start},
		latest,
	}, periods)

	res, err := f.svc.GenerateInvoice(ctx, GenerateInput{OrganizationID: org, Period: periods[0]})
	require.NoError(t, err)
	require.Equal(t, 1, res.Invoice.OrderCount)
	stored, err := f.orders.FindByID(ctx, stale.ID)
	require.NoError(t, err)
	require.Equal(t, res.Invoice.ID, *stored.PayoutInvoiceID)

	periods, err = f.svc.ClosedPeriods(ctx, now)
	require.NoError(t, err)
	require.Equal(t, []Period{latest}, periods)
}

func TestClosedPeriodsBoundsTheBacklog(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)
	seedPaidOrder(t, f.db, uuid.New(), 5000, now.AddDate(-1, 0, 0))

	periods, err := f.svc.ClosedPeriods(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, periods, maxBacklogPeriods)
	require.Equal(t, time.Date(2026, 3, 9, 2, 0, 0, 0, time.UTC), periods[len(periods)-1].End)
	for i := 1; i < len(periods); i++ {
		require.Equal(t, periods[i-1].End, periods[i].Start)
	}
}

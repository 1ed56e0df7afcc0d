package vouchers

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/payouts-backend/pkg/db"
	"github.com/angelmondragon/payouts-backend/pkg/db/dbtest"
	"github.com/angelmondragon/payouts-backend/pkg/db/models"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payouts-backend/pkg/errors"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
	"github.com/angelmondragon/payouts-backend/pkg/outbox"
)

type fixture struct {
	db     *gorm.DB
	client *dbpkg.Client
	svc    Service
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	f := &fixture{db: db, client: dbpkg.Wrap(db), now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := NewService(ServiceParams{
		DB:           f.client,
		Vouchers:     NewRepository(db),
		Outbox:       outbox.NewService(outbox.NewRepository(db), logg),
		MonetaryWait: 14 * day,
		Logger:       logg,
		Now:          func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) issue(t *testing.T, order models.Order, initiator enums.CancellationInitiator) (*models.Voucher, bool) {
	t.Helper()
	var (
		voucher *models.Voucher
		created bool
	)
	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		voucher, created, err = f.svc.IssueTx(context.Background(), tx, IssueInput{Order: order, Initiator: initiator})
		return err
	})
	require.NoError(t, err)
	return voucher, created
}

func paidOrder(total int64) models.Order {
	return models.Order{
		ID:               uuid.New(),
		OrganizationID:   uuid.New(),
		CustomerUserID:   uuid.New(),
		PaymentStatus:    enums.PaymentStatusPaid,
		TotalAmountCents: dbtest.Int64(total),
	}
}

func TestIssueSellerVoucherSetsEligibility(t *testing.T) {
	f := newFixture(t)
	order := paidOrder(100000)

	voucher, created := f.issue(t, order, enums.CancellationInitiatorSeller)
	require.True(t, created)
	require.Equal(t, int64(100000), voucher.DiscountValueCents)
	require.Equal(t, enums.VoucherDiscountTypeRefund, voucher.DiscountType)
	require.Equal(t, order.CustomerUserID, voucher.AssignedToUserID)
	require.Equal(t, order.ID, voucher.SourceOrderID)
	require.NotNil(t, voucher.MonetaryRefundEligibleAt)
	require.True(t, voucher.MonetaryRefundEligibleAt.Equal(f.now.Add(14*day)))
	require.Regexp(t, `^RF-[0-9A-F]{12}$`, voucher.Code)

	var events []models.OutboxEvent
	require.NoError(t, f.db.Find(&events).Error)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventVoucherIssued, events[0].EventType)
}

func TestIssueCustomerVoucherNeverEligible(t *testing.T) {
	f := newFixture(t)
	voucher, created := f.issue(t, paidOrder(5000), enums.CancellationInitiatorCustomer)
	require.True(t, created)
	require.Nil(t, voucher.MonetaryRefundEligibleAt)
}

func TestIssueIsIdempotentPerSourceOrder(t *testing.T) {
	f := newFixture(t)
	order := paidOrder(5000)

	first, created := f.issue(t, order, enums.CancellationInitiatorSeller)
	require.True(t, created)
	second, created := f.issue(t, order, enums.CancellationInitiatorSeller)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, f.db.Model(&models.Voucher{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestIssueValidatesInput(t *testing.T) {
	f := newFixture(t)
	cases := map[string]IssueInput{
		"bad initiator": {Order: paidOrder(100), Initiator: "ADMIN"},
		"over total":    {Order: paidOrder(100), Initiator: enums.CancellationInitiatorSeller, AmountCents: 101},
		"no total":      {Order: models.Order{ID: uuid.New()}, Initiator: enums.CancellationInitiatorSeller},
		"no order":      {Initiator: enums.CancellationInitiatorSeller},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
				_, _, err := f.svc.IssueTx(context.Background(), tx, input)
				return err
			})
			require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
		})
	}
}

func TestListForUserDecoratesWithClock(t *testing.T) {
	f := newFixture(t)
	order := paidOrder(5000)
	f.issue(t, order, enums.CancellationInitiatorSeller)
	f.issue(t, paidOrder(700), enums.CancellationInitiatorSeller)

	f.now = f.now.Add(10 * day)
	result, err := f.svc.ListForUser(context.Background(), ListParams{UserID: order.CustomerUserID})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.Equal(t, enums.VoucherStatusActive, result.Items[0].ComputedStatus)
	require.NotNil(t, result.Items[0].DaysUntilEligible)
	require.Equal(t, 4, *result.Items[0].DaysUntilEligible)
}

func TestRedeemConsumesSingleUse(t *testing.T) {
	f := newFixture(t)
	order := paidOrder(5000)
	voucher, _ := f.issue(t, order, enums.CancellationInitiatorSeller)
	ctx := context.Background()

	_, err := f.svc.Redeem(ctx, voucher.Code, uuid.New())
	require.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())

	view, err := f.svc.Redeem(ctx, " "+voucher.Code+" ", order.CustomerUserID)
	require.NoError(t, err)
	require.Equal(t, 1, view.UsedCount)
	require.Equal(t, enums.VoucherStatusUsed, view.ComputedStatus)

	f.now = f.now.Add(30 * day)
	got, err := f.svc.Get(ctx, voucher.ID, order.CustomerUserID)
	require.NoError(t, err)
	require.False(t, got.IsMonetaryRefundEligible)

	_, err = f.svc.Redeem(ctx, voucher.Code, order.CustomerUserID)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	_, err = f.svc.Redeem(ctx, "RF-NOPE", order.CustomerUserID)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestRedeemBlockedByPendingRefundRequest(t *testing.T) {
	f := newFixture(t)
	order := paidOrder(5000)
	voucher, _ := f.issue(t, order, enums.CancellationInitiatorSeller)

	require.NoError(t, f.db.Create(&models.VoucherRefundRequest{
		VoucherID:            voucher.ID,
		RequestedByID:        order.CustomerUserID,
		Status:               enums.RefundRequestStatusPending,
		RequestedAmountCents: 5000,
	}).Error)

	_, err := f.svc.Redeem(context.Background(), voucher.Code, order.CustomerUserID)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

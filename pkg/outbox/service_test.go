package outbox

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/payouts-backend/pkg/db/dbtest"
	"github.com/angelmondragon/payouts-backend/pkg/db/models"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	svc := NewService(NewRepository(db), logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard}))
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.FixedZone("EST", -5*3600)) }
	return svc, db
}

func TestEmitWritesEnvelope(t *testing.T) {
	svc, db := newTestService(t)
	voucherID := uuid.New()
	userID := uuid.New()

	err := svc.Emit(context.Background(), db, DomainEvent{
		EventType:     enums.EventVoucherIssued,
		AggregateType: enums.AggregateVoucher,
		AggregateID:   voucherID,
		Actor:         &ActorRef{UserID: userID, Role: string(enums.ActorRoleCustomer)},
		Data:          map[string]any{"amount_cents": 4500},
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, db.First(&row, "aggregate_id = ?", voucherID).Error)
	require.Equal(t, enums.EventVoucherIssued, row.EventType)
	require.Nil(t, row.PublishedAt)

	var env PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &env))
	require.Equal(t, EnvelopeVersion, env.Version)
	require.NotEmpty(t, env.EventID)
	require.Equal(t, time.UTC, env.OccurredAt.Location())
	require.Equal(t, 15, env.OccurredAt.Hour())
	require.Equal(t, userID, env.Actor.UserID)
	require.JSONEq(t, `{"amount_cents":4500}`, string(env.Data))
}

func TestEmitSkipsDuplicateEventForAggregate(t *testing.T) {
	svc, db := newTestService(t)
	event := DomainEvent{
		EventType:     enums.EventPayoutInvoiceCreated,
		AggregateType: enums.AggregatePayoutInvoice,
		AggregateID:   uuid.New(),
		Data:          struct{}{},
	}

	require.NoError(t, svc.Emit(context.Background(), db, event))
	require.NoError(t, svc.Emit(context.Background(), db, event))

	event.EventType = enums.EventPayoutInvoicePaid
	require.NoError(t, svc.Emit(context.Background(), db, event))

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("aggregate_id = ?", event.AggregateID).Count(&count).Error)
	require.EqualValues(t, 2, count)
}

func TestEmitRejectsInvalidEvents(t *testing.T) {
	svc, db := newTestService(t)

	tests := map[string]DomainEvent{
		"unknown event type": {EventType: "ledger_rebuilt", AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Data: 1},
		"unknown aggregate":  {EventType: enums.EventVoucherIssued, AggregateType: "coupon", AggregateID: uuid.New(), Data: 1},
		"missing aggregate":  {EventType: enums.EventVoucherIssued, AggregateType: enums.AggregateVoucher, Data: 1},
		"missing data":       {EventType: enums.EventVoucherIssued, AggregateType: enums.AggregateVoucher, AggregateID: uuid.New()},
	}
	for name, event := range tests {
		t.Run(name, func(t *testing.T) {
			require.Error(t, svc.Emit(context.Background(), db, event))
		})
	}
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))
}

package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/payouts-backend/pkg/db/models"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
	"github.com/angelmondragon/payouts-backend/pkg/outbox"
	"github.com/angelmondragon/payouts-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/payouts-backend/pkg/outbox/payloads"
)

type capturingRepo struct {
	created []*models.Notification
	err     error
}

func (c *capturingRepo) Create(_ context.Context, n *models.Notification) error {
	if c.err != nil {
		return c.err
	}
	n.ID = uuid.New()
	c.created = append(c.created, n)
	return nil
}

type memoryStore struct {
	keys map[string]bool
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "payouts:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func newTestConsumer(t *testing.T, repo *capturingRepo) (*Consumer, *memoryStore) {
	t.Helper()
	store := &memoryStore{keys: map[string]bool{}}
	guard, err := idempotency.NewGuard(store, ConsumerName, time.Hour)
	require.NoError(t, err)
	consumer, err := NewConsumer(repo, &pubsub.Subscriber{}, guard, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	require.NoError(t, err)
	return consumer, store
}

func domainMessage(t *testing.T, eventType enums.OutboxEventType, eventID uuid.UUID, payload any) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	require.NoError(t, err)
	return &pubsub.Message{
		ID:         uuid.NewString(),
		Data:       body,
		Attributes: map[string]string{"event_type": string(eventType)},
	}
}

func TestConsumerAddressesSellerEventsToOrganization(t *testing.T) {
	repo := &capturingRepo{}
	consumer, _ := newTestConsumer(t, repo)
	orgID := uuid.New()
	invoiceID := uuid.New()
	eventID := uuid.New()

	result := consumer.process(context.Background(), domainMessage(t, enums.EventPayoutInvoiceCreated, eventID, payloads.PayoutInvoiceCreatedEvent{
		InvoiceID:      invoiceID,
		OrganizationID: orgID,
		InvoiceNumber:  "PO-ABC-00001",
		Summary:        "Invoice PO-ABC-00001 for 3 orders",
	}))
	require.True(t, result.ack)
	require.Len(t, repo.created, 1)

	n := repo.created[0]
	require.Equal(t, eventID, n.EventID)
	require.Equal(t, orgID, *n.OrganizationID)
	require.Nil(t, n.UserID)
	require.Equal(t, invoiceID, n.EntityID)
	require.Equal(t, enums.NotificationTypePayout, n.Type)
	require.Equal(t, "Invoice PO-ABC-00001 for 3 orders", n.Message)
}

func TestConsumerAddressesRefundDecisionsToRequester(t *testing.T) {
	repo := &capturingRepo{}
	consumer, _ := newTestConsumer(t, repo)
	requester := uuid.New()
	message := "outside policy"

	result := consumer.process(context.Background(), domainMessage(t, enums.EventRefundRequestResolved, uuid.New(), payloads.RefundRequestResolvedEvent{
		RequestID:     uuid.New(),
		VoucherID:     uuid.New(),
		RequestedByID: requester,
		Status:        enums.RefundRequestStatusRejected,
		AdminMessage:  &message,
		Summary:       "Refund request rejected.",
	}))
	require.True(t, result.ack)
	require.Len(t, repo.created, 1)

	n := repo.created[0]
	require.Equal(t, requester, *n.UserID)
	require.Nil(t, n.OrganizationID)
	require.Equal(t, "Refund request rejected", n.Title)
	require.Contains(t, n.Message, "outside policy")
}

func TestConsumerIgnoresDuplicatesAndUnmappedEvents(t *testing.T) {
	repo := &capturingRepo{}
	consumer, _ := newTestConsumer(t, repo)
	msg := domainMessage(t, enums.EventVoucherIssued, uuid.New(), payloads.VoucherIssuedEvent{
		VoucherID:        uuid.New(),
		Code:             "RF-123456789ABC",
		AssignedToUserID: uuid.New(),
	})

	require.True(t, consumer.process(context.Background(), msg).ack)
	require.True(t, consumer.process(context.Background(), msg).ack)
	require.True(t, consumer.process(context.Background(), domainMessage(t, enums.EventRefundRequestCreated, uuid.New(), payloads.RefundRequestCreatedEvent{})).ack)
	require.Len(t, repo.created, 1)
}

func TestConsumerNacksAndReleasesOnStoreFailure(t *testing.T) {
	repo := &capturingRepo{err: errors.New("db down")}
	consumer, store := newTestConsumer(t, repo)

	result := consumer.process(context.Background(), domainMessage(t, enums.EventPayoutAdjustmentCreated, uuid.New(), payloads.PayoutAdjustmentCreatedEvent{
		AdjustmentID:   uuid.New(),
		OrganizationID: uuid.New(),
		OrderID:        uuid.New(),
		AmountCents:    -500,
	}))
	require.True(t, result.nack)
	require.Empty(t, store.keys)
}

func TestConsumerNacksPayloadWithoutRecipient(t *testing.T) {
	repo := &capturingRepo{}
	consumer, _ := newTestConsumer(t, repo)

	result := consumer.process(context.Background(), domainMessage(t, enums.EventPayoutInvoicePaid, uuid.New(), payloads.PayoutInvoicePaidEvent{
		InvoiceID: uuid.New(),
	}))
	require.True(t, result.nack)
	require.Empty(t, repo.created)
}

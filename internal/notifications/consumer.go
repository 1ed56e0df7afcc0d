package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/payouts-backend/pkg/db/models"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
	"github.com/angelmondragon/payouts-backend/pkg/outbox"
	"github.com/angelmondragon/payouts-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/payouts-backend/pkg/outbox/payloads"
)

// ConsumerName scopes this consumer's idempotency markers.
const ConsumerName = "payout-notifications"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Consumer watches the domain topic and turns payout and voucher events into inbox entries.
type Consumer struct {
	repo         repository
	subscription *pubsub.Subscriber
	guard        *idempotency.Guard
	logg         *logger.Logger
}

// NewConsumer builds a payout notification consumer.
func NewConsumer(repo repository, subscription *pubsub.Subscriber, guard *idempotency.Guard, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		guard:        guard,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	})

	build, ok := builders[eventType]
	if !ok {
		c.logg.Info(logCtx, "skipping event without notification")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	claim, fresh, err := c.guard.Claim(ctx, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if !fresh {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	notification, err := build(envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		_ = claim.Release(ctx)
		return processResult{nack: true}
	}
	notification.EventID = eventID

	if err := c.repo.Create(ctx, notification); err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = claim.Release(ctx)
		return processResult{nack: true}
	}

	c.logg.Info(c.logg.WithFields(logCtx, map[string]any{
		"notification_id": notification.ID.String(),
		"entity_id":       notification.EntityID.String(),
	}), "notification created")
	return processResult{ack: true}
}

type notificationBuilder func(data json.RawMessage) (*models.Notification, error)

var builders = map[enums.OutboxEventType]notificationBuilder{
	enums.EventPayoutInvoiceCreated:    invoiceCreatedNotification,
	enums.EventPayoutInvoicePaid:       invoicePaidNotification,
	enums.EventPayoutAdjustmentCreated: adjustmentNotification,
	enums.EventVoucherIssued:           voucherNotification,
	enums.EventRefundRequestResolved:   refundResolvedNotification,
}

func invoiceCreatedNotification(data json.RawMessage) (*models.Notification, error) {
	var payload payloads.PayoutInvoiceCreatedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if payload.OrganizationID == uuid.Nil {
		return nil, fmt.Errorf("organization id missing")
	}
	return &models.Notification{
		OrganizationID: uuidPtr(payload.OrganizationID),
		Type:           enums.NotificationTypePayout,
		EntityID:       payload.InvoiceID,
		Title:          fmt.Sprintf("Payout invoice %s ready", payload.InvoiceNumber),
		Message:        messageOr(payload.Summary, fmt.Sprintf("Invoice %s covers %d orders.", payload.InvoiceNumber, payload.OrderCount)),
		Link:           stringPtr(fmt.Sprintf("/payouts/invoices/%s", payload.InvoiceID)),
	}, nil
}

func invoicePaidNotification(data json.RawMessage) (*models.Notification, error) {
	var payload payloads.PayoutInvoicePaidEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if payload.OrganizationID == uuid.Nil {
		return nil, fmt.Errorf("organization id missing")
	}
	return &models.Notification{
		OrganizationID: uuidPtr(payload.OrganizationID),
		Type:           enums.NotificationTypePayout,
		EntityID:       payload.InvoiceID,
		Title:          fmt.Sprintf("Payout invoice %s paid", payload.InvoiceNumber),
		Message:        messageOr(payload.Summary, fmt.Sprintf("Payment reference %s.", payload.PaymentReference)),
		Link:           stringPtr(fmt.Sprintf("/payouts/invoices/%s", payload.InvoiceID)),
	}, nil
}

func adjustmentNotification(data json.RawMessage) (*models.Notification, error) {
	var payload payloads.PayoutAdjustmentCreatedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if payload.OrganizationID == uuid.Nil {
		return nil, fmt.Errorf("organization id missing")
	}
	return &models.Notification{
		OrganizationID: uuidPtr(payload.OrganizationID),
		Type:           enums.NotificationTypeAdjustment,
		EntityID:       payload.AdjustmentID,
		Title:          "Payout adjustment recorded",
		Message:        messageOr(payload.Summary, fmt.Sprintf("Order %s will reduce your next payout by %d cents.", payload.OrderID, -payload.AmountCents)),
		Link:           stringPtr(fmt.Sprintf("/payouts/adjustments?order_id=%s", payload.OrderID)),
	}, nil
}

func voucherNotification(data json.RawMessage) (*models.Notification, error) {
	var payload payloads.VoucherIssuedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if payload.AssignedToUserID == uuid.Nil {
		return nil, fmt.Errorf("voucher owner missing")
	}
	return &models.Notification{
		UserID:   uuidPtr(payload.AssignedToUserID),
		Type:     enums.NotificationTypeVoucher,
		EntityID: payload.VoucherID,
		Title:    "You received a refund voucher",
		Message:  messageOr(payload.Summary, fmt.Sprintf("Voucher %s is ready to use.", payload.Code)),
		Link:     stringPtr(fmt.Sprintf("/vouchers/%s", payload.VoucherID)),
	}, nil
}

func refundResolvedNotification(data json.RawMessage) (*models.Notification, error) {
	var payload payloads.RefundRequestResolvedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if payload.RequestedByID == uuid.Nil {
		return nil, fmt.Errorf("requester missing")
	}
	title := "Refund request approved"
	if payload.Status == enums.RefundRequestStatusRejected {
		title = "Refund request rejected"
	}
	message := payload.Summary
	if payload.AdminMessage != nil && strings.TrimSpace(*payload.AdminMessage) != "" {
		message = fmt.Sprintf("%s Note from support: %s", strings.TrimSpace(message), strings.TrimSpace(*payload.AdminMessage))
	}
	return &models.Notification{
		UserID:   uuidPtr(payload.RequestedByID),
		Type:     enums.NotificationTypeRefundRequest,
		EntityID: payload.RequestID,
		Title:    title,
		Message:  messageOr(message, fmt.Sprintf("Your refund request was %s.", strings.ToLower(string(payload.Status)))),
		Link:     stringPtr(fmt.Sprintf("/vouchers/%s", payload.VoucherID)),
	}, nil
}

func messageOr(message, fallback string) string {
	if trimmed := strings.TrimSpace(message); trimmed != "" {
		return trimmed
	}
	return fallback
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

func stringPtr(value string) *string {
	return &value
}

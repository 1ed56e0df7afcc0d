package cancellations

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/payouts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payouts-backend/pkg/errors"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
	"github.com/angelmondragon/payouts-backend/pkg/outbox"
	"github.com/angelmondragon/payouts-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/payouts-backend/pkg/outbox/payloads"
)

// ConsumerName scopes this consumer's idempotency markers.
const ConsumerName = "order-cancellations"

type handler interface {
	Handle(ctx context.Context, event Event) (*Result, error)
}

// Consumer turns order ledger cancellation and refund events into vouchers and adjustments.
type Consumer struct {
	handler      handler
	subscription *pubsub.Subscriber
	guard        *idempotency.Guard
	logg         *logger.Logger
}

func NewConsumer(h handler, subscription *pubsub.Subscriber, guard *idempotency.Guard, logg *logger.Logger) (*Consumer, error) {
	if h == nil {
		return nil, fmt.Errorf("cancellation handler required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("orders subscription required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		handler:      h,
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

	adjustmentType, ok := adjustmentTypeFor(eventType)
	if !ok {
		c.logg.Info(logCtx, "skipping unrelated order event")
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

	var payload payloads.OrderCancellationEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"event_id": eventID.String(),
		"order_id": payload.OrderID.String(),
	})

	claim, fresh, err := c.guard.Claim(ctx, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if !fresh {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	_, err = c.handler.Handle(ctx, Event{
		OrderID:           payload.OrderID,
		Type:              adjustmentType,
		Initiator:         payload.Initiator,
		RefundAmountCents: payload.RefundAmountCents,
		Reason:            payload.Reason,
		Actor:             envelope.Actor,
	})
	if err != nil {
		if !pkgerrors.IsRetryable(err) {
			c.logg.Error(logCtx, "dropping cancellation event", err)
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "cancellation handling failed", err)
		if releaseErr := claim.Release(ctx); releaseErr != nil {
			c.logg.Warn(c.logg.WithField(logCtx, "error", releaseErr.Error()), "idempotency release failed")
		}
		return processResult{nack: true}
	}
	return processResult{ack: true}
}

func adjustmentTypeFor(eventType enums.OutboxEventType) (enums.AdjustmentType, bool) {
	switch eventType {
	case enums.EventOrderCancelled:
		return enums.AdjustmentTypeCancellation, true
	case enums.EventOrderRefunded:
		return enums.AdjustmentTypeRefund, true
	default:
		return "", false
	}
}

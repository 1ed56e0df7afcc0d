// Package registry maps outbox event types to their topic and payload schema.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/payouts-backend/pkg/config"
	"github.com/angelmondragon/payouts-backend/pkg/db/models"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
	"github.com/angelmondragon/payouts-backend/pkg/outbox"
	"github.com/angelmondragon/payouts-backend/pkg/outbox/payloads"
)

// ErrUndeliverable marks rows that will fail the same way on every attempt.
var ErrUndeliverable = errors.New("undeliverable outbox event")

func Undeliverable(err error) error {
	return fmt.Errorf("%w: %w", ErrUndeliverable, err)
}

func IsUndeliverable(err error) bool {
	return errors.Is(err, ErrUndeliverable)
}

type Descriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string

	decode func(json.RawMessage) (any, error)
}

// ResolvedEvent is a validated outbox row with its typed payload.
type ResolvedEvent struct {
	Descriptor Descriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type Registry struct {
	byType map[enums.OutboxEventType]Descriptor
}

func bind[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) Descriptor {
	return Descriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		decode: func(raw json.RawMessage) (any, error) {
			v := new(T)
			if err := json.Unmarshal(raw, v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

// New registers every event this service emits on the domain topic, plus the inbound
// ledger events, which are decoded by consumers but never relayed from here.
func New(cfg config.PubSubConfig) (*Registry, error) {
	domain := strings.TrimSpace(cfg.DomainTopic)
	if domain == "" {
		return nil, errors.New("domain topic is required")
	}
	orders := strings.TrimSpace(cfg.OrdersTopic)
	if orders == "" {
		return nil, errors.New("orders topic is required")
	}

	r := &Registry{byType: map[enums.OutboxEventType]Descriptor{}}
	r.add(
		bind[payloads.PayoutInvoiceCreatedEvent](enums.EventPayoutInvoiceCreated, enums.AggregatePayoutInvoice, domain),
		bind[payloads.PayoutInvoicePaidEvent](enums.EventPayoutInvoicePaid, enums.AggregatePayoutInvoice, domain),
		bind[payloads.PayoutAdjustmentCreatedEvent](enums.EventPayoutAdjustmentCreated, enums.AggregateAdjustment, domain),
		bind[payloads.VoucherIssuedEvent](enums.EventVoucherIssued, enums.AggregateVoucher, domain),
		bind[payloads.RefundRequestCreatedEvent](enums.EventRefundRequestCreated, enums.AggregateRefundRequest, domain),
		bind[payloads.RefundRequestResolvedEvent](enums.EventRefundRequestResolved, enums.AggregateRefundRequest, domain),
		bind[payloads.OrderCancellationEvent](enums.EventOrderCancelled, enums.AggregateOrder, orders),
		bind[payloads.OrderCancellationEvent](enums.EventOrderRefunded, enums.AggregateOrder, orders),
	)
	return r, nil
}

func (r *Registry) add(descs ...Descriptor) {
	for _, d := range descs {
		r.byType[d.EventType] = d
	}
}

// Lookup returns the descriptor registered for eventType.
func (r *Registry) Lookup(eventType enums.OutboxEventType) (Descriptor, bool) {
	d, ok := r.byType[eventType]
	return d, ok
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is undeliverable since the row itself is malformed.
func (r *Registry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.Lookup(event.EventType)
	switch {
	case !ok:
		return nil, Undeliverable(fmt.Errorf("unsupported event type %s", event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, Undeliverable(fmt.Errorf("event %s belongs to %s, row has %s", event.EventType, desc.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, Undeliverable(errors.New("aggregate_id is empty"))
	}

	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &env); err != nil {
		return nil, Undeliverable(fmt.Errorf("envelope: %w", err))
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || string(data) == "null" {
		return nil, Undeliverable(fmt.Errorf("%s has no payload", event.EventType))
	}
	payload, err := desc.decode(data)
	if err != nil {
		return nil, Undeliverable(fmt.Errorf("%s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: payload}, nil
}

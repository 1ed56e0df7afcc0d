package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/payouts-backend/pkg/config"
	"github.com/angelmondragon/payouts-backend/pkg/db/models"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
	"github.com/angelmondragon/payouts-backend/pkg/outbox"
	"github.com/angelmondragon/payouts-backend/pkg/outbox/payloads"
)

func TestRegistryResolveSuccess(t *testing.T) {
	reg := newTestRegistry(t)

	invoiceID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.PayoutInvoiceCreatedEvent{
		InvoiceID:      invoiceID,
		OrganizationID: uuid.New(),
		InvoiceNumber:  "PO-ABCDEF12-00001",
		NetAmountCents: 90000,
	})

	event := models.OutboxEvent{
		EventType:     enums.EventPayoutInvoiceCreated,
		AggregateType: enums.AggregatePayoutInvoice,
		AggregateID:   invoiceID,
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "domain-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.PayoutInvoiceCreatedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.InvoiceID != invoiceID || payload.NetAmountCents != 90000 {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
}

func TestRegistryResolvesInboundLedgerEvents(t *testing.T) {
	reg := newTestRegistry(t)

	orderID := uuid.New()
	event := models.OutboxEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload: mustEnvelope(t, mustMarshal(t, payloads.OrderCancellationEvent{
			OrderID:   orderID,
			Initiator: enums.CancellationInitiatorSeller,
			Reason:    "out of stock",
		})),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := resolved.Payload.(*payloads.OrderCancellationEvent)
	if payload.Initiator != enums.CancellationInitiatorSeller {
		t.Fatalf("unexpected initiator %s", payload.Initiator)
	}
	if resolved.Descriptor.Topic != "orders-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
}

func TestRegistryResolveFailures(t *testing.T) {
	reg := newTestRegistry(t)

	cases := map[string]models.OutboxEvent{
		"unknown event": {
			EventType:     enums.OutboxEventType("ledger_rebuilt"),
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"aggregate mismatch": {
			EventType:     enums.EventVoucherIssued,
			AggregateType: enums.AggregatePayoutInvoice,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"missing aggregate id": {
			EventType:     enums.EventVoucherIssued,
			AggregateType: enums.AggregateVoucher,
			AggregateID:   uuid.Nil,
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"null payload": {
			EventType:     enums.EventRefundRequestResolved,
			AggregateType: enums.AggregateRefundRequest,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte("null")),
		},
		"broken envelope": {
			EventType:     enums.EventRefundRequestResolved,
			AggregateType: enums.AggregateRefundRequest,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"data":`),
		},
	}

	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !IsUndeliverable(err) {
				t.Fatalf("expected undeliverable error, got %v", err)
			}
		})
	}
}

func TestNewRequiresTopics(t *testing.T) {
	if _, err := New(config.PubSubConfig{OrdersTopic: "orders"}); err == nil {
		t.Fatal("expected missing domain topic to fail")
	}
	if _, err := New(config.PubSubConfig{DomainTopic: "domain", OrdersTopic: "  "}); err == nil {
		t.Fatal("expected blank orders topic to fail")
	}
}

func TestLookupCoversEveryEmittedEvent(t *testing.T) {
	reg := newTestRegistry(t)

	for _, eventType := range []enums.OutboxEventType{
		enums.EventPayoutInvoiceCreated,
		enums.EventPayoutInvoicePaid,
		enums.EventPayoutAdjustmentCreated,
		enums.EventVoucherIssued,
		enums.EventRefundRequestCreated,
		enums.EventRefundRequestResolved,
	} {
		desc, ok := reg.Lookup(eventType)
		if !ok {
			t.Fatalf("%s not registered", eventType)
		}
		if desc.Topic != "domain-topic" {
			t.Fatalf("%s routed to %q", eventType, desc.Topic)
		}
	}
}

func TestUndeliverableWrapsCause(t *testing.T) {
	cause := errors.New("bad row")
	err := Undeliverable(cause)
	if !errors.Is(err, cause) || !IsUndeliverable(err) {
		t.Fatalf("expected both sentinel and cause in %v", err)
	}
	if IsUndeliverable(cause) {
		t.Fatal("plain error must stay retryable")
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	cfg := config.PubSubConfig{
		OrdersTopic: "orders-topic",
		DomainTopic: "domain-topic",
	}
	reg, err := New(cfg)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}

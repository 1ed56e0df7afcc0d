package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/payouts-backend/api/middleware"
	"github.com/angelmondragon/payouts-backend/internal/cancellations"
	"github.com/angelmondragon/payouts-backend/pkg/config"
	"github.com/angelmondragon/payouts-backend/pkg/db/models"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payouts-backend/pkg/errors"
)

type stubCancellations struct {
	handleFn func(ctx context.Context, event cancellations.Event) (*cancellations.Result, error)
}

func (s stubCancellations) Handle(ctx context.Context, event cancellations.Event) (*cancellations.Result, error) {
	return s.handleFn(ctx, event)
}

func cancellationRequest(orderID uuid.UUID, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/internal/v1/orders/"+orderID.String()+"/cancellations", strings.NewReader(body))
	ctx := middleware.WithUserID(req.Context(), uuid.NewString())
	req = req.WithContext(middleware.WithRole(ctx, string(enums.ActorRoleSystem)))
	return addRouteParam(req, "orderId", orderID.String())
}

func TestInternalOrderCancellationForwardsEvent(t *testing.T) {
	orderID := uuid.New()
	var captured cancellations.Event
	svc := stubCancellations{handleFn: func(ctx context.Context, event cancellations.Event) (*cancellations.Result, error) {
		captured = event
		return &cancellations.Result{Voucher: &models.Voucher{ID: uuid.New()}, VoucherCreated: true}, nil
	}}

	resp := httptest.NewRecorder()
	InternalOrderCancellation(svc, testLogger())(resp, cancellationRequest(orderID, `{"type":"REFUND","initiator":"SELLER","refund_amount_cents":2500,"reason":"  damaged  "}`))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.OrderID != orderID || captured.Type != enums.AdjustmentTypeRefund || captured.Initiator != enums.CancellationInitiatorSeller {
		t.Fatalf("unexpected event %+v", captured)
	}
	if captured.RefundAmountCents == nil || *captured.RefundAmountCents != 2500 {
		t.Fatalf("refund amount not forwarded: %+v", captured.RefundAmountCents)
	}
	if captured.Reason != "damaged" {
		t.Fatalf("expected sanitized reason, got %q", captured.Reason)
	}
	if captured.Actor == nil || captured.Actor.Role != string(enums.ActorRoleSystem) {
		t.Fatalf("expected system actor, got %+v", captured.Actor)
	}
}

func TestInternalOrderCancellationDuplicateReturnsOK(t *testing.T) {
	svc := stubCancellations{handleFn: func(ctx context.Context, event cancellations.Event) (*cancellations.Result, error) {
		return &cancellations.Result{Voucher: &models.Voucher{ID: uuid.New()}}, nil
	}}

	resp := httptest.NewRecorder()
	InternalOrderCancellation(svc, testLogger())(resp, cancellationRequest(uuid.New(), `{"type":"CANCELLATION","initiator":"CUSTOMER"}`))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestInternalOrderCancellationRejectsUnknownType(t *testing.T) {
	svc := stubCancellations{handleFn: func(ctx context.Context, event cancellations.Event) (*cancellations.Result, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}

	resp := httptest.NewRecorder()
	InternalOrderCancellation(svc, testLogger())(resp, cancellationRequest(uuid.New(), `{"type":"CHARGEBACK","initiator":"CUSTOMER"}`))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestInternalOrderCancellationMapsStateConflict(t *testing.T) {
	svc := stubCancellations{handleFn: func(ctx context.Context, event cancellations.Event) (*cancellations.Result, error) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid")
	}}

	resp := httptest.NewRecorder()
	InternalOrderCancellation(svc, testLogger())(resp, cancellationRequest(uuid.New(), `{"type":"CANCELLATION","initiator":"SELLER"}`))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthReadyReportsDependencyFailure(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}

	resp := httptest.NewRecorder()
	HealthReady(cfg, testLogger(), map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{}})(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	HealthReady(cfg, testLogger(), map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{err: errors.New("down")}})(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code == http.StatusOK {
		t.Fatal("expected readiness failure when redis is down")
	}
	if !strings.Contains(resp.Body.String(), "DEPENDENCY") {
		t.Fatalf("expected dependency error code, got %s", resp.Body.String())
	}
}

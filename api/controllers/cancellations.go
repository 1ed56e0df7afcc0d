package controllers

import (
	"net/http"

	"github.com/angelmondragon/payouts-backend/api/middleware"
	"github.com/angelmondragon/payouts-backend/api/responses"
	"github.com/angelmondragon/payouts-backend/api/validators"
	"github.com/angelmondragon/payouts-backend/internal/cancellations"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payouts-backend/pkg/errors"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
)

type orderCancellationRequest struct {
	Type              string `json:"type" validate:"required,oneof=CANCELLATION REFUND"`
	Initiator         string `json:"initiator" validate:"required,oneof=CUSTOMER SELLER"`
	RefundAmountCents *int64 `json:"refund_amount_cents" validate:"omitempty,gt=0"`
	Reason            string `json:"reason" validate:"max=500"`
}

// InternalOrderCancellation lets the order ledger report a cancellation or refund synchronously.
// It applies the same transaction as the Pub/Sub consumer.
func InternalOrderCancellation(svc cancellations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellations service unavailable"))
			return
		}

		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body orderCancellationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		adjustmentType, err := enums.ParseAdjustmentType(body.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid type"))
			return
		}
		initiator, err := enums.ParseCancellationInitiator(body.Initiator)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid initiator"))
			return
		}

		result, err := svc.Handle(r.Context(), cancellations.Event{
			OrderID:           orderID,
			Type:              adjustmentType,
			Initiator:         initiator,
			RefundAmountCents: body.RefundAmountCents,
			Reason:            validators.SanitizeString(body.Reason, 500),
			Actor:             actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusOK
		if result.VoucherCreated {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, map[string]any{
			"voucher":         result.Voucher,
			"voucher_created": result.VoucherCreated,
			"adjustment":      result.Adjustment,
		})
	}
}

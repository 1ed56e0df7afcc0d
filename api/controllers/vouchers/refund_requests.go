package vouchers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/payouts-backend/api/middleware"
	"github.com/angelmondragon/payouts-backend/api/responses"
	"github.com/angelmondragon/payouts-backend/api/validators"
	"github.com/angelmondragon/payouts-backend/internal/refundrequests"
	"github.com/angelmondragon/payouts-backend/pkg/db/models"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payouts-backend/pkg/errors"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
	"github.com/angelmondragon/payouts-backend/pkg/pagination"
)

type createRefundRequest struct {
	VoucherID            string `json:"voucher_id" validate:"required,uuid"`
	RequestedAmountCents int64  `json:"requested_amount_cents" validate:"gt=0"`
}

type resolveRefundRequest struct {
	Message *string `json:"message" validate:"omitempty,max=1000"`
}

// CreateRefundRequest files a monetary refund request for an eligible voucher.
func CreateRefundRequest(svc refundrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund requests service unavailable"))
			return
		}
		userID, err := middleware.UserUUIDFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createRefundRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		voucherID, err := uuid.Parse(body.VoucherID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid voucher id"))
			return
		}

		request, err := svc.Create(r.Context(), refundrequests.CreateInput{
			VoucherID: voucherID,
			Requester: refundrequests.Requester{
				UserID: userID,
				Email:  middleware.EmailFromContext(r.Context()),
				Name:   middleware.NameFromContext(r.Context()),
			},
			RequestedAmountCents: body.RequestedAmountCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, request)
	}
}

// ListMyRefundRequests pages through the caller's own refund requests.
func ListMyRefundRequests(svc refundrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund requests service unavailable"))
			return
		}
		userID, err := middleware.UserUUIDFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := refundListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListMine(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// WithdrawRefundRequest lets the requester retract a pending request.
func WithdrawRefundRequest(svc refundrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund requests service unavailable"))
			return
		}
		userID, err := middleware.UserUUIDFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Withdraw(r.Context(), requestID, userID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"withdrawn": true})
	}
}

// AdminListRefundRequests pages through refund requests, optionally filtered by status.
func AdminListRefundRequests(svc refundrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund requests service unavailable"))
			return
		}
		params, err := refundListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminRefundRequestDetail(svc refundrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund requests service unavailable"))
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.Get(r.Context(), requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}

// AdminApproveRefundRequest approves a pending request and retires its voucher.
func AdminApproveRefundRequest(svc refundrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return resolveRefundRequestHandler(svc, logg, enums.RefundRequestStatusApproved)
}

// AdminRejectRefundRequest rejects a pending request; a message is required.
func AdminRejectRefundRequest(svc refundrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return resolveRefundRequestHandler(svc, logg, enums.RefundRequestStatusRejected)
}

func resolveRefundRequestHandler(svc refundrequests.Service, logg *logger.Logger, decision enums.RefundRequestStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund requests service unavailable"))
			return
		}
		reviewerID, err := middleware.UserUUIDFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body resolveRefundRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.Message != nil {
			trimmed := validators.SanitizeString(*body.Message, 1000)
			body.Message = &trimmed
		}

		input := refundrequests.ResolveInput{
			RequestID:  requestID,
			ReviewerID: reviewerID,
			Message:    body.Message,
		}
		var request *models.VoucherRefundRequest
		if decision == enums.RefundRequestStatusApproved {
			request, err = svc.Approve(r.Context(), input)
		} else {
			request, err = svc.Reject(r.Context(), input)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}

func refundListParams(r *http.Request) (refundrequests.ListParams, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return refundrequests.ListParams{}, err
	}
	status, err := validators.ParseQueryEnum(r, "status", enums.ParseRefundRequestStatus)
	if err != nil {
		return refundrequests.ListParams{}, err
	}
	return refundrequests.ListParams{
		Status: status,
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}

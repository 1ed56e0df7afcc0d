package payouts

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/payouts-backend/api/middleware"
	"github.com/angelmondragon/payouts-backend/api/responses"
	"github.com/angelmondragon/payouts-backend/api/validators"
	"github.com/angelmondragon/payouts-backend/internal/adjustments"
	internalpayouts "github.com/angelmondragon/payouts-backend/internal/payouts"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payouts-backend/pkg/errors"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
	"github.com/angelmondragon/payouts-backend/pkg/pagination"
)

type generateInvoiceRequest struct {
	OrganizationID string     `json:"organization_id" validate:"required,uuid"`
	PeriodStart    *time.Time `json:"period_start"`
	PeriodEnd      *time.Time `json:"period_end"`
}

type markPaidRequest struct {
	PaymentReference string `json:"payment_reference" validate:"required,max=255"`
}

// AdminGenerateInvoice closes a billing period for one organization. Without explicit bounds the
// most recently closed scheduled period is used.
func AdminGenerateInvoice(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body generateInvoiceRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orgID, err := uuid.Parse(body.OrganizationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid organization id"))
			return
		}

		var period internalpayouts.Period
		switch {
		case body.PeriodStart == nil && body.PeriodEnd == nil:
			period, err = svc.LatestPeriod(time.Now())
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		case body.PeriodStart != nil && body.PeriodEnd != nil:
			period = internalpayouts.Period{Start: body.PeriodStart.UTC(), End: body.PeriodEnd.UTC()}
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "period_start and period_end must be supplied together"))
			return
		}

		result, err := svc.GenerateInvoice(r.Context(), internalpayouts.GenerateInput{
			OrganizationID: orgID,
			Period:         period,
			Actor:          actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusOK
		if result.Invoice != nil && !result.Existing {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// AdminMarkInvoicePaid records the settlement reference for a pending invoice.
func AdminMarkInvoicePaid(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoiceID, err := validators.ParseUUIDParam(r, "invoiceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body markPaidRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := svc.MarkInvoicePaid(r.Context(), internalpayouts.MarkPaidInput{
			InvoiceID:        invoiceID,
			PaymentReference: validators.SanitizeString(body.PaymentReference, 255),
			Actor:            actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, invoice)
	}
}

// AdminListInvoices pages through invoices across organizations.
func AdminListInvoices(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		orgID, err := validators.ParseQueryUUID(r, "organization_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listInvoices(svc, logg, w, r, orgID)
	}
}

// AdminInvoiceDetail returns any invoice with its orders and applied adjustments.
func AdminInvoiceDetail(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		invoiceDetail(svc, logg, w, r, nil)
	}
}

// SellerListInvoices pages through the caller organization's invoices.
func SellerListInvoices(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		orgID, err := middleware.OrganizationUUIDFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listInvoices(svc, logg, w, r, &orgID)
	}
}

// SellerInvoiceDetail returns an invoice owned by the caller organization.
func SellerInvoiceDetail(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		orgID, err := middleware.OrganizationUUIDFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoiceDetail(svc, logg, w, r, &orgID)
	}
}

// AdminListAdjustments pages through adjustments with optional organization, invoice and status filters.
func AdminListAdjustments(svc adjustments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "adjustments service unavailable"))
			return
		}
		orgID, err := validators.ParseQueryUUID(r, "organization_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listAdjustments(svc, logg, w, r, orgID)
	}
}

// SellerListAdjustments pages through the caller organization's adjustments.
func SellerListAdjustments(svc adjustments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "adjustments service unavailable"))
			return
		}
		orgID, err := middleware.OrganizationUUIDFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listAdjustments(svc, logg, w, r, &orgID)
	}
}

func listInvoices(svc internalpayouts.Service, logg *logger.Logger, w http.ResponseWriter, r *http.Request, orgID *uuid.UUID) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	status, err := validators.ParseQueryEnum(r, "status", enums.ParsePayoutInvoiceStatus)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}

	result, err := svc.ListInvoices(r.Context(), internalpayouts.ListParams{
		OrganizationID: orgID,
		Status:         status,
		Limit:          limit,
		Cursor:         strings.TrimSpace(r.URL.Query().Get("cursor")),
	})
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, result)
}

func invoiceDetail(svc internalpayouts.Service, logg *logger.Logger, w http.ResponseWriter, r *http.Request, orgID *uuid.UUID) {
	invoiceID, err := validators.ParseUUIDParam(r, "invoiceId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	detail, err := svc.GetInvoice(r.Context(), invoiceID, orgID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, detail)
}

func listAdjustments(svc adjustments.Service, logg *logger.Logger, w http.ResponseWriter, r *http.Request, orgID *uuid.UUID) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	invoiceID, err := validators.ParseQueryUUID(r, "invoice_id")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	status, err := validators.ParseQueryEnum(r, "status", enums.ParseAdjustmentStatus)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}

	result, err := svc.List(r.Context(), adjustments.ListParams{
		OrganizationID: orgID,
		InvoiceID:      invoiceID,
		Status:         status,
		Limit:          limit,
		Cursor:         strings.TrimSpace(r.URL.Query().Get("cursor")),
	})
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, result)
}

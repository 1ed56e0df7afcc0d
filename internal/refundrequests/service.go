package refundrequests

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/payouts-backend/internal/vouchers"
	dbpkg "github.com/angelmondragon/payouts-backend/pkg/db"
	"github.com/angelmondragon/payouts-backend/pkg/db/models"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payouts-backend/pkg/errors"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
	"github.com/angelmondragon/payouts-backend/pkg/metrics"
	"github.com/angelmondragon/payouts-backend/pkg/outbox"
	"github.com/angelmondragon/payouts-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/payouts-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service runs the customer request / admin review workflow for cashing out vouchers.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.VoucherRefundRequest, error)
	Approve(ctx context.Context, input ResolveInput) (*models.VoucherRefundRequest, error)
	Reject(ctx context.Context, input ResolveInput) (*models.VoucherRefundRequest, error)
	Withdraw(ctx context.Context, requestID, userID uuid.UUID) error
	Get(ctx context.Context, requestID uuid.UUID) (*models.VoucherRefundRequest, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	ListMine(ctx context.Context, userID uuid.UUID, params ListParams) (*ListResult, error)
}

type Requester struct {
	UserID uuid.UUID
	Email  string
	Name   string
}

type CreateInput struct {
	VoucherID            uuid.UUID
	Requester            Requester
	RequestedAmountCents int64
}

type ResolveInput struct {
	RequestID  uuid.UUID
	ReviewerID uuid.UUID
	Message    *string
}

type ListParams struct {
	Status *enums.RefundRequestStatus
	Limit  int
	Cursor string
}

type ListResult struct {
	Items  []models.VoucherRefundRequest `json:"items"`
	Cursor string                        `json:"cursor"`
}

type ServiceParams struct {
	DB       txRunner
	Requests Repository
	Vouchers vouchers.Repository
	Outbox   outboxPublisher
	Logger   *logger.Logger
	Metrics  *metrics.PayoutMetrics
	Now      func() time.Time
}

type service struct {
	db       txRunner
	repo     Repository
	vouchers vouchers.Repository
	outbox   outboxPublisher
	logg     *logger.Logger
	metrics  *metrics.PayoutMetrics
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Requests == nil {
		return nil, fmt.Errorf("refund requests repository required")
	}
	if params.Vouchers == nil {
		return nil, fmt.Errorf("vouchers repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		db:       params.DB,
		repo:     params.Requests,
		vouchers: params.Vouchers,
		outbox:   params.Outbox,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.VoucherRefundRequest, error) {
	if input.VoucherID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher id required")
	}
	if input.Requester.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "requester required")
	}

	var created *models.VoucherRefundRequest
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		voucherRepo := s.vouchers.WithTx(tx)

		voucher, err := voucherRepo.FindByIDForUpdate(ctx, input.VoucherID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
		}
		if voucher.AssignedToUserID != input.Requester.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "voucher belongs to another user")
		}

		approved, err := repo.HasApprovedForVoucher(ctx, voucher.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check approved requests")
		}
		if approved {
			return pkgerrors.New(pkgerrors.CodeConflict, "refund already resolved for this voucher")
		}
		pending, err := repo.FindPendingForVoucher(ctx, voucher.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending requests")
		}
		if pending != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "a refund request is already pending for this voucher").
				WithDetails(map[string]any{"request_id": pending.ID})
		}

		now := s.now().UTC()
		status := vouchers.DeriveStatus(*voucher, now)
		if !status.IsMonetaryRefundEligible {
			return pkgerrors.New(pkgerrors.CodeIneligible, "voucher is not eligible for a monetary refund").
				WithDetails(map[string]any{
					"days_until_eligible": status.DaysUntilEligible,
					"is_used":             status.IsUsed,
				})
		}
		if input.RequestedAmountCents <= 0 || input.RequestedAmountCents > voucher.DiscountValueCents {
			return pkgerrors.New(pkgerrors.CodeValidation, "requested amount must be positive and at most the voucher value").
				WithDetails(map[string]any{"max_amount_cents": voucher.DiscountValueCents})
		}

		request := &models.VoucherRefundRequest{
			VoucherID:            voucher.ID,
			RequestedByID:        input.Requester.UserID,
			Status:               enums.RefundRequestStatusPending,
			RequestedAmountCents: input.RequestedAmountCents,
			VoucherSnapshot: models.VoucherSnapshot{
				Code:                     voucher.Code,
				DiscountValueCents:       voucher.DiscountValueCents,
				CancellationInitiator:    voucher.CancellationInitiator,
				SourceOrderID:            voucher.SourceOrderID,
				MonetaryRefundEligibleAt: voucher.MonetaryRefundEligibleAt,
			},
			RequesterSnapshot: models.RequesterSnapshot{
				UserID: input.Requester.UserID,
				Email:  strings.TrimSpace(input.Requester.Email),
				Name:   strings.TrimSpace(input.Requester.Name),
			},
		}
		if err := repo.Create(ctx, request); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_refund_requests_active_voucher") {
				return pkgerrors.New(pkgerrors.CodeConflict, "a refund request is already pending for this voucher")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund request")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventRefundRequestCreated,
			AggregateType: enums.AggregateRefundRequest,
			AggregateID:   request.ID,
			Actor:         &outbox.ActorRef{UserID: input.Requester.UserID, Role: string(enums.ActorRoleCustomer)},
			OccurredAt:    now,
			Data: payloads.RefundRequestCreatedEvent{
				RequestID:            request.ID,
				VoucherID:            voucher.ID,
				RequestedByID:        request.RequestedByID,
				RequestedAmountCents: request.RequestedAmountCents,
				Summary:              fmt.Sprintf("Refund of %d cents requested for voucher %s", request.RequestedAmountCents, voucher.Code),
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit refund request event")
		}
		created = request
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) Approve(ctx context.Context, input ResolveInput) (*models.VoucherRefundRequest, error) {
	return s.resolve(ctx, input, enums.RefundRequestStatusApproved)
}

func (s *service) Reject(ctx context.Context, input ResolveInput) (*models.VoucherRefundRequest, error) {
	if input.Message == nil || strings.TrimSpace(*input.Message) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "admin message required when rejecting")
	}
	return s.resolve(ctx, input, enums.RefundRequestStatusRejected)
}

func (s *service) resolve(ctx context.Context, input ResolveInput, status enums.RefundRequestStatus) (*models.VoucherRefundRequest, error) {
	if input.RequestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	if input.ReviewerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "reviewer required")
	}
	message := normalizeMessage(input.Message)

	var resolved *models.VoucherRefundRequest
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		request, err := repo.FindByIDForUpdate(ctx, input.RequestID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "refund request not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund request")
		}
		if request.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeConflict, "refund request already resolved").
				WithDetails(map[string]any{"status": request.Status})
		}

		now := s.now().UTC()
		n, err := repo.Resolve(ctx, request.ID, resolution{
			Status:       status,
			ReviewedByID: input.ReviewerID,
			AdminMessage: message,
			ReviewedAt:   now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve refund request")
		}
		if n == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "refund request already resolved")
		}

		if status == enums.RefundRequestStatusApproved {
			marked, err := s.vouchers.WithTx(tx).MarkRefunded(ctx, request.VoucherID, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark voucher refunded")
			}
			if marked == 0 {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "voucher was already used")
			}
		}

		request, err = repo.FindByID(ctx, request.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload refund request")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventRefundRequestResolved,
			AggregateType: enums.AggregateRefundRequest,
			AggregateID:   request.ID,
			Actor:         &outbox.ActorRef{UserID: input.ReviewerID, Role: string(enums.ActorRoleAdmin)},
			OccurredAt:    now,
			Data: payloads.RefundRequestResolvedEvent{
				RequestID:     request.ID,
				VoucherID:     request.VoucherID,
				RequestedByID: request.RequestedByID,
				Status:        status,
				ReviewedByID:  input.ReviewerID,
				AdminMessage:  message,
				Summary:       resolutionSummary(request, status),
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit refund resolution event")
		}
		resolved = request
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncRefundDecision(string(status))
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"refund_request_id": resolved.ID.String(),
			"voucher_id":        resolved.VoucherID.String(),
			"status":            string(status),
		})
		s.logg.Info(logCtx, "refund request resolved")
	}
	return resolved, nil
}

func (s *service) Withdraw(ctx context.Context, requestID, userID uuid.UUID) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		request, err := repo.FindByIDForUpdate(ctx, requestID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "refund request not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund request")
		}
		if request.RequestedByID != userID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "refund request not found")
		}
		if request.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeConflict, "refund request already resolved")
		}
		n, err := repo.Withdraw(ctx, requestID, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "withdraw refund request")
		}
		if n == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "refund request already resolved")
		}
		return nil
	})
}

func (s *service) Get(ctx context.Context, requestID uuid.UUID) (*models.VoucherRefundRequest, error) {
	request, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "refund request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund request")
	}
	return request, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	return s.list(ctx, params, nil)
}

func (s *service) ListMine(ctx context.Context, userID uuid.UUID, params ListParams) (*ListResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	return s.list(ctx, params, &userID)
}

func (s *service) list(ctx context.Context, params ListParams, requestedBy *uuid.UUID) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.List(ctx, listQuery{
		Status:        params.Status,
		RequestedByID: requestedBy,
		Limit:         params.Limit,
		Cursor:        cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list refund requests")
	}
	result := &ListResult{Items: rows}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func normalizeMessage(message *string) *string {
	if message == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*message)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func resolutionSummary(request *models.VoucherRefundRequest, status enums.RefundRequestStatus) string {
	if status == enums.RefundRequestStatusApproved {
		return fmt.Sprintf("Your refund of %d cents for voucher %s was approved", request.RequestedAmountCents, request.VoucherSnapshot.Code)
	}
	return fmt.Sprintf("Your refund request for voucher %s was declined", request.VoucherSnapshot.Code)
}

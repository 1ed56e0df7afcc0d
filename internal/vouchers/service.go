package vouchers

import (
	"context"
	"fmt"
	"strings"
	"time"

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

// Service issues refund vouchers and serves the customer's voucher wallet.
type Service interface {
	// IssueTx creates the voucher for a cancelled order, or returns the existing one with created=false.
	IssueTx(ctx context.Context, tx *gorm.DB, input IssueInput) (*models.Voucher, bool, error)
	Get(ctx context.Context, voucherID, userID uuid.UUID) (*View, error)
	ListForUser(ctx context.Context, params ListParams) (*ListResult, error)
	Redeem(ctx context.Context, code string, userID uuid.UUID) (*View, error)
}

type IssueInput struct {
	Order     models.Order
	Initiator enums.CancellationInitiator
	// AmountCents defaults to the order total when zero.
	AmountCents int64
	Actor       *outbox.ActorRef
}

type ListParams struct {
	UserID uuid.UUID
	Limit  int
	Cursor string
}

type ListResult struct {
	Items  []View `json:"items"`
	Cursor string `json:"cursor"`
}

type ServiceParams struct {
	DB            txRunner
	Vouchers      Repository
	Outbox        outboxPublisher
	MonetaryWait  time.Duration
	Logger        *logger.Logger
	Metrics       *metrics.PayoutMetrics
	Now           func() time.Time
	CodeGenerator func() string
}

type service struct {
	db      txRunner
	repo    Repository
	outbox  outboxPublisher
	wait    time.Duration
	logg    *logger.Logger
	metrics *metrics.PayoutMetrics
	now     func() time.Time
	code    func() string
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Vouchers == nil {
		return nil, fmt.Errorf("vouchers repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.MonetaryWait < 0 {
		return nil, fmt.Errorf("monetary refund wait must not be negative")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	code := params.CodeGenerator
	if code == nil {
		code = GenerateCode
	}
	return &service{
		db:      params.DB,
		repo:    params.Vouchers,
		outbox:  params.Outbox,
		wait:    params.MonetaryWait,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
		code:    code,
	}, nil
}

// GenerateCode returns a refund voucher code such as RF-9C1B7D443F2A.
func GenerateCode() string {
	compact := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "RF-" + compact[:12]
}

func (s *service) IssueTx(ctx context.Context, tx *gorm.DB, input IssueInput) (*models.Voucher, bool, error) {
	if input.Order.ID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if !input.Initiator.IsValid() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "invalid cancellation initiator")
	}
	amount := input.AmountCents
	if amount == 0 {
		amount = input.Order.Total()
	}
	if amount <= 0 || amount > input.Order.Total() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "voucher amount must be positive and within the order total")
	}

	repo := s.repo.WithTx(tx)
	existing, err := repo.FindBySourceOrderID(ctx, input.Order.ID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup voucher")
	}
	if existing != nil {
		return existing, false, nil
	}

	now := s.now().UTC()
	voucher := &models.Voucher{
		Code:                  s.code(),
		DiscountType:          enums.VoucherDiscountTypeRefund,
		DiscountValueCents:    amount,
		AssignedToUserID:      input.Order.CustomerUserID,
		OrganizationID:        input.Order.OrganizationID,
		CancellationInitiator: input.Initiator,
		SourceOrderID:         input.Order.ID,
		UsageLimit:            1,
		IsActive:              true,
		ValidFrom:             now,
	}
	if input.Initiator == enums.CancellationInitiatorSeller {
		eligibleAt := now.Add(s.wait)
		voucher.MonetaryRefundEligibleAt = &eligibleAt
	}

	if err := repo.Create(ctx, voucher); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_vouchers_source_order_id") {
			return nil, false, pkgerrors.New(pkgerrors.CodeConflict, "voucher already issued for order")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create voucher")
	}

	summary := fmt.Sprintf("Voucher %s worth %d cents issued for a cancelled order", voucher.Code, amount)
	if voucher.MonetaryRefundEligibleAt != nil {
		summary += fmt.Sprintf("; cash refund may be requested from %s", voucher.MonetaryRefundEligibleAt.Format("2006-01-02"))
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventVoucherIssued,
		AggregateType: enums.AggregateVoucher,
		AggregateID:   voucher.ID,
		Actor:         input.Actor,
		OccurredAt:    now,
		Data: payloads.VoucherIssuedEvent{
			VoucherID:                voucher.ID,
			Code:                     voucher.Code,
			AssignedToUserID:         voucher.AssignedToUserID,
			SourceOrderID:            voucher.SourceOrderID,
			DiscountValueCents:       voucher.DiscountValueCents,
			CancellationInitiator:    voucher.CancellationInitiator,
			MonetaryRefundEligibleAt: voucher.MonetaryRefundEligibleAt,
			Summary:                  summary,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit voucher event")
	}

	s.metrics.IncVoucherIssued(string(voucher.CancellationInitiator))
	return voucher, true, nil
}

func (s *service) Get(ctx context.Context, voucherID, userID uuid.UUID) (*View, error) {
	voucher, err := s.repo.FindByID(ctx, voucherID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
	}
	if voucher.AssignedToUserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found")
	}
	return &View{Voucher: *voucher, Status: DeriveStatus(*voucher, s.now())}, nil
}

func (s *service) ListForUser(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.ListForUser(ctx, params.UserID, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vouchers")
	}
	result := &ListResult{Items: Decorate(rows, s.now())}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) Redeem(ctx context.Context, code string, userID uuid.UUID) (*View, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher code required")
	}

	var redeemed *models.Voucher
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		voucher, err := repo.FindByCodeForUpdate(ctx, code)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
		}
		if voucher.AssignedToUserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "voucher belongs to another user")
		}

		now := s.now().UTC()
		status := DeriveStatus(*voucher, now)
		if status.ComputedStatus != enums.VoucherStatusActive {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "voucher is %s", status.ComputedStatus)
		}
		pending, err := repo.HasPendingRefundRequest(ctx, voucher.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check refund requests")
		}
		if pending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "voucher has a pending refund request")
		}

		n, err := repo.IncrementUsage(ctx, voucher.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redeem voucher")
		}
		if n == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "voucher already used")
		}
		redeemed, err = repo.FindByID(ctx, voucher.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload voucher")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "voucher_id", redeemed.ID.String()), "voucher redeemed")
	}
	return &View{Voucher: *redeemed, Status: DeriveStatus(*redeemed, s.now())}, nil
}

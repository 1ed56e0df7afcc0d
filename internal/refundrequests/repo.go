package refundrequests

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/payouts-backend/pkg/db/models"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
	"github.com/angelmondragon/payouts-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists voucher refund requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.VoucherRefundRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.VoucherRefundRequest, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.VoucherRefundRequest, error)
	FindPendingForVoucher(ctx context.Context, voucherID uuid.UUID) (*models.VoucherRefundRequest, error)
	HasApprovedForVoucher(ctx context.Context, voucherID uuid.UUID) (bool, error)
	// Resolve moves a PENDING request to a terminal status; zero rows means someone else got there first.
	Resolve(ctx context.Context, id uuid.UUID, update resolution) (int64, error)
	Withdraw(ctx context.Context, id, requesterID uuid.UUID) (int64, error)
	List(ctx context.Context, query listQuery) ([]models.VoucherRefundRequest, *pagination.Cursor, error)
}

type resolution struct {
	Status       enums.RefundRequestStatus
	ReviewedByID uuid.UUID
	AdminMessage *string
	ReviewedAt   time.Time
}

type listQuery struct {
	Status        *enums.RefundRequestStatus
	RequestedByID *uuid.UUID
	VoucherID     *uuid.UUID
	Limit         int
	Cursor        *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.VoucherRefundRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.VoucherRefundRequest, error) {
	var request models.VoucherRefundRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.VoucherRefundRequest, error) {
	var request models.VoucherRefundRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) FindPendingForVoucher(ctx context.Context, voucherID uuid.UUID) (*models.VoucherRefundRequest, error) {
	var request models.VoucherRefundRequest
	err := r.db.WithContext(ctx).
		Where("voucher_id = ? AND status = ?", voucherID, enums.RefundRequestStatusPending).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &request, nil
}

func (r *repository) HasApprovedForVoucher(ctx context.Context, voucherID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.VoucherRefundRequest{}).
		Where("voucher_id = ? AND status = ?", voucherID, enums.RefundRequestStatusApproved).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) Resolve(ctx context.Context, id uuid.UUID, update resolution) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VoucherRefundRequest{}).
		Where("id = ? AND status = ?", id, enums.RefundRequestStatusPending).
		Updates(map[string]any{
			"status":         update.Status,
			"reviewed_by_id": update.ReviewedByID,
			"reviewed_at":    update.ReviewedAt,
			"admin_message":  update.AdminMessage,
			"updated_at":     update.ReviewedAt,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) Withdraw(ctx context.Context, id, requesterID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND requested_by_id = ? AND status = ?", id, requesterID, enums.RefundRequestStatusPending).
		Delete(&models.VoucherRefundRequest{})
	return res.RowsAffected, res.Error
}

func (r *repository) List(ctx context.Context, query listQuery) ([]models.VoucherRefundRequest, *pagination.Cursor, error) {
	q := r.db.WithContext(ctx).Model(&models.VoucherRefundRequest{})
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}
	if query.RequestedByID != nil {
		q = q.Where("requested_by_id = ?", *query.RequestedByID)
	}
	if query.VoucherID != nil {
		q = q.Where("voucher_id = ?", *query.VoucherID)
	}

	var rows []models.VoucherRefundRequest
	if err := pagination.Seek(q, query.Cursor, query.Limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Page(rows, query.Limit, func(req models.VoucherRefundRequest) (time.Time, uuid.UUID) {
		return req.CreatedAt, req.ID
	})
	return page, next, nil
}

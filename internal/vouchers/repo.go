package vouchers

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

// Repository persists refund vouchers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, voucher *models.Voucher) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Voucher, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Voucher, error)
	FindByCodeForUpdate(ctx context.Context, code string) (*models.Voucher, error)
	FindBySourceOrderID(ctx context.Context, orderID uuid.UUID) (*models.Voucher, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Voucher, *pagination.Cursor, error)
	HasPendingRefundRequest(ctx context.Context, voucherID uuid.UUID) (bool, error)
	// IncrementUsage consumes one use while the voucher is active and below its limit.
	IncrementUsage(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
	// MarkRefunded exhausts an unused voucher and deactivates it after a cash refund.
	MarkRefunded(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
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

func (r *repository) Create(ctx context.Context, voucher *models.Voucher) error {
	return r.db.WithContext(ctx).Create(voucher).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Voucher, error) {
	var voucher models.Voucher
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&voucher).Error; err != nil {
		return nil, err
	}
	return &voucher, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Voucher, error) {
	var voucher models.Voucher
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&voucher).Error
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

func (r *repository) FindByCodeForUpdate(ctx context.Context, code string) (*models.Voucher, error) {
	var voucher models.Voucher
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", code).
		First(&voucher).Error
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

func (r *repository) FindBySourceOrderID(ctx context.Context, orderID uuid.UUID) (*models.Voucher, error) {
	var voucher models.Voucher
	err := r.db.WithContext(ctx).Where("source_order_id = ?", orderID).First(&voucher).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &voucher, nil
}

func (r *repository) ListForUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Voucher, *pagination.Cursor, error) {
	q := r.db.WithContext(ctx).Where("assigned_to_user_id = ?", userID)
	var rows []models.Voucher
	if err := pagination.Seek(q, cursor, limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Page(rows, limit, voucherKey)
	return page, next, nil
}

func voucherKey(v models.Voucher) (time.Time, uuid.UUID) { return v.CreatedAt, v.ID }

func (r *repository) HasPendingRefundRequest(ctx context.Context, voucherID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.VoucherRefundRequest{}).
		Where("voucher_id = ? AND status = ?", voucherID, enums.RefundRequestStatusPending).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) IncrementUsage(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("id = ? AND is_active = ? AND used_count < usage_limit", id, true).
		Updates(map[string]any{
			"used_count": gorm.Expr("used_count + 1"),
			"updated_at": at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) MarkRefunded(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("id = ? AND used_count = 0", id).
		Updates(map[string]any{
			"used_count": gorm.Expr("used_count + 1"),
			"is_active":  false,
			"updated_at": at,
		})
	return res.RowsAffected, res.Error
}

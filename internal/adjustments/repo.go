package adjustments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/payouts-backend/pkg/db/models"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
	"github.com/angelmondragon/payouts-backend/pkg/pagination"
)

// Repository persists payout adjustments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, adjustment *models.PayoutAdjustment) error
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.PayoutAdjustment, error)
	ListPendingForUpdate(ctx context.Context, organizationID uuid.UUID, createdBefore time.Time) ([]models.PayoutAdjustment, error)
	MarkApplied(ctx context.Context, ids []uuid.UUID, invoiceID uuid.UUID, appliedAt time.Time) (int64, error)
	ListAppliedToInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.PayoutAdjustment, error)
	ListOrganizationsWithPending(ctx context.Context, createdBefore time.Time) ([]uuid.UUID, error)
	List(ctx context.Context, params ListQuery) ([]models.PayoutAdjustment, *pagination.Cursor, error)
}

// ListQuery filters adjustment listings.
type ListQuery struct {
	OrganizationID *uuid.UUID
	InvoiceID      *uuid.UUID
	Status         *enums.AdjustmentStatus
	Limit          int
	Cursor         *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an adjustments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, adjustment *models.PayoutAdjustment) error {
	return r.db.WithContext(ctx).Create(adjustment).Error
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.PayoutAdjustment, error) {
	var adjustment models.PayoutAdjustment
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&adjustment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &adjustment, nil
}

func (r *repository) ListPendingForUpdate(ctx context.Context, organizationID uuid.UUID, createdBefore time.Time) ([]models.PayoutAdjustment, error) {
	var rows []models.PayoutAdjustment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("organization_id = ?", organizationID).
		Where("status = ?", enums.AdjustmentStatusPending).
		Where("created_at < ?", createdBefore).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// MarkApplied flips PENDING rows to APPLIED; rows that already moved are left alone and not counted.
func (r *repository) MarkApplied(ctx context.Context, ids []uuid.UUID, invoiceID uuid.UUID, appliedAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.PayoutAdjustment{}).
		Where("id IN ?", ids).
		Where("status = ?", enums.AdjustmentStatusPending).
		Updates(map[string]any{
			"status":                enums.AdjustmentStatusApplied,
			"adjustment_invoice_id": invoiceID,
			"applied_at":            appliedAt,
			"updated_at":            appliedAt,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ListAppliedToInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.PayoutAdjustment, error) {
	var rows []models.PayoutAdjustment
	err := r.db.WithContext(ctx).
		Where("adjustment_invoice_id = ?", invoiceID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListOrganizationsWithPending(ctx context.Context, createdBefore time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.PayoutAdjustment{}).
		Where("status = ?", enums.AdjustmentStatusPending).
		Where("created_at < ?", createdBefore).
		Distinct("organization_id").
		Order("organization_id").
		Pluck("organization_id", &ids).Error
	return ids, err
}

func (r *repository) List(ctx context.Context, params ListQuery) ([]models.PayoutAdjustment, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.PayoutAdjustment{})
	if params.OrganizationID != nil {
		query = query.Where("organization_id = ?", *params.OrganizationID)
	}
	if params.InvoiceID != nil {
		query = query.Where("original_invoice_id = ? OR adjustment_invoice_id = ?", *params.InvoiceID, *params.InvoiceID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var rows []models.PayoutAdjustment
	if err := pagination.Seek(query, params.Cursor, params.Limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Page(rows, params.Limit, func(a models.PayoutAdjustment) (time.Time, uuid.UUID) {
		return a.CreatedAt, a.ID
	})
	return page, next, nil
}

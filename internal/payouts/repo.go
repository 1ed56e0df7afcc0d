package payouts

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/angelmondragon/payouts-backend/pkg/db/models"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
	"github.com/angelmondragon/payouts-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists payout invoices.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.PayoutInvoice, error)
	FindByOrgPeriod(ctx context.Context, organizationID uuid.UUID, periodStart, periodEnd time.Time) (*models.PayoutInvoice, error)
	NextSequence(ctx context.Context, organizationID uuid.UUID) (int64, error)
	// Create reports false when another writer already holds the org+period slot.
	Create(ctx context.Context, invoice *models.PayoutInvoice) (bool, error)
	MarkPaid(ctx context.Context, id uuid.UUID, reference string, paidAt time.Time) (int64, error)
	List(ctx context.Context, query listQuery) ([]models.PayoutInvoice, *pagination.Cursor, error)
}

type listQuery struct {
	OrganizationID *uuid.UUID
	Status         *enums.PayoutInvoiceStatus
	Limit          int
	Cursor         *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payout invoice repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PayoutInvoice, error) {
	var invoice models.PayoutInvoice
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) FindByOrgPeriod(ctx context.Context, organizationID uuid.UUID, periodStart, periodEnd time.Time) (*models.PayoutInvoice, error) {
	var invoice models.PayoutInvoice
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Where("period_start = ? AND period_end = ?", periodStart, periodEnd).
		First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) NextSequence(ctx context.Context, organizationID uuid.UUID) (int64, error) {
	var current sql.NullInt64
	row := r.db.WithContext(ctx).
		Model(&models.PayoutInvoice{}).
		Where("organization_id = ?", organizationID).
		Select("MAX(sequence)").
		Row()
	if err := row.Scan(&current); err != nil {
		return 0, err
	}
	return current.Int64 + 1, nil
}

func (r *repository) Create(ctx context.Context, invoice *models.PayoutInvoice) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "organization_id"}, {Name: "period_start"}, {Name: "period_end"}},
			DoNothing: true,
		}).
		Create(invoice)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, reference string, paidAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PayoutInvoice{}).
		Where("id = ? AND status = ?", id, enums.PayoutInvoiceStatusPending).
		Updates(map[string]any{
			"status":            enums.PayoutInvoiceStatusPaid,
			"paid_at":           paidAt,
			"payment_reference": reference,
			"updated_at":        paidAt,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) List(ctx context.Context, query listQuery) ([]models.PayoutInvoice, *pagination.Cursor, error) {
	q := r.db.WithContext(ctx).Model(&models.PayoutInvoice{})
	if query.OrganizationID != nil {
		q = q.Where("organization_id = ?", *query.OrganizationID)
	}
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}

	var rows []models.PayoutInvoice
	if err := pagination.Seek(q, query.Cursor, query.Limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Page(rows, query.Limit, func(inv models.PayoutInvoice) (time.Time, uuid.UUID) {
		return inv.CreatedAt, inv.ID
	})
	return page, next, nil
}

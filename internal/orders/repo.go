package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/payouts-backend/pkg/db/models"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListInvoiceableForUpdate locks the paid, uninvoiced, uncancelled orders whose payment landed in [start, end).
func (r *repository) ListInvoiceableForUpdate(ctx context.Context, organizationID uuid.UUID, periodStart, periodEnd time.Time) ([]models.Order, error) {
	var rows []models.Order
	err := r.invoiceable(ctx, periodStart, periodEnd).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("organization_id = ?", organizationID).
		Order("paid_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListOrganizationsWithInvoiceableOrders(ctx context.Context, periodStart, periodEnd time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.invoiceable(ctx, periodStart, periodEnd).
		Model(&models.Order{}).
		Distinct("organization_id").
		Order("organization_id").
		Pluck("organization_id", &ids).Error
	return ids, err
}

// OldestInvoiceablePaidAt returns the earliest payment time among invoiceable orders paid
// before the given instant, or nil when there are none.
func (r *repository) OldestInvoiceablePaidAt(ctx context.Context, before time.Time) (*time.Time, error) {
	var rows []models.Order
	err := r.uninvoiced(ctx).
		Where("paid_at < ?", before).
		Order("paid_at ASC").
		Limit(1).
		Find(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0].PaidAt, nil
}

func (r *repository) uninvoiced(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Where("payment_status = ?", enums.PaymentStatusPaid).
		Where("payout_invoice_id IS NULL").
		Where("cancelled_at IS NULL")
}

func (r *repository) invoiceable(ctx context.Context, periodStart, periodEnd time.Time) *gorm.DB {
	return r.uninvoiced(ctx).Where("paid_at >= ? AND paid_at < ?", periodStart, periodEnd)
}

func (r *repository) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("payout_invoice_id = ?", invoiceID).
		Order("paid_at ASC").
		Find(&rows).Error
	return rows, err
}

// AssignPayoutInvoice only touches orders that are still unassigned; callers compare the
// affected count against the ids they selected.
func (r *repository) AssignPayoutInvoice(ctx context.Context, orderIDs []uuid.UUID, invoiceID uuid.UUID) (int64, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id IN ?", orderIDs).
		Where("payout_invoice_id IS NULL").
		Updates(map[string]any{
			"payout_invoice_id": invoiceID,
			"updated_at":        time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) MarkCancelled(ctx context.Context, orderID uuid.UUID, cancelledAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND cancelled_at IS NULL", orderID).
		Updates(map[string]any{
			"cancelled_at": cancelledAt,
			"updated_at":   time.Now().UTC(),
		}).Error
}

func (r *repository) RecordRefund(ctx context.Context, orderID uuid.UUID, amountCents int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payout_invoice_id IS NULL AND refunded_cents = 0", orderID).
		Updates(map[string]any{
			"refunded_cents": amountCents,
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/payouts-backend/pkg/db/models"
)

// Repository is the payouts engine's view of the order ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListInvoiceableForUpdate(ctx context.Context, organizationID uuid.UUID, periodStart, periodEnd time.Time) ([]models.Order, error)
	ListOrganizationsWithInvoiceableOrders(ctx context.Context, periodStart, periodEnd time.Time) ([]uuid.UUID, error)
	OldestInvoiceablePaidAt(ctx context.Context, before time.Time) (*time.Time, error)
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.Order, error)
	AssignPayoutInvoice(ctx context.Context, orderIDs []uuid.UUID, invoiceID uuid.UUID) (int64, error)
	MarkCancelled(ctx context.Context, orderID uuid.UUID, cancelledAt time.Time) error
	// RecordRefund nets a refund out of an order that has not been invoiced yet.
	// It reports false when the order was already invoiced or refunded.
	RecordRefund(ctx context.Context, orderID uuid.UUID, amountCents int64) (bool, error)
}

// Package bootstrap assembles the repositories and services shared by the api, worker and cron binaries.
package bootstrap

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/payouts-backend/internal/adjustments"
	"github.com/angelmondragon/payouts-backend/internal/cancellations"
	"github.com/angelmondragon/payouts-backend/internal/notifications"
	"github.com/angelmondragon/payouts-backend/internal/orders"
	"github.com/angelmondragon/payouts-backend/internal/payouts"
	"github.com/angelmondragon/payouts-backend/internal/refundrequests"
	"github.com/angelmondragon/payouts-backend/internal/vouchers"
	"github.com/angelmondragon/payouts-backend/pkg/config"
	"github.com/angelmondragon/payouts-backend/pkg/db"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
	"github.com/angelmondragon/payouts-backend/pkg/metrics"
	"github.com/angelmondragon/payouts-backend/pkg/outbox"
)

type Services struct {
	OutboxRepo        *outbox.Repository
	NotificationsRepo notifications.Repository

	Payouts        payouts.Service
	Adjustments    adjustments.Service
	Vouchers       vouchers.Service
	RefundRequests refundrequests.Service
	Cancellations  cancellations.Service
	Notifications  notifications.Service
}

// NewServices wires every domain service against one database client. A nil registry disables metrics.
func NewServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, reg prometheus.Registerer) (*Services, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("database client required")
	}

	conn := dbClient.DB()
	payoutMetrics := metrics.NewPayoutMetrics(reg)

	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, logg)

	ordersRepo := orders.NewRepository(conn)
	adjustmentsRepo := adjustments.NewRepository(conn)
	invoicesRepo := payouts.NewRepository(conn)
	vouchersRepo := vouchers.NewRepository(conn)
	requestsRepo := refundrequests.NewRepository(conn)
	notificationsRepo := notifications.NewRepository(conn)

	payoutsSvc, err := payouts.NewService(payouts.ServiceParams{
		DB:            dbClient,
		Orders:        ordersRepo,
		Adjustments:   adjustmentsRepo,
		Invoices:      invoicesRepo,
		Outbox:        outboxSvc,
		FeePercentage: cfg.Payouts.PlatformFeePercentage,
		Schedule:      cfg.Payouts.InvoiceSchedule,
		Logger:        logg,
		Metrics:       payoutMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("payouts service: %w", err)
	}

	adjustmentsSvc, err := adjustments.NewService(adjustments.ServiceParams{
		DB:          dbClient,
		Orders:      ordersRepo,
		Adjustments: adjustmentsRepo,
		Outbox:      outboxSvc,
		Logger:      logg,
		Metrics:     payoutMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("adjustments service: %w", err)
	}

	vouchersSvc, err := vouchers.NewService(vouchers.ServiceParams{
		DB:           dbClient,
		Vouchers:     vouchersRepo,
		Outbox:       outboxSvc,
		MonetaryWait: cfg.Payouts.MonetaryRefundWait(),
		Logger:       logg,
		Metrics:      payoutMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("vouchers service: %w", err)
	}

	refundSvc, err := refundrequests.NewService(refundrequests.ServiceParams{
		DB:       dbClient,
		Requests: requestsRepo,
		Vouchers: vouchersRepo,
		Outbox:   outboxSvc,
		Logger:   logg,
		Metrics:  payoutMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("refund requests service: %w", err)
	}

	cancellationsSvc, err := cancellations.NewService(cancellations.ServiceParams{
		DB:          dbClient,
		Orders:      ordersRepo,
		Adjustments: adjustmentsRepo,
		Vouchers:    vouchersSvc,
		Recorder:    adjustmentsSvc,
		Logger:      logg,
	})
	if err != nil {
		return nil, fmt.Errorf("cancellations service: %w", err)
	}

	notificationsSvc, err := notifications.NewService(notificationsRepo)
	if err != nil {
		return nil, fmt.Errorf("notifications service: %w", err)
	}

	return &Services{
		OutboxRepo:        outboxRepo,
		NotificationsRepo: notificationsRepo,
		Payouts:           payoutsSvc,
		Adjustments:       adjustmentsSvc,
		Vouchers:          vouchersSvc,
		RefundRequests:    refundSvc,
		Cancellations:     cancellationsSvc,
		Notifications:     notificationsSvc,
	}, nil
}

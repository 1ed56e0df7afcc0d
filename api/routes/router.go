package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/payouts-backend/api/controllers"
	payoutcontrollers "github.com/angelmondragon/payouts-backend/api/controllers/payouts"
	vouchercontrollers "github.com/angelmondragon/payouts-backend/api/controllers/vouchers"
	"github.com/angelmondragon/payouts-backend/api/middleware"
	"github.com/angelmondragon/payouts-backend/internal/adjustments"
	"github.com/angelmondragon/payouts-backend/internal/cancellations"
	"github.com/angelmondragon/payouts-backend/internal/notifications"
	"github.com/angelmondragon/payouts-backend/internal/payouts"
	"github.com/angelmondragon/payouts-backend/internal/refundrequests"
	"github.com/angelmondragon/payouts-backend/internal/vouchers"
	"github.com/angelmondragon/payouts-backend/pkg/config"
	"github.com/angelmondragon/payouts-backend/pkg/enums"
	"github.com/angelmondragon/payouts-backend/pkg/logger"
	"github.com/angelmondragon/payouts-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	readiness map[string]controllers.Pinger,
	redisClient *redis.Client,
	metricsHandler http.Handler,
	payoutsService payouts.Service,
	adjustmentsService adjustments.Service,
	vouchersService vouchers.Service,
	refundRequestsService refundrequests.Service,
	cancellationsService cancellations.Service,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	redeemPolicy := middleware.NewRateLimitPolicy("redeem", cfg.RateLimit.Window, cfg.RateLimit.RedeemLimit)
	refundRequestPolicy := middleware.NewRateLimitPolicy("refund-requests", cfg.RateLimit.Window, cfg.RateLimit.RefundRequestLimit)

	// a nil *redis.Client must not reach the middleware as a non-nil interface
	var idempotencyStore redis.IdempotencyStore
	var rateStore middleware.RateLimitStore
	if redisClient != nil {
		idempotencyStore = redisClient
		rateStore = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1/notifications", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleSeller, enums.ActorRoleCustomer))
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleSeller))
			r.Use(middleware.RequireOrganization(logg))
			r.Route("/v1/payout-invoices", func(r chi.Router) {
				r.Get("/", payoutcontrollers.SellerListInvoices(payoutsService, logg))
				r.Get("/{invoiceId}", payoutcontrollers.SellerInvoiceDetail(payoutsService, logg))
			})
			r.Get("/v1/payout-adjustments", payoutcontrollers.SellerListAdjustments(adjustmentsService, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleCustomer))
			r.Route("/v1/vouchers", func(r chi.Router) {
				r.Get("/", vouchercontrollers.List(vouchersService, logg))
				r.With(middleware.RateLimit(redeemPolicy, rateStore, logg)).Post("/redeem", vouchercontrollers.Redeem(vouchersService, logg))
				r.Get("/{voucherId}", vouchercontrollers.Detail(vouchersService, logg))
			})
			r.Route("/v1/refund-requests", func(r chi.Router) {
				r.Get("/", vouchercontrollers.ListMyRefundRequests(refundRequestsService, logg))
				r.With(middleware.RateLimit(refundRequestPolicy, rateStore, logg)).Post("/", vouchercontrollers.CreateRefundRequest(refundRequestsService, logg))
				r.Post("/{requestId}/withdraw", vouchercontrollers.WithdrawRefundRequest(refundRequestsService, logg))
			})
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
		r.Use(middleware.Idempotency(idempotencyStore, logg))
		r.Get("/ping", controllers.PrivatePing())
		r.Route("/v1/payout-invoices", func(r chi.Router) {
			r.Get("/", payoutcontrollers.AdminListInvoices(payoutsService, logg))
			r.Post("/generate", payoutcontrollers.AdminGenerateInvoice(payoutsService, logg))
			r.Get("/{invoiceId}", payoutcontrollers.AdminInvoiceDetail(payoutsService, logg))
			r.Post("/{invoiceId}/mark-paid", payoutcontrollers.AdminMarkInvoicePaid(payoutsService, logg))
		})
		r.Get("/v1/payout-adjustments", payoutcontrollers.AdminListAdjustments(adjustmentsService, logg))
		r.Route("/v1/refund-requests", func(r chi.Router) {
			r.Get("/", vouchercontrollers.AdminListRefundRequests(refundRequestsService, logg))
			r.Get("/{requestId}", vouchercontrollers.AdminRefundRequestDetail(refundRequestsService, logg))
			r.Post("/{requestId}/approve", vouchercontrollers.AdminApproveRefundRequest(refundRequestsService, logg))
			r.Post("/{requestId}/reject", vouchercontrollers.AdminRejectRefundRequest(refundRequestsService, logg))
		})
	})

	r.Route("/api/internal", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleSystem, enums.ActorRoleAdmin))
		r.Use(middleware.Idempotency(idempotencyStore, logg))
		r.Post("/v1/orders/{orderId}/cancellations", controllers.InternalOrderCancellation(cancellationsService, logg))
	})

	return r
}

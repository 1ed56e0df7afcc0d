package config

const EnvPrefix = "PAYOUTS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv = "PAYOUTS_APP_ENV"
	EnvPort   = "PAYOUTS_APP_PORT"

	EnvDBDSN  = "PAYOUTS_DB_DSN"
	EnvDBHost = "PAYOUTS_DB_HOST"
	EnvDBUser = "PAYOUTS_DB_USER"
	EnvDBName = "PAYOUTS_DB_NAME"

	EnvRedisURL = "PAYOUTS_REDIS_URL"

	EnvJWTSecret  = "PAYOUTS_JWT_SECRET"
	EnvJWTIssuer  = "PAYOUTS_JWT_ISSUER"
	EnvJWTExpMins = "PAYOUTS_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "PAYOUTS_GCP_PROJECT_ID"

	EnvPubSubOrdersTopic      = "PAYOUTS_PUBSUB_ORDERS_TOPIC"
	EnvPubSubOrdersSub        = "PAYOUTS_PUBSUB_ORDERS_SUBSCRIPTION"
	EnvPubSubDomainTopic      = "PAYOUTS_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubNotificationsSub = "PAYOUTS_PUBSUB_NOTIFICATION_SUBSCRIPTION"

	EnvPlatformFeePercentage  = "PAYOUTS_PLATFORM_FEE_PERCENTAGE"
	EnvMonetaryRefundWaitDays = "PAYOUTS_MONETARY_REFUND_WAIT_DAYS"
	EnvInvoiceSchedule        = "PAYOUTS_INVOICE_SCHEDULE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

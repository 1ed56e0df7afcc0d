package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Payouts      PayoutsConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Payouts.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PAYOUTS_APP_ENV" required:"true"`
	Port         string `envconfig:"PAYOUTS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PAYOUTS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PAYOUTS_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string `envconfig:"PAYOUTS_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"PAYOUTS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PAYOUTS_DB_DSN"`
	Driver string `envconfig:"PAYOUTS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PAYOUTS_DB_HOST"`
	LegacyPort     int    `envconfig:"PAYOUTS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PAYOUTS_DB_USER"`
	LegacyPassword string `envconfig:"PAYOUTS_DB_PASSWORD"`
	LegacyName     string `envconfig:"PAYOUTS_DB_NAME"`
	LegacySSLMode  string `envconfig:"PAYOUTS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PAYOUTS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PAYOUTS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PAYOUTS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PAYOUTS_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"PAYOUTS_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PAYOUTS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PAYOUTS_REDIS_ADDR"`
	Password     string        `envconfig:"PAYOUTS_REDIS_PASSWORD"`
	DB           int           `envconfig:"PAYOUTS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PAYOUTS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PAYOUTS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PAYOUTS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PAYOUTS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PAYOUTS_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyNamespace string        `envconfig:"PAYOUTS_REDIS_KEY_NAMESPACE" default:"payouts"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PAYOUTS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PAYOUTS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PAYOUTS_JWT_EXPIRATION_MINUTES" required:"true"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PAYOUTS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PAYOUTS_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"PAYOUTS_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PAYOUTS_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"PAYOUTS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PAYOUTS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"PAYOUTS_PUBSUB_ORDERS_TOPIC" required:"true"`
	// OrdersSubscription receives cancellation and refund events from the order ledger.
	OrdersSubscription string `envconfig:"PAYOUTS_PUBSUB_ORDERS_SUBSCRIPTION" required:"true"`
	// DomainTopic carries outbox events published by this service.
	DomainTopic              string `envconfig:"PAYOUTS_PUBSUB_DOMAIN_TOPIC" required:"true"`
	NotificationSubscription string `envconfig:"PAYOUTS_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`

	// EmulatorHost points the client at a local emulator without credentials, e.g. "localhost:8085".
	EmulatorHost           string `envconfig:"PAYOUTS_PUBSUB_EMULATOR_HOST"`
	MaxOutstandingMessages int    `envconfig:"PAYOUTS_PUBSUB_MAX_OUTSTANDING_MESSAGES" default:"100"`
	ReceiveGoroutines      int    `envconfig:"PAYOUTS_PUBSUB_RECEIVE_GOROUTINES" default:"2"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PAYOUTS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PAYOUTS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PAYOUTS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	// PublishRate caps relayed events per second; zero or less disables the cap.
	PublishRate float64 `envconfig:"PAYOUTS_OUTBOX_PUBLISH_RATE" default:"200"`

	Retention    time.Duration `envconfig:"PAYOUTS_OUTBOX_RETENTION" default:"720h"`
	DLQRetention time.Duration `envconfig:"PAYOUTS_OUTBOX_DLQ_RETENTION" default:"2160h"`
}

type PayoutsConfig struct {
	// PlatformFeePercentage is expressed in percent, e.g. "10.00" keeps 10% of gross.
	PlatformFeePercentage decimal.Decimal `envconfig:"PAYOUTS_PLATFORM_FEE_PERCENTAGE" default:"10.00"`
	MonetaryRefundWaitDays int            `envconfig:"PAYOUTS_MONETARY_REFUND_WAIT_DAYS" default:"14"`
	// InvoiceSchedule is a standard 5-field cron expression; each firing closes the period that just ended.
	InvoiceSchedule    string        `envconfig:"PAYOUTS_INVOICE_SCHEDULE" default:"0 2 * * MON"`
	InvoiceConcurrency int           `envconfig:"PAYOUTS_INVOICE_CONCURRENCY" default:"4"`
	InvoiceLockTTL     time.Duration `envconfig:"PAYOUTS_INVOICE_LOCK_TTL" default:"10m"`
	CronInterval       time.Duration `envconfig:"PAYOUTS_CRON_INTERVAL" default:"1h"`
	// CronSchedule overrides CronInterval with a standard cron expression when set.
	CronSchedule string `envconfig:"PAYOUTS_CRON_SCHEDULE"`

	NotificationRetention time.Duration `envconfig:"PAYOUTS_NOTIFICATION_RETENTION" default:"2160h"`
}

// RateLimitConfig throttles customer-facing voucher endpoints per user.
type RateLimitConfig struct {
	Window             time.Duration `envconfig:"PAYOUTS_RATE_LIMIT_WINDOW" default:"1m"`
	RefundRequestLimit int           `envconfig:"PAYOUTS_RATE_LIMIT_REFUND_REQUESTS" default:"5"`
	RedeemLimit        int           `envconfig:"PAYOUTS_RATE_LIMIT_REDEEM" default:"10"`
}

// MonetaryRefundWait returns the delay before seller-caused vouchers may be cashed out.
func (p PayoutsConfig) MonetaryRefundWait() time.Duration {
	return time.Duration(p.MonetaryRefundWaitDays) * 24 * time.Hour
}

func (p PayoutsConfig) validate() error {
	if p.PlatformFeePercentage.IsNegative() || p.PlatformFeePercentage.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%s must be between 0 and 100", EnvPlatformFeePercentage)
	}
	if p.MonetaryRefundWaitDays < 0 {
		return fmt.Errorf("%s must not be negative", EnvMonetaryRefundWaitDays)
	}
	if strings.TrimSpace(p.InvoiceSchedule) == "" {
		return fmt.Errorf("%s is required", EnvInvoiceSchedule)
	}
	return nil
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

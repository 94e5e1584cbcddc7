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
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Pricing       PricingConfig
	Fulfillment   FulfillmentConfig
	Orders        OrdersConfig
	Payments      PaymentsConfig
	GatewayA      GatewayAConfig
	GatewayB      GatewayBConfig
	Notifications NotificationsConfig
	Webhooks      WebhooksConfig
	CORS          CORSConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Pricing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SETTLEMENT_APP_ENV" required:"true"`
	Port         string `envconfig:"SETTLEMENT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SETTLEMENT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SETTLEMENT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SETTLEMENT_SERVICE_KIND" default:"api"`
	// MetricsAddr is where worker binaries expose /metrics. Empty disables it.
	MetricsAddr string `envconfig:"SETTLEMENT_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"SETTLEMENT_DB_DSN"`
	Driver string `envconfig:"SETTLEMENT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SETTLEMENT_DB_HOST"`
	LegacyPort     int    `envconfig:"SETTLEMENT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SETTLEMENT_DB_USER"`
	LegacyPassword string `envconfig:"SETTLEMENT_DB_PASSWORD"`
	LegacyName     string `envconfig:"SETTLEMENT_DB_NAME"`
	LegacySSLMode  string `envconfig:"SETTLEMENT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SETTLEMENT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SETTLEMENT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SETTLEMENT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SETTLEMENT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"SETTLEMENT_DB_SLOW_QUERY" default:"500ms"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"SETTLEMENT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SETTLEMENT_REDIS_ADDR"`
	Password     string        `envconfig:"SETTLEMENT_REDIS_PASSWORD"`
	DB           int           `envconfig:"SETTLEMENT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SETTLEMENT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SETTLEMENT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SETTLEMENT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SETTLEMENT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SETTLEMENT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SETTLEMENT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SETTLEMENT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SETTLEMENT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SETTLEMENT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SETTLEMENT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"SETTLEMENT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SETTLEMENT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SETTLEMENT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SETTLEMENT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic              string `envconfig:"SETTLEMENT_PUBSUB_ORDERS_TOPIC" default:"se-order-events"`
	PaymentsTopic            string `envconfig:"SETTLEMENT_PUBSUB_PAYMENTS_TOPIC" default:"se-payment-events"`
	NotificationTopic        string `envconfig:"SETTLEMENT_PUBSUB_NOTIFICATION_TOPIC" default:"se-notification-events"`
	NotificationSubscription string `envconfig:"SETTLEMENT_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"se-notification-events-sub"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"SETTLEMENT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"SETTLEMENT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"SETTLEMENT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	PublishTimeout time.Duration `envconfig:"SETTLEMENT_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
	Retention      time.Duration `envconfig:"SETTLEMENT_OUTBOX_RETENTION" default:"720h"`
	DLQRetention   time.Duration `envconfig:"SETTLEMENT_OUTBOX_DLQ_RETENTION" default:"2160h"`
}

// PricingConfig holds the flat-rate pricing parameters. Amounts are parsed as
// decimals so money never passes through float64.
type PricingConfig struct {
	TaxRate      decimal.Decimal `envconfig:"SETTLEMENT_PRICING_TAX_RATE" default:"0.10"`
	FlatShipping decimal.Decimal `envconfig:"SETTLEMENT_PRICING_FLAT_SHIPPING" default:"25.00"`
	Currency     string          `envconfig:"SETTLEMENT_PRICING_CURRENCY" default:"USD"`
}

func (p PricingConfig) validate() error {
	if p.TaxRate.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvPricingTaxRate)
	}
	if p.FlatShipping.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvPricingFlatShipping)
	}
	return nil
}

type FulfillmentConfig struct {
	DeliveryEstimateDays int `envconfig:"SETTLEMENT_FULFILLMENT_DELIVERY_ESTIMATE_DAYS" default:"3"`
}

// DeliveryEstimate returns the delivery window applied when an order ships.
func (f FulfillmentConfig) DeliveryEstimate() time.Duration {
	days := f.DeliveryEstimateDays
	if days <= 0 {
		days = 3
	}
	return time.Duration(days) * 24 * time.Hour
}

type OrdersConfig struct {
	PendingTTL      time.Duration `envconfig:"SETTLEMENT_ORDERS_PENDING_TTL" default:"24h"`
	ExpiryBatchSize int           `envconfig:"SETTLEMENT_ORDERS_EXPIRY_BATCH_SIZE" default:"100"`
}

type PaymentsConfig struct {
	InitiateTimeout time.Duration `envconfig:"SETTLEMENT_PAYMENTS_INITIATE_TIMEOUT" default:"10s"`
	PublicBaseURL   string        `envconfig:"SETTLEMENT_PAYMENTS_PUBLIC_BASE_URL" default:"http://localhost:8080"`
}

// ReturnURL builds the browser-return endpoint for the given method.
func (p PaymentsConfig) ReturnURL(method string) string {
	return strings.TrimRight(p.PublicBaseURL, "/") + "/api/v1/payments/" + method + "/return"
}

// WebhookURL builds the server-to-server notification endpoint for the given method.
func (p PaymentsConfig) WebhookURL(method string) string {
	return strings.TrimRight(p.PublicBaseURL, "/") + "/api/v1/webhooks/payments/" + method
}

type GatewayAConfig struct {
	BaseURL    string `envconfig:"SETTLEMENT_GATEWAY_A_BASE_URL" default:"https://sandbox.gateway-a.example/pay"`
	MerchantID string `envconfig:"SETTLEMENT_GATEWAY_A_MERCHANT_ID"`
	Secret     string `envconfig:"SETTLEMENT_GATEWAY_A_SECRET"`
	Locale     string `envconfig:"SETTLEMENT_GATEWAY_A_LOCALE" default:"en"`
}

type GatewayBConfig struct {
	Endpoint    string `envconfig:"SETTLEMENT_GATEWAY_B_ENDPOINT" default:"https://sandbox.gateway-b.example/v2/create"`
	PartnerCode string `envconfig:"SETTLEMENT_GATEWAY_B_PARTNER_CODE"`
	AccessKey   string `envconfig:"SETTLEMENT_GATEWAY_B_ACCESS_KEY"`
	SecretKey   string `envconfig:"SETTLEMENT_GATEWAY_B_SECRET_KEY"`
	RequestType string `envconfig:"SETTLEMENT_GATEWAY_B_REQUEST_TYPE" default:"captureWallet"`
}

type NotificationsConfig struct {
	QueueSize      int           `envconfig:"SETTLEMENT_NOTIFICATIONS_QUEUE_SIZE" default:"256"`
	Workers        int           `envconfig:"SETTLEMENT_NOTIFICATIONS_WORKERS" default:"2"`
	PublishTimeout time.Duration `envconfig:"SETTLEMENT_NOTIFICATIONS_PUBLISH_TIMEOUT" default:"5s"`
	ReadRetention  time.Duration `envconfig:"SETTLEMENT_NOTIFICATIONS_READ_RETENTION" default:"720h"`
}

type WebhooksConfig struct {
	GuardTTL        time.Duration `envconfig:"SETTLEMENT_WEBHOOKS_GUARD_TTL" default:"720h"`
	RateLimitWindow time.Duration `envconfig:"SETTLEMENT_WEBHOOKS_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitPerIP  int           `envconfig:"SETTLEMENT_WEBHOOKS_RATE_LIMIT_PER_IP" default:"120"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"SETTLEMENT_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type CronConfig struct {
	Tick             time.Duration `envconfig:"SETTLEMENT_CRON_TICK" default:"30s"`
	OrderExpiryEvery time.Duration `envconfig:"SETTLEMENT_CRON_ORDER_EXPIRY_EVERY" default:"1m"`
	RetentionEvery   time.Duration `envconfig:"SETTLEMENT_CRON_RETENTION_EVERY" default:"24h"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DBDriverSQLite
	}
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = defaultSQLiteDSN
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

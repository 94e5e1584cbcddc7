package config

// EnvPrefix is handed to envconfig; every field also carries its full name.
const EnvPrefix = "SETTLEMENT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file:settlement.db?cache=shared&_foreign_keys=on"
)

const (
	EnvAppEnv   = "SETTLEMENT_APP_ENV"
	EnvPort     = "SETTLEMENT_APP_PORT"
	EnvLogLevel = "SETTLEMENT_LOG_LEVEL"

	EnvDBDSN    = "SETTLEMENT_DB_DSN"
	EnvDBDriver = "SETTLEMENT_DB_DRIVER"
	EnvDBHost   = "SETTLEMENT_DB_HOST"
	EnvDBPort   = "SETTLEMENT_DB_PORT"
	EnvDBUser   = "SETTLEMENT_DB_USER"
	EnvDBPass   = "SETTLEMENT_DB_PASSWORD"
	EnvDBName   = "SETTLEMENT_DB_NAME"

	EnvUseSQLite   = "SETTLEMENT_USE_SQLITE"
	EnvAutoMigrate = "SETTLEMENT_AUTO_MIGRATE"

	EnvRedisURL = "SETTLEMENT_REDIS_URL"

	EnvJWTSecret  = "SETTLEMENT_JWT_SECRET"
	EnvJWTIssuer  = "SETTLEMENT_JWT_ISSUER"
	EnvJWTExpMins = "SETTLEMENT_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "SETTLEMENT_GCP_PROJECT_ID"

	EnvPubSubOrdersTopic       = "SETTLEMENT_PUBSUB_ORDERS_TOPIC"
	EnvPubSubPaymentsTopic     = "SETTLEMENT_PUBSUB_PAYMENTS_TOPIC"
	EnvPubSubNotificationTopic = "SETTLEMENT_PUBSUB_NOTIFICATION_TOPIC"
	EnvPubSubNotificationSub   = "SETTLEMENT_PUBSUB_NOTIFICATION_SUBSCRIPTION"

	EnvPricingTaxRate      = "SETTLEMENT_PRICING_TAX_RATE"
	EnvPricingFlatShipping = "SETTLEMENT_PRICING_FLAT_SHIPPING"

	EnvDeliveryEstimateDays = "SETTLEMENT_FULFILLMENT_DELIVERY_ESTIMATE_DAYS"
	EnvOrdersPendingTTL     = "SETTLEMENT_ORDERS_PENDING_TTL"
	EnvPaymentsTimeout      = "SETTLEMENT_PAYMENTS_INITIATE_TIMEOUT"
	EnvCORSAllowedOrigins   = "SETTLEMENT_CORS_ALLOWED_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

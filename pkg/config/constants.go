package config

// EnvPrefix is handed to envconfig; every field tag already carries the full
// variable name so lookups resolve through the tag alternate.
const EnvPrefix = "DROPSHIP"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "DROPSHIP_APP_ENV"
	EnvPort         = "DROPSHIP_APP_PORT"
	EnvPlatformPort = "PORT"
	EnvLogLevel     = "DROPSHIP_LOG_LEVEL"
	EnvLogFormat    = "DROPSHIP_LOG_FORMAT"
	EnvDBDSN        = "DROPSHIP_DB_DSN"
	EnvDBDriver     = "DROPSHIP_DB_DRIVER"
	EnvDBHost       = "DROPSHIP_DB_HOST"
	EnvDBUser       = "DROPSHIP_DB_USER"
	EnvDBName       = "DROPSHIP_DB_NAME"
	EnvRedisURL     = "DROPSHIP_REDIS_URL"
	EnvUseSQLite    = "DROPSHIP_USE_SQLITE"
	EnvGCPProjectID = "DROPSHIP_GCP_PROJECT_ID"

	EnvPubSubSettlementsTopic = "DROPSHIP_PUBSUB_SETTLEMENTS_TOPIC"

	EnvInfinityPayBaseURL       = "DROPSHIP_INFINITYPAY_BASE_URL"
	EnvInfinityPayWebhookURL    = "DROPSHIP_INFINITYPAY_WEBHOOK_URL"
	EnvInfinityPayWebhookSecret = "DROPSHIP_INFINITYPAY_WEBHOOK_SECRET"

	EnvSettlementLinkTTL = "DROPSHIP_SETTLEMENT_LINK_TTL"

	EnvRateLimitLinkSeller = "DROPSHIP_RATE_LIMIT_LINK_SELLER"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	InfinityPay  InfinityPayConfig
	Settlement   SettlementConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	// platform-assigned port (Heroku, Cloud Run) wins over the app setting
	if port := os.Getenv(EnvPlatformPort); port != "" {
		cfg.App.Port = port
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DROPSHIP_APP_ENV" required:"true"`
	Port         string `envconfig:"DROPSHIP_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"DROPSHIP_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"DROPSHIP_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"DROPSHIP_LOG_WARN_STACK" default:"false"`

	// CORSOrigins is a comma separated allow-list for browser callers.
	CORSOrigins []string `envconfig:"DROPSHIP_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// Addr is the listen address for the HTTP server.
func (a AppConfig) Addr() string {
	return ":" + a.Port
}

type ServiceConfig struct {
	Kind string `envconfig:"DROPSHIP_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"DROPSHIP_DB_DSN"`
	Driver string `envconfig:"DROPSHIP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DROPSHIP_DB_HOST"`
	LegacyPort     int    `envconfig:"DROPSHIP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DROPSHIP_DB_USER"`
	LegacyPassword string `envconfig:"DROPSHIP_DB_PASSWORD"`
	LegacyName     string `envconfig:"DROPSHIP_DB_NAME"`
	LegacySSLMode  string `envconfig:"DROPSHIP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DROPSHIP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DROPSHIP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DROPSHIP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DROPSHIP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the sqlite driver was requested.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, "sqlite")
}

type RedisConfig struct {
	URL          string        `envconfig:"DROPSHIP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DROPSHIP_REDIS_ADDR"`
	Password     string        `envconfig:"DROPSHIP_REDIS_PASSWORD"`
	DB           int           `envconfig:"DROPSHIP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DROPSHIP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DROPSHIP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DROPSHIP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DROPSHIP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DROPSHIP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"DROPSHIP_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"DROPSHIP_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"DROPSHIP_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"DROPSHIP_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"DROPSHIP_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	SettlementsTopic string `envconfig:"DROPSHIP_PUBSUB_SETTLEMENTS_TOPIC" default:"ds-settlement-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"DROPSHIP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"DROPSHIP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"DROPSHIP_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type InfinityPayConfig struct {
	BaseURL       string        `envconfig:"DROPSHIP_INFINITYPAY_BASE_URL" default:"https://api.infinitepay.io"`
	WebhookURL    string        `envconfig:"DROPSHIP_INFINITYPAY_WEBHOOK_URL" required:"true"`
	WebhookSecret string        `envconfig:"DROPSHIP_INFINITYPAY_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"DROPSHIP_INFINITYPAY_TIMEOUT" default:"10s"`
	MaxRetries    uint64        `envconfig:"DROPSHIP_INFINITYPAY_MAX_RETRIES" default:"3"`
}

type SettlementConfig struct {
	LinkTTL           time.Duration `envconfig:"DROPSHIP_SETTLEMENT_LINK_TTL" default:"72h"`
	ReplayAfter       time.Duration `envconfig:"DROPSHIP_SETTLEMENT_REPLAY_AFTER" default:"1m"`
	ReplayMaxAttempts int           `envconfig:"DROPSHIP_SETTLEMENT_REPLAY_MAX_ATTEMPTS" default:"10"`
	ReplayBatchSize   int           `envconfig:"DROPSHIP_SETTLEMENT_REPLAY_BATCH_SIZE" default:"50"`
	GuardTTL          time.Duration `envconfig:"DROPSHIP_SETTLEMENT_GUARD_TTL" default:"5m"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"DROPSHIP_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"DROPSHIP_CRON_LOCK_TTL" default:"5m"`
}

type RateLimitConfig struct {
	Window          time.Duration `envconfig:"DROPSHIP_RATE_LIMIT_WINDOW" default:"1m"`
	WebhookIPLimit  int           `envconfig:"DROPSHIP_RATE_LIMIT_WEBHOOK_IP" default:"600"`
	LinkSellerLimit int           `envconfig:"DROPSHIP_RATE_LIMIT_LINK_SELLER" default:"30"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite || db.IsSQLite() {
		db.DSN = "file:dropship.db?cache=shared"
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

package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
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
	Orders       OrdersConfig
	Fulfillment  FulfillmentConfig
	Supplier     SupplierConfig
	Gateway      GatewayConfig
	Square       SquareConfig
	HTTP         HTTPConfig
	RateLimit    RateLimitConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Orders.CODMatcher(); err != nil {
		return nil, err
	}
	if cfg.Redis.URL == "" && cfg.Redis.Address == "" {
		return nil, fmt.Errorf("one of STOREFRONT_REDIS_URL or STOREFRONT_REDIS_ADDR is required")
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
	TxRetries          uint64        `envconfig:"STOREFRONT_DB_TX_RETRIES" default:"2"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"STOREFRONT_REDIS_KEY_PREFIX" default:"sf"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite              bool     `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate            bool     `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
	AutoProvisionTenants   bool     `envconfig:"STOREFRONT_FEATURE_AUTO_PROVISION_TENANTS" default:"false"`
	InventoryAutoReplenish bool     `envconfig:"STOREFRONT_FEATURE_INVENTORY_AUTO_REPLENISH" default:"false"`
	SandboxTenantIDs       []string `envconfig:"STOREFRONT_SANDBOX_TENANT_IDS"`
}

type EventingConfig struct {
	OutboxRetention  time.Duration `envconfig:"STOREFRONT_EVENTING_OUTBOX_RETENTION" default:"720h"`
	OutboxPruneChunk int           `envconfig:"STOREFRONT_EVENTING_OUTBOX_PRUNE_CHUNK" default:"500"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"STOREFRONT_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic       string        `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" default:"sf-order-events"`
	NotificationTopic string        `envconfig:"STOREFRONT_PUBSUB_NOTIFICATION_TOPIC" default:"sf-notification-events"`
	PublishTimeout    time.Duration `envconfig:"STOREFRONT_PUBSUB_PUBLISH_TIMEOUT" default:"5s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// OrdersConfig holds the knobs read by the order writer.
type OrdersConfig struct {
	CODPattern      string `envconfig:"STOREFRONT_ORDERS_COD_PATTERN" default:"(?i)^(cod|cash[-_ ]?on[-_ ]?delivery)$"`
	DefaultCurrency string `envconfig:"STOREFRONT_ORDERS_DEFAULT_CURRENCY" default:"USD"`
	NumberPrefix    string `envconfig:"STOREFRONT_ORDERS_NUMBER_PREFIX" default:"ORD"`
}

// CODMatcher compiles the cash-on-delivery pattern.
func (o OrdersConfig) CODMatcher() (*regexp.Regexp, error) {
	pattern := strings.TrimSpace(o.CODPattern)
	if pattern == "" {
		pattern = DefaultCODPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvOrdersCODPattern, err)
	}
	return re, nil
}

type FulfillmentConfig struct {
	RevealKey      string        `envconfig:"STOREFRONT_FULFILLMENT_REVEAL_KEY" required:"true"`
	InFlightTTL    time.Duration `envconfig:"STOREFRONT_FULFILLMENT_IN_FLIGHT_TTL" default:"2m"`
	RetryMinAge    time.Duration `envconfig:"STOREFRONT_FULFILLMENT_RETRY_MIN_AGE" default:"5m"`
	RetryBatchSize int           `envconfig:"STOREFRONT_FULFILLMENT_RETRY_BATCH_SIZE" default:"25"`
	MaxAttempts    int           `envconfig:"STOREFRONT_FULFILLMENT_MAX_ATTEMPTS" default:"8"`
	SweepInterval  time.Duration `envconfig:"STOREFRONT_FULFILLMENT_SWEEP_INTERVAL" default:"10m"`
}

type SupplierConfig struct {
	BaseURL        string        `envconfig:"STOREFRONT_SUPPLIER_BASE_URL" required:"true"`
	APIKey         string        `envconfig:"STOREFRONT_SUPPLIER_API_KEY"`
	Timeout        time.Duration `envconfig:"STOREFRONT_SUPPLIER_TIMEOUT" default:"20s"`
	MaxRetries     uint64        `envconfig:"STOREFRONT_SUPPLIER_MAX_RETRIES" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"STOREFRONT_SUPPLIER_RETRY_BASE_DELAY" default:"250ms"`
	RetryMaxDelay  time.Duration `envconfig:"STOREFRONT_SUPPLIER_RETRY_MAX_DELAY" default:"4s"`
}

type GatewayConfig struct {
	WebhookSecret  string        `envconfig:"STOREFRONT_GATEWAY_WEBHOOK_SECRET" required:"true"`
	IdempotencyTTL time.Duration `envconfig:"STOREFRONT_GATEWAY_IDEMPOTENCY_TTL" default:"168h"`
}

type SquareConfig struct {
	AccessToken string        `envconfig:"STOREFRONT_SQUARE_ACCESS_TOKEN"`
	Env         string        `envconfig:"STOREFRONT_SQUARE_ENV" default:"sandbox"`
	LocationID  string        `envconfig:"STOREFRONT_SQUARE_LOCATION_ID"`
	MaxRetries  uint64        `envconfig:"STOREFRONT_SQUARE_MAX_RETRIES" default:"2"`
	RetryDelay  time.Duration `envconfig:"STOREFRONT_SQUARE_RETRY_DELAY" default:"200ms"`
}

// Enabled reports whether card charges can be routed to Square.
func (s SquareConfig) Enabled() bool {
	return strings.TrimSpace(s.AccessToken) != "" && strings.TrimSpace(s.LocationID) != ""
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type HTTPConfig struct {
	CORSOrigins     []string      `envconfig:"STOREFRONT_HTTP_CORS_ORIGINS"`
	ReadTimeout     time.Duration `envconfig:"STOREFRONT_HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"STOREFRONT_HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"STOREFRONT_HTTP_SHUTDOWN_TIMEOUT" default:"20s"`
}

// RateLimitConfig bounds order placement per client IP and per customer.
type RateLimitConfig struct {
	OrdersWindow       time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_ORDERS_WINDOW" default:"1m"`
	OrdersIPLimit      int           `envconfig:"STOREFRONT_RATE_LIMIT_ORDERS_IP" default:"30"`
	OrdersSubjectLimit int           `envconfig:"STOREFRONT_RATE_LIMIT_ORDERS_SUBJECT" default:"10"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"10m"`
	JobTimeout time.Duration `envconfig:"STOREFRONT_CRON_JOB_TIMEOUT" default:"5m"`
	LockTTL    time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"9m"`
	PruneEvery time.Duration `envconfig:"STOREFRONT_CRON_PRUNE_EVERY" default:"24h"`
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

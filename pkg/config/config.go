package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Admin        AdminConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Shipping     ShippingConfig
	Checkout     CheckoutConfig
	Sendgrid     SendgridConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"KIGGYSHOP_APP_ENV" required:"true"`
	Port         string   `envconfig:"KIGGYSHOP_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"KIGGYSHOP_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"KIGGYSHOP_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"KIGGYSHOP_CORS_ORIGINS" default:"http://localhost:8080"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"KIGGYSHOP_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"KIGGYSHOP_DB_DSN"`
	Driver string `envconfig:"KIGGYSHOP_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"KIGGYSHOP_DB_HOST"`
	Port     int    `envconfig:"KIGGYSHOP_DB_PORT" default:"5432"`
	User     string `envconfig:"KIGGYSHOP_DB_USER"`
	Password string `envconfig:"KIGGYSHOP_DB_PASSWORD"`
	Name     string `envconfig:"KIGGYSHOP_DB_NAME"`
	SSLMode  string `envconfig:"KIGGYSHOP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"KIGGYSHOP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KIGGYSHOP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KIGGYSHOP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KIGGYSHOP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"KIGGYSHOP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"KIGGYSHOP_REDIS_ADDR"`
	Password     string        `envconfig:"KIGGYSHOP_REDIS_PASSWORD"`
	DB           int           `envconfig:"KIGGYSHOP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KIGGYSHOP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KIGGYSHOP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KIGGYSHOP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KIGGYSHOP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KIGGYSHOP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AdminConfig verifies bearer tokens minted by the identity service for the admin panel.
type AdminConfig struct {
	JWTSecret string `envconfig:"KIGGYSHOP_ADMIN_JWT_SECRET" required:"true"`
	JWTIssuer string `envconfig:"KIGGYSHOP_ADMIN_JWT_ISSUER" default:"kiggyshop-admin"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"KIGGYSHOP_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"KIGGYSHOP_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL  time.Duration `envconfig:"KIGGYSHOP_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookIdempotencyTTL time.Duration `envconfig:"KIGGYSHOP_WEBHOOK_IDEMPOTENCY_TTL" default:"168h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"KIGGYSHOP_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"KIGGYSHOP_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"KIGGYSHOP_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"KIGGYSHOP_PUBSUB_ORDERS_TOPIC" default:"kiggyshop-order-events"`
	OrdersSubscription string `envconfig:"KIGGYSHOP_PUBSUB_ORDERS_SUBSCRIPTION" default:"kiggyshop-order-events-notifications"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"KIGGYSHOP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"KIGGYSHOP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"KIGGYSHOP_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"KIGGYSHOP_OUTBOX_RETENTION" default:"720h"`
}

type StripeConfig struct {
	APIKey      string        `envconfig:"KIGGYSHOP_STRIPE_API_KEY" required:"true"`
	Secret      string        `envconfig:"KIGGYSHOP_STRIPE_SECRET" required:"true"`
	Env         string        `envconfig:"KIGGYSHOP_STRIPE_ENV" default:"test"`
	SuccessURL  string        `envconfig:"KIGGYSHOP_STRIPE_SUCCESS_URL" required:"true"`
	CancelURL   string        `envconfig:"KIGGYSHOP_STRIPE_CANCEL_URL" required:"true"`
	Currency    string        `envconfig:"KIGGYSHOP_STRIPE_CURRENCY" default:"usd"`
	CallTimeout time.Duration `envconfig:"KIGGYSHOP_STRIPE_CALL_TIMEOUT" default:"10s"`
	MaxRetries  int           `envconfig:"KIGGYSHOP_STRIPE_MAX_RETRIES" default:"3"`
	RetryBase   time.Duration `envconfig:"KIGGYSHOP_STRIPE_RETRY_BASE" default:"200ms"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// ShippingConfig describes the single flat-rate shipping option offered at checkout.
type ShippingConfig struct {
	DisplayName      string   `envconfig:"KIGGYSHOP_SHIPPING_DISPLAY_NAME" default:"Priority shipping"`
	AmountCents      int64    `envconfig:"KIGGYSHOP_SHIPPING_AMOUNT_CENTS" default:"1000"`
	MinBusinessDays  int64    `envconfig:"KIGGYSHOP_SHIPPING_MIN_BUSINESS_DAYS" default:"5"`
	MaxBusinessDays  int64    `envconfig:"KIGGYSHOP_SHIPPING_MAX_BUSINESS_DAYS" default:"10"`
	AllowedCountries []string `envconfig:"KIGGYSHOP_SHIPPING_COUNTRIES" default:"US"`
}

type CheckoutConfig struct {
	SessionTTL time.Duration `envconfig:"KIGGYSHOP_CHECKOUT_SESSION_TTL" default:"24h"`
	MaxLines   int           `envconfig:"KIGGYSHOP_CHECKOUT_MAX_LINES" default:"50"`
	RateLimit  int           `envconfig:"KIGGYSHOP_CHECKOUT_RATE_LIMIT" default:"20"`
	RateWindow time.Duration `envconfig:"KIGGYSHOP_CHECKOUT_RATE_WINDOW" default:"1m"`
}

type SendgridConfig struct {
	APIKey      string        `envconfig:"KIGGYSHOP_SENDGRID_API_KEY"`
	DefaultFrom string        `envconfig:"KIGGYSHOP_SENDGRID_FROM_EMAIL" default:"orders@kiggyshop.com"`
	FromName    string        `envconfig:"KIGGYSHOP_SENDGRID_FROM_NAME" default:"KiggyShop"`
	Timeout     time.Duration `envconfig:"KIGGYSHOP_SENDGRID_TIMEOUT" default:"10s"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"KIGGYSHOP_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"KIGGYSHOP_CRON_LOCK_TTL" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dsnPartEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

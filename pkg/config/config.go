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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Orders       OrdersConfig
	Esign        EsignConfig
	Square       SquareConfig
	FeatureFlags FeatureFlagsConfig
	PubSub       PubSubConfig
	GCP          GCPConfig
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
	Env          string `envconfig:"BOUNCEBROS_APP_ENV" required:"true"`
	Port         string `envconfig:"BOUNCEBROS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BOUNCEBROS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BOUNCEBROS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"BOUNCEBROS_DB_DSN"`
	Driver string `envconfig:"BOUNCEBROS_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"BOUNCEBROS_DB_HOST"`
	Port     int    `envconfig:"BOUNCEBROS_DB_PORT" default:"5432"`
	User     string `envconfig:"BOUNCEBROS_DB_USER"`
	Password string `envconfig:"BOUNCEBROS_DB_PASSWORD"`
	Name     string `envconfig:"BOUNCEBROS_DB_NAME"`
	SSLMode  string `envconfig:"BOUNCEBROS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BOUNCEBROS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BOUNCEBROS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BOUNCEBROS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BOUNCEBROS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BOUNCEBROS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BOUNCEBROS_REDIS_ADDR"`
	Password     string        `envconfig:"BOUNCEBROS_REDIS_PASSWORD"`
	DB           int           `envconfig:"BOUNCEBROS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BOUNCEBROS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BOUNCEBROS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BOUNCEBROS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BOUNCEBROS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BOUNCEBROS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BOUNCEBROS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BOUNCEBROS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BOUNCEBROS_JWT_EXPIRATION_MINUTES" default:"60"`
}

// OrdersConfig carries the pricing defaults applied when an order omits fees.
type OrdersConfig struct {
	DefaultDeliveryFeeCents int64   `envconfig:"BOUNCEBROS_ORDERS_DEFAULT_DELIVERY_FEE_CENTS" default:"2000"`
	ProcessingFeeRate       float64 `envconfig:"BOUNCEBROS_ORDERS_PROCESSING_FEE_RATE" default:"0.03"`
	NumberPrefix            string  `envconfig:"BOUNCEBROS_ORDERS_NUMBER_PREFIX" default:"BB"`
}

// EsignConfig points at the e-signature provider.
type EsignConfig struct {
	BaseURL       string        `envconfig:"BOUNCEBROS_ESIGN_BASE_URL" required:"true"`
	APIKey        string        `envconfig:"BOUNCEBROS_ESIGN_API_KEY" required:"true"`
	WebhookSecret string        `envconfig:"BOUNCEBROS_ESIGN_WEBHOOK_SECRET" required:"true"`
	TemplateID    string        `envconfig:"BOUNCEBROS_ESIGN_TEMPLATE_ID"`
	CallTimeout   time.Duration `envconfig:"BOUNCEBROS_ESIGN_CALL_TIMEOUT" default:"10s"`
}

type SquareConfig struct {
	AccessToken   string `envconfig:"BOUNCEBROS_SQUARE_ACCESS_TOKEN"`
	Env           string `envconfig:"BOUNCEBROS_SQUARE_ENV" default:"sandbox"`
	LocationID    string `envconfig:"BOUNCEBROS_SQUARE_LOCATION_ID"`
	WebhookSecret string `envconfig:"BOUNCEBROS_SQUARE_WEBHOOK_SECRET"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BOUNCEBROS_AUTO_MIGRATE" default:"false"`
	UseSQLite   bool `envconfig:"BOUNCEBROS_USE_SQLITE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"BOUNCEBROS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"BOUNCEBROS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"BOUNCEBROS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"BOUNCEBROS_PUBSUB_DOMAIN_TOPIC" default:"bb-domain-events"`
	DomainSubscription string `envconfig:"BOUNCEBROS_PUBSUB_DOMAIN_SUBSCRIPTION" default:"bb-domain-events-notifier"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BOUNCEBROS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BOUNCEBROS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BOUNCEBROS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"BOUNCEBROS_OUTBOX_RETENTION_DAYS" default:"30"`

	IdempotencyTTL time.Duration `envconfig:"BOUNCEBROS_OUTBOX_IDEMPOTENCY_TTL" default:"48h"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"BOUNCEBROS_CRON_INTERVAL" default:"1h"`
	LockTTL         time.Duration `envconfig:"BOUNCEBROS_CRON_LOCK_TTL" default:"2h"`
	SyncCallTimeout time.Duration `envconfig:"BOUNCEBROS_CRON_SYNC_CALL_TIMEOUT" default:"15s"`
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
	for _, env := range fallbackDBEnvVars {
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

package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App        AppConfig
	CORS       CORSConfig
	Razorpay   RazorpayConfig
	GCP        GCPConfig
	Payment    PaymentConfig
	Webhook    WebhookConfig
	Resilience ResilienceConfig
	Redis      RedisConfig
	DB         DBConfig
	PubSub     PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Webhook.validatePolicy(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PICKUP_APP_ENV" default:"dev"`
	Port         string `envconfig:"PICKUP_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PICKUP_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"PICKUP_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"PICKUP_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"PICKUP_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// CORSConfig holds the single allowlist shared by every browser-facing route.
type CORSConfig struct {
	AllowedOrigins []string `envconfig:"PICKUP_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

// Origins returns the allowlist with blanks and surrounding whitespace removed.
func (c CORSConfig) Origins() []string {
	out := make([]string, 0, len(c.AllowedOrigins))
	for _, origin := range c.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Credentials are checked at first use, not at load.
type RazorpayConfig struct {
	KeyID         string `envconfig:"PICKUP_RAZORPAY_KEY_ID"`
	KeySecret     string `envconfig:"PICKUP_RAZORPAY_KEY_SECRET"`
	WebhookSecret string `envconfig:"PICKUP_RAZORPAY_WEBHOOK_SECRET"`
}

type GCPConfig struct {
	ProjectID           string `envconfig:"PICKUP_GCP_PROJECT_ID"`
	CredentialsJSON     string `envconfig:"PICKUP_GCP_CREDENTIALS_JSON"`
	FirestoreCollection string `envconfig:"PICKUP_FIRESTORE_COLLECTION" default:"pickup_bookings"`
}

// CredentialsParse reports whether the service account blob is present and valid JSON.
func (g GCPConfig) CredentialsParse() string {
	raw := strings.TrimSpace(g.CredentialsJSON)
	if raw == "" {
		return CredentialsMissing
	}
	var probe map[string]any
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return CredentialsParseError
	}
	return CredentialsOK
}

// ResolvedProjectID prefers the explicit project and falls back to the service account's project_id.
func (g GCPConfig) ResolvedProjectID() string {
	if p := strings.TrimSpace(g.ProjectID); p != "" {
		return p
	}
	var probe struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal([]byte(g.CredentialsJSON), &probe); err != nil {
		return ""
	}
	return strings.TrimSpace(probe.ProjectID)
}

type PaymentConfig struct {
	Currency           string        `envconfig:"PICKUP_PAYMENT_CURRENCY" default:"INR"`
	DescriptionPrefix  string        `envconfig:"PICKUP_PAYMENT_DESCRIPTION_PREFIX" default:"Fab Revive Laundry"`
	CallbackURL        string        `envconfig:"PICKUP_PAYMENT_CALLBACK_URL"`
	LinkIdempotencyTTL time.Duration `envconfig:"PICKUP_PAYMENT_LINK_IDEMPOTENCY_TTL" default:"24h"`
}

type WebhookConfig struct {
	PaidAtPolicy   string        `envconfig:"PICKUP_PAID_AT_POLICY" default:"first_write"`
	IdempotencyTTL time.Duration `envconfig:"PICKUP_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
	ClaimTTL       time.Duration `envconfig:"PICKUP_WEBHOOK_CLAIM_TTL" default:"2m"`
}

func (w WebhookConfig) validatePolicy() error {
	switch strings.ToLower(strings.TrimSpace(w.PaidAtPolicy)) {
	case PaidAtFirstWrite, PaidAtAlwaysLatest:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvPaidAtPolicy, PaidAtFirstWrite, PaidAtAlwaysLatest)
	}
}

// ResilienceConfig bounds every blocking store and gateway call.
type ResilienceConfig struct {
	StoreTimeout     time.Duration `envconfig:"PICKUP_STORE_TIMEOUT" default:"5s"`
	GatewayTimeout   time.Duration `envconfig:"PICKUP_GATEWAY_TIMEOUT" default:"10s"`
	RetryMaxAttempts uint64        `envconfig:"PICKUP_RETRY_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay   time.Duration `envconfig:"PICKUP_RETRY_BASE_DELAY" default:"100ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PICKUP_REDIS_URL"`
	PoolSize     int           `envconfig:"PICKUP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PICKUP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PICKUP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PICKUP_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"PICKUP_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// Enabled reports whether a Redis URL was supplied.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

type DBConfig struct {
	DSN             string        `envconfig:"PICKUP_DB_DSN"`
	MaxOpenConns    int           `envconfig:"PICKUP_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"PICKUP_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"PICKUP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PICKUP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// Enabled reports whether the payment event ledger database is configured.
func (d DBConfig) Enabled() bool {
	return strings.TrimSpace(d.DSN) != ""
}

type PubSubConfig struct {
	CompensationTopic        string `envconfig:"PICKUP_PUBSUB_COMPENSATION_TOPIC"`
	CompensationSubscription string `envconfig:"PICKUP_PUBSUB_COMPENSATION_SUBSCRIPTION"`
}

// PublisherEnabled reports whether compensation messages can be published.
func (p PubSubConfig) PublisherEnabled() bool {
	return strings.TrimSpace(p.CompensationTopic) != ""
}

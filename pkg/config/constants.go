package config

const EnvPrefix = "PICKUP"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	PaidAtFirstWrite   = "first_write"
	PaidAtAlwaysLatest = "always_latest"
)

const (
	CredentialsOK         = "ok"
	CredentialsMissing    = "missing"
	CredentialsParseError = "parse_error"
)

const (
	EnvAppEnv                  = "PICKUP_APP_ENV"
	EnvPort                    = "PICKUP_APP_PORT"
	EnvCORSAllowedOrigins      = "PICKUP_CORS_ALLOWED_ORIGINS"
	EnvRazorpayKeyID           = "PICKUP_RAZORPAY_KEY_ID"
	EnvRazorpayKeySecret       = "PICKUP_RAZORPAY_KEY_SECRET"
	EnvRazorpayWebhookSecret   = "PICKUP_RAZORPAY_WEBHOOK_SECRET"
	EnvGCPCredentialsJSON      = "PICKUP_GCP_CREDENTIALS_JSON"
	EnvGCPProjectID            = "PICKUP_GCP_PROJECT_ID"
	EnvPaidAtPolicy            = "PICKUP_PAID_AT_POLICY"
	EnvStoreTimeout            = "PICKUP_STORE_TIMEOUT"
	EnvRedisURL                = "PICKUP_REDIS_URL"
	EnvDBDSN                   = "PICKUP_DB_DSN"
	EnvPubSubCompensationTopic = "PICKUP_PUBSUB_COMPENSATION_TOPIC"
	EnvPubSubCompensationSub   = "PICKUP_PUBSUB_COMPENSATION_SUBSCRIPTION"
)

package config

const EnvPrefix = "KIGGYSHOP"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv         = "KIGGYSHOP_APP_ENV"
	EnvPort           = "KIGGYSHOP_APP_PORT"
	EnvDBDSN          = "KIGGYSHOP_DB_DSN"
	EnvDBHost         = "KIGGYSHOP_DB_HOST"
	EnvDBUser         = "KIGGYSHOP_DB_USER"
	EnvDBName         = "KIGGYSHOP_DB_NAME"
	EnvDBPassword     = "KIGGYSHOP_DB_PASSWORD"
	EnvRedisURL       = "KIGGYSHOP_REDIS_URL"
	EnvAdminJWTSecret = "KIGGYSHOP_ADMIN_JWT_SECRET"
	EnvStripeAPIKey   = "KIGGYSHOP_STRIPE_API_KEY"
	EnvStripeSecret   = "KIGGYSHOP_STRIPE_SECRET"
	EnvStripeSuccess  = "KIGGYSHOP_STRIPE_SUCCESS_URL"
	EnvStripeCancel   = "KIGGYSHOP_STRIPE_CANCEL_URL"
	EnvShippingAmount = "KIGGYSHOP_SHIPPING_AMOUNT_CENTS"
	EnvPubSubOrders   = "KIGGYSHOP_PUBSUB_ORDERS_TOPIC"
)

var dsnPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

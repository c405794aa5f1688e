package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DefaultCODPattern = "(?i)^(cod|cash[-_ ]?on[-_ ]?delivery)$"
)

const (
	EnvAppEnv           = "STOREFRONT_APP_ENV"
	EnvPort             = "STOREFRONT_APP_PORT"
	EnvDBDSN            = "STOREFRONT_DB_DSN"
	EnvDBHost           = "STOREFRONT_DB_HOST"
	EnvDBUser           = "STOREFRONT_DB_USER"
	EnvDBName           = "STOREFRONT_DB_NAME"
	EnvDBPassword       = "STOREFRONT_DB_PASSWORD"
	EnvRedisURL         = "STOREFRONT_REDIS_URL"
	EnvJWTSecret        = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer        = "STOREFRONT_JWT_ISSUER"
	EnvGCPProjectID     = "STOREFRONT_GCP_PROJECT_ID"
	EnvRevealKey        = "STOREFRONT_FULFILLMENT_REVEAL_KEY"
	EnvSupplierBaseURL  = "STOREFRONT_SUPPLIER_BASE_URL"
	EnvGatewaySecret    = "STOREFRONT_GATEWAY_WEBHOOK_SECRET"
	EnvOrdersCODPattern = "STOREFRONT_ORDERS_COD_PATTERN"
	EnvSandboxTenants   = "STOREFRONT_SANDBOX_TENANT_IDS"
	EnvAutoReplenish    = "STOREFRONT_FEATURE_INVENTORY_AUTO_REPLENISH"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

package config

// EnvPrefix is handed to envconfig; every field declares its full variable name.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	CartStorageMemory = "memory"
	CartStorageRedis  = "redis"
	CartStorageSQL    = "sql"

	DBDriverSQLite   = "sqlite"
	DBDriverPostgres = "postgres"
)

const (
	EnvAppEnv      = "STOREFRONT_APP_ENV"
	EnvPort        = "STOREFRONT_APP_PORT"
	EnvLogLevel    = "STOREFRONT_LOG_LEVEL"
	EnvAPIBaseURL  = "STOREFRONT_API_BASE_URL"
	EnvAPITimeout  = "STOREFRONT_API_TIMEOUT"
	EnvCartStorage = "STOREFRONT_CART_STORAGE"
	EnvCartSlot    = "STOREFRONT_CART_SLOT"
	EnvDBDSN       = "STOREFRONT_DB_DSN"
	EnvDBDriver    = "STOREFRONT_DB_DRIVER"
	EnvDBHost      = "STOREFRONT_DB_HOST"
	EnvDBUser      = "STOREFRONT_DB_USER"
	EnvDBName      = "STOREFRONT_DB_NAME"
	EnvRedisURL    = "STOREFRONT_REDIS_URL"
	EnvRedisAddr   = "STOREFRONT_REDIS_ADDR"
)

var postgresDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

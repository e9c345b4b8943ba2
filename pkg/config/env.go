package config

const (
	EnvPrefix = "CIVIC"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file:civic.db?_foreign_keys=on"
)

// Environment variable names referenced outside of struct tags.
const (
	EnvAppEnv    = "CIVIC_APP_ENV"
	EnvPort      = "CIVIC_APP_PORT"
	EnvDBDSN     = "CIVIC_DB_DSN"
	EnvDBHost    = "CIVIC_DB_HOST"
	EnvDBUser    = "CIVIC_DB_USER"
	EnvDBName    = "CIVIC_DB_NAME"
	EnvRedisURL  = "CIVIC_REDIS_URL"
	EnvJWTSecret = "CIVIC_JWT_SECRET"
	EnvJWTIssuer = "CIVIC_JWT_ISSUER"
	EnvJWTExpMin = "CIVIC_JWT_EXPIRATION_MINUTES"
	EnvUseSQLite = "CIVIC_USE_SQLITE"

	EnvRefreshTokenTTLMinutes = "CIVIC_REFRESH_TOKEN_TTL_MINUTES"
	EnvIssuesStrict           = "CIVIC_ISSUES_STRICT_TRANSITIONS"
	EnvNotificationsRetention = "CIVIC_NOTIFICATIONS_RETENTION_DAYS"
	EnvNotificationsQueueSize = "CIVIC_NOTIFICATIONS_QUEUE_SIZE"
	EnvSMTPHost               = "CIVIC_SMTP_HOST"
	EnvCORSAllowedOrigins     = "CIVIC_CORS_ALLOWED_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

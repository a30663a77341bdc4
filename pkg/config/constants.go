package config

const (
	EnvPrefix = "MAIYOM"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "MAIYOM_APP_ENV"
	EnvPort     = "MAIYOM_APP_PORT"
	EnvDBDSN    = "MAIYOM_DB_DSN"
	EnvDBHost   = "MAIYOM_DB_HOST"
	EnvDBUser   = "MAIYOM_DB_USER"
	EnvDBName   = "MAIYOM_DB_NAME"
	EnvSQLite   = "MAIYOM_USE_SQLITE"
	EnvRedisURL = "MAIYOM_REDIS_URL"

	EnvJWTSecret = "MAIYOM_JWT_SECRET"
	EnvJWTIssuer = "MAIYOM_JWT_ISSUER"

	EnvGCPProjectID = "MAIYOM_GCP_PROJECT_ID"
	EnvGCSBucket    = "MAIYOM_GCS_BUCKET_NAME"

	EnvPubSubNotificationSubscription = "MAIYOM_PUBSUB_NOTIFICATION_SUBSCRIPTION"
	EnvPubSubAnalyticsSubscription    = "MAIYOM_PUBSUB_ANALYTICS_SUBSCRIPTION"

	EnvOTPMaxAttempts = "MAIYOM_OTP_MAX_ATTEMPTS"
	EnvOTPSealKey     = "MAIYOM_OTP_SEAL_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

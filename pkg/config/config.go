package config

import (
	"encoding/hex"
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
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GoogleMaps   GoogleMapsConfig
	GCP          GCPConfig
	GCS          GCSConfig
	Media        MediaConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	OTP          OTPConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.OTP.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MAIYOM_APP_ENV" required:"true"`
	Port         string `envconfig:"MAIYOM_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MAIYOM_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MAIYOM_LOG_WARN_STACK" default:"false"`
	// MetricsAddr is where background workers expose /metrics; empty disables it.
	MetricsAddr  string `envconfig:"MAIYOM_METRICS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MAIYOM_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN        string `envconfig:"MAIYOM_DB_DSN"`
	Driver     string `envconfig:"MAIYOM_DB_DRIVER" default:"postgres"`
	SQLitePath string `envconfig:"MAIYOM_SQLITE_PATH" default:"maiyom.db"`

	LegacyHost     string `envconfig:"MAIYOM_DB_HOST"`
	LegacyPort     int    `envconfig:"MAIYOM_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MAIYOM_DB_USER"`
	LegacyPassword string `envconfig:"MAIYOM_DB_PASSWORD"`
	LegacyName     string `envconfig:"MAIYOM_DB_NAME"`
	LegacySSLMode  string `envconfig:"MAIYOM_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MAIYOM_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MAIYOM_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MAIYOM_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MAIYOM_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQueryThreshold logs statements slower than this as warnings; 0 disables.
	SlowQueryThreshold time.Duration `envconfig:"MAIYOM_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MAIYOM_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MAIYOM_REDIS_ADDR"`
	Password     string        `envconfig:"MAIYOM_REDIS_PASSWORD"`
	DB           int           `envconfig:"MAIYOM_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MAIYOM_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MAIYOM_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MAIYOM_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MAIYOM_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MAIYOM_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes how access tokens minted by the identity provider are verified.
type JWTConfig struct {
	Secret            string        `envconfig:"MAIYOM_JWT_SECRET" required:"true"`
	Issuer            string        `envconfig:"MAIYOM_JWT_ISSUER" required:"true"`
	ExpirationMinutes int           `envconfig:"MAIYOM_JWT_EXPIRATION_MINUTES" default:"60"`
	ClockSkew         time.Duration `envconfig:"MAIYOM_JWT_CLOCK_SKEW" default:"30s"`
	// Audience is stamped on minted tokens and, when set, required on parse.
	Audience string `envconfig:"MAIYOM_JWT_AUDIENCE"`
}

// AccessTokenTTL returns the access token lifetime configured in minutes.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type RateLimitConfig struct {
	OfferWindow    time.Duration `envconfig:"MAIYOM_RATE_LIMIT_OFFER_WINDOW" default:"1m"`
	OfferUserLimit int           `envconfig:"MAIYOM_RATE_LIMIT_OFFER_USER_LIMIT" default:"10"`
	OfferIPLimit   int           `envconfig:"MAIYOM_RATE_LIMIT_OFFER_IP_LIMIT" default:"40"`
	OTPWindow      time.Duration `envconfig:"MAIYOM_RATE_LIMIT_OTP_WINDOW" default:"1m"`
	OTPUserLimit   int           `envconfig:"MAIYOM_RATE_LIMIT_OTP_USER_LIMIT" default:"6"`
	OTPIPLimit     int           `envconfig:"MAIYOM_RATE_LIMIT_OTP_IP_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	UseSQLite      bool   `envconfig:"MAIYOM_USE_SQLITE" default:"false"`
	AutoMigrate    bool   `envconfig:"MAIYOM_AUTO_MIGRATE" default:"false"`
	RealtimeDriver string `envconfig:"MAIYOM_REALTIME_DRIVER" default:"redis"`
	Geocoding      bool   `envconfig:"MAIYOM_FEATURE_GEOCODING" default:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"MAIYOM_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GoogleMapsConfig struct {
	APIKey         string        `envconfig:"MAIYOM_GOOGLE_MAPS_API_KEY"`
	Region         string        `envconfig:"MAIYOM_GOOGLE_MAPS_REGION" default:"in"`
	GeocodeTTL     time.Duration `envconfig:"MAIYOM_GEOCODE_CACHE_TTL" default:"168h"`
	GeocodeMissTTL time.Duration `envconfig:"MAIYOM_GEOCODE_MISS_TTL" default:"1h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MAIYOM_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"MAIYOM_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MAIYOM_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName    string `envconfig:"MAIYOM_GCS_BUCKET_NAME" required:"true"`
	PublicBaseURL string `envconfig:"MAIYOM_GCS_PUBLIC_BASE_URL" default:"https://storage.googleapis.com"`
}

type MediaConfig struct {
	MaxUploadMB int `envconfig:"MAIYOM_MAX_UPLOAD_MB" default:"10"`
}

// MaxUploadBytes converts the configured megabyte ceiling into bytes.
func (m MediaConfig) MaxUploadBytes() int64 {
	if m.MaxUploadMB <= 0 {
		return 10 << 20
	}
	return int64(m.MaxUploadMB) << 20
}

type PubSubConfig struct {
	MissionsTopic            string `envconfig:"MAIYOM_PUBSUB_MISSIONS_TOPIC" default:"maiyom-mission-events"`
	NotificationSubscription string `envconfig:"MAIYOM_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
	AnalyticsSubscription    string `envconfig:"MAIYOM_PUBSUB_ANALYTICS_SUBSCRIPTION" required:"true"`
}

type BigQueryConfig struct {
	Dataset            string `envconfig:"MAIYOM_BIGQUERY_DATASET" default:"maiyom"`
	MissionEventsTable string `envconfig:"MAIYOM_BIGQUERY_MISSION_EVENTS_TABLE" default:"mission_events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MAIYOM_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MAIYOM_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MAIYOM_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// OTPConfig tunes verification lockout and at-rest sealing of handshake codes.
type OTPConfig struct {
	MaxAttempts   int           `envconfig:"MAIYOM_OTP_MAX_ATTEMPTS" default:"5"`
	LockoutWindow time.Duration `envconfig:"MAIYOM_OTP_LOCKOUT_WINDOW" default:"15m"`
	SealKeyHex    string        `envconfig:"MAIYOM_OTP_SEAL_KEY"`
}

// SealKey decodes the configured hex key. An empty key disables sealing.
func (o OTPConfig) SealKey() ([]byte, error) {
	trimmed := strings.TrimSpace(o.SealKeyHex)
	if trimmed == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%s must be hex encoded: %w", EnvOTPSealKey, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%s must decode to 32 bytes, got %d", EnvOTPSealKey, len(key))
	}
	return key, nil
}

func (o OTPConfig) validate() error {
	if o.MaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvOTPMaxAttempts)
	}
	_, err := o.SealKey()
	return err
}

type CronConfig struct {
	NotificationRetention time.Duration `envconfig:"MAIYOM_CRON_NOTIFICATION_RETENTION" default:"720h"`
	OutboxRetention       time.Duration `envconfig:"MAIYOM_CRON_OUTBOX_RETENTION" default:"720h"`
	Interval              time.Duration `envconfig:"MAIYOM_CRON_INTERVAL" default:"10m"`
	BatchSize             int           `envconfig:"MAIYOM_CRON_BATCH_SIZE" default:"500"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
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

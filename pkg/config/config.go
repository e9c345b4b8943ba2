package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	RateLimit     RateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Issues        IssuesConfig
	Notifications NotificationsConfig
	Realtime      RealtimeConfig
	SMTP          SMTPConfig
	CORS          CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CIVIC_APP_ENV" required:"true"`
	Port         string `envconfig:"CIVIC_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CIVIC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CIVIC_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"CIVIC_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"CIVIC_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CIVIC_DB_DSN"`
	Driver string `envconfig:"CIVIC_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CIVIC_DB_HOST"`
	LegacyPort     int    `envconfig:"CIVIC_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CIVIC_DB_USER"`
	LegacyPassword string `envconfig:"CIVIC_DB_PASSWORD"`
	LegacyName     string `envconfig:"CIVIC_DB_NAME"`
	LegacySSLMode  string `envconfig:"CIVIC_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CIVIC_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CIVIC_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CIVIC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CIVIC_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"CIVIC_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

// IsSQLite reports whether the sqlite driver was selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"CIVIC_REDIS_URL"`
	Address      string        `envconfig:"CIVIC_REDIS_ADDR"`
	Password     string        `envconfig:"CIVIC_REDIS_PASSWORD"`
	DB           int           `envconfig:"CIVIC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CIVIC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CIVIC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CIVIC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CIVIC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CIVIC_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"CIVIC_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"CIVIC_JWT_ISSUER" default:"civicconnect"`
	ExpirationMinutes      int    `envconfig:"CIVIC_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenTTLMinutes int    `envconfig:"CIVIC_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"CIVIC_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"CIVIC_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"CIVIC_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"CIVIC_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"CIVIC_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"CIVIC_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"CIVIC_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"CIVIC_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"CIVIC_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"CIVIC_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"CIVIC_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

// RateLimitConfig throttles authenticated API traffic per client.
type RateLimitConfig struct {
	RequestsPerSecond float64       `envconfig:"CIVIC_RATE_LIMIT_RPS" default:"10"`
	Burst             int           `envconfig:"CIVIC_RATE_LIMIT_BURST" default:"30"`
	IdleTTL           time.Duration `envconfig:"CIVIC_RATE_LIMIT_IDLE_TTL" default:"10m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CIVIC_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CIVIC_AUTO_MIGRATE" default:"false"`
}

type IssuesConfig struct {
	StrictTransitions  bool    `envconfig:"CIVIC_ISSUES_STRICT_TRANSITIONS" default:"false"`
	NearbyRadiusMeters float64 `envconfig:"CIVIC_ISSUES_NEARBY_RADIUS_METERS" default:"5000"`
	NearbyLimit        int     `envconfig:"CIVIC_ISSUES_NEARBY_LIMIT" default:"20"`
}

type NotificationsConfig struct {
	QueueSize       int           `envconfig:"CIVIC_NOTIFICATIONS_QUEUE_SIZE" default:"256"`
	Workers         int           `envconfig:"CIVIC_NOTIFICATIONS_WORKERS" default:"4"`
	DeliveryTimeout time.Duration `envconfig:"CIVIC_NOTIFICATIONS_DELIVERY_TIMEOUT" default:"15s"`
	RetentionDays   int           `envconfig:"CIVIC_NOTIFICATIONS_RETENTION_DAYS" default:"30"`
	CleanupInterval time.Duration `envconfig:"CIVIC_NOTIFICATIONS_CLEANUP_INTERVAL" default:"24h"`
	EmailEnabled    bool          `envconfig:"CIVIC_NOTIFICATIONS_EMAIL_ENABLED" default:"true"`
	// LinkBase prefixes the relative links embedded in notification emails.
	LinkBase string `envconfig:"CIVIC_NOTIFICATIONS_LINK_BASE" default:"http://localhost:3000"`
}

type RealtimeConfig struct {
	SendBuffer     int           `envconfig:"CIVIC_REALTIME_SEND_BUFFER" default:"64"`
	WriteTimeout   time.Duration `envconfig:"CIVIC_REALTIME_WRITE_TIMEOUT" default:"10s"`
	PingInterval   time.Duration `envconfig:"CIVIC_REALTIME_PING_INTERVAL" default:"30s"`
	MaxMessageSize int64         `envconfig:"CIVIC_REALTIME_MAX_MESSAGE_BYTES" default:"4096"`
}

type SMTPConfig struct {
	Host          string  `envconfig:"CIVIC_SMTP_HOST"`
	Port          int     `envconfig:"CIVIC_SMTP_PORT" default:"587"`
	Username      string  `envconfig:"CIVIC_SMTP_USERNAME"`
	Password      string  `envconfig:"CIVIC_SMTP_PASSWORD"`
	From          string  `envconfig:"CIVIC_SMTP_FROM" default:"no-reply@civicconnect.local"`
	RatePerSecond float64 `envconfig:"CIVIC_SMTP_RATE_PER_SECOND" default:"5"`
	Burst         int     `envconfig:"CIVIC_SMTP_BURST" default:"5"`
}

// Enabled reports whether an SMTP relay was configured.
func (s SMTPConfig) Enabled() bool {
	return strings.TrimSpace(s.Host) != ""
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"CIVIC_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = defaultSQLiteDSN
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

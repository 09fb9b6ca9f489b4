package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodyBytes      int64

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	DBSchema    string

	// RedisURL configures the notification fanout transport. Empty means
	// notifications are recorded in-process only (dev mode).
	RedisURL       string
	PublishTimeout time.Duration

	// Access-token verification (issued by the external identity service).
	TokenIssuer       string
	TokenPublicKeyHex string
	TokenClockSkew    time.Duration

	// DevStaticTokens maps opaque bearer tokens to user IDs when no PASETO
	// public key is configured. Never set this in production.
	DevStaticTokens map[string]string

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("PARLEY_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("PARLEY_LOG_LEVEL", "info"),
		LogFormat: EnvString("PARLEY_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("PARLEY_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("PARLEY_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("PARLEY_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("PARLEY_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("PARLEY_HTTP_MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:   int64(EnvInt("PARLEY_HTTP_MAX_BODY_BYTES", 1<<20)),

		DatabaseURL: EnvString("PARLEY_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("PARLEY_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("PARLEY_DB_MIN_CONNS", 0),
		DBSchema:    EnvString("PARLEY_DB_SCHEMA", "parley"),

		RedisURL:       EnvString("PARLEY_REDIS_URL", ""),
		PublishTimeout: EnvDuration("PARLEY_NOTIFY_PUBLISH_TIMEOUT", 5*time.Second),

		TokenIssuer:       EnvString("PARLEY_TOKEN_ISSUER", "parley-identity"),
		TokenPublicKeyHex: EnvString("PARLEY_TOKEN_PUBLIC_KEY_HEX", ""),
		TokenClockSkew:    EnvDuration("PARLEY_TOKEN_CLOCK_SKEW", 30*time.Second),

		DevStaticTokens: EnvStringMap("PARLEY_DEV_STATIC_TOKENS"),

		ReadinessRequireDB: EnvBool("PARLEY_READINESS_REQUIRE_DB", false),
	}
}

// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Session store backends.
const (
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
	SessionStoreMemory   = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health listener; empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Required unless SESSION_STORE=memory.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the redis:// URL used when SESSION_STORE=redis.
	RedisURL string `mapstructure:"REDIS_URL"`
	// SessionStore selects the device session backend: postgres, redis or memory.
	SessionStore string `mapstructure:"SESSION_STORE"`
	// AutoMigrate applies pending migrations on server start.
	AutoMigrate bool `mapstructure:"DB_AUTO_MIGRATE"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "10m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime and the device session window (e.g. "480h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// ConfirmationCodeTTL is how long an email confirmation code stays valid.
	ConfirmationCodeTTL string `mapstructure:"CONFIRMATION_CODE_TTL"`
	// RecoveryCodeTTL is how long a password recovery code stays valid.
	RecoveryCodeTTL string `mapstructure:"RECOVERY_CODE_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// SessionStrictRotation when true accepts only the most recently issued refresh token of a device.
	SessionStrictRotation bool `mapstructure:"SESSION_STRICT_ROTATION"`
	// CookieSecure sets the Secure attribute on the refreshToken cookie.
	CookieSecure bool `mapstructure:"COOKIE_SECURE"`

	// RateLimitWindow is the fixed window of the per-IP limit on anonymous auth routes (e.g. "10s").
	RateLimitWindow string `mapstructure:"RATE_LIMIT_WINDOW"`
	// RateLimitMax is how many requests one IP may make to one route per window; 0 disables the limit.
	RateLimitMax int `mapstructure:"RATE_LIMIT_MAX"`
	// TrustedProxies is a comma-separated list of CIDRs or addresses allowed to set X-Forwarded-For.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`

	// EmailAPIURL is the transactional email HTTP endpoint; empty logs messages instead of sending.
	EmailAPIURL  string `mapstructure:"EMAIL_API_URL"`
	EmailAPIKey  string `mapstructure:"EMAIL_API_KEY"`
	EmailFrom    string `mapstructure:"EMAIL_FROM"`
	EmailLinkURL string `mapstructure:"EMAIL_LINK_BASE_URL"`
	// DevCodesEnabled captures issued codes for GET /dev/codes. Must not be true when Env is production.
	DevCodesEnabled bool `mapstructure:"DEV_CODES_ENABLED"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
	// PolicyFile optionally overrides the compiled-in device revocation policy.
	PolicyFile string `mapstructure:"POLICY_FILE"`

	// OTLPEndpoint is the OTLP gRPC collector; empty keeps telemetry no-op.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses; empty disables session events.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// SessionEventsTopic is the Kafka topic for session lifecycle events.
	SessionEventsTopic string `mapstructure:"SESSION_EVENTS_TOPIC"`

	// Worker-only: Loki URL for the session events worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the session events worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	// every key needs a default so Unmarshal sees env overrides
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("SESSION_STORE", SessionStorePostgres)
	v.SetDefault("DB_AUTO_MIGRATE", false)
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "bloggers-auth")
	v.SetDefault("JWT_AUDIENCE", "bloggers-api")
	v.SetDefault("JWT_ACCESS_TTL", "10m")
	v.SetDefault("JWT_REFRESH_TTL", "480h") // 20d
	v.SetDefault("CONFIRMATION_CODE_TTL", "5h")
	v.SetDefault("RECOVERY_CODE_TTL", "1h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("SESSION_STRICT_ROTATION", false)
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("RATE_LIMIT_WINDOW", "10s")
	v.SetDefault("RATE_LIMIT_MAX", 5)
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("EMAIL_API_URL", "")
	v.SetDefault("EMAIL_API_KEY", "")
	v.SetDefault("EMAIL_FROM", "no-reply@bloggers.local")
	v.SetDefault("EMAIL_LINK_BASE_URL", "http://localhost:3000")
	v.SetDefault("DEV_CODES_ENABLED", false)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("POLICY_FILE", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("SESSION_EVENTS_TOPIC", "bloggers-session-events")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "bloggers-session-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.DevCodesEnabled && c.Env == "production" {
		return errors.New("config: DEV_CODES_ENABLED must not be true when APP_ENV=production")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.RateLimitMax < 0 {
		return errors.New("config: RATE_LIMIT_MAX must not be negative")
	}
	c.SessionStore = strings.ToLower(strings.TrimSpace(c.SessionStore))
	switch c.SessionStore {
	case SessionStorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when SESSION_STORE=postgres")
		}
	case SessionStoreRedis:
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL must be set when SESSION_STORE=redis")
		}
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when SESSION_STORE=redis")
		}
	case SessionStoreMemory:
	default:
		return errors.New("config: SESSION_STORE must be postgres, redis or memory")
	}
	for key, raw := range map[string]string{
		"JWT_ACCESS_TTL":        c.JWTAccessTTL,
		"JWT_REFRESH_TTL":       c.JWTRefreshTTL,
		"CONFIRMATION_CODE_TTL": c.ConfirmationCodeTTL,
		"RECOVERY_CODE_TTL":     c.RecoveryCodeTTL,
		"RATE_LIMIT_WINDOW":     c.RateLimitWindow,
	} {
		if d, err := time.ParseDuration(raw); err != nil || d <= 0 {
			return errors.New("config: " + key + " must be a positive duration")
		}
	}
	return nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 10m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 10*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 480h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 480*time.Hour)
}

// ConfirmationTTL parses ConfirmationCodeTTL. Returns 5h if unset or invalid.
func (c *Config) ConfirmationTTL() time.Duration {
	return parseDuration(c.ConfirmationCodeTTL, 5*time.Hour)
}

// RecoveryTTL parses RecoveryCodeTTL. Returns 1h if unset or invalid.
func (c *Config) RecoveryTTL() time.Duration {
	return parseDuration(c.RecoveryCodeTTL, time.Hour)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// RateWindow parses RateLimitWindow. Returns 10s if unset or invalid.
func (c *Config) RateWindow() time.Duration {
	return parseDuration(c.RateLimitWindow, 10*time.Second)
}

// TrustedProxiesList returns the trusted proxy entries from the comma-separated config.
func (c *Config) TrustedProxiesList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TrustedProxies)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if session events are enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

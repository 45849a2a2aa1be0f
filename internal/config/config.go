package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	DatabaseURL        string
	ServiceDatabaseURL string
	DBSessionRole      string
	ServerPort         string
	FrontendURL        string
	EnableHSTS         bool
	TrustProxyHeaders  bool
	RedisURL           string
	RabbitMQURL        string
	ServerDebugMode    bool
	LogFormat          string
	OTELEnabled        bool
	OTELEndpoint       string

	AuthIssuer     string
	AuthJWKSURL    string
	AuthCookieName string

	RateLimitTiersFile       string
	RateLimitGlobalDefault   string
	RateLimitJanitorInterval time.Duration
	RateLimitReloadInterval  time.Duration
}

// ElevatedLookupEnabled reports whether a service-level database credential is configured.
// Without it the admin gate has no fallback when row-level security hides a profile row.
func (c *Config) ElevatedLookupEnabled() bool {
	return c.ServiceDatabaseURL != ""
}

// Load loads configuration from environment variables. DATABASE_URL is required.
func Load() (*Config, error) {
	cfg, err := LoadWithoutDatabase()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// LoadWithoutDatabase is Load for callers that never open Postgres, such as CLI commands that
// only read tier files or follow the event exchange.
func LoadWithoutDatabase() (*Config, error) {
	cfg := &Config{
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		ServiceDatabaseURL: getEnv("SERVICE_DATABASE_URL", ""),
		DBSessionRole:      getEnv("DB_SESSION_ROLE", "authenticated"),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:         getEnvBool("ENABLE_HSTS", false),
		TrustProxyHeaders:  getEnvBool("TRUST_PROXY_HEADERS", false),
		RedisURL:           getEnv("REDIS_URL", ""),
		RabbitMQURL:        getEnv("RABBITMQ_URL", ""),
		ServerDebugMode:    getEnvBool("SERVER_DEBUG_MODE", false),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		OTELEnabled:        getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		AuthIssuer:     getEnv("AUTH_ISSUER", ""),
		AuthJWKSURL:    getEnv("AUTH_JWKS_URL", ""),
		AuthCookieName: getEnv("AUTH_COOKIE_NAME", "sb-access-token"),

		RateLimitTiersFile:       getEnv("RATELIMIT_TIERS_FILE", ""),
		RateLimitGlobalDefault:   getEnv("RATELIMIT_GLOBAL_DEFAULT", "50-S"),
		RateLimitJanitorInterval: getEnvDuration("RATELIMIT_JANITOR_INTERVAL", time.Minute),
		RateLimitReloadInterval:  getEnvDuration("RATELIMIT_RELOAD_INTERVAL", time.Minute),
	}

	if cfg.AuthJWKSURL == "" && cfg.AuthIssuer != "" {
		cfg.AuthJWKSURL = strings.TrimRight(cfg.AuthIssuer, "/") + "/.well-known/jwks.json"
	}

	if cfg.DBSessionRole != "" && !isIdentifier(cfg.DBSessionRole) {
		return nil, fmt.Errorf("DB_SESSION_ROLE must be a plain SQL identifier, got %q", cfg.DBSessionRole)
	}

	return cfg, nil
}

// isIdentifier reports whether s can be interpolated into SET LOCAL ROLE unquoted.
func isIdentifier(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return s != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("30s") or a bare integer of milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms := getEnvInt(key, -1); ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

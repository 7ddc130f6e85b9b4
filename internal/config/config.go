// Package config provides configuration management for the workspace assistant.
// It loads configuration from environment variables with sensible defaults
// and validates it so the application refuses to start with unsafe settings.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - BASE_URL: Public origin of the service (default: http://localhost:8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FORMAT: "console" or "json" (default: console)
//   - LOG_FILE: Optional log file path
//
// OAuth Configuration:
//   - GOOGLE_CLIENT_ID: OAuth client id (required)
//   - GOOGLE_CLIENT_SECRET: OAuth client secret (required)
//   - GOOGLE_REDIRECT_URL: Callback URL (default: BASE_URL + /callback)
//   - GOOGLE_SCOPES: Comma or space separated scope override
//   - STATE_SECRET: HMAC key for handshake state (required, minimum 32 characters)
//
// Sessions:
//   - SESSION_TTL: Lifetime of a signed-in session (default: 24h)
//   - SESSION_COOKIE_SECURE: Mark the session cookie Secure (default: true)
//
// Credential Store:
//   - STORE_BACKEND: "memory", "redis", "sqlite" or "postgres" (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./workspace_assistant.db)
//   - POSTGRES_URL: PostgreSQL connection URL (required if using PostgreSQL)
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//   - STORE_CONNECT_TIMEOUT: Bound on a single connect attempt (default: 10s)
//   - STORE_HEALTH_INTERVAL: How often the store is pinged (default: 1m)
//   - CREDENTIAL_ENCRYPTION_KEY: Enables token encryption at rest when set
//
// Token Lifecycle:
//   - REFRESH_BUFFER: Refresh tokens this long before expiry (default: 5m)
//   - DEFAULT_TOKEN_TTL: Assumed lifetime when the provider reports none (default: 1h)
//
// API Wrappers:
//   - FALLBACK_MODE: "demo" or "error" (default: demo)
//   - ITEM_TIMEOUT: Per-item detail fetch timeout (default: 10s)
//   - MAIL_MAX_RESULTS, FILES_MAX_RESULTS, EVENTS_MAX_RESULTS: List sizes (default: 10)
//
// Rate Limiting:
//   - RATE_LIMIT_ENABLED: Enable per-client rate limiting of the API routes (default: true)
//   - RATE_LIMIT_RPS: Sustained requests per second per client (default: 5)
//   - RATE_LIMIT_BURST: Burst size per client (default: 20)
//
// Example usage:
//
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"workspace-assistant/internal/common/errors"
)

// Config holds all configuration values. Numeric and duration settings are
// kept as strings and checked by Validate; the typed accessors below assume
// a validated Config.
type Config struct {
	// Application settings
	Port      string // Server port number
	BaseURL   string // Public origin used to build the default redirect URL
	LogLevel  string // Logging level (debug, info, warn, error)
	LogFormat string // console or json
	LogFile   string // Optional log file

	// OAuth client
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	GoogleScopes       string
	StateSecret        string // HMAC key for handshake state tokens

	// Sessions
	SessionTTL          string
	SessionCookieSecure bool

	// Credential store
	StoreBackend        string // memory, redis, sqlite or postgres
	DatabasePath        string
	PostgresURL         string
	RedisAddress        string
	RedisPassword       string
	RedisDB             string
	RedisPoolSize       string
	StoreConnectTimeout string
	StoreHealthInterval string
	EncryptionKey       string // Key for encrypting tokens at rest

	// Token lifecycle
	RefreshBuffer   string
	DefaultTokenTTL string

	// API wrappers
	FallbackMode     string
	ItemTimeout      string
	MailMaxResults   string
	FilesMaxResults  string
	EventsMaxResults string

	// Rate limiting of the API routes
	RateLimitEnabled bool
	RateLimitRPS     string
	RateLimitBurst   string
}

// Load creates a Config from environment variables. If a variable is unset,
// the corresponding default is used. Load does not validate.
func Load() *Config {
	baseURL := strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/")

	return &Config{
		Port:      getEnv("PORT", "8080"),
		BaseURL:   baseURL,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
		LogFile:   getEnv("LOG_FILE", ""),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", baseURL+"/callback"),
		GoogleScopes:       getEnv("GOOGLE_SCOPES", ""),
		StateSecret:        getEnv("STATE_SECRET", ""),

		SessionTTL:          getEnv("SESSION_TTL", "24h"),
		SessionCookieSecure: getBoolEnv("SESSION_COOKIE_SECURE", true),

		StoreBackend:        strings.ToLower(getEnv("STORE_BACKEND", "sqlite")),
		DatabasePath:        getEnv("DATABASE_PATH", "./workspace_assistant.db"),
		PostgresURL:         getEnv("POSTGRES_URL", ""),
		RedisAddress:        getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnv("REDIS_DB", "0"),
		RedisPoolSize:       getEnv("REDIS_POOL_SIZE", "10"),
		StoreConnectTimeout: getEnv("STORE_CONNECT_TIMEOUT", "10s"),
		StoreHealthInterval: getEnv("STORE_HEALTH_INTERVAL", "1m"),
		EncryptionKey:       getEnv("CREDENTIAL_ENCRYPTION_KEY", ""),

		RefreshBuffer:   getEnv("REFRESH_BUFFER", "5m"),
		DefaultTokenTTL: getEnv("DEFAULT_TOKEN_TTL", "1h"),

		FallbackMode:     strings.ToLower(getEnv("FALLBACK_MODE", "demo")),
		ItemTimeout:      getEnv("ITEM_TIMEOUT", "10s"),
		MailMaxResults:   getEnv("MAIL_MAX_RESULTS", "10"),
		FilesMaxResults:  getEnv("FILES_MAX_RESULTS", "10"),
		EventsMaxResults: getEnv("EVENTS_MAX_RESULTS", "10"),

		RateLimitEnabled: getBoolEnv("RATE_LIMIT_ENABLED", true),
		RateLimitRPS:     getEnv("RATE_LIMIT_RPS", "5"),
		RateLimitBurst:   getEnv("RATE_LIMIT_BURST", "20"),
	}
}

// getEnv retrieves an environment variable value or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv accepts the strconv.ParseBool spellings; anything else yields defaultValue.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func invalid(format string, args ...interface{}) error {
	return errors.ConfigError(fmt.Sprintf(format, args...))
}

// Validate checks required fields, value formats and cross-field
// dependencies. Every error is a config AppError naming the variable.
func (c *Config) Validate() error {
	// Required OAuth settings
	if c.GoogleClientID == "" {
		return invalid("GOOGLE_CLIENT_ID environment variable is required")
	}
	if c.GoogleClientSecret == "" {
		return invalid("GOOGLE_CLIENT_SECRET environment variable is required")
	}
	if c.StateSecret == "" {
		return invalid("STATE_SECRET environment variable is required")
	}
	if len(c.StateSecret) < 32 {
		return invalid("STATE_SECRET must be at least 32 characters long for security")
	}
	if u, err := url.Parse(c.GoogleRedirectURL); err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("GOOGLE_REDIRECT_URL must be an absolute URL")
	}

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return invalid("PORT must be a valid port number between 1 and 65535")
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return invalid("LOG_FORMAT must be 'console' or 'json'")
	}

	// Validate store backend
	switch c.StoreBackend {
	case "memory", "redis", "sqlite":
	case "postgres", "postgresql":
		if c.PostgresURL == "" {
			return invalid("POSTGRES_URL is required when STORE_BACKEND is postgres")
		}
	default:
		return invalid("STORE_BACKEND must be 'memory', 'redis', 'sqlite' or 'postgres'")
	}

	// Validate Redis config if provided
	if c.RedisAddress != "" {
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return invalid("REDIS_DB must be a number between 0 and 15")
		}
		if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
			return invalid("REDIS_POOL_SIZE must be a positive number")
		}
	} else if c.StoreBackend == "redis" {
		return invalid("REDIS_ADDRESS is required when STORE_BACKEND is redis")
	}

	for name, value := range map[string]string{
		"SESSION_TTL":           c.SessionTTL,
		"STORE_CONNECT_TIMEOUT": c.StoreConnectTimeout,
		"STORE_HEALTH_INTERVAL": c.StoreHealthInterval,
		"REFRESH_BUFFER":        c.RefreshBuffer,
		"DEFAULT_TOKEN_TTL":     c.DefaultTokenTTL,
		"ITEM_TIMEOUT":          c.ItemTimeout,
	} {
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			return invalid("%s must be a positive duration (e.g., '10s', '5m')", name)
		}
	}

	switch c.FallbackMode {
	case "demo", "error":
	default:
		return invalid("FALLBACK_MODE must be 'demo' or 'error'")
	}

	for name, value := range map[string]string{
		"MAIL_MAX_RESULTS":   c.MailMaxResults,
		"FILES_MAX_RESULTS":  c.FilesMaxResults,
		"EVENTS_MAX_RESULTS": c.EventsMaxResults,
	} {
		if n, err := strconv.Atoi(value); err != nil || n < 1 || n > 100 {
			return invalid("%s must be a number between 1 and 100", name)
		}
	}

	// Validate rate limit config
	if c.RateLimitEnabled {
		if rps, err := strconv.ParseFloat(c.RateLimitRPS, 64); err != nil || rps <= 0 {
			return invalid("RATE_LIMIT_RPS must be a positive number")
		}
		if burst, err := strconv.Atoi(c.RateLimitBurst); err != nil || burst < 1 {
			return invalid("RATE_LIMIT_BURST must be a positive number")
		}
	}

	// Validate encryption key if provided
	if c.EncryptionKey != "" && len(c.EncryptionKey) < 16 {
		return invalid("CREDENTIAL_ENCRYPTION_KEY must be at least 16 characters when provided")
	}

	return nil
}

// Scopes returns the GOOGLE_SCOPES override, or nil for the defaults
func (c *Config) Scopes() []string {
	return strings.FieldsFunc(c.GoogleScopes, func(r rune) bool {
		return r == ',' || r == ' '
	})
}

// Duration parses one of the validated duration settings
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

// Int parses one of the validated integer settings
func Int(value string) int {
	n, _ := strconv.Atoi(value)
	return n
}

// Float parses one of the validated decimal settings
func Float(value string) float64 {
	f, _ := strconv.ParseFloat(value, 64)
	return f
}

package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"tixgate/internal/cache"
	"tixgate/internal/checkin"
	"tixgate/internal/database"
	"tixgate/internal/external"
	"tixgate/internal/messaging"
)

// Config holds the application configuration
type Config struct {
	Port           string
	GinMode        string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration

	// Performance monitoring
	PprofEnabled bool
	PprofPort    string

	Database      database.Config
	NATS          messaging.Config
	Elasticsearch ElasticsearchConfig
	Valkey        cache.Config
	Payment       external.PaymentConfig
	Tickets       TicketsConfig
	Identity      IdentityConfig
	CheckIn       checkin.Config
}

// TicketsConfig covers signing and acceptance of tickets
type TicketsConfig struct {
	// SigningKey signs new tickets. It is a secret and must never be logged.
	SigningKey string
	// PreviousKeys still verify tickets during a rotation grace window.
	PreviousKeys []string
	MaxAge       time.Duration
	// LegacyUntil is the sunset of unsigned tickets; zero disables them.
	LegacyUntil time.Time
	QRSize      int
}

// IdentityConfig configures verification of identity provider tokens
type IdentityConfig struct {
	TokenSecret string
	Issuer      string
	Audience    string
}

// ErrMissingSigningKey is returned by Validate when no ticket key is configured
var ErrMissingSigningKey = errors.New("TICKET_SIGNING_KEY is not set")

// ErrMissingIdentitySecret is returned by Validate when tokens cannot be verified
var ErrMissingIdentitySecret = errors.New("IDENTITY_TOKEN_SECRET is not set")

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8081"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,

		// Performance monitoring
		PprofEnabled: getEnv("PPROF_ENABLED", "false") == "true",
		PprofPort:    getEnv("PPROF_PORT", "6060"),

		Database: database.Config{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "tixgate"),
			Password:           getEnv("DB_PASSWORD", ""),
			DBName:             getEnv("DB_NAME", "tixgate"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetimeMin: getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 5),
			ConnMaxIdleTimeMin: getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", 1),
		},

		NATS: messaging.Config{
			URL:       getEnv("NATS_URL", "nats://localhost:4222"),
			ClusterID: getEnv("NATS_CLUSTER_ID", "tixgate"),
			ClientID:  getEnv("NATS_CLIENT_ID", "tixgate-api"),
		},

		Elasticsearch: LoadElasticsearchConfig(),

		Valkey: cache.Config{
			Addr:          getEnv("VALKEY_ADDR", "localhost:6379"),
			Password:      getEnv("VALKEY_PASSWORD", ""),
			ScanLimit:     getEnvInt("SCAN_RATE_LIMIT", 120),
			ScanWindow:    getEnvDuration("SCAN_RATE_WINDOW", time.Minute),
			RevokedPrefix: getEnv("VALKEY_REVOKED_PREFIX", "session:revoked:"),
		},

		Payment: external.PaymentConfig{
			Currency: getEnv("PAYMENT_CURRENCY", "KZT"),
			Latency:  getEnvDuration("PAYMENT_STUB_LATENCY", 0),
		},

		Tickets: TicketsConfig{
			SigningKey:   os.Getenv("TICKET_SIGNING_KEY"),
			PreviousKeys: getEnvList("TICKET_PREVIOUS_KEYS"),
			MaxAge:       time.Duration(getEnvInt("TICKET_MAX_AGE_HOURS", 365*24)) * time.Hour,
			LegacyUntil:  getEnvTime("LEGACY_TICKETS_UNTIL"),
			QRSize:       getEnvInt("TICKET_QR_SIZE", 512),
		},

		Identity: IdentityConfig{
			TokenSecret: os.Getenv("IDENTITY_TOKEN_SECRET"),
			Issuer:      getEnv("IDENTITY_ISSUER", ""),
			Audience:    getEnv("IDENTITY_AUDIENCE", ""),
		},

		CheckIn: checkin.Config{
			WriteTimeout:   time.Duration(getEnvInt("CHECKIN_WRITE_TIMEOUT_MS", 5000)) * time.Millisecond,
			ConfirmTimeout: time.Duration(getEnvInt("CHECKIN_CONFIRM_TIMEOUT_MS", 2000)) * time.Millisecond,
			ConfirmWrites:  getEnv("CHECKIN_CONFIRM_WRITES", "true") == "true",
			MaxAttempts:    getEnvInt("CHECKIN_MAX_ATTEMPTS", 3),
			RetryBackoff:   time.Duration(getEnvInt("CHECKIN_RETRY_BACKOFF_MS", 100)) * time.Millisecond,
		},
	}
}

// Validate reports configuration that must abort startup
func (c *Config) Validate() error {
	if c.Tickets.SigningKey == "" {
		return ErrMissingSigningKey
	}
	if c.Identity.TokenSecret == "" {
		return ErrMissingIdentitySecret
	}
	return nil
}

// getEnv returns the environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration parses values like "30s" or "1m"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvTime parses an RFC 3339 timestamp; unset or invalid yields the zero time
func getEnvTime(key string) time.Time {
	if value := os.Getenv(key); value != "" {
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

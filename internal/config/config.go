package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Local API
	Port     int
	LogLevel string

	// REST backend
	APIBaseURL  string
	HTTPTimeout time.Duration

	// Resilience (retries apply to GET requests only)
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Durable shared storage
	StoragePath string

	// Cross-process session broadcast (disabled when AMQPURL is empty)
	AMQPURL      string
	AMQPExchange string

	// Session
	SessionPollInterval time.Duration
	RegistrationGrace   time.Duration

	// Cache
	SummaryCacheTTL time.Duration

	// Observability (tracing disabled when empty)
	OTLPEndpoint string
}

// LoadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is reported to the caller, who may ignore it.
func LoadDotEnv(path string) error {
	return godotenv.Load(path)
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		APIBaseURL:  getEnv("API_BASE_URL", "https://api.solidtechsolutions.com.br"),
		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", time.Second),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 8),

		StoragePath: getEnv("STORAGE_PATH", "data/fintrack.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fintrack.session"),

		SessionPollInterval: getEnvDuration("SESSION_POLL_INTERVAL", 5*time.Second),
		RegistrationGrace:   getEnvDuration("REGISTRATION_GRACE", 5*time.Second),

		SummaryCacheTTL: getEnvDuration("SUMMARY_CACHE_TTL", time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", c.Port))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if u, err := url.Parse(c.APIBaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Sprintf("invalid API base URL '%s': must be an absolute http(s) URL", c.APIBaseURL))
	}

	if c.HTTPTimeout <= 0 {
		errs = append(errs, "HTTP timeout must be positive")
	}
	if c.MaxRetries < 0 {
		errs = append(errs, "max retries cannot be negative")
	}
	if c.InitialBackoff < 0 {
		errs = append(errs, "initial backoff cannot be negative")
	}
	if c.MaxConcurrency < 1 {
		errs = append(errs, "max concurrency must be at least 1")
	}

	if c.StoragePath == "" {
		errs = append(errs, "storage path cannot be empty")
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.SessionPollInterval <= 0 {
		errs = append(errs, "session poll interval must be positive")
	}
	if c.RegistrationGrace < 0 {
		errs = append(errs, "registration grace cannot be negative")
	}
	if c.SummaryCacheTTL <= 0 {
		errs = append(errs, "summary cache TTL must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

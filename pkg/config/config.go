package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aquaops/fieldserve/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	OAuth         OAuthConfig
	Onboarding    OnboardingConfig
	Gate          GateConfig
	Observability ObservabilityConfig

	// BaseURL is the public address of the app, used to build links in
	// emails and OAuth redirects.
	BaseURL string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// SecureCookies should be false only in local development.
	SecureCookies bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// OAuthConfig holds Google sign-in configuration
type OAuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

// Enabled reports whether Google sign-in is configured
func (c OAuthConfig) Enabled() bool {
	return c.GoogleClientID != ""
}

// OnboardingConfig holds invitation and pending-user tuning
type OnboardingConfig struct {
	InvitationTTL time.Duration
	PendingTTL    time.Duration
	SessionTTL    time.Duration
	// SweepSchedule is a cron expression for the expiry sweeps.
	SweepSchedule string
}

// GateConfig holds subscription gate tuning. The allow-lists themselves
// live in RulesPath so they can change without a deploy.
type GateConfig struct {
	RulesPath string
	CacheSize int
	CacheTTL  time.Duration
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("FIELDSERVE_HOST", "0.0.0.0"),
			Port:            getEnv("FIELDSERVE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("FIELDSERVE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("FIELDSERVE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("FIELDSERVE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("FIELDSERVE_SHUTDOWN_TIMEOUT", 30*time.Second),
			SecureCookies:   getEnvBool("FIELDSERVE_SECURE_COOKIES", true),
		},
		Database: DatabaseConfig{
			URL:             getEnv("FIELDSERVE_POSTGRES_URL", ""),
			MaxOpenConns:    getEnvInt("FIELDSERVE_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns:    getEnvInt("FIELDSERVE_POSTGRES_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("FIELDSERVE_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:      getEnv("FIELDSERVE_REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("FIELDSERVE_REDIS_PASSWORD", ""),
			DB:       getEnvInt("FIELDSERVE_REDIS_DB", 0),
		},
		OAuth: OAuthConfig{
			GoogleClientID:     getEnv("FIELDSERVE_GOOGLE_CLIENT_ID", ""),
			GoogleClientSecret: getEnv("FIELDSERVE_GOOGLE_CLIENT_SECRET", ""),
			GoogleRedirectURL:  getEnv("FIELDSERVE_GOOGLE_REDIRECT_URL", ""),
		},
		Onboarding: OnboardingConfig{
			InvitationTTL: getEnvDuration("FIELDSERVE_INVITATION_TTL", 7*24*time.Hour),
			PendingTTL:    getEnvDuration("FIELDSERVE_PENDING_TTL", 30*time.Minute),
			SessionTTL:    getEnvDuration("FIELDSERVE_SESSION_TTL", 7*24*time.Hour),
			SweepSchedule: getEnv("FIELDSERVE_SWEEP_SCHEDULE", "@every 1h"),
		},
		Gate: GateConfig{
			RulesPath: getEnv("FIELDSERVE_GATE_RULES_PATH", ""),
			CacheSize: getEnvInt("FIELDSERVE_GATE_CACHE_SIZE", 1024),
			CacheTTL:  getEnvDuration("FIELDSERVE_GATE_CACHE_TTL", time.Minute),
		},
		Observability: ObservabilityConfig{
			LogLevel:       parseLogLevel(getEnv("FIELDSERVE_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("FIELDSERVE_METRICS_ENABLED", true),
		},
		BaseURL: getEnv("FIELDSERVE_BASE_URL", "http://localhost:8080"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}

	if c.OAuth.Enabled() {
		if c.OAuth.GoogleClientSecret == "" {
			return fmt.Errorf("google client secret is required when google sign-in is configured")
		}
		if c.OAuth.GoogleRedirectURL == "" {
			return fmt.Errorf("google redirect URL is required when google sign-in is configured")
		}
	}

	if c.Onboarding.InvitationTTL <= 0 {
		return fmt.Errorf("invitation TTL must be positive")
	}
	if c.Onboarding.PendingTTL <= 0 {
		return fmt.Errorf("pending TTL must be positive")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

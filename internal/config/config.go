package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port        string
	Environment string
	MongoURI    string // empty -> in-process store (development only)
	RedisURL    string // empty -> in-memory rate limiter counters

	JWTSecret   string
	TokenExpiry time.Duration

	FrontendURL    string
	AllowedOrigins string

	// Outbound mail; empty host logs links instead of sending
	SMTPHost   string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	SMTPSender string

	SessionCacheTTL    time.Duration
	ReconcileInterval  time.Duration
	WriteRetryAttempts int
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	frontendURL := strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/")

	return &Config{
		Port:        getEnv("PORT", "4000"),
		Environment: strings.ToLower(getEnv("ENVIRONMENT", "development")),
		MongoURI:    getEnv("MONGODB_URI", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		TokenExpiry: getDurationEnv("JWT_EXPIRY", 720*time.Hour),

		FrontendURL:    frontendURL,
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", frontendURL),

		SMTPHost:   getEnv("SMTP_HOST", ""),
		SMTPPort:   getIntEnv("SMTP_PORT", 587),
		SMTPUser:   getEnv("SMTP_USER", ""),
		SMTPPass:   getEnv("SMTP_PASS", ""),
		SMTPSender: getEnv("SMTP_SENDER", "UpTask <accounts@uptask.local>"),

		SessionCacheTTL:    getDurationEnv("SESSION_CACHE_TTL", 30*time.Second),
		ReconcileInterval:  getDurationEnv("RECONCILE_INTERVAL", time.Minute),
		WriteRetryAttempts: getIntEnv("WRITE_RETRY_ATTEMPTS", 3),
	}
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate rejects settings that are unsafe outside development
func (c *Config) Validate() error {
	if !c.IsProduction() {
		return nil
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required in production")
	}
	if c.MongoURI == "" {
		return errors.New("MONGODB_URI is required in production")
	}
	return nil
}

// SMTPConfigured reports whether outbound mail should go through SMTP
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

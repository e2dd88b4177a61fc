package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limits (per IP)
	GlobalAPIMax        int
	GlobalAPIExpiration time.Duration

	// Account endpoints: login, registration, password reset (per IP)
	AccountMax        int
	AccountExpiration time.Duration

	// Authenticated mutations (per user ID)
	AuthenticatedMax        int
	AuthenticatedExpiration time.Duration

	// WebSocket connection attempts (per IP)
	WebSocketMax        int
	WebSocketExpiration time.Duration

	// Inbound frames per realtime connection
	WebSocketFramesPerSecond float64
	WebSocketFrameBurst      int

	// Shared counter storage; nil keeps counters in memory
	Storage fiber.Storage
}

// DefaultRateLimitConfig returns production-safe defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		GlobalAPIMax:        200,
		GlobalAPIExpiration: 1 * time.Minute,

		// Login and reset attempts: 10 per 15 minutes
		AccountMax:        10,
		AccountExpiration: 15 * time.Minute,

		AuthenticatedMax:        120,
		AuthenticatedExpiration: 1 * time.Minute,

		WebSocketMax:        20,
		WebSocketExpiration: 1 * time.Minute,

		WebSocketFramesPerSecond: 5,
		WebSocketFrameBurst:      20,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig() *RateLimitConfig {
	config := DefaultRateLimitConfig()

	overrideInt("RATE_LIMIT_GLOBAL_API", &config.GlobalAPIMax)
	overrideInt("RATE_LIMIT_ACCOUNT", &config.AccountMax)
	overrideInt("RATE_LIMIT_AUTHENTICATED", &config.AuthenticatedMax)
	overrideInt("RATE_LIMIT_WEBSOCKET", &config.WebSocketMax)
	overrideInt("RATE_LIMIT_WEBSOCKET_BURST", &config.WebSocketFrameBurst)

	if v := os.Getenv("RATE_LIMIT_WEBSOCKET_FPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			config.WebSocketFramesPerSecond = f
		}
	}

	// Development mode: more lenient limits
	if os.Getenv("ENVIRONMENT") == "development" {
		config.GlobalAPIMax = 1000
		config.AccountMax = 100
		config.WebSocketMax = 100
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}

	return config
}

func overrideInt(env string, target *int) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*target = n
		}
	}
}

func tooManyRequests(c *fiber.Ctx, message string, window time.Duration) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error":       message,
		"retry_after": int(window.Seconds()),
	})
}

// GlobalAPIRateLimiter creates a rate limiter for all API requests
func GlobalAPIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.GlobalAPIMax,
		Expiration: config.GlobalAPIExpiration,
		Storage:    config.Storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "global:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Global limit reached for IP: %s", c.IP())
			return tooManyRequests(c, "Too many requests. Please slow down.", config.GlobalAPIExpiration)
		},
	})
}

// AccountRateLimiter throttles login, registration and password reset attempts per IP
func AccountRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.AccountMax,
		Expiration: config.AccountExpiration,
		Storage:    config.Storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "account:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Account endpoint limit reached for IP: %s on %s", c.IP(), c.Path())
			return tooManyRequests(c, "Too many attempts. Please wait before trying again.", config.AccountExpiration)
		},
	})
}

// AuthenticatedRateLimiter for authenticated endpoints (uses user ID)
func AuthenticatedRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.AuthenticatedMax,
		Expiration: config.AuthenticatedExpiration,
		Storage:    config.Storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID, ok := c.Locals("user_id").(string); ok && userID != "" {
				return "auth:" + userID
			}
			return "auth-ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			userID, _ := c.Locals("user_id").(string)
			log.Printf("⚠️  [RATE-LIMIT] Auth endpoint limit reached for user: %s on %s", userID, c.Path())
			return tooManyRequests(c, "Too many requests. Please wait before trying again.", config.AuthenticatedExpiration)
		},
	})
}

// WebSocketRateLimiter for WebSocket connection attempts
func WebSocketRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.WebSocketMax,
		Expiration: config.WebSocketExpiration,
		Storage:    config.Storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "ws:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] WebSocket connection limit reached for IP: %s", c.IP())
			return tooManyRequests(c, "Too many connection attempts. Please wait before reconnecting.", config.WebSocketExpiration)
		},
	})
}

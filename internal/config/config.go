// Package config handles application configuration.
package config

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// LimitsConfig holds the thresholds used when validating sends and features.
type LimitsConfig struct {
	GracePeriod       time.Duration // Access kept after a paid expiry (default 3 days)
	SoftLimitRatio    float64       // Fraction of the effective limit that triggers a warning
	RenewalPromptDays int           // Days before expiry to start renewal reminders
}

// AntiSpamConfig holds the layered spam thresholds.
type AntiSpamConfig struct {
	MessagesPerMinute     int
	DuplicateMessageLimit int
	DuplicateWindow       time.Duration
	LongMessageThreshold  int // Characters
	LongMessagesPer10Min  int
	TempBlockDuration     time.Duration
}

// DefaultLimitsConfig returns the built-in thresholds.
func DefaultLimitsConfig() LimitsConfig {
	return LimitsConfig{
		GracePeriod:       3 * 24 * time.Hour,
		SoftLimitRatio:    0.85,
		RenewalPromptDays: 7,
	}
}

// DefaultAntiSpamConfig returns the built-in spam thresholds.
func DefaultAntiSpamConfig() AntiSpamConfig {
	return AntiSpamConfig{
		MessagesPerMinute:     15,
		DuplicateMessageLimit: 3,
		DuplicateWindow:       10 * time.Minute,
		LongMessageThreshold:  3000,
		LongMessagesPer10Min:  3,
		TempBlockDuration:     5 * time.Minute,
	}
}

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port        int
	BaseURL     string
	CORSOrigins []string
	IdleTimeout time.Duration // Scale-to-zero idle shutdown (0 = disabled)

	// Database
	DatabaseURL    string
	TursoURL       string // Embedded replica sync target (optional)
	TursoAuthToken string

	// Service authentication (bot and admin callers)
	ServiceSecret      string
	ServiceTokenKey    []byte // 32-byte HS256 signing key
	ServiceTokenIssuer string
	ServiceTokenExpiry time.Duration
	CallerRateLimit    int // Requests per minute per authenticated caller

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string

	// Payment relay webhooks (Svix signing secret, whsec_xxx)
	PaymentWebhookSecret string

	// Plan overrides (Tigris/S3-compatible)
	PlansEnabled   bool
	PlansEndpoint  string // AWS_ENDPOINT_URL_S3 for Tigris
	PlansAccessKey string // AWS_ACCESS_KEY_ID
	PlansSecretKey string // AWS_SECRET_ACCESS_KEY
	PlansRegion    string // Region (auto for Tigris)
	PlansBucket    string
	PlansKey       string // Object key of the overrides document
	PlansCacheTTL  time.Duration

	// Entitlement cache
	RedisAddr     string // Empty = in-memory cache
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Business thresholds
	Limits   LimitsConfig
	AntiSpam AntiSpamConfig

	// Maintenance
	MaintenanceEnabled         bool
	MaintenanceInterval        time.Duration // How often to run the sweep (default 1 hour)
	MaintenanceActionRetention time.Duration // Max age of action timestamps (default 48 hours)
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),
		IdleTimeout: getEnvDuration("IDLE_TIMEOUT", 0),

		DatabaseURL:    getEnv("DATABASE_URL", "file:companion.db?_journal=WAL&_timeout=5000"),
		TursoURL:       getEnv("TURSO_URL", ""),
		TursoAuthToken: getEnv("TURSO_AUTH_TOKEN", ""),

		ServiceSecret:      getEnv("SERVICE_SECRET", ""),
		ServiceTokenIssuer: getEnv("SERVICE_TOKEN_ISSUER", "companion-api"),
		ServiceTokenExpiry: getEnvDuration("SERVICE_TOKEN_EXPIRY", 24*time.Hour),
		CallerRateLimit:    getEnvInt("CALLER_RATE_LIMIT", 600),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		PaymentWebhookSecret: getEnv("PAYMENT_WEBHOOK_SECRET", ""),

		// Plan overrides use Fly's standard storage env vars
		PlansEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		PlansAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		PlansSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		PlansRegion:    getEnv("AWS_REGION", "auto"),
		PlansBucket:    getEnvWithFallback("PLANS_BUCKET", "BUCKET_NAME", ""),
		PlansKey:       getEnv("PLANS_KEY", "config/plans.json"),
		PlansCacheTTL:  getEnvDuration("PLANS_CACHE_TTL", 5*time.Minute),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      getEnvDuration("CACHE_TTL", 30*time.Second),

		MaintenanceEnabled:         getEnvBool("MAINTENANCE_ENABLED", true),
		MaintenanceInterval:        getEnvDuration("MAINTENANCE_INTERVAL", time.Hour),
		MaintenanceActionRetention: getEnvDuration("MAINTENANCE_ACTION_RETENTION", 48*time.Hour),
	}

	cfg.PlansEnabled = cfg.PlansBucket != "" && cfg.PlansEndpoint != ""

	limits := DefaultLimitsConfig()
	cfg.Limits = LimitsConfig{
		GracePeriod:       getEnvDuration("LIMITS_GRACE_PERIOD", limits.GracePeriod),
		SoftLimitRatio:    getEnvFloat("LIMITS_SOFT_LIMIT_RATIO", limits.SoftLimitRatio),
		RenewalPromptDays: getEnvInt("LIMITS_RENEWAL_PROMPT_DAYS", limits.RenewalPromptDays),
	}

	spam := DefaultAntiSpamConfig()
	cfg.AntiSpam = AntiSpamConfig{
		MessagesPerMinute:     getEnvInt("ANTISPAM_MESSAGES_PER_MINUTE", spam.MessagesPerMinute),
		DuplicateMessageLimit: getEnvInt("ANTISPAM_DUPLICATE_LIMIT", spam.DuplicateMessageLimit),
		DuplicateWindow:       getEnvDuration("ANTISPAM_DUPLICATE_WINDOW", spam.DuplicateWindow),
		LongMessageThreshold:  getEnvInt("ANTISPAM_LONG_MESSAGE_THRESHOLD", spam.LongMessageThreshold),
		LongMessagesPer10Min:  getEnvInt("ANTISPAM_LONG_MESSAGES_PER_10MIN", spam.LongMessagesPer10Min),
		TempBlockDuration:     getEnvDuration("ANTISPAM_TEMP_BLOCK_DURATION", spam.TempBlockDuration),
	}

	if cfg.Limits.SoftLimitRatio <= 0 || cfg.Limits.SoftLimitRatio > 1 {
		return nil, fmt.Errorf("LIMITS_SOFT_LIMIT_RATIO must be in (0, 1]")
	}

	// Signing key for service tokens (derive from SERVICE_SECRET if not explicitly set)
	keyStr := getEnv("SERVICE_TOKEN_KEY", "")
	switch {
	case keyStr != "":
		decoded, err := base64.StdEncoding.DecodeString(keyStr)
		if err != nil || len(decoded) != 32 {
			return nil, fmt.Errorf("SERVICE_TOKEN_KEY must be a base64-encoded 32-byte key")
		}
		cfg.ServiceTokenKey = decoded
	case cfg.ServiceSecret != "":
		cfg.ServiceTokenKey = deriveKey(cfg.ServiceSecret)
	default:
		return nil, fmt.Errorf("SERVICE_SECRET or SERVICE_TOKEN_KEY is required")
	}

	return cfg, nil
}

// StripeEnabled returns true if Stripe webhooks can be verified.
func (c *Config) StripeEnabled() bool {
	return c.StripeWebhookSecret != ""
}

// PaymentWebhooksEnabled returns true if the payment relay webhook is configured.
func (c *Config) PaymentWebhooksEnabled() bool {
	return c.PaymentWebhookSecret != ""
}

// RedisEnabled returns true if the entitlement cache should use Redis.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvWithFallback(primary, fallback, defaultValue string) string {
	if value := os.Getenv(primary); value != "" {
		return value
	}
	if value := os.Getenv(fallback); value != "" {
		return value
	}
	return defaultValue
}

// deriveKey creates a 32-byte HS256 signing key from a secret string using HKDF.
func deriveKey(secret string) []byte {
	salt := []byte("companion-api-service-token-v1")
	info := []byte("hs256-service-token")

	hkdfReader := hkdf.New(sha256.New, []byte(secret), salt, info)

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		panic("hkdf: failed to derive key: " + err.Error())
	}

	return key
}

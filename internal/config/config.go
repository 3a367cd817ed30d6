package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Stripe hosted-checkout credentials (provider A).
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeBaseURL       string
	StripeSuccessURL    string
	StripeCancelURL     string
	StripePlanPriceID   string

	// Square payment-links credentials (provider B).
	SquareAccessToken string
	SquareLocationID  string
	SquareBaseURL     string
	SquareWebhookKey  string
	SquareSuccessURL  string
	SquareCancelURL   string
	SquareSandbox     bool

	// Slot cadence for availability generation.
	SlotStep time.Duration

	// Tenant-plan billing.
	TrialDays          int
	MonthlyPlanCents   int64
	AnnualPlanCents    int64
	DefaultCurrency    string
	WebhookMaxBodySize int64

	// OwnerJWTSecret signs and verifies owner-facing API tokens. Empty
	// locks every owner route.
	OwnerJWTSecret string

	CORSAllowedOrigins []string
	WebhookRatePerSec  float64
	WebhookBurst       int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeBaseURL:       getEnv("STRIPE_BASE_URL", ""),
		StripeSuccessURL:    getEnv("STRIPE_SUCCESS_URL", ""),
		StripeCancelURL:     getEnv("STRIPE_CANCEL_URL", ""),
		StripePlanPriceID:   getEnv("STRIPE_PLAN_PRICE_ID", ""),

		SquareAccessToken: getEnv("SQUARE_ACCESS_TOKEN", ""),
		SquareLocationID:  getEnv("SQUARE_LOCATION_ID", ""),
		SquareBaseURL:     getEnv("SQUARE_BASE_URL", ""),
		SquareWebhookKey:  getEnv("SQUARE_WEBHOOK_SIGNATURE_KEY", ""),
		SquareSuccessURL:  getEnv("SQUARE_SUCCESS_URL", ""),
		SquareCancelURL:   getEnv("SQUARE_CANCEL_URL", ""),
		SquareSandbox:     getEnvAsBool("SQUARE_SANDBOX", true),

		SlotStep: getEnvAsDuration("SLOT_STEP", 15*time.Minute),

		TrialDays:          getEnvAsInt("TRIAL_DAYS", 14),
		MonthlyPlanCents:   getEnvAsInt64("MONTHLY_PLAN_CENTS", 4990),
		AnnualPlanCents:    getEnvAsInt64("ANNUAL_PLAN_CENTS", 49900),
		DefaultCurrency:    getEnv("DEFAULT_CURRENCY", "usd"),
		WebhookMaxBodySize: getEnvAsInt64("WEBHOOK_MAX_BODY_BYTES", 65536),

		OwnerJWTSecret: getEnv("OWNER_JWT_SECRET", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		WebhookRatePerSec:  getEnvAsFloat("WEBHOOK_RATE_PER_SEC", 10),
		WebhookBurst:       getEnvAsInt("WEBHOOK_BURST", 20),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable, dropping empty
// entries.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

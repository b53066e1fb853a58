package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
// Pricing and loyalty values are restaurant-level defaults; the live values
// come from the restaurant_settings row and fall back to these.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	// Pricing defaults
	VATRate               decimal.Decimal
	DeliveryFeeBase       decimal.Decimal
	DeliveryFeePerKM      decimal.Decimal
	PickupFee             decimal.Decimal
	MinimumOrder          decimal.Decimal
	FreeDeliveryThreshold decimal.Decimal

	// Loyalty program
	PointsPerCurrencyUnit int
	FirstOrderBonus       int
	BirthdayBonus         int
	ReferralBonus         int
	PhysicalVisitPoints   int
	ScanCooldown          time.Duration
	RewardExpiry          time.Duration
	SilverTierPoints      int
	GoldTierPoints        int
	PlatinumTierPoints    int

	// Payment gateway
	PaystackSecretKey   string
	PaystackBaseURL     string
	PaystackCallbackURL string
	GatewayTimeout      time.Duration

	// Operational
	IdempotencyTTL   time.Duration
	WebhookReplayTTL time.Duration
	ScanRateLimit    int
	ScanRateWindow   time.Duration
	LockTTL          time.Duration
	LockRetryBackoff time.Duration
	SweepInterval    time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		VATRate:               parseDecimal(k.String("VAT_RATE"), "0.075"),
		DeliveryFeeBase:       parseDecimal(k.String("DELIVERY_FEE_BASE"), "2000.00"),
		DeliveryFeePerKM:      parseDecimal(k.String("DELIVERY_FEE_PER_KM"), "150.00"),
		PickupFee:             parseDecimal(k.String("PICKUP_FEE"), "0.00"),
		MinimumOrder:          parseDecimal(k.String("MINIMUM_ORDER_AMOUNT"), "1000.00"),
		FreeDeliveryThreshold: parseDecimal(k.String("FREE_DELIVERY_THRESHOLD"), "50.00"),

		PointsPerCurrencyUnit: intOrDefault(k, "POINTS_PER_CURRENCY_UNIT", 1),
		FirstOrderBonus:       intOrDefault(k, "FIRST_ORDER_BONUS_POINTS", 1000),
		BirthdayBonus:         intOrDefault(k, "BIRTHDAY_BONUS_POINTS", 5000),
		ReferralBonus:         intOrDefault(k, "REFERRAL_BONUS_POINTS", 1000),
		PhysicalVisitPoints:   intOrDefault(k, "PHYSICAL_VISIT_POINTS", 500),
		ScanCooldown:          parseDuration(k.String("SCAN_COOLDOWN"), "30m"),
		RewardExpiry:          parseDuration(k.String("REWARD_EXPIRY"), "720h"),
		SilverTierPoints:      intOrDefault(k, "SILVER_TIER_POINTS", 50000),
		GoldTierPoints:        intOrDefault(k, "GOLD_TIER_POINTS", 100000),
		PlatinumTierPoints:    intOrDefault(k, "PLATINUM_TIER_POINTS", 250000),

		PaystackSecretKey:   k.String("PAYSTACK_SECRET_KEY"),
		PaystackBaseURL:     valueOrDefault(k.String("PAYSTACK_BASE_URL"), "https://api.paystack.co"),
		PaystackCallbackURL: k.String("PAYSTACK_CALLBACK_URL"),
		GatewayTimeout:      parseDuration(k.String("GATEWAY_TIMEOUT"), "10s"),

		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		WebhookReplayTTL: parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "48h"),
		ScanRateLimit:    intOrDefault(k, "SCAN_RATE_LIMIT", 10),
		ScanRateWindow:   parseDuration(k.String("SCAN_RATE_WINDOW"), "1m"),
		LockTTL:          parseDuration(k.String("LOCK_TTL"), "30s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
		SweepInterval:    parseDuration(k.String("SWEEP_INTERVAL"), "1h"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func intOrDefault(k *koanf.Koanf, key string, fallback int) int {
	if !k.Exists(key) || strings.TrimSpace(k.String(key)) == "" {
		return fallback
	}
	return k.Int(key)
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseDecimal(value, fallback string) decimal.Decimal {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := decimal.NewFromString(base)
	if err != nil {
		return decimal.RequireFromString(fallback)
	}
	return d
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}

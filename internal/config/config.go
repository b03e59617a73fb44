package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Throttle ThrottleConfig
	Email    EmailConfig
	Billing  BillingConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
}

type AuthConfig struct {
	JWTSecret       string
	SessionExpiry   time.Duration
	OTPValidity     time.Duration
	CleanupInterval time.Duration
}

// ThrottleConfig tunes the two login counters independently. The device
// block is the fast, narrow gate; the account lock is the slow, wide one.
type ThrottleConfig struct {
	DeviceMaxAttempts    int
	DeviceBlockDuration  time.Duration
	AccountMaxAttempts   int
	AccountLockDuration  time.Duration
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
}

type BillingConfig struct {
	SecretKey     string
	WebhookSecret string
	PlanPrices    map[string]string // plan name -> provider price ID
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "payward"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS"),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
		},
		Auth: AuthConfig{
			JWTSecret:       jwtSecret,
			SessionExpiry:   getEnvAsDuration("SESSION_EXPIRY", 24*time.Hour),
			OTPValidity:     getEnvAsDuration("OTP_VALIDITY", 10*time.Minute),
			CleanupInterval: getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
		},
		Throttle: ThrottleConfig{
			DeviceMaxAttempts:   getEnvAsInt("THROTTLE_DEVICE_MAX_ATTEMPTS", 10),
			DeviceBlockDuration: getEnvAsDuration("THROTTLE_DEVICE_BLOCK", 30*time.Minute),
			AccountMaxAttempts:  getEnvAsInt("THROTTLE_ACCOUNT_MAX_ATTEMPTS", 20),
			AccountLockDuration: getEnvAsDuration("THROTTLE_ACCOUNT_LOCK", 60*time.Minute),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM", "no-reply@payward.io"),
		},
		Billing: BillingConfig{
			SecretKey:     getEnv("BILLING_SECRET_KEY", ""),
			WebhookSecret: getEnv("BILLING_WEBHOOK_SECRET", ""),
			PlanPrices: map[string]string{
				"basic":      getEnv("BILLING_PRICE_BASIC", ""),
				"pro":        getEnv("BILLING_PRICE_PRO", ""),
				"enterprise": getEnv("BILLING_PRICE_ENTERPRISE", ""),
			},
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := validateThrottle(&cfg.Throttle); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum strength for the session signing secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}
	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{"secret", "test", "password", "12345", "changeme", "default"}
	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}
	return nil
}

// validateThrottle rejects configurations that would defeat the layered gate:
// the account threshold must sit above the device threshold so the narrow
// block always trips first for a single device.
func validateThrottle(t *ThrottleConfig) error {
	if t.DeviceMaxAttempts < 1 || t.AccountMaxAttempts < 1 {
		return fmt.Errorf("throttle thresholds must be positive")
	}
	if t.AccountMaxAttempts <= t.DeviceMaxAttempts {
		return fmt.Errorf("THROTTLE_ACCOUNT_MAX_ATTEMPTS (%d) must exceed THROTTLE_DEVICE_MAX_ATTEMPTS (%d)",
			t.AccountMaxAttempts, t.DeviceMaxAttempts)
	}
	if t.DeviceBlockDuration <= 0 || t.AccountLockDuration <= 0 {
		return fmt.Errorf("throttle durations must be positive")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"marketplace-be/internal/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBURL      string

	AppPort    string
	AppEnv     string
	AppBaseURL string
	// Overrides the env's default zap level when set.
	LogLevel string

	// Origin allowed by CORS; empty disables the middleware.
	AllowedOrigin string
	// Trusted callers presenting X-Service-Auth get the internal rate tier.
	InternalServiceKey string
	RequestTimeout     time.Duration

	// Shared secret of the hosted auth provider's HS256 access tokens.
	JWTSecret string

	PaymentsAPIKey        string
	PaymentsBaseURL       string
	PaymentsWebhookSecret string

	// Shared secret presented by the scheduler that triggers the reservation sweep.
	CronSecret string

	RedisAddr          string
	KafkaBrokers       []string
	NotificationsTopic string

	ServiceFeeBps   int64
	FinalizeLockTTL time.Duration
	UnreadCacheTTL  time.Duration
}

// LoadConfig reads .env (if present) and the process environment. Invalid configuration
// is fatal.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		logger.L().Fatal("invalid configuration", zap.Error(err))
	}
	return cfg
}

func FromEnv() *Config {
	return &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     getenv("DB_PORT", "5432"),
		DBURL:      os.Getenv("DB_URL"),

		AppPort:    getenv("APP_PORT", "8080"),
		AppEnv:     getenv("APP_ENV", "development"),
		AppBaseURL: strings.TrimRight(getenv("APP_BASE_URL", "http://localhost:3000"), "/"),
		LogLevel:   os.Getenv("LOG_LEVEL"),

		AllowedOrigin:      os.Getenv("ALLOWED_ORIGIN"),
		InternalServiceKey: os.Getenv("INTERNAL_SERVICE_KEY"),
		RequestTimeout:     getenvDuration("REQUEST_TIMEOUT", 15*time.Second),

		JWTSecret: os.Getenv("JWT_SECRET"),

		PaymentsAPIKey:        os.Getenv("PAYMENTS_API_KEY"),
		PaymentsBaseURL:       getenv("PAYMENTS_BASE_URL", "https://api.stripe.com"),
		PaymentsWebhookSecret: os.Getenv("PAYMENTS_WEBHOOK_SECRET"),

		CronSecret: os.Getenv("CRON_SECRET"),

		RedisAddr:          os.Getenv("REDIS_ADDR"),
		KafkaBrokers:       splitCSV(os.Getenv("KAFKA_BROKERS")),
		NotificationsTopic: getenv("NOTIFICATIONS_TOPIC", "marketplace.notifications"),

		ServiceFeeBps:   getenvInt("SERVICE_FEE_BPS", 0),
		FinalizeLockTTL: getenvDuration("FINALIZE_LOCK_TTL", 30*time.Second),
		UnreadCacheTTL:  getenvDuration("UNREAD_CACHE_TTL", 30*time.Second),
	}
}

// Validate reports every missing required value at once.
func (c *Config) Validate() error {
	var errs []error

	if c.DBHost == "" && c.DBURL == "" {
		errs = append(errs, errors.New("DB_HOST or DB_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.PaymentsWebhookSecret == "" {
		errs = append(errs, errors.New("PAYMENTS_WEBHOOK_SECRET is required"))
	}
	if c.CronSecret == "" {
		errs = append(errs, errors.New("CRON_SECRET is required"))
	}
	if c.FinalizeLockTTL <= 0 {
		errs = append(errs, errors.New("FINALIZE_LOCK_TTL must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int64) int64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		logger.L().Warn("ignoring invalid integer env", zap.String("key", k), zap.String("value", v))
		return def
	}
	return n
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.L().Warn("ignoring invalid duration env", zap.String("key", k), zap.String("value", v))
		return def
	}
	return d
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

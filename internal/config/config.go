package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	// MercadoPago recurring-payment processor.
	MPBaseURL       string
	MPAccessToken   string
	MPWebhookSecret string
	MPProPlanID     string
	MPPremiumPlanID string

	// Shared secret for the scheduled reconciliation endpoint.
	CronSecret string

	// In-process reconcile loop, for deployments without external cron.
	SchedulerEnabled  bool
	SchedulerInterval int // seconds

	RateLimit RateLimitConfig
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ConvertIPRate  float64
	ConvertIPBurst int
	RecordLockTTL  int // seconds
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "conversor"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "conversor"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		MPBaseURL:       getenv("MP_BASE_URL", "https://api.mercadopago.com"),
		MPAccessToken:   strings.TrimSpace(getenv("MP_ACCESS_TOKEN", "")),
		MPWebhookSecret: strings.TrimSpace(getenv("MP_WEBHOOK_SECRET", "")),
		MPProPlanID:     strings.TrimSpace(getenv("MP_PRO_PLAN_ID", "")),
		MPPremiumPlanID: strings.TrimSpace(getenv("MP_PREMIUM_PLAN_ID", "")),

		CronSecret: strings.TrimSpace(getenv("CRON_SECRET", "")),

		SchedulerEnabled:  getenvBool("SCHEDULER_ENABLED", true),
		SchedulerInterval: getenvInt("SCHEDULER_INTERVAL", 3600),

		RateLimit: RateLimitConfig{
			Enabled:        getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:      strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword:  getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:        getenvInt("RATE_LIMIT_REDIS_DB", 0),
			ConvertIPRate:  getenvFloat("RATE_LIMIT_CONVERT_IP_RATE", 0.5),
			ConvertIPBurst: getenvInt("RATE_LIMIT_CONVERT_IP_BURST", 5),
			RecordLockTTL:  getenvInt("RATE_LIMIT_RECORD_LOCK_TTL", 30),
		},
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

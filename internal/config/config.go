package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

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
	DBConnMaxIdleTime int
	MigrateOnStart    bool

	Redis RedisConfig

	ETLSharedSecret string
	Scheduler       SchedulerConfig
	ExportRateLimit ExportRateLimitConfig

	// AnalyticsConfigFile points at the hot-reloadable analytics tunables.
	// Empty means the default search paths.
	AnalyticsConfigFile string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis endpoint was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// ExportRateLimitConfig bounds file exports per tenant user. Zero disables it.
type ExportRateLimitConfig struct {
	PerMinute float64
	Burst     int
}

type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:             getenv("APP_SERVICE", "stitchboard"),
		AppVersion:          getenv("APP_VERSION", "0.1.0"),
		Environment:         getenv("ENVIRONMENT", "development"),
		HTTPAddr:            getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:        getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:              getenv("DB_TYPE", "postgres"),
		DBHost:              getenv("DB_HOST", "localhost"),
		DBPort:              getenv("DB_PORT", "5432"),
		DBName:              getenv("DB_NAME", "stitchboard"),
		DBUser:              getenv("DB_USER", "postgres"),
		DBPassword:          getenv("DB_PASSWORD", "postgres"),
		DBSSLMode:           getenv("DB_SSLMODE", "disable"),
		DBMaxIdleConn:       int(getenvInt64("DB_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:       int(getenvInt64("DB_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime:   int(getenvInt64("DB_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime:   int(getenvInt64("DB_CONN_MAX_IDLE_TIME", 60)),
		MigrateOnStart:      getenvBool("MIGRATE_ON_START", false),
		ETLSharedSecret:     strings.TrimSpace(getenv("ETL_SHARED_SECRET", "")),
		AnalyticsConfigFile: strings.TrimSpace(getenv("ANALYTICS_CONFIG_FILE", "")),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		Scheduler: SchedulerConfig{
			Enabled:  getenvBool("SCHEDULER_ENABLED", true),
			Interval: getenvDuration("SCHEDULER_INTERVAL", time.Hour),
		},
		ExportRateLimit: ExportRateLimitConfig{
			PerMinute: getenvFloat("EXPORT_RATE_PER_MINUTE", 6),
			Burst:     int(getenvInt64("EXPORT_RATE_BURST", 3)),
		},
	}

	return cfg
}

// IsProduction reports whether the service runs in a production environment.
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

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

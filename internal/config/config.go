package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultVerifyDBName is the database the verification step reads unless
// VERIFY_DB_NAME says otherwise. It does not follow POSTGRES_DB.
const DefaultVerifyDBName = "nasa_space_image"

type Config struct {
	App struct {
		Port        string `validate:"required,numeric"`
		Debug       bool
		FrontendURL string
	}
	Log struct {
		Level  string `validate:"oneof=debug info warn error"`
		Format string `validate:"oneof=json text"`
	}
	DB struct {
		Host     string `validate:"required"`
		Port     string `validate:"required,numeric"`
		User     string `validate:"required"`
		Password string
		DBName   string `validate:"required"`
		SSLMode  string `validate:"oneof=disable allow prefer require verify-ca verify-full"`
		// VerifyDBName is the database read by the verification step.
		VerifyDBName string
	}
	Redis struct {
		Enabled  bool
		Host     string `validate:"required_if=Enabled true"`
		Port     string `validate:"required_if=Enabled true"`
		Password string
		DB       int `validate:"gte=0"`
	}
	NASA struct {
		APIKey  string
		APODURL string `validate:"required,url"`
		Timeout time.Duration `validate:"gt=0"`
	}
	Archive struct {
		Enabled   bool
		Endpoint  string `validate:"required_if=Enabled true"`
		AccessKey string
		SecretKey string
		Bucket    string `validate:"required_if=Enabled true"`
		UseSSL    bool
	}
	Workers struct {
		ETLEnabled  bool
		ETLInterval time.Duration `validate:"gt=0"`
	}
	Tasks struct {
		Retries    int           `validate:"gte=0"`
		RetryDelay time.Duration `validate:"gte=0"`
	}
	RateLimit struct {
		RequestsPerSecond int `validate:"gt=0"`
		Burst             int `validate:"gt=0"`

		// PerIPRequestsPerSecond enables a per-client limiter when positive.
		PerIPRequestsPerSecond int `validate:"gte=0"`
		PerIPBurst             int `validate:"required_with=PerIPRequestsPerSecond,gte=0"`
	}
}

func Load() *Config {
	cfg := &Config{}

	// App
	cfg.App.Port = getEnv("PORT", "8080")
	cfg.App.Debug = getEnvAsBool("DEBUG", false)
	cfg.App.FrontendURL = getEnv("FRONTEND_URL", "http://localhost:3000")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	// DB
	cfg.DB.Host = getEnv("POSTGRES_HOST", "localhost")
	cfg.DB.Port = getEnv("POSTGRES_PORT", "5432")
	cfg.DB.User = getEnv("POSTGRES_USER", "postgres")
	cfg.DB.Password = getEnv("POSTGRES_PASSWORD", "postgres")
	cfg.DB.DBName = getEnv("POSTGRES_DB", "nasa_space_image")
	cfg.DB.SSLMode = getEnv("POSTGRES_SSLMODE", "disable")
	cfg.DB.VerifyDBName = getEnv("VERIFY_DB_NAME", DefaultVerifyDBName)

	// Redis
	cfg.Redis.Enabled = getEnvAsBool("REDIS_ENABLED", false)
	cfg.Redis.Host = getEnv("REDIS_HOST", "localhost")
	cfg.Redis.Port = getEnv("REDIS_PORT", "6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", 0)

	// NASA
	cfg.NASA.APIKey = getEnv("NASA_API_KEY", "")
	cfg.NASA.APODURL = getEnv("NASA_APOD_URL", "https://api.nasa.gov/planetary/apod")
	cfg.NASA.Timeout = getEnvAsDuration("NASA_TIMEOUT", 30*time.Second)

	// Archive
	cfg.Archive.Enabled = getEnvAsBool("ARCHIVE_ENABLED", false)
	cfg.Archive.Endpoint = getEnv("ARCHIVE_ENDPOINT", "localhost:9000")
	cfg.Archive.AccessKey = getEnv("ARCHIVE_ACCESS_KEY", "")
	cfg.Archive.SecretKey = getEnv("ARCHIVE_SECRET_KEY", "")
	cfg.Archive.Bucket = getEnv("ARCHIVE_BUCKET", "apod-raw")
	cfg.Archive.UseSSL = getEnvAsBool("ARCHIVE_USE_SSL", false)

	// Workers
	cfg.Workers.ETLEnabled = getEnvAsBool("WORKER_ETL_ENABLED", true)
	cfg.Workers.ETLInterval = getEnvAsDuration("WORKER_ETL_INTERVAL", 24*time.Hour)

	// Retry policy: one retry after five minutes
	cfg.Tasks.Retries = getEnvAsInt("TASK_RETRIES", 1)
	cfg.Tasks.RetryDelay = getEnvAsDuration("TASK_RETRY_DELAY", 5*time.Minute)

	// Rate Limit
	cfg.RateLimit.RequestsPerSecond = getEnvAsInt("RATE_LIMIT_RPS", 10)
	cfg.RateLimit.Burst = getEnvAsInt("RATE_LIMIT_BURST", 20)
	cfg.RateLimit.PerIPRequestsPerSecond = getEnvAsInt("RATE_LIMIT_PER_IP_RPS", 0)
	cfg.RateLimit.PerIPBurst = getEnvAsInt("RATE_LIMIT_PER_IP_BURST", 5)

	return cfg
}

// Validate checks the loaded values against the struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// VerifyTargetDiffers reports whether the verification step reads a
// different database than the one the loader writes to.
func (c *Config) VerifyTargetDiffers() bool {
	return c.DB.VerifyDBName != c.DB.DBName
}

func (c *Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if dur, err := time.ParseDuration(value); err == nil {
			return dur
		}
	}
	return defaultValue
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all configuration for the arena service
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Persistence driver for the competition store (postgres|memory)
	Store string

	Database DatabaseConfig
	Redis    RedisConfig

	Competition CompetitionConfig
	Valuation   ValuationConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	Prefix   string
}

// CompetitionConfig tunes the ranking engine and the live feed
type CompetitionConfig struct {
	FeedTopN             int           // bounded snapshot size pushed to subscribers
	FeedInterval         time.Duration // default cadence for stream subscribers
	RegistrationLeadTime time.Duration // registration opens this long before start
	LifecycleSchedule    string        // cron expression (with seconds)
}

// ValuationConfig describes the portfolio valuation collaborator
type ValuationConfig struct {
	PortfolioBaseURL string // empty disables the sync job
	SyncSchedule     string
	RequestsPerSec   float64
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Env:   getEnv("ENV", "development"),
		Store: getEnv("ARENA_STORE", StorePostgres),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Prefix:   getEnv("REDIS_PREFIX", "arena"),
		},

		Competition: CompetitionConfig{
			FeedTopN:             getEnvAsInt("FEED_TOP_N", 10),
			FeedInterval:         getEnvAsDuration("FEED_INTERVAL", "5s"),
			RegistrationLeadTime: getEnvAsDuration("REGISTRATION_LEAD_TIME", "168h"),
			LifecycleSchedule:    getEnv("LIFECYCLE_SCHEDULE", "0 * * * * *"),
		},

		Valuation: ValuationConfig{
			PortfolioBaseURL: getEnv("PORTFOLIO_BASE_URL", ""),
			SyncSchedule:     getEnv("VALUATION_SYNC_SCHEDULE", "*/30 * * * * *"),
			RequestsPerSec:   getEnvAsFloat("VALUATION_RPS", 5),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.Store {
	case StorePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when ARENA_STORE=postgres")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("ARENA_STORE must be one of: postgres, memory")
	}

	if c.Competition.FeedTopN <= 0 {
		return fmt.Errorf("FEED_TOP_N must be positive")
	}
	if c.Competition.FeedInterval < 0 {
		return fmt.Errorf("FEED_INTERVAL must not be negative")
	}
	if c.Valuation.RequestsPerSec <= 0 {
		return fmt.Errorf("VALUATION_RPS must be positive")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

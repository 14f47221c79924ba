// Package config reads application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir string
	Port    int
	DevMode bool

	LogLevel string

	// Cache freshness and retention. The TTL decides when an entry stops
	// being served directly; retention decides when it is deleted.
	CacheTTL          time.Duration
	CacheRetention    time.Duration
	DecisionRetention time.Duration

	// Market data provider (Yahoo-compatible chart API).
	MarketDataBaseURL string

	// AI decision provider (OpenAI-compatible chat completions).
	AdvisorBaseURL string
	AdvisorAPIKey  string
	AdvisorModel   string

	// Object storage for backups. Backups are disabled when the bucket is
	// empty.
	BackupBucket        string
	BackupEndpoint      string
	BackupRegion        string
	BackupAccessKey     string
	BackupSecretKey     string
	BackupRetentionDays int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:  getEnv("MARKETMIND_DATA_DIR", "./data"),
		Port:     getEnvAsInt("MARKETMIND_PORT", 8080),
		DevMode:  getEnvAsBool("MARKETMIND_DEV_MODE", false),
		LogLevel: getEnv("MARKETMIND_LOG_LEVEL", "info"),

		CacheTTL:          getEnvAsDuration("MARKETMIND_CACHE_TTL", time.Hour),
		CacheRetention:    getEnvAsDuration("MARKETMIND_CACHE_RETENTION", 24*time.Hour),
		DecisionRetention: getEnvAsDuration("MARKETMIND_DECISION_RETENTION", 30*24*time.Hour),

		MarketDataBaseURL: getEnv("MARKETMIND_MARKET_DATA_URL", ""),

		AdvisorBaseURL: getEnv("MARKETMIND_ADVISOR_URL", ""),
		AdvisorAPIKey:  getEnv("MARKETMIND_ADVISOR_API_KEY", ""),
		AdvisorModel:   getEnv("MARKETMIND_ADVISOR_MODEL", ""),

		BackupBucket:        getEnv("MARKETMIND_BACKUP_BUCKET", ""),
		BackupEndpoint:      getEnv("MARKETMIND_BACKUP_ENDPOINT", ""),
		BackupRegion:        getEnv("MARKETMIND_BACKUP_REGION", ""),
		BackupAccessKey:     getEnv("MARKETMIND_BACKUP_ACCESS_KEY", ""),
		BackupSecretKey:     getEnv("MARKETMIND_BACKUP_SECRET_KEY", ""),
		BackupRetentionDays: getEnvAsInt("MARKETMIND_BACKUP_RETENTION_DAYS", 30),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("MARKETMIND_DATA_DIR is required")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("MARKETMIND_CACHE_TTL must be positive")
	}
	if c.CacheRetention < c.CacheTTL {
		return fmt.Errorf("MARKETMIND_CACHE_RETENTION must not be shorter than the cache TTL")
	}
	if c.AdvisorAPIKey == "" {
		return fmt.Errorf("MARKETMIND_ADVISOR_API_KEY is required")
	}
	if c.BackupBucket != "" && (c.BackupAccessKey == "" || c.BackupSecretKey == "") {
		return fmt.Errorf("backup credentials required when MARKETMIND_BACKUP_BUCKET is set")
	}
	return nil
}

// BackupsEnabled reports whether cloud backups are configured.
func (c *Config) BackupsEnabled() bool {
	return c.BackupBucket != ""
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

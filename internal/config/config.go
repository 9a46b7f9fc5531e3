// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/apostolou/hestia/internal/modules/settings"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Base currency used when a portfolio does not specify one
	BaseCurrency string

	// Exchange rate provider
	ExchangeRateURL string

	// Cloud backup (S3-compatible storage). Optional - cloud backup is
	// disabled when the bucket is empty.
	S3Endpoint        string
	S3Region          string
	S3Bucket          string
	S3AccessKeyID     string
	S3SecretAccessKey string

	BackupRetentionDays int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory with fallback logic
	// 1. Check HESTIA_DATA_DIR environment variable
	// 2. If not set, default to ./data
	// 3. Always resolve to absolute path and ensure it exists
	dataDir := getEnv("HESTIA_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:             absDataDir,
		Port:                getEnvAsInt("HESTIA_PORT", 8420),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		BaseCurrency:        getEnv("BASE_CURRENCY", "EUR"),
		ExchangeRateURL:     getEnv("EXCHANGE_RATE_URL", "https://api.exchangerate-api.com/v4/latest"),
		S3Endpoint:          getEnv("S3_ENDPOINT", ""),
		S3Region:            getEnv("S3_REGION", "auto"),
		S3Bucket:            getEnv("S3_BUCKET", ""),
		S3AccessKeyID:       getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey:   getEnv("S3_SECRET_ACCESS_KEY", ""),
		BackupRetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// UpdateFromSettings updates configuration from the settings database.
// This should be called after the config database is initialized.
// Settings DB values take precedence over environment variables.
func (c *Config) UpdateFromSettings(settingsRepo *settings.Repository) error {
	bucket, err := settingsRepo.Get("s3_bucket")
	if err != nil {
		return fmt.Errorf("failed to get s3_bucket from settings: %w", err)
	}
	if bucket != nil && *bucket != "" {
		c.S3Bucket = *bucket
	}

	accessKey, err := settingsRepo.Get("s3_access_key_id")
	if err != nil {
		return fmt.Errorf("failed to get s3_access_key_id from settings: %w", err)
	}
	if accessKey != nil && *accessKey != "" {
		c.S3AccessKeyID = *accessKey
	}

	secretKey, err := settingsRepo.Get("s3_secret_access_key")
	if err != nil {
		return fmt.Errorf("failed to get s3_secret_access_key from settings: %w", err)
	}
	if secretKey != nil && *secretKey != "" {
		c.S3SecretAccessKey = *secretKey
	}

	endpoint, err := settingsRepo.Get("s3_endpoint")
	if err != nil {
		return fmt.Errorf("failed to get s3_endpoint from settings: %w", err)
	}
	if endpoint != nil && *endpoint != "" {
		c.S3Endpoint = *endpoint
	}

	retention, err := settingsRepo.GetInt("backup_retention_days", c.BackupRetentionDays)
	if err != nil {
		return fmt.Errorf("failed to get backup_retention_days from settings: %w", err)
	}
	c.BackupRetentionDays = retention

	return nil
}

// CloudBackupEnabled reports whether cloud backup is configured
func (c *Config) CloudBackupEnabled() bool {
	return c.S3Bucket != "" && c.S3AccessKeyID != "" && c.S3SecretAccessKey != ""
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
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

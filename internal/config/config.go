// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for databases and backups (always absolute)
	BackupDir string // Local backup directory (defaults to DataDir/backups)
	Port      int
	LogLevel  string
	DevMode   bool

	// Price provider
	MarketDataBaseURL   string
	MarketDataAPIKey    string
	MarketDataStreamURL string
	CryptoStreamSymbols []string // Crypto symbols to subscribe on the stream

	// Sync schedules (cron expressions with seconds field)
	PriceSyncSchedule string
	FxSyncSchedule    string

	// Cloudflare R2 cloud backup (optional; disabled when incomplete)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2RetentionDays   int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("ARTA_DATA_DIR", "")
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

	backupDir := getEnv("ARTA_BACKUP_DIR", "")
	if backupDir == "" {
		backupDir = filepath.Join(absDataDir, "backups")
	}

	cfg := &Config{
		DataDir:   absDataDir,
		BackupDir: backupDir,
		Port:      getEnvAsInt("ARTA_PORT", 8080),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		DevMode:   getEnvAsBool("DEV_MODE", false),

		MarketDataBaseURL:   getEnv("MARKETDATA_BASE_URL", "https://api.marketdata.example.com"),
		MarketDataAPIKey:    getEnv("MARKETDATA_API_KEY", ""),
		MarketDataStreamURL: getEnv("MARKETDATA_STREAM_URL", ""),
		CryptoStreamSymbols: getEnvAsList("CRYPTO_STREAM_SYMBOLS", []string{"BTC", "ETH"}),

		PriceSyncSchedule: getEnv("PRICE_SYNC_SCHEDULE", "0 */5 * * * *"),
		FxSyncSchedule:    getEnv("FX_SYNC_SCHEDULE", "0 0 * * * *"),

		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2RetentionDays:   getEnvAsInt("R2_RETENTION_DAYS", 30),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// R2Enabled reports whether all R2 credentials are present.
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" &&
		c.R2SecretAccessKey != "" && c.R2BucketName != ""
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
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

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

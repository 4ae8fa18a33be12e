// Package config provides configuration management functionality.
//
// This package handles loading configuration from environment variables
// (and an optional .env file).
//
// Configuration Loading Order:
// 1. Load from .env file (if exists)
// 2. Load from environment variables
//
// Data Directory Priority (highest to lowest):
// 1. --data-dir CLI flag (if provided)
// 2. SENTINEL_DATA_DIR environment variable
// 3. ./data (default)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration.
type Config struct {
	DataDir  string // base directory for all databases, always absolute
	LogLevel string // debug, info, warn, error
	DevMode  bool   // development mode flag (pretty console logging)

	BrokerPluginsDir string            // directory scanned for broker plugin manifests
	BrokerCreds      map[string]string // flat credential bundle, e.g. BROKER_ZERODHA_API_KEY -> creds["zerodha_api_key"]

	DefaultSlippagePercent decimal.Decimal // backtest/optimization default slippage
	DefaultCommission      decimal.Decimal // backtest/optimization default per-trade commission

	Archive Archive

	MaintenanceDailySchedule  string  // cron expression, e.g. "0 0 2 * * *"
	MaintenanceWeeklySchedule string  // cron expression, e.g. "0 0 3 * * 0"
	MinFreeDiskGB             float64 // warn below this much free disk space
	CriticalFreeDiskGB        float64 // fail health checks below this much free disk space
}

// Archive configures the optional upload of completed backtest and
// optimization artifacts to S3-compatible object storage. Enabled is false
// unless a bucket is configured.
type Archive struct {
	Enabled         bool
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
}

// Load reads configuration from environment variables.
//
// dataDirOverride, if non-empty, takes highest priority over
// SENTINEL_DATA_DIR and the default.
func Load(dataDirOverride ...string) (*Config, error) {
	_ = godotenv.Load()

	var dataDir string
	if len(dataDirOverride) > 0 && dataDirOverride[0] != "" {
		dataDir = dataDirOverride[0]
	} else {
		dataDir = getEnv("SENTINEL_DATA_DIR", "")
		if dataDir == "" {
			dataDir = "./data"
		}
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	slippage, err := decimal.NewFromString(getEnv("DEFAULT_SLIPPAGE_PERCENT", "0.05"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_SLIPPAGE_PERCENT: %w", err)
	}
	commission, err := decimal.NewFromString(getEnv("DEFAULT_COMMISSION", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_COMMISSION: %w", err)
	}

	bucket := getEnv("ARCHIVE_BUCKET", "")
	cfg := &Config{
		DataDir:  absDataDir,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		BrokerPluginsDir: getEnv("BROKER_PLUGINS_DIR", filepath.Join(absDataDir, "plugins")),
		BrokerCreds:      loadBrokerCreds(),

		DefaultSlippagePercent: slippage,
		DefaultCommission:      commission,

		Archive: Archive{
			Enabled:         bucket != "",
			Endpoint:        getEnv("ARCHIVE_ENDPOINT", ""),
			Region:          getEnv("ARCHIVE_REGION", "auto"),
			Bucket:          bucket,
			AccessKeyID:     getEnv("ARCHIVE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("ARCHIVE_SECRET_ACCESS_KEY", ""),
			RetentionDays:   getEnvAsInt("ARCHIVE_RETENTION_DAYS", 30),
		},

		MaintenanceDailySchedule:  getEnv("MAINTENANCE_DAILY_SCHEDULE", "0 0 2 * * *"),
		MaintenanceWeeklySchedule: getEnv("MAINTENANCE_WEEKLY_SCHEDULE", "0 0 3 * * 0"),
		MinFreeDiskGB:             getEnvAsFloat("MIN_FREE_DISK_GB", 5.0),
		CriticalFreeDiskGB:        getEnvAsFloat("CRITICAL_FREE_DISK_GB", 1.0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if required configuration is present. Broker credentials
// are optional here since paper trading and backtesting need none; a live
// broker constructor rejects a missing credential at connect time instead.
func (c *Config) Validate() error {
	if c.CriticalFreeDiskGB > c.MinFreeDiskGB {
		return fmt.Errorf("CRITICAL_FREE_DISK_GB (%.1f) must not exceed MIN_FREE_DISK_GB (%.1f)", c.CriticalFreeDiskGB, c.MinFreeDiskGB)
	}
	return nil
}

// loadBrokerCreds collects BROKER_<NAME>_<FIELD> environment variables into
// a flat credential bundle, e.g. BROKER_ZERODHA_API_KEY becomes
// creds["zerodha_api_key"].
func loadBrokerCreds() map[string]string {
	creds := make(map[string]string)
	const prefix = "BROKER_"
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[0], prefix) {
			continue
		}
		creds[strings.ToLower(strings.TrimPrefix(parts[0], prefix))] = parts[1]
	}
	return creds
}

// ==========================================
// Helper Functions
// ==========================================

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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

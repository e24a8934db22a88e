// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the price database and token cache
	Port     int
	LogLevel string
	DevMode  bool

	// Default broker credentials. Screening and collection requests may
	// carry their own credentials; these are the fallback for scheduled jobs.
	KISAppKey     string
	KISAppSecret  string
	KISProduction bool

	// Outbound pacing (requests per second against the broker)
	CollectorRateLimit   float64
	InteractiveRateLimit float64

	// Store management
	RetentionDays  int // bars older than this are pruned at backfill finalisation
	MasterTTLDays  int // stock master refresh interval

	// Scheduled jobs (cron expressions, empty disables)
	UpdateSchedule  string
	MasterSchedule  string
	BackupSchedule  string

	Backup *BackupConfig
}

// BackupConfig holds S3-compatible backup settings. Disabled unless the
// bucket and credentials are all present.
type BackupConfig struct {
	Enabled         bool
	Endpoint        string // Custom endpoint for S3-compatible stores (R2, MinIO); empty for AWS
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	KeepLast        int // remote backups retained
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Data directory: STOCKHUNTER_DATA_DIR, defaulting to ~/.stockhunter
	dataDir := getEnv("STOCKHUNTER_DATA_DIR", "")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".stockhunter")
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		KISAppKey:     getEnv("KIS_APP_KEY", ""),
		KISAppSecret:  getEnv("KIS_APP_SECRET", ""),
		KISProduction: getEnvAsBool("KIS_IS_PRODUCTION", false),

		CollectorRateLimit:   getEnvAsFloat("COLLECTOR_RATE_LIMIT", 15),
		InteractiveRateLimit: getEnvAsFloat("INTERACTIVE_RATE_LIMIT", 20),

		RetentionDays: getEnvAsInt("RETENTION_DAYS", 400),
		MasterTTLDays: getEnvAsInt("MASTER_TTL_DAYS", 7),

		UpdateSchedule: getEnv("UPDATE_SCHEDULE", ""),
		MasterSchedule: getEnv("MASTER_SCHEDULE", ""),
		BackupSchedule: getEnv("BACKUP_SCHEDULE", ""),

		Backup: loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.CollectorRateLimit <= 0 || c.InteractiveRateLimit <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("retention days must be positive")
	}
	// Note: KIS credentials are optional here; requests carry their own.
	return nil
}

// DatabasePath returns the path of the price database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "price_data.db")
}

func loadBackupConfig() *BackupConfig {
	cfg := &BackupConfig{
		Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
		Region:          getEnv("BACKUP_S3_REGION", "auto"),
		Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
		AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
		KeepLast:        getEnvAsInt("BACKUP_KEEP_LAST", 7),
	}
	cfg.Enabled = cfg.Bucket != "" && cfg.AccessKeyID != "" && cfg.SecretAccessKey != ""
	return cfg
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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

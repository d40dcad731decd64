// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
)

const defaultSecret = "88888888888888888888888888888888"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	PrivateKey  string   `mapstructure:"privatekey"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	GeoDBPath             string `mapstructure:"geodbpath"`
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Write buffer
	QueueDirectory string `mapstructure:"queuedir"`
	QueueInMemory  bool   `mapstructure:"queueinmemory"`

	// Pipeline tuning
	BatchSize            int    `mapstructure:"batchsize"`
	FlushThreshold       int    `mapstructure:"flushthreshold"`
	PushMaxAttempts      int    `mapstructure:"pushmaxattempts"`
	PushRetryDelayMs     int    `mapstructure:"pushretrydelayms"`
	ReadMaxAttempts      int    `mapstructure:"readmaxattempts"`
	ReadRetryDelayMs     int    `mapstructure:"readretrydelayms"`
	FlushIntervalSeconds int    `mapstructure:"flushintervalseconds"`
	ArchiveSchedule      string `mapstructure:"archiveschedule"`

	// Defaults for the analytics.* settings, seeded into the settings table on first boot
	AnalyticsEnabled       bool   `mapstructure:"analyticsenabled"`
	AnalyticsTimezone      string `mapstructure:"analyticstimezone"`
	AnalyticsPrecisionDays int    `mapstructure:"analyticsprecisiondays"`
	AnalyticsRetentionDays int    `mapstructure:"analyticsretentiondays"`

	// Metrics
	MetricsEnabled         bool `mapstructure:"metricsenabled"`
	MetricsIntervalSeconds int  `mapstructure:"metricsintervalseconds"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "pulse")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", defaultSecret)
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-City.mmdb")
		v.SetDefault("publicdir", "public")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("queuedir", "storage/queue")
		v.SetDefault("queueinmemory", false)
		v.SetDefault("batchsize", 500)
		v.SetDefault("flushthreshold", 100)
		v.SetDefault("pushmaxattempts", 3)
		v.SetDefault("pushretrydelayms", 100)
		v.SetDefault("readmaxattempts", 3)
		v.SetDefault("readretrydelayms", 50)
		v.SetDefault("flushintervalseconds", 60)
		v.SetDefault("archiveschedule", "@hourly")
		v.SetDefault("analyticsenabled", true)
		v.SetDefault("analyticstimezone", "UTC")
		v.SetDefault("analyticsprecisiondays", 30)
		v.SetDefault("analyticsretentiondays", 365)
		v.SetDefault("metricsenabled", false)
		v.SetDefault("metricsintervalseconds", 60)

		v.BindEnv("appname", "PULSE_APP_NAME")
		v.BindEnv("appport", "PULSE_APP_PORT")
		v.BindEnv("environment", "PULSE_ENV")
		v.BindEnv("loglevel", "PULSE_LOG_LEVEL")
		v.BindEnv("privatekey", "PULSE_PRIVATE_KEY")
		v.BindEnv("storagepath", "PULSE_STORAGE_PATH")
		v.BindEnv("geodbpath", "PULSE_GEO_DB_PATH")
		v.BindEnv("publicdir", "PULSE_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "PULSE_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("logsdir", "PULSE_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "PULSE_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "PULSE_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "PULSE_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "PULSE_DB_TYPE")
		v.BindEnv("dbmaxopenconns", "PULSE_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "PULSE_DB_MAX_IDLE_CONNS")
		v.BindEnv("queuedir", "PULSE_QUEUE_DIR")
		v.BindEnv("queueinmemory", "PULSE_QUEUE_IN_MEMORY")
		v.BindEnv("batchsize", "PULSE_BATCH_SIZE")
		v.BindEnv("flushthreshold", "PULSE_FLUSH_THRESHOLD")
		v.BindEnv("pushmaxattempts", "PULSE_PUSH_MAX_ATTEMPTS")
		v.BindEnv("pushretrydelayms", "PULSE_PUSH_RETRY_DELAY_MS")
		v.BindEnv("readmaxattempts", "PULSE_READ_MAX_ATTEMPTS")
		v.BindEnv("readretrydelayms", "PULSE_READ_RETRY_DELAY_MS")
		v.BindEnv("flushintervalseconds", "PULSE_FLUSH_INTERVAL_SECONDS")
		v.BindEnv("archiveschedule", "PULSE_ARCHIVE_SCHEDULE")
		v.BindEnv("analyticsenabled", "PULSE_ANALYTICS_ENABLE")
		v.BindEnv("analyticstimezone", "PULSE_ANALYTICS_TIMEZONE")
		v.BindEnv("analyticsprecisiondays", "PULSE_ANALYTICS_PRECISION_DAYS")
		v.BindEnv("analyticsretentiondays", "PULSE_ANALYTICS_RETENTION_DAYS")
		v.BindEnv("metricsenabled", "PULSE_METRICS_ENABLED")
		v.BindEnv("metricsintervalseconds", "PULSE_METRICS_INTERVAL_SECONDS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		if cfg.PrivateKey == "" {
			log.Fatal("Private key is required")
		}
		if cfg.IsProduction() && cfg.PrivateKey == defaultSecret {
			log.Fatal("Production requires a unique PULSE_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validDBTypes := map[string]bool{
		SQLiteDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.FlushThreshold <= 0 {
		return fmt.Errorf("flush threshold must be positive, got %d", c.FlushThreshold)
	}
	if c.PushMaxAttempts <= 0 {
		return fmt.Errorf("push attempts must be positive, got %d", c.PushMaxAttempts)
	}
	if c.ReadMaxAttempts <= 0 {
		return fmt.Errorf("read attempts must be positive, got %d", c.ReadMaxAttempts)
	}
	if c.AnalyticsPrecisionDays < 0 || c.AnalyticsRetentionDays < 0 {
		return fmt.Errorf("analytics precision and retention days cannot be negative")
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the server secret (implements cartridge.FactoryConfig interface).
// The same secret salts fallback visitor signatures.
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1
// - Development/Production: 10 (dashboard reads run next to flush writes)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// PushRetryDelay returns the fixed delay between queue push attempts.
func (c *Config) PushRetryDelay() time.Duration {
	return time.Duration(c.PushRetryDelayMs) * time.Millisecond
}

// ReadRetryDelay returns the fixed delay between attempts of a failed store read.
func (c *Config) ReadRetryDelay() time.Duration {
	return time.Duration(c.ReadRetryDelayMs) * time.Millisecond
}

// FlushInterval returns how often the background job drains the queue.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

// MetricsInterval returns the export interval of the periodic metric reader.
func (c *Config) MetricsInterval() time.Duration {
	return time.Duration(c.MetricsIntervalSeconds) * time.Second
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Roles    RolesConfig    `mapstructure:"roles"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Report   ReportConfig   `mapstructure:"report"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // "bolt" or "redis"
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TrackingConfig defines session tracking and sweep settings
type TrackingConfig struct {
	SweepInterval  string `mapstructure:"sweep_interval"`
	SweepBatchSize int    `mapstructure:"sweep_batch_size"`
	RecordTimeout  string `mapstructure:"record_timeout"`
	PauseLimit     int    `mapstructure:"pause_limit"`
}

// LimitsConfig defines per-role hour caps
type LimitsConfig struct {
	StandardHours int `mapstructure:"standard_hours"`
	GoldHours     int `mapstructure:"gold_hours"`
	ExtendedHours int `mapstructure:"extended_hours"`
}

// ScheduleConfig defines the automatic start trigger
type ScheduleConfig struct {
	AutoStartTime string `mapstructure:"auto_start_time"` // HH:MM
	Timezone      string `mapstructure:"timezone"`
}

// RolesConfig defines role membership and lookup caching
type RolesConfig struct {
	GoldUsers     []string `mapstructure:"gold_users"`
	ExtendedUsers []string `mapstructure:"extended_users"`
	CacheSize     int      `mapstructure:"cache_size"`
	CacheTTL      string   `mapstructure:"cache_ttl"`
}

// NotifyConfig defines webhook notification endpoints
type NotifyConfig struct {
	MilestonesURL    string `mapstructure:"milestones_url"`
	PausesURL        string `mapstructure:"pauses_url"`
	CancellationsURL string `mapstructure:"cancellations_url"`
	MovementsURL     string `mapstructure:"movements_url"`
	MaxRetries       int    `mapstructure:"max_retries"`
	RequestTimeout   string `mapstructure:"request_timeout"`
}

// ReportConfig defines the reporting/command HTTP API
type ReportConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("QW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if os.IsNotExist(err) {
				// Missing file: run on defaults and environment variables.
			} else {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Defaults returns a configuration populated only with default values.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.metrics_port", 9090)

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "/var/lib/qw/qw.bolt")
	v.SetDefault("storage.redis.host", "127.0.0.1")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Tracking defaults
	v.SetDefault("tracking.sweep_interval", "60s")
	v.SetDefault("tracking.sweep_batch_size", 5)
	v.SetDefault("tracking.record_timeout", "15s")
	v.SetDefault("tracking.pause_limit", 3)

	// Hour limits per role
	v.SetDefault("limits.standard_hours", 1)
	v.SetDefault("limits.gold_hours", 2)
	v.SetDefault("limits.extended_hours", 4)

	// Schedule defaults
	v.SetDefault("schedule.auto_start_time", "13:00")
	v.SetDefault("schedule.timezone", "America/Santiago")

	// Role lookup cache defaults
	v.SetDefault("roles.cache_size", 1024)
	v.SetDefault("roles.cache_ttl", "5m")

	// Notification defaults
	v.SetDefault("notify.max_retries", 5)
	v.SetDefault("notify.request_timeout", "10s")

	// Report API defaults
	v.SetDefault("report.enabled", true)
	v.SetDefault("report.port", 8080)
	v.SetDefault("report.allowed_origins", []string{"*"})
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	switch cfg.Storage.Type {
	case "bolt":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required")
		}
	default:
		return fmt.Errorf("unknown storage type: %s (must be bolt or redis)", cfg.Storage.Type)
	}

	if _, err := time.Parse("15:04", cfg.Schedule.AutoStartTime); err != nil {
		return fmt.Errorf("invalid schedule.auto_start_time %q: %w", cfg.Schedule.AutoStartTime, err)
	}
	if _, err := time.LoadLocation(cfg.Schedule.Timezone); err != nil {
		return fmt.Errorf("invalid schedule.timezone %q: %w", cfg.Schedule.Timezone, err)
	}

	if _, err := time.ParseDuration(cfg.Tracking.SweepInterval); err != nil {
		return fmt.Errorf("invalid tracking.sweep_interval %q: %w", cfg.Tracking.SweepInterval, err)
	}
	if _, err := time.ParseDuration(cfg.Tracking.RecordTimeout); err != nil {
		return fmt.Errorf("invalid tracking.record_timeout %q: %w", cfg.Tracking.RecordTimeout, err)
	}
	if cfg.Tracking.SweepBatchSize <= 0 {
		return fmt.Errorf("tracking.sweep_batch_size must be positive")
	}
	if cfg.Tracking.PauseLimit <= 0 {
		return fmt.Errorf("tracking.pause_limit must be positive")
	}

	if cfg.Limits.StandardHours <= 0 || cfg.Limits.GoldHours <= 0 || cfg.Limits.ExtendedHours <= 0 {
		return fmt.Errorf("hour limits must be positive")
	}

	if cfg.Report.Enabled && (cfg.Report.Port <= 0 || cfg.Report.Port > 65535) {
		return fmt.Errorf("invalid report port: %d", cfg.Report.Port)
	}

	return nil
}

package main

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Nysah1997/qw/internal/config"
)

var validateDump bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the qw configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", configPath)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(os.Stdout)
		red.Fprintf(os.Stdout, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			red.Fprintf(os.Stdout, "   - %s\n", key)
		}
		fmt.Fprintln(os.Stdout, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	if validateDump {
		fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
		fmt.Fprintln(os.Stdout, "FULL CONFIGURATION (values different from defaults are highlighted)")
		fmt.Fprintln(os.Stdout, strings.Repeat("=", 80))
		dumpConfig(cfg, config.Defaults(), unknownKeys)
	}

	return nil
}

// findUnknownKeys loads the config file and checks for unknown keys
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	validKeys := validConfigKeys()

	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !validKeys[key] {
			unknown = append(unknown, key)
		}
	}
	return unknown, nil
}

// validConfigKeys returns a set of all valid configuration keys
func validConfigKeys() map[string]bool {
	return map[string]bool{
		// Server
		"server.bind_address": true,
		"server.metrics_port": true,

		// Storage
		"storage.type":                 true,
		"storage.path":                 true,
		"storage.redis.host":           true,
		"storage.redis.port":           true,
		"storage.redis.password":       true,
		"storage.redis.db":             true,
		"storage.redis.pool_size":      true,
		"storage.redis.min_idle_conns": true,
		"storage.redis.dial_timeout":   true,
		"storage.redis.read_timeout":   true,
		"storage.redis.write_timeout":  true,

		// Logging
		"logging.level":  true,
		"logging.format": true,

		// Tracking
		"tracking.sweep_interval":   true,
		"tracking.sweep_batch_size": true,
		"tracking.record_timeout":   true,
		"tracking.pause_limit":      true,

		// Limits
		"limits.standard_hours": true,
		"limits.gold_hours":     true,
		"limits.extended_hours": true,

		// Schedule
		"schedule.auto_start_time": true,
		"schedule.timezone":        true,

		// Roles
		"roles.gold_users":     true,
		"roles.extended_users": true,
		"roles.cache_size":     true,
		"roles.cache_ttl":      true,

		// Notify
		"notify.milestones_url":    true,
		"notify.pauses_url":        true,
		"notify.cancellations_url": true,
		"notify.movements_url":     true,
		"notify.max_retries":       true,
		"notify.request_timeout":   true,

		// Report
		"report.enabled":         true,
		"report.port":            true,
		"report.allowed_origins": true,
	}
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(cfg, defaultCfg *config.Config, unknownKeys []string) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	cyan.Println("\n[server]")
	dumpField("  bind_address", cfg.Server.BindAddress, defaultCfg.Server.BindAddress, yellow, green)
	dumpField("  metrics_port", cfg.Server.MetricsPort, defaultCfg.Server.MetricsPort, yellow, green)

	cyan.Println("\n[storage]")
	dumpField("  type", cfg.Storage.Type, defaultCfg.Storage.Type, yellow, green)
	dumpField("  path", cfg.Storage.Path, defaultCfg.Storage.Path, yellow, green)
	cyan.Println("  [storage.redis]")
	dumpField("    host", cfg.Storage.Redis.Host, defaultCfg.Storage.Redis.Host, yellow, green)
	dumpField("    port", cfg.Storage.Redis.Port, defaultCfg.Storage.Redis.Port, yellow, green)
	dumpField("    password", redactPassword(cfg.Storage.Redis.Password), redactPassword(defaultCfg.Storage.Redis.Password), yellow, green)
	dumpField("    db", cfg.Storage.Redis.DB, defaultCfg.Storage.Redis.DB, yellow, green)
	dumpField("    pool_size", cfg.Storage.Redis.PoolSize, defaultCfg.Storage.Redis.PoolSize, yellow, green)
	dumpField("    min_idle_conns", cfg.Storage.Redis.MinIdleConns, defaultCfg.Storage.Redis.MinIdleConns, yellow, green)
	dumpField("    dial_timeout", cfg.Storage.Redis.DialTimeout, defaultCfg.Storage.Redis.DialTimeout, yellow, green)
	dumpField("    read_timeout", cfg.Storage.Redis.ReadTimeout, defaultCfg.Storage.Redis.ReadTimeout, yellow, green)
	dumpField("    write_timeout", cfg.Storage.Redis.WriteTimeout, defaultCfg.Storage.Redis.WriteTimeout, yellow, green)

	cyan.Println("\n[logging]")
	dumpField("  level", cfg.Logging.Level, defaultCfg.Logging.Level, yellow, green)
	dumpField("  format", cfg.Logging.Format, defaultCfg.Logging.Format, yellow, green)

	cyan.Println("\n[tracking]")
	dumpField("  sweep_interval", cfg.Tracking.SweepInterval, defaultCfg.Tracking.SweepInterval, yellow, green)
	dumpField("  sweep_batch_size", cfg.Tracking.SweepBatchSize, defaultCfg.Tracking.SweepBatchSize, yellow, green)
	dumpField("  record_timeout", cfg.Tracking.RecordTimeout, defaultCfg.Tracking.RecordTimeout, yellow, green)
	dumpField("  pause_limit", cfg.Tracking.PauseLimit, defaultCfg.Tracking.PauseLimit, yellow, green)

	cyan.Println("\n[limits]")
	dumpField("  standard_hours", cfg.Limits.StandardHours, defaultCfg.Limits.StandardHours, yellow, green)
	dumpField("  gold_hours", cfg.Limits.GoldHours, defaultCfg.Limits.GoldHours, yellow, green)
	dumpField("  extended_hours", cfg.Limits.ExtendedHours, defaultCfg.Limits.ExtendedHours, yellow, green)

	cyan.Println("\n[schedule]")
	dumpField("  auto_start_time", cfg.Schedule.AutoStartTime, defaultCfg.Schedule.AutoStartTime, yellow, green)
	dumpField("  timezone", cfg.Schedule.Timezone, defaultCfg.Schedule.Timezone, yellow, green)

	cyan.Println("\n[roles]")
	dumpField("  gold_users", cfg.Roles.GoldUsers, defaultCfg.Roles.GoldUsers, yellow, green)
	dumpField("  extended_users", cfg.Roles.ExtendedUsers, defaultCfg.Roles.ExtendedUsers, yellow, green)
	dumpField("  cache_size", cfg.Roles.CacheSize, defaultCfg.Roles.CacheSize, yellow, green)
	dumpField("  cache_ttl", cfg.Roles.CacheTTL, defaultCfg.Roles.CacheTTL, yellow, green)

	cyan.Println("\n[notify]")
	dumpField("  milestones_url", cfg.Notify.MilestonesURL, defaultCfg.Notify.MilestonesURL, yellow, green)
	dumpField("  pauses_url", cfg.Notify.PausesURL, defaultCfg.Notify.PausesURL, yellow, green)
	dumpField("  cancellations_url", cfg.Notify.CancellationsURL, defaultCfg.Notify.CancellationsURL, yellow, green)
	dumpField("  movements_url", cfg.Notify.MovementsURL, defaultCfg.Notify.MovementsURL, yellow, green)
	dumpField("  max_retries", cfg.Notify.MaxRetries, defaultCfg.Notify.MaxRetries, yellow, green)
	dumpField("  request_timeout", cfg.Notify.RequestTimeout, defaultCfg.Notify.RequestTimeout, yellow, green)

	cyan.Println("\n[report]")
	dumpField("  enabled", cfg.Report.Enabled, defaultCfg.Report.Enabled, yellow, green)
	dumpField("  port", cfg.Report.Port, defaultCfg.Report.Port, yellow, green)
	dumpField("  allowed_origins", cfg.Report.AllowedOrigins, defaultCfg.Report.AllowedOrigins, yellow, green)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		cyan.Println("\n[UNKNOWN KEYS - These will be ignored!]")
		for _, key := range unknownKeys {
			red.Printf("  %s = (unknown key - check for typos)\n", key)
		}
	}

	fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
}

// dumpField prints a field with color if it differs from default
func dumpField(name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	isDefault := reflect.DeepEqual(value, defaultValue)

	valueStr := fmt.Sprintf("%v", value)

	if isDefault {
		defaultColor.Printf("%s = %s\n", name, valueStr)
	} else {
		modifiedColor.Printf("%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

// redactPassword redacts password if not empty
func redactPassword(password string) string {
	if password == "" {
		return ""
	}
	return "***REDACTED***"
}

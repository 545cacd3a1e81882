package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"waiver-trend-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Source    SourceConfig    `mapstructure:"source"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates optional PostgreSQL connectivity for the
// audit store. An empty DSN disables persistence entirely.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// SourceConfig 描述 Buzz Index 页面抓取参数。
type SourceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DetectorConfig holds the anomaly thresholds. Rates are per minute.
type DetectorConfig struct {
	AddRateThreshold   float64 `mapstructure:"add_rate_threshold"`
	DropRateThreshold  float64 `mapstructure:"drop_rate_threshold"`
	MinAbsAddDelta     int     `mapstructure:"min_abs_add_delta"`
	MinAbsDropDelta    int     `mapstructure:"min_abs_drop_delta"`
	SmoothingWindow    int     `mapstructure:"smoothing_window"`
	MaxAlertsPerPlayer int     `mapstructure:"max_alerts_per_player"`
}

// AlertingConfig defines alert delivery behaviour.
type AlertingConfig struct {
	DryRun  bool          `mapstructure:"dry_run"`
	Discord DiscordConfig `mapstructure:"discord"`
}

// DiscordConfig 描述 Discord webhook 告警参数。
type DiscordConfig struct {
	WebhookURL  string        `mapstructure:"webhook_url"`
	MaxRetries  int           `mapstructure:"max_retries"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WAIVERWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "waiverwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("source.base_url", "https://football.fantasysports.yahoo.com/f1/buzzindex")
	v.SetDefault("source.user_agent", "Mozilla/5.0")
	v.SetDefault("source.request_timeout", "30s")

	v.SetDefault("detector.add_rate_threshold", 4.0)
	v.SetDefault("detector.drop_rate_threshold", 4.0)
	v.SetDefault("detector.min_abs_add_delta", 15)
	v.SetDefault("detector.min_abs_drop_delta", 15)
	v.SetDefault("detector.smoothing_window", 3)
	v.SetDefault("detector.max_alerts_per_player", 3)

	v.SetDefault("alerting.dry_run", true)
	v.SetDefault("alerting.discord.max_retries", 3)
	v.SetDefault("alerting.discord.backoff_base", "1s")
	v.SetDefault("alerting.discord.backoff_cap", "10s")
	v.SetDefault("alerting.discord.timeout", "30s")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9109")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate rejects configurations the detector cannot run with. Malformed
// individual values fall back to defaults during decode; logically invalid
// ones fail fast here.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}
	if c.Detector.AddRateThreshold < 0 || c.Detector.DropRateThreshold < 0 {
		return fmt.Errorf("detector rate thresholds must be non-negative")
	}
	if c.Detector.MinAbsAddDelta < 0 || c.Detector.MinAbsDropDelta < 0 {
		return fmt.Errorf("detector min abs deltas must be non-negative")
	}
	if c.Detector.MaxAlertsPerPlayer < 0 {
		return fmt.Errorf("detector.max_alerts_per_player must be non-negative")
	}
	if c.Detector.SmoothingWindow < 1 {
		// The original tool floors this at 1 rather than failing.
		c.Detector.SmoothingWindow = 1
	}
	if c.Alerting.Discord.MaxRetries < 0 {
		return fmt.Errorf("alerting.discord.max_retries must be non-negative")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Input      InputConfig      `mapstructure:"input"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Aggregate  AggregateConfig  `mapstructure:"aggregate"`
	Trend      TrendConfig      `mapstructure:"trend"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Output     OutputConfig     `mapstructure:"output"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// InputConfig holds source table configuration
type InputConfig struct {
	Path      string `mapstructure:"path"`
	Pattern   string `mapstructure:"pattern"`
	Delimiter string `mapstructure:"delimiter"`
}

// ClassifierConfig holds reappointment classification settings
type ClassifierConfig struct {
	UnknownName         string `mapstructure:"unknown_name"`
	UnknownPosition     string `mapstructure:"unknown_position"`
	UnknownOrganization string `mapstructure:"unknown_organization"`
	MinYear             int    `mapstructure:"min_year"`
	MaxYear             int    `mapstructure:"max_year"`
}

// AggregateConfig holds aggregation settings
type AggregateConfig struct {
	TopMinAppointments int `mapstructure:"top_min_appointments"`
}

// TrendConfig holds regression thresholds
type TrendConfig struct {
	Alpha             float64 `mapstructure:"alpha"`
	NegligibleR2      float64 `mapstructure:"negligible_r2"`
	SmallR2           float64 `mapstructure:"small_r2"`
	MediumR2          float64 `mapstructure:"medium_r2"`
	DurbinWatsonLower float64 `mapstructure:"durbin_watson_lower"`
	DurbinWatsonUpper float64 `mapstructure:"durbin_watson_upper"`
	OutlierZ          float64 `mapstructure:"outlier_z"`
}

// StorageConfig holds run persistence configuration
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
	MaxRuns int    `mapstructure:"max_runs"`
}

// OutputConfig holds stage output configuration
type OutputConfig struct {
	Dir    string `mapstructure:"dir"`
	Format string `mapstructure:"format"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// MetricsConfig holds Prometheus textfile export configuration
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override: REAPPOINT_TREND_ALPHA -> trend.alpha
	v.SetEnvPrefix("REAPPOINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Input defaults
	v.SetDefault("input.path", "./data")
	v.SetDefault("input.pattern", "appointments_*.csv")
	v.SetDefault("input.delimiter", ",")

	// Classifier defaults (dataset coverage 2013-2024)
	v.SetDefault("classifier.unknown_name", "UNKNOWN_NAME")
	v.SetDefault("classifier.unknown_position", "UNKNOWN_POSITION")
	v.SetDefault("classifier.unknown_organization", "UNKNOWN_ORGANIZATION")
	v.SetDefault("classifier.min_year", 2013)
	v.SetDefault("classifier.max_year", 2024)

	// Aggregate defaults
	v.SetDefault("aggregate.top_min_appointments", 1)

	// Trend defaults
	v.SetDefault("trend.alpha", 0.05)
	v.SetDefault("trend.negligible_r2", 0.01)
	v.SetDefault("trend.small_r2", 0.09)
	v.SetDefault("trend.medium_r2", 0.25)
	v.SetDefault("trend.durbin_watson_lower", 1.5)
	v.SetDefault("trend.durbin_watson_upper", 2.5)
	v.SetDefault("trend.outlier_z", 2.0)

	// Storage defaults
	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.db_path", "./output/reappoint.db")
	v.SetDefault("storage.max_runs", 50)

	// Output defaults
	v.SetDefault("output.dir", "./output")
	v.SetDefault("output.format", "text")

	// Telegram defaults
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Metrics defaults
	v.SetDefault("metrics.textfile_path", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Input config
	if c.Input.Pattern == "" {
		return fmt.Errorf("input.pattern is required")
	}
	if len([]rune(c.Input.Delimiter)) != 1 {
		return fmt.Errorf("input.delimiter must be a single character")
	}

	// Validate Classifier config
	if c.Classifier.UnknownName == "" || c.Classifier.UnknownPosition == "" || c.Classifier.UnknownOrganization == "" {
		return fmt.Errorf("classifier sentinels must not be empty")
	}
	if c.Classifier.MinYear < 0 || c.Classifier.MaxYear < 0 {
		return fmt.Errorf("classifier year bounds must not be negative")
	}
	if c.Classifier.MinYear > 0 && c.Classifier.MaxYear > 0 && c.Classifier.MinYear > c.Classifier.MaxYear {
		return fmt.Errorf("classifier.min_year must be <= classifier.max_year")
	}

	// Validate Aggregate config
	if c.Aggregate.TopMinAppointments < 1 {
		return fmt.Errorf("aggregate.top_min_appointments must be at least 1")
	}

	// Validate Trend config
	if c.Trend.Alpha <= 0.0 || c.Trend.Alpha >= 1.0 {
		return fmt.Errorf("trend.alpha must be between 0.0 and 1.0 (exclusive)")
	}
	if !(0 < c.Trend.NegligibleR2 && c.Trend.NegligibleR2 < c.Trend.SmallR2 &&
		c.Trend.SmallR2 < c.Trend.MediumR2 && c.Trend.MediumR2 < 1) {
		return fmt.Errorf("trend effect thresholds must satisfy 0 < negligible_r2 < small_r2 < medium_r2 < 1")
	}
	if !(0 <= c.Trend.DurbinWatsonLower && c.Trend.DurbinWatsonLower < c.Trend.DurbinWatsonUpper && c.Trend.DurbinWatsonUpper <= 4) {
		return fmt.Errorf("trend durbin-watson bounds must satisfy 0 <= lower < upper <= 4")
	}
	if c.Trend.OutlierZ <= 0 {
		return fmt.Errorf("trend.outlier_z must be positive")
	}

	// Validate Storage config
	if c.Storage.Enabled && c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required when storage is enabled")
	}
	if c.Storage.MaxRuns < 0 {
		return fmt.Errorf("storage.max_runs must not be negative")
	}

	// Validate Output config
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	validFormats := map[string]bool{"text": true, "json": true, "yaml": true}
	if !validFormats[c.Output.Format] {
		return fmt.Errorf("output.format must be one of: text, json, yaml")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

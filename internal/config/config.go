package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Source SourceConfig `yaml:"source" mapstructure:"source"`
	Cache  CacheConfig  `yaml:"cache" mapstructure:"cache"`
	Rules  RulesConfig  `yaml:"rules" mapstructure:"rules"`
	Retry  RetryConfig  `yaml:"retry" mapstructure:"retry"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// SourceConfig configures the remote record API the visit and registration
// feeds are read from.
type SourceConfig struct {
	Driver      string  `yaml:"driver" mapstructure:"driver"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Domain      string  `yaml:"domain" mapstructure:"domain"`
	Username    string  `yaml:"username" mapstructure:"username"`
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	PageSize    int     `yaml:"page_size" mapstructure:"page_size"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	FixturePath string  `yaml:"fixture_path" mapstructure:"fixture_path"`
}

// CacheConfig configures snapshot storage and the validity profile in use.
type CacheConfig struct {
	Driver      string                        `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string                        `yaml:"database_url" mapstructure:"database_url"`
	RedisAddr   string                        `yaml:"redis_addr" mapstructure:"redis_addr"`
	Profile     string                        `yaml:"profile" mapstructure:"profile"`
	Profiles    map[string]CacheProfileConfig `yaml:"profiles" mapstructure:"profiles"`
}

// CacheProfileConfig is one named tolerance pair for snapshot reuse.
type CacheProfileConfig struct {
	PercentTolerance  float64 `yaml:"percent_tolerance" mapstructure:"percent_tolerance"`
	TimeToleranceMins int     `yaml:"time_tolerance_mins" mapstructure:"time_tolerance_mins"`
}

// TimeTolerance returns the profile's maximum snapshot age.
func (p CacheProfileConfig) TimeTolerance() time.Duration {
	return time.Duration(p.TimeToleranceMins) * time.Minute
}

// ActiveProfile returns the selected cache profile.
func (c CacheConfig) ActiveProfile() (string, CacheProfileConfig, error) {
	name := strings.ToLower(strings.TrimSpace(c.Profile))
	p, ok := c.Profiles[name]
	if !ok {
		return "", CacheProfileConfig{}, eris.Errorf("config: unknown cache profile %q", c.Profile)
	}
	return name, p, nil
}

// RulesConfig holds the business thresholds of the follow-up and GPS audits.
type RulesConfig struct {
	OnTimeWindowDays   int           `yaml:"on_time_window_days" mapstructure:"on_time_window_days"`
	GracePeriodDays    int           `yaml:"grace_period_days" mapstructure:"grace_period_days"`
	GPSFlagThresholdKM float64       `yaml:"gps_flag_threshold_km" mapstructure:"gps_flag_threshold_km"`
	MinAppVersion      int           `yaml:"min_app_version" mapstructure:"min_app_version"`
	TrendDays          int           `yaml:"trend_days" mapstructure:"trend_days"`
	GPSWindowDays      int           `yaml:"gps_window_days" mapstructure:"gps_window_days"`
	Colors             ColorConfig   `yaml:"colors" mapstructure:"colors"`
	OnTrack            OnTrackConfig `yaml:"on_track" mapstructure:"on_track"`
	SameDayPair        []string      `yaml:"same_day_pair" mapstructure:"same_day_pair"`
}

// ColorConfig holds the follow-up rate thresholds for the good/warning bands.
type ColorConfig struct {
	Good    int `yaml:"good" mapstructure:"good"`
	Warning int `yaml:"warning" mapstructure:"warning"`
}

// OnTrackConfig holds the per-beneficiary on-track rule.
type OnTrackConfig struct {
	MinCompleted int `yaml:"min_completed" mapstructure:"min_completed"`
	MaxMissed    int `yaml:"max_missed" mapstructure:"max_missed"`
}

// RetryConfig configures retries against the record API.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FLWAUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("source.driver", "http")
	v.SetDefault("source.base_url", "https://www.commcarehq.org")
	v.SetDefault("source.page_size", 1000)
	v.SetDefault("source.timeout_secs", 60)
	v.SetDefault("source.rate_per_sec", 5.0)
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.database_url", "flw-audit.db")
	v.SetDefault("cache.profile", "production")
	v.SetDefault("cache.profiles.production.percent_tolerance", 0.98)
	v.SetDefault("cache.profiles.production.time_tolerance_mins", 30)
	v.SetDefault("cache.profiles.relaxed.percent_tolerance", 0.85)
	v.SetDefault("cache.profiles.relaxed.time_tolerance_mins", 90)
	v.SetDefault("rules.on_time_window_days", 7)
	v.SetDefault("rules.grace_period_days", 5)
	v.SetDefault("rules.gps_flag_threshold_km", 5.0)
	v.SetDefault("rules.min_app_version", 0)
	v.SetDefault("rules.trend_days", 7)
	v.SetDefault("rules.gps_window_days", 30)
	v.SetDefault("rules.colors.good", 80)
	v.SetDefault("rules.colors.warning", 60)
	v.SetDefault("rules.on_track.min_completed", 5)
	v.SetDefault("rules.on_track.max_missed", 1)
	v.SetDefault("rules.same_day_pair", []string{"anc", "postnatal"})
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on and reports every
// problem at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "analyze", "serve":
		switch c.Source.Driver {
		case "http":
			if c.Source.BaseURL == "" {
				errs = append(errs, "source.base_url is required")
			}
			if c.Source.APIKey == "" {
				errs = append(errs, "source.api_key is required")
			}
		case "fixture":
			if c.Source.FixturePath == "" {
				errs = append(errs, "source.fixture_path is required for the fixture driver")
			}
		default:
			errs = append(errs, "source.driver must be http or fixture")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "cache":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if _, _, err := c.Cache.ActiveProfile(); err != nil {
		errs = append(errs, err.Error())
	}
	for name, p := range c.Cache.Profiles {
		if p.PercentTolerance <= 0 || p.PercentTolerance > 1 {
			errs = append(errs, "cache.profiles."+name+".percent_tolerance must be in (0, 1]")
		}
		if p.TimeToleranceMins < 0 {
			errs = append(errs, "cache.profiles."+name+".time_tolerance_mins must be >= 0")
		}
	}

	r := c.Rules
	if r.OnTimeWindowDays < 0 || r.GracePeriodDays < 0 {
		errs = append(errs, "rules day windows must be >= 0")
	}
	if r.GPSFlagThresholdKM <= 0 {
		errs = append(errs, "rules.gps_flag_threshold_km must be > 0")
	}
	if r.Colors.Warning > r.Colors.Good {
		errs = append(errs, "rules.colors.warning must not exceed rules.colors.good")
	}
	if len(r.SameDayPair) != 0 && len(r.SameDayPair) != 2 {
		errs = append(errs, "rules.same_day_pair must name exactly two visit types")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

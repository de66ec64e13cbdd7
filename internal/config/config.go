// Package config loads and validates gust configuration. All processes
// read the same file, so a limit or rate tweaked in one place is what
// every process computes with.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Wind       WindConfig       `mapstructure:"wind"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Usage      UsageConfig      `mapstructure:"usage"`
	Breaks     BreaksConfig     `mapstructure:"breaks"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// StorageConfig selects and configures the shared store.
type StorageConfig struct {
	// Type is "bolt" or "redis".
	Type string `mapstructure:"type"`

	// Path is the bolt database file.
	Path string `mapstructure:"path"`

	// SurfacePath is where the simulated enforcement surface keeps its
	// block set between one-shot shield invocations.
	SurfacePath string `mapstructure:"surface_path"`

	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig configures the redis backend.
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

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WindConfig tunes the wind metric and the shield.
type WindConfig struct {
	// EngageThreshold is the wind value at which the shield engages.
	// Never below 100: the shield must not fire before the limit.
	EngageThreshold float64 `mapstructure:"engage_threshold"`

	// FallRatePerSecond is how fast effective wind decays while the
	// shield is active.
	FallRatePerSecond float64 `mapstructure:"fall_rate_per_second"`
}

// ThresholdsConfig tunes OS usage-threshold registration.
type ThresholdsConfig struct {
	// Granularity is the spacing between registered thresholds.
	Granularity string `mapstructure:"granularity"`

	// MaxRegistered caps how many thresholds are registered at once.
	MaxRegistered int `mapstructure:"max_registered"`
}

// UsageConfig tunes usage bookkeeping.
type UsageConfig struct {
	// DailyResetTime is the local "HH:MM" at which the day rolls over.
	DailyResetTime string `mapstructure:"daily_reset_time"`
}

// BreaksConfig tunes the break ledger.
type BreaksConfig struct {
	// CoinIntervalMinutes is the committed minutes per coin awarded.
	CoinIntervalMinutes int64 `mapstructure:"coin_interval_minutes"`
}

// NotifyConfig tunes notification dispatch.
type NotifyConfig struct {
	// DedupeTTL is how long a notification ID suppresses repeats.
	DedupeTTL string `mapstructure:"dedupe_ttl"`
}

// MetricsConfig configures the metrics server.
type MetricsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Port        int    `mapstructure:"port"`
	BindAddress string `mapstructure:"bind_address"`
}

// Load reads configuration from the given file, or from the default
// search paths when empty. Environment variables with the GUST_ prefix
// override file values.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("gust")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/gust")
		v.AddConfigPath("/etc/gust")
	}

	v.SetEnvPrefix("GUST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "gust.db")
	v.SetDefault("storage.surface_path", "gust.surface.json")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("wind.engage_threshold", 100.0)
	v.SetDefault("wind.fall_rate_per_second", 0.5)

	v.SetDefault("thresholds.granularity", "5m")
	v.SetDefault("thresholds.max_registered", 20)

	v.SetDefault("usage.daily_reset_time", "00:00")

	v.SetDefault("breaks.coin_interval_minutes", 15)

	v.SetDefault("notify.dedupe_ttl", "1m")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9109)
	v.SetDefault("metrics.bind_address", "127.0.0.1")
}

func (c *Config) validate() error {
	switch c.Storage.Type {
	case "bolt", "redis":
	default:
		return fmt.Errorf("invalid storage type %q (want bolt or redis)", c.Storage.Type)
	}
	if c.Storage.Type == "bolt" && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required for bolt storage")
	}

	if c.Wind.EngageThreshold < 100 {
		return fmt.Errorf("wind.engage_threshold must be at least 100, got %v", c.Wind.EngageThreshold)
	}
	if c.Wind.FallRatePerSecond <= 0 {
		return fmt.Errorf("wind.fall_rate_per_second must be positive, got %v", c.Wind.FallRatePerSecond)
	}

	if _, err := time.ParseDuration(c.Thresholds.Granularity); err != nil {
		return fmt.Errorf("invalid thresholds.granularity: %w", err)
	}
	if c.Thresholds.MaxRegistered <= 0 {
		return fmt.Errorf("thresholds.max_registered must be positive, got %d", c.Thresholds.MaxRegistered)
	}

	if _, err := time.Parse("15:04", c.Usage.DailyResetTime); err != nil {
		return fmt.Errorf("invalid usage.daily_reset_time %q (want HH:MM)", c.Usage.DailyResetTime)
	}

	if c.Breaks.CoinIntervalMinutes <= 0 {
		return fmt.Errorf("breaks.coin_interval_minutes must be positive, got %d", c.Breaks.CoinIntervalMinutes)
	}

	if _, err := time.ParseDuration(c.Notify.DedupeTTL); err != nil {
		return fmt.Errorf("invalid notify.dedupe_ttl: %w", err)
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics.port %d", c.Metrics.Port)
	}
	return nil
}

// GranularityDuration returns the parsed threshold spacing.
func (c *Config) GranularityDuration() time.Duration {
	d, err := time.ParseDuration(c.Thresholds.Granularity)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// DedupeTTLDuration returns the parsed notification dedup window.
func (c *Config) DedupeTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.Notify.DedupeTTL)
	if err != nil {
		return time.Minute
	}
	return d
}

// Package config loads application configuration from file and environment
// and initializes the global logger.
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
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the entity store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CacheConfig configures the resolution cache backend.
type CacheConfig struct {
	Driver               string `yaml:"driver" mapstructure:"driver"` // "memory" or "redis"
	RedisAddr            string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword        string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB              int    `yaml:"redis_db" mapstructure:"redis_db"`
	SweepIntervalMinutes int    `yaml:"sweep_interval_minutes" mapstructure:"sweep_interval_minutes"`
}

// GeocodeConfig enumerates the provider chain order and credentials. The
// chain is constructed explicitly from this struct; there is no process-wide
// provider state.
type GeocodeConfig struct {
	ChainID       string           `yaml:"chain_id" mapstructure:"chain_id"`
	TimeoutSecs   int              `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheTTLHours int              `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	Nominatim     NominatimConfig  `yaml:"nominatim" mapstructure:"nominatim"`
	LocationIQ    LocationIQConfig `yaml:"locationiq" mapstructure:"locationiq"`
	Google        GoogleGeoConfig  `yaml:"google" mapstructure:"google"`
}

// NominatimConfig holds settings for the free OSM provider.
type NominatimConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
}

// LocationIQConfig holds the LocationIQ fallback credentials.
type LocationIQConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GoogleGeoConfig holds the Google Geocoding fallback credentials.
type GoogleGeoConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins  []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	EventBufferSize int      `yaml:"event_buffer_size" mapstructure:"event_buffer_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// GeocodeTimeout returns the per-provider attempt deadline.
func (g GeocodeConfig) GeocodeTimeout() time.Duration {
	return time.Duration(g.TimeoutSecs) * time.Second
}

// CacheTTL returns how long successful resolutions stay cached.
func (g GeocodeConfig) CacheTTL() time.Duration {
	return time.Duration(g.CacheTTLHours) * time.Hour
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RELIEFGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.sweep_interval_minutes", 10)
	v.SetDefault("geocode.chain_id", "default")
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("geocode.cache_ttl_hours", 24)
	v.SetDefault("geocode.nominatim.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.nominatim.user_agent", "reliefgrid/1.0")
	v.SetDefault("geocode.locationiq.base_url", "https://us1.locationiq.com")
	v.SetDefault("geocode.google.base_url", "https://maps.googleapis.com")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.event_buffer_size", 64)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

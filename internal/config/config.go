package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Security  SecurityConfig  `mapstructure:"security"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Events    EventsConfig    `mapstructure:"events"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Features  FeaturesConfig  `mapstructure:"features"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port      string `mapstructure:"port"`
	Host      string `mapstructure:"host"`
	EnableTLS bool   `mapstructure:"enable_tls"`
	CertFile  string `mapstructure:"cert_file"`
	KeyFile   string `mapstructure:"key_file"`
}

// DatabaseConfig holds database-related configuration. An empty path keeps
// everything in memory.
type DatabaseConfig struct {
	Path     string `mapstructure:"path"`
	SeedData bool   `mapstructure:"seed_data"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	// Max request body size in bytes (default: 1MB)
	MaxRequestBodySize int64 `mapstructure:"max_request_body_size"`
	// Allowed CORS origins (comma-separated)
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Rate    int  `mapstructure:"rate"`
	Window  int  `mapstructure:"window"` // in seconds
}

// CacheConfig selects the backend for the fleet feed snapshot. Empty RedisAddr
// uses the in-process cache.
type CacheConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	FleetTTL      int    `mapstructure:"fleet_ttl"` // in seconds
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

// EventsConfig controls domain event hooks and their optional RabbitMQ forwarding.
type EventsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	AMQPURL  string `mapstructure:"amqp_url"`
	Exchange string `mapstructure:"exchange"`
}

type SchedulerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ExpirySchedule string `mapstructure:"expiry_schedule"`
}

// FeaturesConfig seeds the feature flag manager.
type FeaturesConfig struct {
	SingleActiveSubscription bool `mapstructure:"single_active_subscription"`
	CascadeClientDelete      bool `mapstructure:"cascade_client_delete"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// LoadConfig loads configuration from defaults, an optional config file and the
// environment. Environment variables take precedence over config file values;
// nested keys map to upper-case names with dots replaced by underscores
// (server.port -> SERVER_PORT).
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "")
	v.SetDefault("server.enable_tls", false)
	v.SetDefault("server.cert_file", "")
	v.SetDefault("server.key_file", "")

	v.SetDefault("database.path", "./transit_pass.db")
	v.SetDefault("database.seed_data", false)

	v.SetDefault("security.max_request_body_size", 1<<20)
	v.SetDefault("security.allowed_origins", "*")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.rate", 100)
	v.SetDefault("rate_limit.window", 60)

	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.fleet_ttl", 120)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("tracing.service_name", "transit-pass-api")
	v.SetDefault("tracing.environment", "development")

	v.SetDefault("events.enabled", true)
	v.SetDefault("events.amqp_url", "")
	v.SetDefault("events.exchange", "transit.events")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.expiry_schedule", "@every 1m")

	v.SetDefault("features.single_active_subscription", true)
	v.SetDefault("features.cascade_client_delete", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.EnableTLS && (c.Server.CertFile == "" || c.Server.KeyFile == "") {
		return fmt.Errorf("cert and key files are required when TLS is enabled")
	}
	if c.Security.MaxRequestBodySize <= 0 {
		return fmt.Errorf("max request body size must be positive")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 {
			return fmt.Errorf("rate limit rate must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}
	if c.Cache.FleetTTL <= 0 {
		return fmt.Errorf("fleet cache ttl must be positive")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}
	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.ExpirySchedule); err != nil {
			return fmt.Errorf("invalid expiry schedule %q: %w", c.Scheduler.ExpirySchedule, err)
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("log level must be one of debug, info, warn, error")
	}
	return nil
}

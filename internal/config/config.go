package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

// Bus drivers.
const (
	BusMemory = "memory"
	BusRedis  = "redis"
	BusNATS   = "nats"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	MaxMessageBytes    int64    `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	HistoryLimit       int      `mapstructure:"history_limit" yaml:"history_limit"`
	SendBuffer         int      `mapstructure:"send_buffer" yaml:"send_buffer"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	AvatarURL          string   `mapstructure:"avatar_url" yaml:"avatar_url"`
	AllowedOrigins     []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`

	Auth  AuthConfig  `mapstructure:"auth" yaml:"auth"`
	Store StoreConfig `mapstructure:"store" yaml:"store"`
	Bus   BusConfig   `mapstructure:"bus" yaml:"bus"`
}

// AuthConfig configures token signing and verification.
type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// StoreConfig selects and configures the history and user store.
type StoreConfig struct {
	Driver        string `mapstructure:"driver" yaml:"driver"`
	SQLitePath    string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	MongoURI      string `mapstructure:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database" yaml:"mongo_database"`
}

// BusConfig selects and configures the broadcast bus.
type BusConfig struct {
	Driver        string `mapstructure:"driver" yaml:"driver"`
	ChannelPrefix string `mapstructure:"channel_prefix" yaml:"channel_prefix"`
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`
	NATSURL       string `mapstructure:"nats_url" yaml:"nats_url"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		LogFormat:          "console",
		MaxMessageBytes:    64 << 10,
		HistoryLimit:       50,
		SendBuffer:         64,
		RateLimitPerMinute: 120,
		AvatarURL:          "https://i.pravatar.cc/40?u=%s",
		AllowedOrigins:     []string{"http://localhost:5173"},
		Auth: AuthConfig{
			JWTSecret:   "change-me-in-production",
			JWTIssuer:   "roomchat",
			JWTAudience: "roomchat-clients",
			TokenTTL:    24 * time.Hour,
		},
		Store: StoreConfig{
			Driver:        StoreSQLite,
			SQLitePath:    "roomchat.db",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "roomchat",
		},
		Bus: BusConfig{
			Driver:        BusMemory,
			ChannelPrefix: "roomchat:",
			RedisAddr:     "localhost:6379",
			NATSURL:       "nats://localhost:4222",
		},
	}
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, errors.New("history_limit must be positive"))
	}
	if c.AvatarURL != "" && strings.Count(c.AvatarURL, "%s") != 1 {
		errs = append(errs, errors.New("avatar_url must contain exactly one %s"))
	}

	switch c.Store.Driver {
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required"))
		}
	case StoreMongo:
		if c.Store.MongoURI == "" || c.Store.MongoDatabase == "" {
			errs = append(errs, errors.New("store.mongo_uri and store.mongo_database are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	switch c.Bus.Driver {
	case BusMemory:
	case BusRedis:
		if c.Bus.RedisAddr == "" {
			errs = append(errs, errors.New("bus.redis_addr is required"))
		}
	case BusNATS:
		if c.Bus.NATSURL == "" {
			errs = append(errs, errors.New("bus.nats_url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown bus.driver %q", c.Bus.Driver))
	}

	return errors.Join(errs...)
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Used for command-line overrides.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.Store.Driver != "" {
		c.Store.Driver = other.Store.Driver
	}
	if other.Bus.Driver != "" {
		c.Bus.Driver = other.Bus.Driver
	}
}

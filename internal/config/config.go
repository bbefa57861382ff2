package config

import (
	"errors"
	"time"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Chat     ChatConfig     `mapstructure:"chat" yaml:"chat"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
}

// DatabaseConfig selects the message store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// ChatConfig tunes the presence and fan-out coordinator.
type ChatConfig struct {
	PrivateInactivity  time.Duration `mapstructure:"private_inactivity" yaml:"private_inactivity"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	HistoryLimit       int           `mapstructure:"history_limit" yaml:"history_limit"`
	MaxMessageLength   int           `mapstructure:"max_message_length" yaml:"max_message_length"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	EventBuffer        int           `mapstructure:"event_buffer" yaml:"event_buffer"`
}

// AuthConfig configures session tokens and tripcodes.
type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer    string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience  string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL     time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
	TripcodeSalt string        `mapstructure:"tripcode_salt" yaml:"tripcode_salt"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":3000",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			DSN:    "lobbychat.db",
		},
		Chat: ChatConfig{
			PrivateInactivity:  60 * time.Second,
			SweepInterval:      10 * time.Second,
			HistoryLimit:       50,
			MaxMessageLength:   2000,
			RateLimitPerMinute: 120,
			EventBuffer:        64,
		},
		Auth: AuthConfig{
			JWTSecret:    "change-me",
			JWTIssuer:    "lobbychat",
			JWTAudience:  "lobbychat",
			TokenTTL:     24 * time.Hour,
			TripcodeSalt: "lobbychat",
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
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
	if other.Database.Driver != "" {
		c.Database.Driver = other.Database.Driver
	}
	if other.Database.DSN != "" {
		c.Database.DSN = other.Database.DSN
	}
}

// Validate checks values the coordinator depends on.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return errors.New("database.driver must be sqlite or postgres")
	}
	if c.Chat.SweepInterval <= 0 {
		return errors.New("chat.sweep_interval must be positive")
	}
	if c.Chat.SweepInterval >= c.Chat.PrivateInactivity {
		return errors.New("chat.sweep_interval must be shorter than chat.private_inactivity")
	}
	if c.Chat.HistoryLimit <= 0 {
		return errors.New("chat.history_limit must be positive")
	}
	if c.Chat.MaxMessageLength <= 0 {
		return errors.New("chat.max_message_length must be positive")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	return nil
}

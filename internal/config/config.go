package config

import "time"

// Supported history drivers.
const (
	HistoryDriverSQLite = "sqlite"
	HistoryDriverMemory = "memory"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	JWTSecret        string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer        string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience      string `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTRequireExpiry bool   `mapstructure:"jwt_require_expiry" yaml:"jwt_require_expiry"`

	HistoryDriver     string `mapstructure:"history_driver" yaml:"history_driver"`
	DatabasePath      string `mapstructure:"database_path" yaml:"database_path"`
	HistoryLimit      int    `mapstructure:"history_limit" yaml:"history_limit"`
	HistoryRetention  int    `mapstructure:"history_retention" yaml:"history_retention"`
	HistoryCacheRooms int    `mapstructure:"history_cache_rooms" yaml:"history_cache_rooms"`

	BreakerEnabled     bool          `mapstructure:"breaker_enabled" yaml:"breaker_enabled"`
	BreakerMaxFailures uint32        `mapstructure:"breaker_max_failures" yaml:"breaker_max_failures"`
	BreakerOpenTimeout time.Duration `mapstructure:"breaker_open_timeout" yaml:"breaker_open_timeout"`

	EchoToSender bool `mapstructure:"echo_to_sender" yaml:"echo_to_sender"`

	AuthTimeout         time.Duration `mapstructure:"auth_timeout" yaml:"auth_timeout"`
	IdleTimeout         time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	WriteTimeout        time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	FlushTimeout        time.Duration `mapstructure:"flush_timeout" yaml:"flush_timeout"`
	SlowConsumerTimeout time.Duration `mapstructure:"slow_consumer_timeout" yaml:"slow_consumer_timeout"`
	OutboundQueue       int           `mapstructure:"outbound_queue" yaml:"outbound_queue"`
	InboundQueue        int           `mapstructure:"inbound_queue" yaml:"inbound_queue"`
	MaxMessageBytes     int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	MessagesPerMinute   int           `mapstructure:"messages_per_minute" yaml:"messages_per_minute"`
	AllowedOrigins      []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",

		JWTSecret: "change-me",

		HistoryDriver:     HistoryDriverSQLite,
		DatabasePath:      "wiredraw.db",
		HistoryLimit:      50,
		HistoryRetention:  50,
		HistoryCacheRooms: 1024,

		BreakerEnabled:     true,
		BreakerMaxFailures: 5,
		BreakerOpenTimeout: 10 * time.Second,

		AuthTimeout:         10 * time.Second,
		IdleTimeout:         5 * time.Minute,
		WriteTimeout:        5 * time.Second,
		FlushTimeout:        2 * time.Second,
		SlowConsumerTimeout: 5 * time.Second,
		OutboundQueue:       64,
		InboundQueue:        16,
		MaxMessageBytes:     1 << 20,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Booleans are not merged: a zero value cannot be told apart from an explicit false.
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
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.HistoryDriver != "" {
		c.HistoryDriver = other.HistoryDriver
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
}

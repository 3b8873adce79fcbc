package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envConfigDefaultPath = "WIREDRAW_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
// A missing config file is created from defaults.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	return load(logger, explicitPath, true)
}

// LoadExisting is Load without creating a default file when none exists.
func LoadExisting(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	return load(logger, explicitPath, false)
}

func load(logger *zerolog.Logger, explicitPath string, writeDefault bool) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix("WIREDRAW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
		switch {
		case missing && !writeDefault:
			if logger != nil {
				logger.Debug().Str("path", configPath).Msg("no config file, using defaults")
			}
		case missing:
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		default:
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, configPath, err
	}

	return cfg, configPath, nil
}

// Every key needs a default, otherwise AutomaticEnv never consults the environment for it.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("read_header_timeout", cfg.ReadHeaderTimeout)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("jwt_secret", cfg.JWTSecret)
	v.SetDefault("jwt_issuer", cfg.JWTIssuer)
	v.SetDefault("jwt_audience", cfg.JWTAudience)
	v.SetDefault("jwt_require_expiry", cfg.JWTRequireExpiry)
	v.SetDefault("history_driver", cfg.HistoryDriver)
	v.SetDefault("database_path", cfg.DatabasePath)
	v.SetDefault("history_limit", cfg.HistoryLimit)
	v.SetDefault("history_retention", cfg.HistoryRetention)
	v.SetDefault("history_cache_rooms", cfg.HistoryCacheRooms)
	v.SetDefault("breaker_enabled", cfg.BreakerEnabled)
	v.SetDefault("breaker_max_failures", cfg.BreakerMaxFailures)
	v.SetDefault("breaker_open_timeout", cfg.BreakerOpenTimeout)
	v.SetDefault("echo_to_sender", cfg.EchoToSender)
	v.SetDefault("auth_timeout", cfg.AuthTimeout)
	v.SetDefault("idle_timeout", cfg.IdleTimeout)
	v.SetDefault("write_timeout", cfg.WriteTimeout)
	v.SetDefault("flush_timeout", cfg.FlushTimeout)
	v.SetDefault("slow_consumer_timeout", cfg.SlowConsumerTimeout)
	v.SetDefault("outbound_queue", cfg.OutboundQueue)
	v.SetDefault("inbound_queue", cfg.InboundQueue)
	v.SetDefault("max_message_bytes", cfg.MaxMessageBytes)
	v.SetDefault("messages_per_minute", cfg.MessagesPerMinute)
	v.SetDefault("allowed_origins", cfg.AllowedOrigins)
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	switch c.HistoryDriver {
	case HistoryDriverSQLite, HistoryDriverMemory:
	default:
		return fmt.Errorf("unknown history_driver %q", c.HistoryDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}
	if c.HistoryLimit <= 0 || c.HistoryLimit > 50 {
		return fmt.Errorf("history_limit must be within 1..50, got %d", c.HistoryLimit)
	}
	if c.HistoryRetention < c.HistoryLimit {
		return fmt.Errorf("history_retention must be at least history_limit (%d), got %d", c.HistoryLimit, c.HistoryRetention)
	}
	if c.OutboundQueue <= 0 || c.InboundQueue <= 0 {
		return errors.New("queue sizes must be positive")
	}
	return nil
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

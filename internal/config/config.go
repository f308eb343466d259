// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (CHATRELAY_* / DATABASE_URL)
//  2. Config file (./config.yaml)
//  3. Default values
//
// Sensitive data (API keys, passwords) are never logged.
// Validation is fail-fast: Load returns an error before any component starts.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Defaults for conversation behavior, mirroring the service's original tuning.
const (
	// DefaultMaxHistory bounds the number of prior turns sent to the provider.
	DefaultMaxHistory = 20

	// MaxAllowedHistory is the absolute cap to keep request payloads sane.
	MaxAllowedHistory = 500

	// DefaultSystemPrompt is prepended to every context window. Never persisted.
	DefaultSystemPrompt = "你是一个乐于助人的 AI 编程助手。"

	// DefaultFallbackReply is returned (and persisted) when the provider fails.
	DefaultFallbackReply = "AI 大脑掉线了，请稍后再试。"

	// DefaultModel is the provider-side model identifier.
	DefaultModel = "deepseek-chat"
)

// Config stores application configuration.
type Config struct {
	// Completion provider (OpenAI-compatible API)
	APIKey  string `mapstructure:"api_key"`  // SENSITIVE
	BaseURL string `mapstructure:"base_url"` // empty = provider library default
	Model   string `mapstructure:"model"`

	// Conversation behavior
	SystemPrompt  string `mapstructure:"system_prompt"`
	FallbackReply string `mapstructure:"fallback_reply"`
	MaxHistory    int    `mapstructure:"max_history"`

	// HTTP server
	Addr       string `mapstructure:"addr"`
	TrustProxy bool    `mapstructure:"trust_proxy"` // trust X-Real-IP/X-Forwarded-For
	RateLimit  float64 `mapstructure:"rate_limit"`  // requests/sec per IP (0 = disabled)
	RateBurst  int     `mapstructure:"rate_burst"`  // per-IP token bucket burst (0 = default)

	// Storage (PostgreSQL; see storage.go for DSN helpers)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Logging
	LogLevel string `mapstructure:"log_level"` // debug|info|warn|error
	LogJSON  bool   `mapstructure:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix("CHATRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Every key needs a default so AutomaticEnv can override it via Unmarshal.
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "https://api.deepseek.com/v1")
	v.SetDefault("model", DefaultModel)

	v.SetDefault("system_prompt", DefaultSystemPrompt)
	v.SetDefault("fallback_reply", DefaultFallbackReply)
	v.SetDefault("max_history", DefaultMaxHistory)

	v.SetDefault("addr", "127.0.0.1:8080")
	v.SetDefault("trust_proxy", false)
	v.SetDefault("rate_limit", 0.0)
	v.SetDefault("rate_burst", 0)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "chatrelay")
	v.SetDefault("postgres_password", "chatrelay_dev_password")
	v.SetDefault("postgres_db_name", "chatrelay")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// Level converts the configured log level string to a slog.Level.
// Unknown values fall back to info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

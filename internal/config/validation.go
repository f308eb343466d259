package config

import (
	"errors"
	"fmt"
)

// Sentinel errors for configuration validation, checked with errors.Is().
var (
	// ErrMissingAPIKey indicates the provider API key is not set.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModel indicates the model name is empty.
	ErrInvalidModel = errors.New("invalid model name")

	// ErrInvalidMaxHistory indicates max_history is out of range.
	ErrInvalidMaxHistory = errors.New("invalid max history")

	// ErrEmptyFallbackReply indicates the fallback reply is empty. The
	// fallback is what keeps assistant turns non-empty on provider outages.
	ErrEmptyFallbackReply = errors.New("empty fallback reply")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is not recognized.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks configuration invariants that every command depends on.
// Provider credentials are checked separately in ValidateServe, so commands
// that never call the provider (migrate) work without an API key.
func (c *Config) Validate() error {
	if c.Model == "" {
		return ErrInvalidModel
	}
	if c.MaxHistory < 1 || c.MaxHistory > MaxAllowedHistory {
		return fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidMaxHistory, c.MaxHistory, MaxAllowedHistory)
	}
	if c.FallbackReply == "" {
		return ErrEmptyFallbackReply
	}
	if c.PostgresHost == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return ErrInvalidPostgresDBName
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}
	return nil
}

// ValidateServe checks the additional requirements of the serve command.
func (c *Config) ValidateServe() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: set CHATRELAY_API_KEY", ErrMissingAPIKey)
	}
	return nil
}

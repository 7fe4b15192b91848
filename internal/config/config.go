package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/blacksky-md/bslink/internal/backoff"
	"github.com/blacksky-md/bslink/internal/fingerprint"
	"github.com/blacksky-md/bslink/internal/logging"
)

// Config represents the complete bslink configuration
type Config struct {
	Session      SessionConfig     `mapstructure:"session"`
	Reconnect    ReconnectConfig   `mapstructure:"reconnect"`
	Fingerprints FingerprintConfig `mapstructure:"fingerprints"`
	Logging      LoggingConfig     `mapstructure:"logging"`
	Paths        PathsConfig       `mapstructure:"paths"`
}

// SessionConfig identifies the session and its authentication handshake
type SessionConfig struct {
	// ID is the stable identifier scoping one credential set (default: "default")
	ID string `mapstructure:"id"`
	// AuthMode selects the handshake when no resumable credentials exist
	// Options: "code_display", "pairing_code"
	AuthMode string `mapstructure:"auth_mode"`
	// PhoneNumber is the pairing target, required when auth_mode is "pairing_code".
	// E.164-like; +, spaces, dashes, dots and parens are stripped.
	PhoneNumber string `mapstructure:"phone_number"`
	// WatchCredentials enables the credential-directory watcher so external
	// deletion of the auth folder is surfaced as an event (default: true)
	WatchCredentials bool `mapstructure:"watch_credentials"`
}

// ReconnectConfig controls the backoff and retry policy
type ReconnectConfig struct {
	// BaseDelaySeconds is the first retry delay (default: 2)
	BaseDelaySeconds int `mapstructure:"base_delay_seconds"`
	// MaxDelaySeconds caps the exponential growth (default: 30)
	MaxDelaySeconds int `mapstructure:"max_delay_seconds"`
	// RateLimitedBaseDelaySeconds is the first delay after a rate-limited
	// disconnect (default: 5)
	RateLimitedBaseDelaySeconds int `mapstructure:"rate_limited_base_delay_seconds"`
	// RateLimitedMaxDelaySeconds caps the rate-limited profile (default: 60)
	RateLimitedMaxDelaySeconds int `mapstructure:"rate_limited_max_delay_seconds"`
	// MaxAttempts is the reconnect ceiling before the session fails (default: 10)
	MaxAttempts int `mapstructure:"max_attempts"`
	// Jitter spreads retries of many sessions apart (default: true)
	Jitter bool `mapstructure:"jitter"`
}

// BackoffConfig converts the section into the scheduler's config type
func (r *ReconnectConfig) BackoffConfig() backoff.Config {
	return backoff.Config{
		BaseDelay:            time.Duration(r.BaseDelaySeconds) * time.Second,
		MaxDelay:             time.Duration(r.MaxDelaySeconds) * time.Second,
		RateLimitedBaseDelay: time.Duration(r.RateLimitedBaseDelaySeconds) * time.Second,
		RateLimitedMaxDelay:  time.Duration(r.RateLimitedMaxDelaySeconds) * time.Second,
		MaxAttempts:          r.MaxAttempts,
		Jitter:               r.Jitter,
	}
}

// FingerprintConfig controls the client-identity pool
type FingerprintConfig struct {
	// Pool overrides the built-in identity pool. Empty means built-in.
	Pool []fingerprint.Descriptor `mapstructure:"pool"`
}

// Descriptors returns the configured pool, or nil for the built-in one
func (f *FingerprintConfig) Descriptors() []fingerprint.Descriptor {
	return f.Pool
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether file logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated log files (default: false)
	Compress bool `mapstructure:"compress"`
}

// RotationConfig converts the section into the logger's rotation config
func (l *LoggingConfig) RotationConfig() logging.RotationConfig {
	return logging.RotationConfig{
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		Compress:   l.Compress,
	}
}

// PathsConfig controls where bslink stores data
type PathsConfig struct {
	// CredentialsDir is where credential blobs are stored.
	// Empty means <config dir>/credentials. Supports ~ expansion.
	CredentialsDir string `mapstructure:"credentials_dir"`
	// LogDir is where session logs are written.
	// Empty means <config dir>/logs. Supports ~ expansion.
	LogDir string `mapstructure:"log_dir"`
}

// ResolveCredentialsDir returns the resolved credential directory path
func (p *PathsConfig) ResolveCredentialsDir() string {
	if p.CredentialsDir == "" {
		return filepath.Join(ConfigDir(), "credentials")
	}
	return expandPath(p.CredentialsDir)
}

// ResolveLogDir returns the resolved log directory path
func (p *PathsConfig) ResolveLogDir() string {
	if p.LogDir == "" {
		return filepath.Join(ConfigDir(), "logs")
	}
	return expandPath(p.LogDir)
}

// expandPath expands a leading ~ to the user's home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			return home
		}
	}
	return path
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			ID:               "default",
			AuthMode:         "code_display",
			PhoneNumber:      "",
			WatchCredentials: true,
		},
		Reconnect: ReconnectConfig{
			BaseDelaySeconds:            2,
			MaxDelaySeconds:             30,
			RateLimitedBaseDelaySeconds: 5,
			RateLimitedMaxDelaySeconds:  60,
			MaxAttempts:                 10,
			Jitter:                      true,
		},
		Fingerprints: FingerprintConfig{
			Pool: nil, // Empty means use the built-in pool
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
		Paths: PathsConfig{
			CredentialsDir: "", // Empty means use default: <config dir>/credentials
			LogDir:         "", // Empty means use default: <config dir>/logs
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Session defaults
	viper.SetDefault("session.id", defaults.Session.ID)
	viper.SetDefault("session.auth_mode", defaults.Session.AuthMode)
	viper.SetDefault("session.phone_number", defaults.Session.PhoneNumber)
	viper.SetDefault("session.watch_credentials", defaults.Session.WatchCredentials)

	// Reconnect defaults
	viper.SetDefault("reconnect.base_delay_seconds", defaults.Reconnect.BaseDelaySeconds)
	viper.SetDefault("reconnect.max_delay_seconds", defaults.Reconnect.MaxDelaySeconds)
	viper.SetDefault("reconnect.rate_limited_base_delay_seconds", defaults.Reconnect.RateLimitedBaseDelaySeconds)
	viper.SetDefault("reconnect.rate_limited_max_delay_seconds", defaults.Reconnect.RateLimitedMaxDelaySeconds)
	viper.SetDefault("reconnect.max_attempts", defaults.Reconnect.MaxAttempts)
	viper.SetDefault("reconnect.jitter", defaults.Reconnect.Jitter)

	// Fingerprint defaults
	viper.SetDefault("fingerprints.pool", defaults.Fingerprints.Pool)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Paths defaults
	viper.SetDefault("paths.credentials_dir", defaults.Paths.CredentialsDir)
	viper.SetDefault("paths.log_dir", defaults.Paths.LogDir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "bslink")
	}
	// Fall back to ~/.config/bslink
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bslink"
	}
	return filepath.Join(home, ".config", "bslink")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidAuthModes returns the list of valid auth mode values
func ValidAuthModes() []string {
	return []string{"code_display", "pairing_code"}
}

// IsValidAuthMode checks if the given mode is valid
func IsValidAuthMode(mode string) bool {
	for _, valid := range ValidAuthModes() {
		if mode == valid {
			return true
		}
	}
	return false
}

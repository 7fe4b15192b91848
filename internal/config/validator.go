package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/blacksky-md/bslink/internal/session"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "reconnect.max_attempts")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// sessionIDRegex validates session identifier characters. IDs become
// directory names under the credential store, so path separators and
// leading dots are out.
var sessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validateReconnect()...)
	errors = append(errors, c.validateFingerprints()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateSession validates the SessionConfig
func (c *Config) validateSession() []ValidationError {
	var errors []ValidationError

	if c.Session.ID == "" {
		errors = append(errors, ValidationError{
			Field:   "session.id",
			Value:   c.Session.ID,
			Message: "must not be empty",
		})
	} else if !sessionIDRegex.MatchString(c.Session.ID) {
		errors = append(errors, ValidationError{
			Field:   "session.id",
			Value:   c.Session.ID,
			Message: "must start with an alphanumeric and contain only alphanumerics, dots, hyphens, underscores",
		})
	}

	if !IsValidAuthMode(c.Session.AuthMode) {
		errors = append(errors, ValidationError{
			Field:   "session.auth_mode",
			Value:   c.Session.AuthMode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidAuthModes(), ", ")),
		})
	}

	if c.Session.AuthMode == "pairing_code" {
		if _, err := session.NormalizePhoneNumber(c.Session.PhoneNumber); err != nil {
			errors = append(errors, ValidationError{
				Field:   "session.phone_number",
				Value:   c.Session.PhoneNumber,
				Message: "must be a valid phone number (7-15 digits) when auth_mode is pairing_code",
			})
		}
	}

	return errors
}

// validateReconnect validates the ReconnectConfig
func (c *Config) validateReconnect() []ValidationError {
	var errors []ValidationError

	if c.Reconnect.BaseDelaySeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "reconnect.base_delay_seconds",
			Value:   c.Reconnect.BaseDelaySeconds,
			Message: "must be at least 1",
		})
	}
	if c.Reconnect.MaxDelaySeconds < c.Reconnect.BaseDelaySeconds {
		errors = append(errors, ValidationError{
			Field:   "reconnect.max_delay_seconds",
			Value:   c.Reconnect.MaxDelaySeconds,
			Message: "must be at least base_delay_seconds",
		})
	}
	if c.Reconnect.RateLimitedBaseDelaySeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "reconnect.rate_limited_base_delay_seconds",
			Value:   c.Reconnect.RateLimitedBaseDelaySeconds,
			Message: "must be at least 1",
		})
	}
	if c.Reconnect.RateLimitedMaxDelaySeconds < c.Reconnect.RateLimitedBaseDelaySeconds {
		errors = append(errors, ValidationError{
			Field:   "reconnect.rate_limited_max_delay_seconds",
			Value:   c.Reconnect.RateLimitedMaxDelaySeconds,
			Message: "must be at least rate_limited_base_delay_seconds",
		})
	}

	const maxAttemptsLimit = 100
	if c.Reconnect.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "reconnect.max_attempts",
			Value:   c.Reconnect.MaxAttempts,
			Message: "must be at least 1",
		})
	} else if c.Reconnect.MaxAttempts > maxAttemptsLimit {
		errors = append(errors, ValidationError{
			Field:   "reconnect.max_attempts",
			Value:   c.Reconnect.MaxAttempts,
			Message: fmt.Sprintf("exceeds maximum of %d", maxAttemptsLimit),
		})
	}

	return errors
}

// validateFingerprints validates the FingerprintConfig
func (c *Config) validateFingerprints() []ValidationError {
	var errors []ValidationError

	for i, d := range c.Fingerprints.Pool {
		if d.DisplayName == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("fingerprints.pool[%d].display_name", i),
				Value:   d.DisplayName,
				Message: "must not be empty",
			})
		}
		if d.Platform == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("fingerprints.pool[%d].platform", i),
				Value:   d.Platform,
				Message: "must not be empty",
			})
		}
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 1 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be at least 1",
		})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

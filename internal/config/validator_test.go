package config

import (
	"strings"
	"testing"

	"github.com/blacksky-md/bslink/internal/fingerprint"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "reconnect.max_attempts",
		Value:   0,
		Message: "must be at least 1",
	}
	want := "reconnect.max_attempts: must be at least 1 (got: 0)"
	if got := err.Error(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	var none ValidationErrors
	if none.Error() != "" {
		t.Error("Empty ValidationErrors should produce an empty message")
	}

	one := ValidationErrors{{Field: "a", Value: 1, Message: "bad"}}
	if got := one.Error(); got != "a: bad (got: 1)" {
		t.Errorf("Single error: got %q", got)
	}

	two := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: 2, Message: "worse"},
	}
	got := two.Error()
	if !strings.HasPrefix(got, "2 validation errors:") {
		t.Errorf("Multi-error message should start with a count, got %q", got)
	}
	if !strings.Contains(got, "1. a: bad (got: 1)") || !strings.Contains(got, "2. b: worse (got: 2)") {
		t.Errorf("Multi-error message should enumerate errors, got %q", got)
	}
}

func TestValidate_Session(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"empty id", func(c *Config) { c.Session.ID = "" }, "session.id"},
		{"id with slash", func(c *Config) { c.Session.ID = "a/b" }, "session.id"},
		{"id leading dot", func(c *Config) { c.Session.ID = ".hidden" }, "session.id"},
		{"bad auth mode", func(c *Config) { c.Session.AuthMode = "telepathy" }, "session.auth_mode"},
		{"pairing without phone", func(c *Config) {
			c.Session.AuthMode = "pairing_code"
			c.Session.PhoneNumber = ""
		}, "session.phone_number"},
		{"pairing bad phone", func(c *Config) {
			c.Session.AuthMode = "pairing_code"
			c.Session.PhoneNumber = "call-me"
		}, "session.phone_number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assertFieldError(t, cfg.Validate(), tt.wantField)
		})
	}
}

func TestValidate_SessionValidCases(t *testing.T) {
	for _, id := range []string{"default", "work-phone", "bot.2", "A_1"} {
		cfg := Default()
		cfg.Session.ID = id
		if errs := cfg.Validate(); len(errs) > 0 {
			t.Errorf("Session ID %q should validate, got %v", id, ValidationErrors(errs))
		}
	}

	cfg := Default()
	cfg.Session.AuthMode = "pairing_code"
	cfg.Session.PhoneNumber = "+1 (555) 123-4567"
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("Formatted phone number should validate, got %v", ValidationErrors(errs))
	}
}

func TestValidate_Reconnect(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"zero base", func(c *Config) { c.Reconnect.BaseDelaySeconds = 0 }, "reconnect.base_delay_seconds"},
		{"cap below base", func(c *Config) { c.Reconnect.MaxDelaySeconds = 1 }, "reconnect.max_delay_seconds"},
		{"zero rate-limited base", func(c *Config) { c.Reconnect.RateLimitedBaseDelaySeconds = 0 }, "reconnect.rate_limited_base_delay_seconds"},
		{"rate-limited cap below base", func(c *Config) { c.Reconnect.RateLimitedMaxDelaySeconds = 1 }, "reconnect.rate_limited_max_delay_seconds"},
		{"zero attempts", func(c *Config) { c.Reconnect.MaxAttempts = 0 }, "reconnect.max_attempts"},
		{"too many attempts", func(c *Config) { c.Reconnect.MaxAttempts = 1000 }, "reconnect.max_attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assertFieldError(t, cfg.Validate(), tt.wantField)
		})
	}
}

func TestValidate_Fingerprints(t *testing.T) {
	cfg := Default()
	cfg.Fingerprints.Pool = []fingerprint.Descriptor{
		{DisplayName: "Chrome", Platform: "Linux", Version: "110.0"},
		{DisplayName: "", Platform: "Linux", Version: "110.0"},
		{DisplayName: "Safari", Platform: "", Version: "16.3"},
	}

	errs := cfg.Validate()
	assertFieldError(t, errs, "fingerprints.pool[1].display_name")
	assertFieldError(t, errs, "fingerprints.pool[2].platform")
}

func TestValidate_Logging(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"zero max size", func(c *Config) { c.Logging.MaxSizeMB = 0 }, "logging.max_size_mb"},
		{"negative backups", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_backups"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assertFieldError(t, cfg.Validate(), tt.wantField)
		})
	}
}

func assertFieldError(t *testing.T, errs []ValidationError, field string) {
	t.Helper()
	for _, e := range errs {
		if e.Field == field {
			return
		}
	}
	t.Errorf("Expected a validation error for %s, got %v", field, ValidationErrors(errs))
}

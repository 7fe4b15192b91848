package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Fatalf("Default config should validate cleanly, got: %v", ValidationErrors(errs))
	}
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)
	SetDefaults()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Session.ID != "default" {
		t.Errorf("Expected session.id 'default', got %q", cfg.Session.ID)
	}
	if cfg.Session.AuthMode != "code_display" {
		t.Errorf("Expected auth_mode 'code_display', got %q", cfg.Session.AuthMode)
	}
	if cfg.Reconnect.MaxAttempts != 10 {
		t.Errorf("Expected max_attempts 10, got %d", cfg.Reconnect.MaxAttempts)
	}
	if !cfg.Reconnect.Jitter {
		t.Error("Expected jitter enabled by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected logging level 'info', got %q", cfg.Logging.Level)
	}
}

func TestLoad_Overrides(t *testing.T) {
	resetViper(t)
	SetDefaults()
	viper.Set("session.id", "work-phone")
	viper.Set("session.auth_mode", "pairing_code")
	viper.Set("session.phone_number", "+15551234567")
	viper.Set("reconnect.max_attempts", 5)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Session.ID != "work-phone" {
		t.Errorf("Expected overridden session ID, got %q", cfg.Session.ID)
	}
	if cfg.Reconnect.MaxAttempts != 5 {
		t.Errorf("Expected overridden max_attempts, got %d", cfg.Reconnect.MaxAttempts)
	}
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	resetViper(t)
	SetDefaults()
	viper.Set("session.auth_mode", "telepathy")
	viper.Set("reconnect.max_attempts", 0)

	if _, err := Load(); err == nil {
		t.Fatal("Expected Load to reject invalid configuration")
	}
}

func TestReconnectConfig_BackoffConfig(t *testing.T) {
	cfg := Default()
	bc := cfg.Reconnect.BackoffConfig()

	if bc.BaseDelay != 2*time.Second {
		t.Errorf("Expected base delay 2s, got %s", bc.BaseDelay)
	}
	if bc.MaxDelay != 30*time.Second {
		t.Errorf("Expected max delay 30s, got %s", bc.MaxDelay)
	}
	if bc.RateLimitedBaseDelay != 5*time.Second {
		t.Errorf("Expected rate-limited base 5s, got %s", bc.RateLimitedBaseDelay)
	}
	if bc.RateLimitedMaxDelay != 60*time.Second {
		t.Errorf("Expected rate-limited cap 60s, got %s", bc.RateLimitedMaxDelay)
	}
	if err := bc.Validate(); err != nil {
		t.Errorf("Converted backoff config should validate: %v", err)
	}
}

func TestLoggingConfig_RotationConfig(t *testing.T) {
	cfg := Default()
	rc := cfg.Logging.RotationConfig()

	if rc.MaxSizeMB != 10 || rc.MaxBackups != 3 || rc.Compress {
		t.Errorf("Unexpected rotation config: %+v", rc)
	}
}

func TestPathsConfig_Defaults(t *testing.T) {
	p := &PathsConfig{}

	credDir := p.ResolveCredentialsDir()
	if filepath.Base(credDir) != "credentials" {
		t.Errorf("Expected default credentials dir, got %q", credDir)
	}
	logDir := p.ResolveLogDir()
	if filepath.Base(logDir) != "logs" {
		t.Errorf("Expected default log dir, got %q", logDir)
	}
}

func TestPathsConfig_TildeExpansion(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("No home directory: %v", err)
	}

	p := &PathsConfig{CredentialsDir: "~/bslink-auth"}
	if got := p.ResolveCredentialsDir(); got != filepath.Join(home, "bslink-auth") {
		t.Errorf("Expected tilde expansion, got %q", got)
	}
}

func TestPathsConfig_AbsolutePathUnchanged(t *testing.T) {
	p := &PathsConfig{CredentialsDir: "/var/lib/bslink"}
	if got := p.ResolveCredentialsDir(); got != "/var/lib/bslink" {
		t.Errorf("Expected absolute path unchanged, got %q", got)
	}
}

func TestConfigDir_XDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")
	if got := ConfigDir(); got != "/tmp/xdg-test/bslink" {
		t.Errorf("Expected XDG config dir, got %q", got)
	}
}

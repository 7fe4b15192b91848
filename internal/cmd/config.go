package cmd

import (
	"fmt"
	"os"

	"github.com/blacksky-md/bslink/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or initialize bslink configuration",
	Long: `View or initialize bslink configuration.

Without arguments, displays the current configuration.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/bslink/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	fmt.Println("Current configuration:")
	fmt.Println()

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Printf("Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Printf("Config file: (none - using defaults)\n")
	}
	fmt.Println()

	fmt.Println("session:")
	fmt.Printf("  id: %s\n", cfg.Session.ID)
	fmt.Printf("  auth_mode: %s\n", cfg.Session.AuthMode)
	if cfg.Session.PhoneNumber != "" {
		fmt.Printf("  phone_number: %s\n", cfg.Session.PhoneNumber)
	}
	fmt.Printf("  watch_credentials: %v\n", cfg.Session.WatchCredentials)

	fmt.Println("reconnect:")
	fmt.Printf("  base_delay_seconds: %d\n", cfg.Reconnect.BaseDelaySeconds)
	fmt.Printf("  max_delay_seconds: %d\n", cfg.Reconnect.MaxDelaySeconds)
	fmt.Printf("  rate_limited_base_delay_seconds: %d\n", cfg.Reconnect.RateLimitedBaseDelaySeconds)
	fmt.Printf("  rate_limited_max_delay_seconds: %d\n", cfg.Reconnect.RateLimitedMaxDelaySeconds)
	fmt.Printf("  max_attempts: %d\n", cfg.Reconnect.MaxAttempts)
	fmt.Printf("  jitter: %v\n", cfg.Reconnect.Jitter)

	fmt.Println("fingerprints:")
	if len(cfg.Fingerprints.Pool) == 0 {
		fmt.Println("  pool: (built-in)")
	} else {
		fmt.Println("  pool:")
		for _, d := range cfg.Fingerprints.Pool {
			fmt.Printf("    - %s\n", d.String())
		}
	}

	fmt.Println("logging:")
	fmt.Printf("  enabled: %v\n", cfg.Logging.Enabled)
	fmt.Printf("  level: %s\n", cfg.Logging.Level)
	fmt.Printf("  max_size_mb: %d\n", cfg.Logging.MaxSizeMB)
	fmt.Printf("  max_backups: %d\n", cfg.Logging.MaxBackups)
	fmt.Printf("  compress: %v\n", cfg.Logging.Compress)

	fmt.Println("paths:")
	fmt.Printf("  credentials_dir: %s\n", cfg.Paths.ResolveCredentialsDir())
	fmt.Printf("  log_dir: %s\n", cfg.Paths.ResolveLogDir())

	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Generate a commented config file
	configContent := `# bslink configuration

# Session identity and handshake
session:
  # Stable identifier scoping one credential set
  id: default
  # Handshake when no resumable credentials exist
  # Options: code_display, pairing_code
  auth_mode: code_display
  # Pairing target, required for pairing_code mode (E.164-like)
  phone_number: ""
  # Surface external deletion of the credential folder as an event
  watch_credentials: true

# Reconnect policy
reconnect:
  # First retry delay; doubles per attempt up to max_delay_seconds
  base_delay_seconds: 2
  max_delay_seconds: 30
  # Separate, slower profile after rate-limited disconnects
  rate_limited_base_delay_seconds: 5
  rate_limited_max_delay_seconds: 60
  # Consecutive failed attempts before the session gives up
  max_attempts: 10
  # Spread retries of many sessions apart
  jitter: true

# Client identities presented to the service; rotated when a disconnect
# suggests the current one was flagged. Empty means the built-in pool.
fingerprints:
  pool: []

# Per-session file logging
logging:
  enabled: true
  level: info
  max_size_mb: 10
  max_backups: 3
  compress: false

# Storage locations (empty means under the config directory)
paths:
  credentials_dir: ""
  log_dir: ""
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	fmt.Println(config.ConfigFile())
	return nil
}

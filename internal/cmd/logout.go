package cmd

import (
	"errors"
	"fmt"

	"github.com/blacksky-md/bslink/internal/config"
	"github.com/blacksky-md/bslink/internal/credstore"
	bserr "github.com/blacksky-md/bslink/internal/errors"
	"github.com/blacksky-md/bslink/internal/event"
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout [session-id]",
	Short: "Erase a session's stored credentials",
	Long: `Erase a session's stored credentials.

The next connect for this session starts from a fresh handshake. The
service keeps its side of the registration until the device is removed
from the phone's linked devices screen.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	sessionID := cfg.Session.ID
	if len(args) > 0 {
		sessionID = args[0]
	}

	store, err := credstore.NewFileStore(cfg.Paths.ResolveCredentialsDir(), event.NewBus())
	if err != nil {
		return err
	}

	if !store.Exists(sessionID) {
		fmt.Printf("Session %s has no stored credentials.\n", sessionID)
		return nil
	}

	if err := store.Erase(sessionID); err != nil {
		if errors.Is(err, bserr.ErrInvalidInput) {
			return fmt.Errorf("invalid session ID %q", sessionID)
		}
		return fmt.Errorf("failed to erase credentials: %w", err)
	}

	fmt.Printf("Erased credentials for session %s.\n", sessionID)
	return nil
}

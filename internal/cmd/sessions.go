package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/blacksky-md/bslink/internal/config"
	"github.com/blacksky-md/bslink/internal/credstore"
	"github.com/blacksky-md/bslink/internal/event"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions",
	Long: `List the sessions known to the credential store:
- Session ID
- Whether resumable credentials exist
- When the credentials were last updated`,
	RunE: runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := credstore.NewFileStore(cfg.Paths.ResolveCredentialsDir(), event.NewBus())
	if err != nil {
		return err
	}

	sessions, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Printf("No sessions found in %s\n", store.BaseDir())
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tCREDENTIALS\tLAST UPDATED")
	for _, s := range sessions {
		creds := "none"
		updated := "-"
		if s.HasCredentials {
			creds = "stored"
			updated = s.ModifiedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.SessionID, creds, updated)
	}
	return w.Flush()
}
